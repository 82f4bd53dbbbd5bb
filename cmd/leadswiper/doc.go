// Command leadswiper reviews leads with lease-based work claims.
//
// "leadswiper review" runs an interactive reviewer session against the
// configured store. "leadswiper serve" runs the HTTP gateway other reviewers
// reach with store.driver = "remote". The remaining commands inspect and
// repair the queue, claims, worker identity, and configuration.
package main
