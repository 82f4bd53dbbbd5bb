// Package daemon runs the leadswiper store gateway: an HTTP/JSON front for a
// SQLite or Postgres lease store, so reviewer sessions on other machines reach
// the store only through network calls.
//
// The daemon holds a flock on the state directory to prevent two gateways
// from serving the same SQLite file. Handlers substitute the gateway clock
// for client timestamps while keeping the client's lease window, so every
// lease comparison in the store uses one clock regardless of client skew.
package daemon
