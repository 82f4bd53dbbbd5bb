// Package apiclient implements queue.LeaseStore against a leadswiper
// gateway over HTTP/JSON, plus a teardown beacon that asks the gateway to
// release a worker's claims without waiting for the answer.
//
// Gateway error codes map back onto the queue sentinel errors, so callers
// cannot tell a remote store from a local one by its errors.
package apiclient
