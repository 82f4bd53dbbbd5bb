// Package queueaccess opens the lease store selected by configuration and
// pairs it with the matching teardown transport.
//
// SQLite and Postgres stores release a worker's claims directly on teardown.
// A remote store goes through the gateway, and teardown is a fire-and-forget
// beacon to its release-all endpoint.
package queueaccess
