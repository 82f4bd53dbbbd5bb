// Package claims manages time-bounded leases on pending leads.
//
// A claim is live while now - claimed_at is below the lease duration. Every
// claim change is a single-row conditional update in the lease store, so two
// workers racing for the same lead resolve without a coordinator: exactly one
// conditional update matches. Expired claims are reclaimed lazily by the next
// acquirer; nothing sweeps them.
//
// The Manager never returns store errors. Callers treat a missing claim as a
// lost race and rely on lease expiry to recover from failed renewals or
// releases.
package claims
