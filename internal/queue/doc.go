// Package queue persists reviewable leads and their claim leases.
//
// A lead is pending until a reviewer approves, rejects, superlikes, or
// contacts it. While pending it may carry a claim: the worker identity that
// holds it and when the claim was last refreshed. A claim is live while
// now-claimed_at is below the lease duration; expiry is evaluated by readers
// and never swept. All claim writes are single-row conditional updates so
// concurrent workers race safely through the store alone.
//
// LeaseStore is the contract every backend satisfies. Store is the embedded
// SQLite implementation; the postgres subpackage and the remote gateway
// client provide the others.
//
// Schema changes bump the version in schema.go; users delete the database to
// adopt the new schema.
package queue
