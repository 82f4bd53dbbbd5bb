// Package session implements a reviewer's working state over a claimed batch
// of leads.
//
// Review actions apply locally first and persist in the background. Each
// lead's latest unconfirmed write carries a generation marker: when a write
// succeeds the marker clears, when it fails after its retries the marker is
// flagged, and Reconcile repairs the queue, history, and counters for flagged
// markers that are still current. Results of writes overtaken by a later
// action on the same lead are ignored. Writes for one lead run in the order
// they were issued.
//
// While pending leads remain queued a renewal loop refreshes their claims on
// a fixed interval. Teardown hands a release-all to a fire-and-forget
// transport; lease expiry covers sessions that never tear down.
package session
