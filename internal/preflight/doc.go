// Package preflight provides readiness checks for the paths and store
// backend leadswiper depends on.
//
// The "leadswiper doctor" command runs RunAll and prints each result; the
// review command runs the same checks before claiming anything so a broken
// store fails fast instead of mid-batch.
package preflight
