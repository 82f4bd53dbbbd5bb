// Package ranking orders a claimed batch by a derived engagement or cadence
// metric. It is pure: it reorders a copy and never touches claim state.
package ranking
