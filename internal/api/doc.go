// Package api defines the wire-format types and converters for the store
// gateway. It translates queue models into transport-friendly DTOs so the
// gateway and its HTTP client share one schema without exposing internal
// types.
//
// DTOs use camelCase JSON tags. Statuses travel as lowercase strings.
// Timestamps use RFC3339 with nanoseconds so claim times survive a round
// trip unchanged; lease comparisons depend on it.
package api
