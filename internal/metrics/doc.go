// Package metrics defines the Prometheus collectors for claim outcomes and
// gateway traffic. Collectors are registered on a caller-supplied registry so
// tests and multiple gateways never collide on the global default.
package metrics
