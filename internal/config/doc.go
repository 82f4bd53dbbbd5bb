// Package config loads, normalizes, and validates leadswiper configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// LEADSWIPER_POSTGRES_DSN and LEADSWIPER_API_TOKEN. The Config type centralizes
// the store backend, lease timing, and reviewer session knobs so the CLI and
// gateway discover them in one pass.
//
// Lease timing is validated together: a lease must outlive two renewal
// intervals so a single missed renewal never hands an item to another worker.
package config
