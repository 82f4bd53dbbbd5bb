package preflight

import (
	"context"

	"leadswiper/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Pinger is the slice of a lease store the checks need.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunAll executes the checks that apply to cfg. store may be nil when the
// backend could not be opened; the store check then fails with openErr.
func RunAll(ctx context.Context, cfg *config.Config, store Pinger, openErr error) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	results = append(results, CheckIdentity("Worker identity", cfg.Paths.IdentityFile))
	results = append(results, CheckLeaseTiming(cfg))
	results = append(results, CheckStore(ctx, storeLabel(cfg.Store.Driver), store, openErr))

	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}

func storeLabel(driver string) string {
	switch driver {
	case config.DriverPostgres:
		return "Postgres store"
	case config.DriverRemote:
		return "Store gateway"
	default:
		return "SQLite store"
	}
}
