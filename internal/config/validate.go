package config

import (
	"errors"
	"fmt"
	"strings"
)

var validSortKeys = map[string]struct{}{
	"avg_upvotes":   {},
	"posts_per_day": {},
	"total_karma":   {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateLeases(); err != nil {
		return err
	}
	if err := c.validateReview(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			return errors.New("store.sqlite_path must be set when store.driver is sqlite")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Store.PostgresDSN) == "" {
			return errors.New("store.postgres_dsn is required when store.driver is postgres. Set LEADSWIPER_POSTGRES_DSN or edit the config")
		}
	case DriverRemote:
		if !strings.HasPrefix(c.Store.RemoteURL, "http://") && !strings.HasPrefix(c.Store.RemoteURL, "https://") {
			return fmt.Errorf("store.remote_url must be an http(s) URL, got %q", c.Store.RemoteURL)
		}
	default:
		return fmt.Errorf("store.driver must be one of sqlite, postgres, remote (got %q)", c.Store.Driver)
	}
	return nil
}

func (c *Config) validateLeases() error {
	if c.Leases.DurationSeconds <= 0 {
		return errors.New("leases.duration_seconds must be positive")
	}
	if c.Leases.RenewIntervalSeconds <= 0 {
		return errors.New("leases.renew_interval_seconds must be positive")
	}
	// One missed renewal must not expire a held lease.
	if c.Leases.DurationSeconds <= 2*c.Leases.RenewIntervalSeconds {
		return fmt.Errorf("leases.duration_seconds (%d) must exceed twice leases.renew_interval_seconds (%d)",
			c.Leases.DurationSeconds, c.Leases.RenewIntervalSeconds)
	}
	if c.Leases.AcquireConcurrency <= 0 {
		return errors.New("leases.acquire_concurrency must be positive")
	}
	if c.Leases.TeardownTimeoutSecs <= 0 {
		return errors.New("leases.teardown_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateReview() error {
	if c.Review.BatchSize <= 0 {
		return errors.New("review.batch_size must be positive")
	}
	if _, ok := validSortKeys[c.Review.SortKey]; !ok {
		return fmt.Errorf("review.sort_key must be one of avg_upvotes, posts_per_day, total_karma (got %q)", c.Review.SortKey)
	}
	if c.Review.UndoDepth <= 0 {
		return errors.New("review.undo_depth must be positive")
	}
	if c.Review.PersistAttempts <= 0 {
		return errors.New("review.persist_attempts must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	return nil
}
