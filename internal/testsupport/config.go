package testsupport

import (
	"path/filepath"
	"testing"

	"leadswiper/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.IdentityFile = filepath.Join(base, "state", "worker_id")
	cfgVal.Store.SQLitePath = filepath.Join(base, "state", "leads.db")
	cfgVal.API.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithLease overrides lease duration and renewal interval, in seconds.
func WithLease(durationSeconds, renewSeconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Leases.DurationSeconds = durationSeconds
		b.cfg.Leases.RenewIntervalSeconds = renewSeconds
	}
}

// WithBatchSize overrides the review batch size.
func WithBatchSize(size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Review.BatchSize = size
	}
}

// WithAPIToken sets the gateway bearer token on both sides.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Token = token
		b.cfg.Store.RemoteToken = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
