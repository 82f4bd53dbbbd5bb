package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRemote   = "remote"
)

// Paths contains directory and identity file configuration.
type Paths struct {
	StateDir     string `toml:"state_dir"`
	LogDir       string `toml:"log_dir"`
	IdentityFile string `toml:"identity_file"`
}

// Store selects and configures the lease store backend.
type Store struct {
	Driver             string `toml:"driver"`
	SQLitePath         string `toml:"sqlite_path"`
	PostgresDSN        string `toml:"postgres_dsn"`
	RemoteURL          string `toml:"remote_url"`
	RemoteToken        string `toml:"remote_token"`
	RequestTimeoutSecs int    `toml:"request_timeout_seconds"`
}

// API contains configuration for the store gateway.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Leases contains claim lease timing.
type Leases struct {
	DurationSeconds      int `toml:"duration_seconds"`
	RenewIntervalSeconds int `toml:"renew_interval_seconds"`
	AcquireConcurrency   int `toml:"acquire_concurrency"`
	TeardownTimeoutSecs  int `toml:"teardown_timeout_seconds"`
}

// Review contains reviewer session settings.
type Review struct {
	BatchSize       int      `toml:"batch_size"`
	SortKey         string   `toml:"sort_key"`
	UndoDepth       int      `toml:"undo_depth"`
	PersistAttempts int      `toml:"persist_attempts"`
	ExcludedGroups  []string `toml:"excluded_groups"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for leadswiper.
//
// Configuration sections by subsystem:
//   - Paths: state, logs, and the worker identity file
//   - Store: lease store backend (sqlite, postgres, or a remote gateway)
//   - API: store gateway bind address and bearer token
//   - Leases: claim lease duration and renewal cadence
//   - Review: reviewer session batch size, ranking, and undo depth
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Store   Store   `toml:"store"`
	API     API     `toml:"api"`
	Leases  Leases  `toml:"leases"`
	Review  Review  `toml:"review"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("leadswiper.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Store.Driver == DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(c.Store.SQLitePath), 0o755); err != nil {
			return fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	return nil
}

// LeaseDuration is the window after claimed_at during which a claim is live.
func (c *Config) LeaseDuration() time.Duration {
	return time.Duration(c.Leases.DurationSeconds) * time.Second
}

// RenewInterval is how often a session refreshes the claims it holds.
func (c *Config) RenewInterval() time.Duration {
	return time.Duration(c.Leases.RenewIntervalSeconds) * time.Second
}

// TeardownTimeout bounds the best-effort release sent when a session ends.
func (c *Config) TeardownTimeout() time.Duration {
	return time.Duration(c.Leases.TeardownTimeoutSecs) * time.Second
}

// RequestTimeout bounds each call made to a remote store gateway.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Store.RequestTimeoutSecs) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
