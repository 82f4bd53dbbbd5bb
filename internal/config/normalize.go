package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStore(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeReview()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.IdentityFile) == "" {
		c.Paths.IdentityFile = filepath.Join(c.Paths.StateDir, defaultIdentityFileName)
	}
	if c.Paths.IdentityFile, err = expandPath(c.Paths.IdentityFile); err != nil {
		return fmt.Errorf("paths.identity_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeStore() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = defaultStoreDriver
	}
	var err error
	if strings.TrimSpace(c.Store.SQLitePath) == "" {
		c.Store.SQLitePath = filepath.Join(c.Paths.StateDir, defaultSQLiteFileName)
	}
	if c.Store.SQLitePath, err = expandPath(c.Store.SQLitePath); err != nil {
		return fmt.Errorf("store.sqlite_path: %w", err)
	}
	if c.Store.PostgresDSN == "" {
		if value, ok := os.LookupEnv("LEADSWIPER_POSTGRES_DSN"); ok {
			c.Store.PostgresDSN = value
		}
	}
	if value, ok := os.LookupEnv("LEADSWIPER_REMOTE_URL"); ok && strings.TrimSpace(value) != "" {
		c.Store.RemoteURL = value
	}
	c.Store.RemoteURL = strings.TrimRight(strings.TrimSpace(c.Store.RemoteURL), "/")
	if c.Store.RemoteURL == "" {
		c.Store.RemoteURL = defaultRemoteURL
	}
	if c.Store.RemoteToken == "" {
		if value, ok := os.LookupEnv("LEADSWIPER_API_TOKEN"); ok {
			c.Store.RemoteToken = value
		}
	}
	if c.Store.RequestTimeoutSecs <= 0 {
		c.Store.RequestTimeoutSecs = defaultRequestTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("LEADSWIPER_API_TOKEN"); ok {
			c.API.Token = value
		}
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
}

func (c *Config) normalizeReview() {
	c.Review.SortKey = strings.ToLower(strings.TrimSpace(c.Review.SortKey))
	if c.Review.SortKey == "" {
		c.Review.SortKey = defaultSortKey
	}
	groups := make([]string, 0, len(c.Review.ExcludedGroups))
	seen := make(map[string]struct{}, len(c.Review.ExcludedGroups))
	for _, group := range c.Review.ExcludedGroups {
		group = strings.TrimSpace(group)
		if group == "" {
			continue
		}
		key := strings.ToLower(group)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		groups = append(groups, group)
	}
	c.Review.ExcludedGroups = groups
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
