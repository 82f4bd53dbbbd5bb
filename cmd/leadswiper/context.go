package main

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"leadswiper/internal/claims"
	"leadswiper/internal/config"
	"leadswiper/internal/identity"
	"leadswiper/internal/logging"
	"leadswiper/internal/queueaccess"
	"leadswiper/internal/session"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// log returns the command logger. Logger setup failures fall back to a
// no-op logger rather than blocking the command.
func (c *commandContext) log() *slog.Logger {
	c.loggerOnce.Do(func() {
		logger, err := logging.NewFromConfig(c.configValue())
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) workerID() (string, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	id, err := identity.LoadOrCreate(cfg.Paths.IdentityFile)
	if err != nil {
		return "", fmt.Errorf("worker identity: %w", err)
	}
	return id, nil
}

func (c *commandContext) withStore(ctx context.Context, fn func(*queueaccess.Session) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	access, err := queueaccess.Open(ctx, cfg, c.log())
	if err != nil {
		return err
	}
	defer access.Close()
	return fn(access)
}

// withSession runs fn against a reviewer session that has not loaded a
// batch. The session is torn down, and its writes drained, before returning.
func (c *commandContext) withSession(ctx context.Context, fn func(*session.Session) error) error {
	worker, err := c.workerID()
	if err != nil {
		return err
	}
	cfg := c.configValue()
	return c.withStore(ctx, func(access *queueaccess.Session) error {
		manager := claims.NewManager(access.Store, cfg.LeaseDuration(),
			claims.WithLogger(c.log()),
			claims.WithConcurrency(cfg.Leases.AcquireConcurrency),
		)
		opts := session.OptionsFromConfig(cfg, worker)
		opts.Logger = c.log()
		s := session.New(access.Store, manager, access.Teardown(manager, cfg), opts)
		defer func() {
			s.Wait()
			s.Teardown()
		}()

		if err := fn(s); err != nil {
			return err
		}
		return settleWrites(s)
	})
}

// settleWrites drains the session's status writes and fails with the ids
// whose writes never landed.
func settleWrites(s *session.Session) error {
	s.Wait()
	failed := s.Unconfirmed()
	if len(failed) == 0 {
		return nil
	}
	s.Reconcile()
	slices.Sort(failed)
	return fmt.Errorf("store rejected the update for %s", strings.Join(failed, ", "))
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
