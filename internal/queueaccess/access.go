package queueaccess

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"leadswiper/internal/apiclient"
	"leadswiper/internal/claims"
	"leadswiper/internal/config"
	"leadswiper/internal/logging"
	"leadswiper/internal/queue"
	"leadswiper/internal/queue/postgres"
)

// Session is an open lease store plus the means to tear claims down.
type Session struct {
	Store  queue.LeaseStore
	Driver string

	beacon    *apiclient.Beacon
	releasers []*claims.AsyncReleaser
	close     func() error
}

// Close waits for in-flight teardown releases, then releases the store.
func (s *Session) Close() error {
	if s.beacon != nil {
		s.beacon.Wait()
	}
	for _, r := range s.releasers {
		r.Wait()
	}
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Teardown returns the transport reviewer sessions use to drop their claims
// on the way out. Local stores release through manager.
func (s *Session) Teardown(manager *claims.Manager, cfg *config.Config) claims.TeardownTransport {
	if s.beacon != nil {
		return s.beacon
	}
	releaser := claims.NewAsyncReleaser(manager, cfg.TeardownTimeout())
	s.releasers = append(s.releasers, releaser)
	return releaser
}

// Open connects to the configured store backend.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("open lease store: config is required")
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	logger = logging.NewComponentLogger(logger, "queueaccess")

	switch driver {
	case config.DriverSQLite, "":
		store, err := queue.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Debug("opened sqlite store", logging.String("path", store.Path()))
		return &Session{Store: store, Driver: config.DriverSQLite, close: store.Close}, nil

	case config.DriverPostgres:
		store, err := postgres.Open(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		logger.Debug("opened postgres store")
		return &Session{Store: store, Driver: config.DriverPostgres, close: store.Close}, nil

	case config.DriverRemote:
		client, err := apiclient.New(apiclient.Config{
			BaseURL:        cfg.Store.RemoteURL,
			Token:          cfg.Store.RemoteToken,
			TimeoutSeconds: cfg.Store.RequestTimeoutSecs,
		})
		if err != nil {
			return nil, fmt.Errorf("open remote store: %w", err)
		}
		logger.Debug("using remote gateway", logging.String("url", cfg.Store.RemoteURL))
		return &Session{
			Store:  client,
			Driver: config.DriverRemote,
			beacon: apiclient.NewBeacon(client, cfg.TeardownTimeout(), logger),
			close:  client.Close,
		}, nil
	}
	return nil, fmt.Errorf("open lease store: unknown driver %q", cfg.Store.Driver)
}
