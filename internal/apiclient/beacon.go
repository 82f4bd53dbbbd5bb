package apiclient

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"leadswiper/internal/api"
	"leadswiper/internal/logging"
)

const defaultBeaconTimeout = 3 * time.Second

// Beacon asks the gateway to release every claim a worker holds. It is the
// teardown transport for remote sessions: the request leaves on its own
// goroutine and the caller never waits for it.
type Beacon struct {
	client  *Client
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewBeacon builds a teardown beacon on top of client.
func NewBeacon(client *Client, timeout time.Duration, logger *slog.Logger) *Beacon {
	if timeout <= 0 {
		timeout = defaultBeaconTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Beacon{client: client, timeout: timeout, logger: logger}
}

// ReleaseAll fires the release-all request and returns immediately.
func (b *Beacon) ReleaseAll(worker string) {
	if b == nil || b.client == nil || worker == "" {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		err := b.client.do(ctx, http.MethodPost, "/api/claims/release-all", api.ReleaseRequest{Worker: worker}, nil)
		if err != nil {
			b.logger.Debug("teardown beacon failed",
				logging.String(logging.FieldWorkerID, worker),
				logging.Error(err),
			)
		}
	}()
}

// Wait blocks until in-flight beacons finish. Tests and process shutdown use
// it; sessions never do.
func (b *Beacon) Wait() {
	b.wg.Wait()
}
