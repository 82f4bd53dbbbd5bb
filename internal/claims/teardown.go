package claims

import (
	"context"
	"sync"
	"time"
)

// TeardownTransport delivers a best-effort release of every claim a worker
// holds. Implementations must return without waiting for the outcome.
type TeardownTransport interface {
	ReleaseAll(worker string)
}

// AsyncReleaser releases claims through a Manager on a detached goroutine,
// bounded by a timeout.
type AsyncReleaser struct {
	manager *Manager
	timeout time.Duration
	wg      sync.WaitGroup
}

var _ TeardownTransport = (*AsyncReleaser)(nil)

// NewAsyncReleaser returns a teardown transport backed by manager.
func NewAsyncReleaser(manager *Manager, timeout time.Duration) *AsyncReleaser {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &AsyncReleaser{manager: manager, timeout: timeout}
}

// ReleaseAll starts the release and returns immediately.
func (r *AsyncReleaser) ReleaseAll(worker string) {
	if r == nil || r.manager == nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		r.manager.ReleaseAll(ctx, worker)
	}()
}

// Wait blocks until releases already started have finished. Process exit
// paths may call it to give in-flight releases their timeout.
func (r *AsyncReleaser) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}
