package session_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"leadswiper/internal/claims"
	"leadswiper/internal/queue"
	"leadswiper/internal/ranking"
	"leadswiper/internal/session"
	"leadswiper/internal/testsupport"
)

const (
	lease         = 5 * time.Minute
	renewInterval = 2 * time.Minute
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store queue.LeaseStore
	clock *testsupport.Clock
	lease time.Duration
}

func newFixture(t *testing.T, store queue.LeaseStore) *fixture {
	t.Helper()
	return &fixture{store: store, clock: testsupport.NewClock(base), lease: lease}
}

func (f *fixture) manager() *claims.Manager {
	return claims.NewManager(f.store, f.lease)
}

func (f *fixture) session(worker string, transport claims.TeardownTransport, mutate ...func(*session.Options)) *session.Session {
	opts := session.Options{
		Worker:          worker,
		BatchSize:       5,
		SortKey:         ranking.KeyTotalKarma,
		UndoDepth:       10,
		PersistAttempts: 2,
		Now:             f.clock.Now,
		BackOff:         func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	return session.New(f.store, f.manager(), transport, opts)
}

// seedLeads inserts count pending leads lead-00.. with descending karma.
func seedLeads(t *testing.T, store queue.LeaseStore, count int) []string {
	t.Helper()
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("lead-%02d", i)
		testsupport.SeedLead(t, store, id, int64(1000-i), 1)
		ids = append(ids, id)
	}
	return ids
}

type recordingTransport struct {
	mu      sync.Mutex
	workers []string
}

func (r *recordingTransport) ReleaseAll(worker string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers = append(r.workers, worker)
}

func (r *recordingTransport) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.workers...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
