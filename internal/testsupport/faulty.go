package testsupport

import (
	"context"
	"errors"
	"sync"
	"time"

	"leadswiper/internal/queue"
)

// ErrInjected is returned by FaultyStore for failures set up by a test.
var ErrInjected = errors.New("injected store failure")

// FaultyStore wraps a LeaseStore and fails selected calls on demand.
type FaultyStore struct {
	queue.LeaseStore

	mu            sync.Mutex
	claimFailures map[string]bool
	statusFailure map[string]bool
	failRenew     bool
	failRelease   bool
	failEligible  bool
	statusCalls   []StatusCall
	statusGate    chan struct{}
}

// StatusCall records one SetStatus invocation.
type StatusCall struct {
	ID     string
	Status queue.Status
}

// NewFaultyStore wraps inner with no failures enabled.
func NewFaultyStore(inner queue.LeaseStore) *FaultyStore {
	return &FaultyStore{
		LeaseStore:    inner,
		claimFailures: make(map[string]bool),
		statusFailure: make(map[string]bool),
	}
}

// FailClaim makes TryClaim fail for id.
func (f *FaultyStore) FailClaim(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimFailures[id] = true
}

// FailStatus toggles failures of SetStatus writes moving id to status.
func (f *FaultyStore) FailStatus(id string, status queue.Status, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusFailure[statusKey(id, status)] = fail
}

func statusKey(id string, status queue.Status) string {
	return id + "\x00" + string(status)
}

// FailRenew toggles RenewClaims failures.
func (f *FaultyStore) FailRenew(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failRenew = fail
}

// FailRelease toggles ReleaseClaims failures.
func (f *FaultyStore) FailRelease(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failRelease = fail
}

// FailEligible toggles Eligible failures.
func (f *FaultyStore) FailEligible(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failEligible = fail
}

// HoldStatusWrites blocks every SetStatus call until the returned function
// is called.
func (f *FaultyStore) HoldStatusWrites() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.statusGate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.statusGate = nil
			f.mu.Unlock()
			close(gate)
		})
	}
}

// StatusCalls returns the SetStatus calls observed so far.
func (f *FaultyStore) StatusCalls() []StatusCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]StatusCall, len(f.statusCalls))
	copy(out, f.statusCalls)
	return out
}

func (f *FaultyStore) TryClaim(ctx context.Context, id, worker string, now, cutoff time.Time) (bool, error) {
	f.mu.Lock()
	fail := f.claimFailures[id]
	f.mu.Unlock()
	if fail {
		return false, ErrInjected
	}
	return f.LeaseStore.TryClaim(ctx, id, worker, now, cutoff)
}

func (f *FaultyStore) RenewClaims(ctx context.Context, ids []string, worker string, now time.Time) (int64, error) {
	f.mu.Lock()
	fail := f.failRenew
	f.mu.Unlock()
	if fail {
		return 0, ErrInjected
	}
	return f.LeaseStore.RenewClaims(ctx, ids, worker, now)
}

func (f *FaultyStore) ReleaseClaims(ctx context.Context, worker string, ids []string) (int64, error) {
	f.mu.Lock()
	fail := f.failRelease
	f.mu.Unlock()
	if fail {
		return 0, ErrInjected
	}
	return f.LeaseStore.ReleaseClaims(ctx, worker, ids)
}

func (f *FaultyStore) Eligible(ctx context.Context, q queue.EligibleQuery) ([]*queue.Lead, error) {
	f.mu.Lock()
	fail := f.failEligible
	f.mu.Unlock()
	if fail {
		return nil, ErrInjected
	}
	return f.LeaseStore.Eligible(ctx, q)
}

func (f *FaultyStore) SetStatus(ctx context.Context, id string, status queue.Status, now time.Time) error {
	f.mu.Lock()
	f.statusCalls = append(f.statusCalls, StatusCall{ID: id, Status: status})
	gate := f.statusGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	fail := f.statusFailure[statusKey(id, status)]
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.LeaseStore.SetStatus(ctx, id, status, now)
}
