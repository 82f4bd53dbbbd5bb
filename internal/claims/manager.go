package claims

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"leadswiper/internal/logging"
	"leadswiper/internal/metrics"
	"leadswiper/internal/queue"
)

// DefaultConcurrency bounds parallel claim attempts when none is configured.
const DefaultConcurrency = 8

// Manager acquires, renews, and releases leases on leads. Store failures are
// logged and counted but never surfaced: a failed claim is a missing claim and
// a failed renewal is recovered by the next round or by lease expiry.
type Manager struct {
	store       queue.LeaseStore
	lease       time.Duration
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Claims
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for swallowed store errors.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics sets the collectors updated by claim operations.
func WithMetrics(collectors *metrics.Claims) Option {
	return func(m *Manager) {
		if collectors != nil {
			m.metrics = collectors
		}
	}
}

// WithConcurrency bounds the number of concurrent TryClaim calls.
func WithConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// NewManager constructs a Manager over store with the given lease duration.
func NewManager(store queue.LeaseStore, lease time.Duration, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		lease:       lease,
		concurrency: DefaultConcurrency,
		metrics:     metrics.NewClaims(nil),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "claims")
	return m
}

// LeaseDuration returns the configured lease length.
func (m *Manager) LeaseDuration() time.Duration {
	return m.lease
}

// Cutoff is the claimed_at boundary at or before which a claim has expired.
func (m *Manager) Cutoff(now time.Time) time.Time {
	return now.Add(-m.lease)
}

// IsLive reports whether lead carries an unexpired claim at now.
func (m *Manager) IsLive(lead *queue.Lead, now time.Time) bool {
	return lead.ClaimLiveAt(now, m.lease)
}

// Acquire attempts to claim each id for worker and returns the subset that
// succeeded, in input order. Lost races and store errors exclude the id.
func (m *Manager) Acquire(ctx context.Context, ids []string, worker string, now time.Time) []string {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil
	}
	cutoff := m.Cutoff(now)
	won := make([]bool, len(ids))

	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			ok, err := m.store.TryClaim(ctx, id, worker, now, cutoff)
			if err != nil {
				m.storeError(ctx, "acquire", err, logging.String(logging.FieldLeadID, id))
				return nil
			}
			if ok {
				m.metrics.Acquired.Inc()
			} else {
				m.metrics.Contended.Inc()
			}
			won[i] = ok
			return nil
		})
	}
	_ = g.Wait()

	claimed := make([]string, 0, len(ids))
	for i, id := range ids {
		if won[i] {
			claimed = append(claimed, id)
		}
	}
	if len(claimed) < len(ids) {
		m.logger.Debug("claim shortfall",
			logging.String(logging.FieldWorkerID, worker),
			logging.Int("requested", len(ids)),
			logging.Int(logging.FieldCount, len(claimed)),
		)
	}
	return claimed
}

// Renew refreshes worker's claims on ids to now. Claims taken over by another
// worker are left alone.
func (m *Manager) Renew(ctx context.Context, ids []string, worker string, now time.Time) {
	if len(ids) == 0 {
		return
	}
	renewed, err := m.store.RenewClaims(ctx, ids, worker, now)
	if err != nil {
		m.storeError(ctx, "renew", err, logging.Int(logging.FieldCount, len(ids)))
		return
	}
	m.metrics.Renewed.Add(float64(renewed))
	if renewed < int64(len(ids)) {
		m.logger.Debug("claims lost before renewal",
			logging.String(logging.FieldWorkerID, worker),
			logging.Int("requested", len(ids)),
			logging.Int64("renewed", renewed),
		)
	}
}

// Release clears worker's claims on ids. Repeated calls are harmless.
func (m *Manager) Release(ctx context.Context, ids []string, worker string) {
	if len(ids) == 0 {
		return
	}
	m.release(ctx, "release", worker, ids)
}

// ReleaseAll clears every claim held by worker.
func (m *Manager) ReleaseAll(ctx context.Context, worker string) {
	m.release(ctx, "release_all", worker, nil)
}

func (m *Manager) release(ctx context.Context, op, worker string, ids []string) {
	released, err := m.store.ReleaseClaims(ctx, worker, ids)
	if err != nil {
		m.storeError(ctx, op, err, logging.String(logging.FieldWorkerID, worker))
		return
	}
	m.metrics.Released.Add(float64(released))
}

func (m *Manager) storeError(ctx context.Context, op string, err error, attrs ...logging.Attr) {
	m.metrics.StoreErrors.WithLabelValues(op).Inc()
	attrs = append(attrs, logging.String("op", op), logging.Error(err))
	logging.WithContext(ctx, m.logger).Warn("lease store call failed", logging.Args(attrs...)...)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
