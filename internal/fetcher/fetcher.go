package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"leadswiper/internal/claims"
	"leadswiper/internal/logging"
	"leadswiper/internal/queue"
)

// Options selects the leads a batch is drawn from.
type Options struct {
	Limit          int
	Status         queue.Status
	ExcludedGroups []string
}

// Fetcher produces review batches: it queries eligible leads and claims the
// pending ones for a worker.
type Fetcher struct {
	store  queue.LeaseStore
	claims *claims.Manager
	logger *slog.Logger
	now    func() time.Time
}

// New builds a Fetcher. A nil clock uses time.Now.
func New(store queue.LeaseStore, manager *claims.Manager, logger *slog.Logger, now func() time.Time) *Fetcher {
	if now == nil {
		now = time.Now
	}
	return &Fetcher{
		store:  store,
		claims: manager,
		logger: logging.NewComponentLogger(logger, "fetcher"),
		now:    now,
	}
}

// FetchBatch returns up to opts.Limit leads for worker. Pending batches hold
// only leads worker successfully claimed, in priority order; leads lost to a
// concurrent claimer are dropped without substitution. Other statuses are
// returned unclaimed.
func (f *Fetcher) FetchBatch(ctx context.Context, worker string, opts Options) ([]*queue.Lead, error) {
	status := opts.Status
	if status == "" {
		status = queue.StatusPending
	}
	now := f.now()
	candidates, err := f.store.Eligible(ctx, queue.EligibleQuery{
		Worker:         worker,
		Status:         status,
		ExcludedGroups: opts.ExcludedGroups,
		Cutoff:         f.claims.Cutoff(now),
		Now:            now,
		Limit:          opts.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch batch: %w", err)
	}
	if status != queue.StatusPending || len(candidates) == 0 {
		return candidates, nil
	}

	claimed := f.claims.Acquire(ctx, queue.IDs(candidates), worker, now)
	won := make(map[string]struct{}, len(claimed))
	for _, id := range claimed {
		won[id] = struct{}{}
	}
	batch := make([]*queue.Lead, 0, len(claimed))
	for _, lead := range candidates {
		if _, ok := won[lead.ID]; !ok {
			continue
		}
		claimedAt := now
		lead.ClaimedBy = worker
		lead.ClaimedAt = &claimedAt
		batch = append(batch, lead)
	}

	logging.WithContext(ctx, f.logger).Debug("batch fetched",
		logging.String(logging.FieldWorkerID, worker),
		logging.Int("candidates", len(candidates)),
		logging.Int(logging.FieldCount, len(batch)),
	)
	return batch, nil
}

// List returns leads in status for list views, most recently updated first.
// Nothing is claimed.
func (f *Fetcher) List(ctx context.Context, status queue.Status, limit int) ([]*queue.Lead, error) {
	leads, err := f.store.List(ctx, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list %s leads: %w", status, err)
	}
	return leads, nil
}
