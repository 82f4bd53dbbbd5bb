package queue

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound reports a lead id with no row behind it.
	ErrNotFound = errors.New("lead not found")
	// ErrInvalidStatus reports a status outside the known set.
	ErrInvalidStatus = errors.New("invalid lead status")
)

// LeaseStore is the persistence contract shared by the SQLite, Postgres, and
// remote gateway adapters. Every claim write is a single-row conditional
// update; the adapters never wrap claim changes in multi-row transactions.
type LeaseStore interface {
	// TryClaim sets claimed_by=worker and claimed_at=now on a pending lead
	// whose claim is absent, already held by worker, or at or before cutoff. It
	// reports whether worker holds the claim afterwards. A lost race is
	// (false, nil).
	TryClaim(ctx context.Context, id, worker string, now, cutoff time.Time) (bool, error)
	// RenewClaims moves claimed_at forward to now for the ids still claimed by
	// worker. It never reasserts a claim another worker took and never moves
	// claimed_at backwards.
	RenewClaims(ctx context.Context, ids []string, worker string, now time.Time) (int64, error)
	// ReleaseClaims clears claims held by worker. An empty ids slice releases
	// every claim the worker holds.
	ReleaseClaims(ctx context.Context, worker string, ids []string) (int64, error)
	// ActiveClaims lists claims refreshed after cutoff.
	ActiveClaims(ctx context.Context, cutoff time.Time) ([]Claim, error)

	// SetStatus writes a status without any claim precondition. Terminal
	// statuses clear the claim fields.
	SetStatus(ctx context.Context, id string, status Status, now time.Time) error
	MarkContacted(ctx context.Context, id, notes string, now time.Time) error
	UpdateNotes(ctx context.Context, id, notes string, now time.Time) error

	Eligible(ctx context.Context, q EligibleQuery) ([]*Lead, error)
	List(ctx context.Context, status Status, limit int) ([]*Lead, error)
	GetByID(ctx context.Context, id string) (*Lead, error)
	Stats(ctx context.Context) (map[Status]int, error)
	Upsert(ctx context.Context, lead *Lead, now time.Time) error

	Ping(ctx context.Context) error
	Close() error
}

var _ LeaseStore = (*Store)(nil)
