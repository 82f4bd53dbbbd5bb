package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"leadswiper/internal/config"
	"leadswiper/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedLead inserts a pending lead with the given karma and one post per
// upvote value. Posts are spaced a day apart starting at postedFrom.
func SeedLead(t testing.TB, store queue.LeaseStore, id string, karma int64, upvotes ...int64) *queue.Lead {
	t.Helper()

	postedFrom := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	lead := &queue.Lead{
		ID:       id,
		Username: "user-" + id,
		Karma:    karma,
	}
	for i, up := range upvotes {
		posted := postedFrom.Add(time.Duration(i) * 24 * time.Hour)
		lead.Posts = append(lead.Posts, queue.Post{
			ID:       fmt.Sprintf("%s-post-%d", id, i),
			Group:    "golang",
			Upvotes:  up,
			PostedAt: &posted,
		})
	}
	if err := store.Upsert(context.Background(), lead, time.Now()); err != nil {
		t.Fatalf("store.Upsert(%s): %v", id, err)
	}
	return lead
}

// MustGet fetches a lead and fails the test when it is missing.
func MustGet(t testing.TB, store queue.LeaseStore, id string) *queue.Lead {
	t.Helper()

	lead, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("store.GetByID(%s): %v", id, err)
	}
	if lead == nil {
		t.Fatalf("lead %s not found", id)
	}
	return lead
}
