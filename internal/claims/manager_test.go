package claims_test

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"leadswiper/internal/claims"
	"leadswiper/internal/metrics"
	"leadswiper/internal/queue"
	"leadswiper/internal/testsupport"
)

const lease = 5 * time.Minute

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newManager(t *testing.T, store queue.LeaseStore) (*claims.Manager, *metrics.Claims) {
	t.Helper()
	collectors := metrics.NewClaims(prometheus.NewRegistry())
	return claims.NewManager(store, lease, claims.WithMetrics(collectors), claims.WithConcurrency(4)), collectors
}

func TestAcquireReturnsClaimedSubsetInInputOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d"} {
		testsupport.SeedLead(t, store, id, 10)
	}
	if ok, err := store.TryClaim(ctx, "b", "other", base, base.Add(-lease)); err != nil || !ok {
		t.Fatalf("seed claim failed: %v %v", ok, err)
	}

	manager, collectors := newManager(t, store)
	got := manager.Acquire(ctx, []string{"d", "b", "a", "c", "a"}, "me", base.Add(time.Minute))

	if want := []string{"d", "a", "c"}; !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if v := testutil.ToFloat64(collectors.Acquired); v != 3 {
		t.Fatalf("expected 3 acquired, got %v", v)
	}
	if v := testutil.ToFloat64(collectors.Contended); v != 1 {
		t.Fatalf("expected 1 contended, got %v", v)
	}
}

func TestAcquireTakesOverExpiredClaims(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.SeedLead(t, store, "x", 10)

	manager, _ := newManager(t, store)
	if got := manager.Acquire(ctx, []string{"x"}, "A", base); len(got) != 1 {
		t.Fatalf("A should claim x, got %v", got)
	}
	if got := manager.Acquire(ctx, []string{"x"}, "B", base.Add(lease-time.Second)); len(got) != 0 {
		t.Fatalf("B should lose while A's lease is live, got %v", got)
	}
	if got := manager.Acquire(ctx, []string{"x"}, "B", base.Add(lease+time.Second)); len(got) != 1 {
		t.Fatalf("B should take over the expired claim, got %v", got)
	}
	lead := testsupport.MustGet(t, store, "x")
	if lead.ClaimedBy != "B" {
		t.Fatalf("expected B to hold x, got %q", lead.ClaimedBy)
	}
}

func TestAcquireSwallowsStoreErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	inner := testsupport.MustOpenStore(t, cfg)
	store := testsupport.NewFaultyStore(inner)
	ctx := context.Background()
	testsupport.SeedLead(t, store, "ok", 10)
	testsupport.SeedLead(t, store, "bad", 10)
	store.FailClaim("bad")

	manager, collectors := newManager(t, store)
	got := manager.Acquire(ctx, []string{"bad", "ok"}, "me", base)
	if !slices.Equal(got, []string{"ok"}) {
		t.Fatalf("expected only ok to be claimed, got %v", got)
	}
	if v := testutil.ToFloat64(collectors.StoreErrors.WithLabelValues("acquire")); v != 1 {
		t.Fatalf("expected one acquire error, got %v", v)
	}
}

func TestRenewDoesNotReassertLostClaims(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.SeedLead(t, store, "x", 10)
	testsupport.SeedLead(t, store, "y", 10)

	manager, collectors := newManager(t, store)
	manager.Acquire(ctx, []string{"x", "y"}, "A", base)

	// B takes x after A's lease lapses.
	later := base.Add(lease + time.Minute)
	if got := manager.Acquire(ctx, []string{"x"}, "B", later); len(got) != 1 {
		t.Fatalf("B should claim x, got %v", got)
	}

	manager.Renew(ctx, []string{"x", "y"}, "A", later.Add(time.Second))

	if x := testsupport.MustGet(t, store, "x"); x.ClaimedBy != "B" || !x.ClaimedAt.Equal(later) {
		t.Fatalf("renewal must not touch B's claim, got %q at %v", x.ClaimedBy, x.ClaimedAt)
	}
	if y := testsupport.MustGet(t, store, "y"); y.ClaimedBy != "A" || !y.ClaimedAt.Equal(later.Add(time.Second)) {
		t.Fatalf("expected A's claim on y renewed, got %q at %v", y.ClaimedBy, y.ClaimedAt)
	}
	if v := testutil.ToFloat64(collectors.Renewed); v != 1 {
		t.Fatalf("expected 1 renewed, got %v", v)
	}
}

func TestRenewFailureIsSwallowed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.NewFaultyStore(testsupport.MustOpenStore(t, cfg))
	testsupport.SeedLead(t, store, "x", 10)

	manager, collectors := newManager(t, store)
	manager.Acquire(context.Background(), []string{"x"}, "A", base)
	store.FailRenew(true)
	manager.Renew(context.Background(), []string{"x"}, "A", base.Add(time.Minute))

	if v := testutil.ToFloat64(collectors.StoreErrors.WithLabelValues("renew")); v != 1 {
		t.Fatalf("expected one renew error, got %v", v)
	}
	if x := testsupport.MustGet(t, store, "x"); !x.ClaimedAt.Equal(base) {
		t.Fatalf("failed renewal must leave claimed_at alone, got %v", x.ClaimedAt)
	}
}

func TestReleaseIsIdempotentAndScopedToWorker(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.SeedLead(t, store, "mine", 10)
	testsupport.SeedLead(t, store, "theirs", 10)

	manager, _ := newManager(t, store)
	manager.Acquire(ctx, []string{"mine"}, "A", base)
	manager.Acquire(ctx, []string{"theirs"}, "B", base)

	manager.Release(ctx, []string{"mine", "theirs"}, "A")
	manager.Release(ctx, []string{"mine", "theirs"}, "A")

	if lead := testsupport.MustGet(t, store, "mine"); lead.IsClaimed() {
		t.Fatalf("expected mine released, got %q", lead.ClaimedBy)
	}
	if lead := testsupport.MustGet(t, store, "theirs"); lead.ClaimedBy != "B" {
		t.Fatalf("release must not touch B's claim, got %q", lead.ClaimedBy)
	}
}

func TestReleaseAllClearsEveryClaimOfWorker(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		testsupport.SeedLead(t, store, id, 10)
	}
	manager, _ := newManager(t, store)
	manager.Acquire(ctx, []string{"a", "b"}, "A", base)
	manager.Acquire(ctx, []string{"c"}, "B", base)

	manager.ReleaseAll(ctx, "A")

	active, err := store.ActiveClaims(ctx, manager.Cutoff(base.Add(time.Second)))
	if err != nil {
		t.Fatalf("ActiveClaims: %v", err)
	}
	if len(active) != 1 || active[0].LeadID != "c" || active[0].Worker != "B" {
		t.Fatalf("expected only B's claim on c, got %#v", active)
	}
}

func TestIsLiveUsesLeaseWindow(t *testing.T) {
	manager := claims.NewManager(nil, lease)
	claimedAt := base
	lead := &queue.Lead{Status: queue.StatusPending, ClaimedBy: "A", ClaimedAt: &claimedAt}

	if !manager.IsLive(lead, base.Add(lease-time.Nanosecond)) {
		t.Fatal("claim should be live just before the lease ends")
	}
	if manager.IsLive(lead, base.Add(lease)) {
		t.Fatal("claim should expire exactly at the lease boundary")
	}
	lead.Status = queue.StatusApproved
	if manager.IsLive(lead, base) {
		t.Fatal("terminal leads never hold live claims")
	}
	if got := manager.Cutoff(base); !got.Equal(base.Add(-lease)) {
		t.Fatalf("unexpected cutoff %v", got)
	}
}

func TestAsyncReleaserReturnsBeforeReleaseCompletes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.SeedLead(t, store, "a", 10)

	manager, _ := newManager(t, store)
	manager.Acquire(ctx, []string{"a"}, "A", base)

	releaser := claims.NewAsyncReleaser(manager, time.Second)
	var transport claims.TeardownTransport = releaser
	transport.ReleaseAll("A")
	releaser.Wait()

	if lead := testsupport.MustGet(t, store, "a"); lead.IsClaimed() {
		t.Fatalf("expected claim released, got %q", lead.ClaimedBy)
	}
}
