package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"

	"leadswiper/internal/queue"
)

func TestTryClaimQueryCarriesClaimPredicate(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-5 * time.Minute)

	query, args, err := tryClaimQuery("lead-1", "worker-a", now, cutoff)
	if err != nil {
		t.Fatalf("tryClaimQuery: %v", err)
	}
	for _, want := range []string{
		"UPDATE leads SET claimed_by = $1, claimed_at = $2",
		"id = $3",
		"status = $4",
		"(claimed_by IS NULL OR claimed_by = $5 OR claimed_at <= $6)",
	} {
		if !strings.Contains(query, want) {
			t.Fatalf("query %q missing %q", query, want)
		}
	}
	if len(args) != 6 {
		t.Fatalf("expected 6 args, got %d: %v", len(args), args)
	}
	if args[3] != string(queue.StatusPending) {
		t.Fatalf("expected pending status arg, got %v", args[3])
	}
	if got, ok := args[5].(time.Time); !ok || !got.Equal(cutoff) {
		t.Fatalf("expected cutoff arg %v, got %v", cutoff, args[5])
	}
}

func TestRenewQueryNeverMovesBackwards(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	query, args, err := renewQuery([]string{"a", "b"}, "worker-a", now)
	if err != nil {
		t.Fatalf("renewQuery: %v", err)
	}
	if !strings.Contains(query, "claimed_by = $2") || !strings.Contains(query, "claimed_at <= $3") {
		t.Fatalf("renew query lacks ownership guard: %q", query)
	}
	if !strings.Contains(query, "id = ANY($4)") {
		t.Fatalf("renew query lacks id array: %q", query)
	}
	ids, ok := args[len(args)-1].(pq.StringArray)
	if !ok || len(ids) != 2 {
		t.Fatalf("expected string array arg, got %#v", args[len(args)-1])
	}
}

func TestReleaseQueryWithoutIDsReleasesEverything(t *testing.T) {
	all, _, err := releaseQuery("worker-a", nil)
	if err != nil {
		t.Fatalf("releaseQuery: %v", err)
	}
	if strings.Contains(all, "ANY") {
		t.Fatalf("release-all query should not filter ids: %q", all)
	}
	some, _, err := releaseQuery("worker-a", []string{"x"})
	if err != nil {
		t.Fatalf("releaseQuery: %v", err)
	}
	if !strings.Contains(some, "id = ANY(") {
		t.Fatalf("release query should filter ids: %q", some)
	}
}

func TestActiveClaimsQueryUsesStrictCutoff(t *testing.T) {
	query, _, err := activeClaimsQuery(time.Now())
	if err != nil {
		t.Fatalf("activeClaimsQuery: %v", err)
	}
	if !strings.Contains(query, "claimed_at > $") {
		t.Fatalf("active claims should compare strictly after cutoff: %q", query)
	}
}

func TestEligibleQueryOrdersByPriority(t *testing.T) {
	query, args, err := eligibleQuery(queue.EligibleQuery{
		Worker:         "worker-a",
		ExcludedGroups: []string{" Golang ", "RUST"},
		Cutoff:         time.Now(),
		Limit:          10,
	})
	if err != nil {
		t.Fatalf("eligibleQuery: %v", err)
	}
	if !strings.Contains(query, "ORDER BY karma DESC, id ASC") {
		t.Fatalf("missing priority order: %q", query)
	}
	if !strings.Contains(query, "LIMIT 10") {
		t.Fatalf("missing limit: %q", query)
	}
	if !strings.Contains(query, "lower(p.group_name) <> ALL(") {
		t.Fatalf("missing group exclusion: %q", query)
	}
	groups, ok := args[len(args)-1].(pq.StringArray)
	if !ok {
		t.Fatalf("expected group array arg, got %#v", args[len(args)-1])
	}
	if len(groups) != 2 || groups[0] != "golang" || groups[1] != "rust" {
		t.Fatalf("expected normalized groups, got %v", groups)
	}
}

func TestEligibleQuerySkipsClaimPredicateForTerminalStatus(t *testing.T) {
	query, _, err := eligibleQuery(queue.EligibleQuery{Worker: "worker-a", Status: queue.StatusApproved})
	if err != nil {
		t.Fatalf("eligibleQuery: %v", err)
	}
	if strings.Contains(query, "claimed_by IS NULL") {
		t.Fatalf("terminal listing should ignore claims: %q", query)
	}
}

func TestSetStatusQueryClearsClaimOnlyWhenTerminal(t *testing.T) {
	now := time.Now()
	terminal, _, err := setStatusQuery("a", queue.StatusRejected, now)
	if err != nil {
		t.Fatalf("setStatusQuery: %v", err)
	}
	if !strings.Contains(terminal, "claimed_by = $") || !strings.Contains(terminal, "claimed_at = $") {
		t.Fatalf("terminal status should clear claim: %q", terminal)
	}
	pending, _, err := setStatusQuery("a", queue.StatusPending, now)
	if err != nil {
		t.Fatalf("setStatusQuery: %v", err)
	}
	if strings.Contains(pending, "claimed_by") {
		t.Fatalf("pending status should keep claim: %q", pending)
	}
}

func TestUpsertLeadQueryPreservesReviewState(t *testing.T) {
	query, _, err := upsertLeadQuery(&queue.Lead{ID: "a", Username: "u", Status: queue.StatusPending})
	if err != nil {
		t.Fatalf("upsertLeadQuery: %v", err)
	}
	if !strings.Contains(query, "ON CONFLICT (id) DO UPDATE SET") {
		t.Fatalf("missing conflict clause: %q", query)
	}
	conflict := query[strings.Index(query, "ON CONFLICT"):]
	for _, column := range []string{"status =", "notes =", "claimed_by =", "claimed_at ="} {
		if strings.Contains(conflict, column) {
			t.Fatalf("conflict update must not touch %s: %q", column, conflict)
		}
	}
}
