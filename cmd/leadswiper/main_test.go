package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pelletier/go-toml/v2"

	"leadswiper/internal/api"
	"leadswiper/internal/claims"
	"leadswiper/internal/config"
	"leadswiper/internal/identity"
	"leadswiper/internal/queue"
	"leadswiper/internal/session"
	"leadswiper/internal/testsupport"
)

type cliEnv struct {
	t          *testing.T
	cfg        *config.Config
	configPath string
}

func setupCLI(t *testing.T) *cliEnv {
	t.Helper()
	for _, key := range []string{"LEADSWIPER_POSTGRES_DSN", "LEADSWIPER_API_TOKEN", "LEADSWIPER_REMOTE_URL"} {
		t.Setenv(key, "")
	}

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.IdentityFile = filepath.Join(base, "state", "worker_id")
	cfg.Store.SQLitePath = filepath.Join(base, "state", "leads.db")
	cfg.Review.BatchSize = 10
	cfg.Logging.Level = "error"

	configPath := filepath.Join(base, "config.toml")
	encoded, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(configPath, encoded, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliEnv{t: t, cfg: &cfg, configPath: configPath}
}

func (e *cliEnv) run(stdin string, args ...string) (string, error) {
	e.t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run("", args...)
	if err != nil {
		e.t.Fatalf("leadswiper %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func (e *cliEnv) importLeads(leads ...api.Lead) {
	e.t.Helper()
	raw, err := json.Marshal(leads)
	if err != nil {
		e.t.Fatalf("marshal leads: %v", err)
	}
	path := filepath.Join(filepath.Dir(e.configPath), "leads.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		e.t.Fatalf("write leads: %v", err)
	}
	e.mustRun("queue", "import", path)
}

func (e *cliEnv) lead(id string) *queue.Lead {
	e.t.Helper()
	store, err := queue.Open(e.cfg)
	if err != nil {
		e.t.Fatalf("queue.Open: %v", err)
	}
	defer store.Close()
	lead, err := store.GetByID(e.t.Context(), id)
	if err != nil || lead == nil {
		e.t.Fatalf("GetByID(%s) = %v, %v", id, lead, err)
	}
	return lead
}

func TestImportAndStatus(t *testing.T) {
	env := setupCLI(t)
	env.importLeads(
		api.Lead{ID: "lead-1", Username: "alpha", Karma: 50},
		api.Lead{ID: "lead-2", Username: "beta", Karma: 40},
	)

	out := env.mustRun("queue", "status", "--json")
	var stats api.StatsResponse
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode status: %v\n%s", err, out)
	}
	if stats.Counts["pending"] != 2 {
		t.Fatalf("expected 2 pending, got %v", stats.Counts)
	}

	table := env.mustRun("queue", "list")
	if !strings.Contains(table, "alpha") || !strings.Contains(table, "beta") {
		t.Fatalf("list output missing leads:\n%s", table)
	}
}

func TestReviewDecidesUndoesAndReleases(t *testing.T) {
	env := setupCLI(t)
	env.importLeads(
		api.Lead{ID: "lead-1", Username: "alpha", Karma: 50},
		api.Lead{ID: "lead-2", Username: "beta", Karma: 40},
		api.Lead{ID: "lead-3", Username: "gamma", Karma: 30},
	)

	out, err := env.run("a\na\nu\nq\n", "review", "--sort", "total_karma")
	if err != nil {
		t.Fatalf("review: %v\n%s", err, out)
	}
	if !strings.Contains(out, "restored beta") {
		t.Fatalf("expected undo of beta in output:\n%s", out)
	}

	if got := env.lead("lead-1").Status; got != queue.StatusApproved {
		t.Fatalf("expected lead-1 approved, got %s", got)
	}
	if got := env.lead("lead-2").Status; got != queue.StatusPending {
		t.Fatalf("expected lead-2 pending after undo, got %s", got)
	}

	claims := env.mustRun("claims", "list", "--json")
	var resp api.ClaimListResponse
	if err := json.Unmarshal([]byte(claims), &resp); err != nil {
		t.Fatalf("decode claims: %v\n%s", err, claims)
	}
	if len(resp.Claims) != 0 {
		t.Fatalf("expected teardown to release every claim, got %+v", resp.Claims)
	}
}

func TestClaimsReleaseDefaultsToOwnIdentity(t *testing.T) {
	env := setupCLI(t)
	env.importLeads(api.Lead{ID: "lead-1", Username: "alpha", Karma: 50})

	worker := strings.TrimSpace(env.mustRun("identity", "show"))
	store, err := queue.Open(env.cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	now := time.Now()
	if ok, err := store.TryClaim(t.Context(), "lead-1", worker, now, now.Add(-env.cfg.LeaseDuration())); err != nil || !ok {
		t.Fatalf("TryClaim = %v, %v", ok, err)
	}
	store.Close()

	if out := env.mustRun("claims", "list"); !strings.Contains(out, "(you)") {
		t.Fatalf("expected own claim marked in list:\n%s", out)
	}
	if out := env.mustRun("claims", "release"); !strings.Contains(out, "Released 1 claim") {
		t.Fatalf("unexpected release output: %s", out)
	}
}

func TestRestoreAndContact(t *testing.T) {
	env := setupCLI(t)
	env.importLeads(
		api.Lead{ID: "lead-1", Username: "alpha", Karma: 50, Status: "rejected"},
		api.Lead{ID: "lead-2", Username: "beta", Karma: 40},
	)

	out := env.mustRun("queue", "restore", "lead-1")
	if !strings.Contains(out, "Restored alpha") {
		t.Fatalf("unexpected restore output: %s", out)
	}
	if got := env.lead("lead-1").Status; got != queue.StatusPending {
		t.Fatalf("expected lead-1 pending, got %s", got)
	}

	env.mustRun("queue", "contact", "lead-2", "--notes", "sent a dm")
	lead := env.lead("lead-2")
	if lead.Status != queue.StatusContacted || lead.Notes != "sent a dm" {
		t.Fatalf("unexpected contacted lead: %+v", lead)
	}

	env.mustRun("queue", "notes", "lead-2", "call", "back")
	if got := env.lead("lead-2").Notes; got != "call back" {
		t.Fatalf("expected notes replaced, got %q", got)
	}

	if _, err := env.run("", "queue", "restore", "missing"); err == nil {
		t.Fatal("expected restore of a missing lead to fail")
	}
}

func TestIdentityShowAndReset(t *testing.T) {
	env := setupCLI(t)
	first := strings.TrimSpace(env.mustRun("identity", "show"))
	stored, err := identity.Load(env.cfg.Paths.IdentityFile)
	if err != nil || stored != first {
		t.Fatalf("identity show printed %q, stored %q (%v)", first, stored, err)
	}
	if again := strings.TrimSpace(env.mustRun("identity", "show")); again != first {
		t.Fatalf("identity changed between runs: %q vs %q", first, again)
	}
	env.mustRun("identity", "reset")
	if fresh := strings.TrimSpace(env.mustRun("identity", "show")); fresh == first {
		t.Fatal("expected a new identity after reset")
	}
}

func TestDoctorAndConfigShow(t *testing.T) {
	env := setupCLI(t)
	out := env.mustRun("doctor")
	for _, want := range []string{"State directory", "Lease timing", "SQLite store"} {
		if !strings.Contains(out, want) {
			t.Fatalf("doctor output missing %q:\n%s", want, out)
		}
	}

	shown := env.mustRun("config", "show")
	if !strings.Contains(shown, "duration_seconds = 300") {
		t.Fatalf("config show missing lease duration:\n%s", shown)
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	env := setupCLI(t)
	target := filepath.Join(t.TempDir(), "leadswiper.toml")
	env.mustRun("config", "init", "--path", target)
	if _, err := env.run("", "config", "init", "--path", target); err == nil {
		t.Fatal("expected second init to refuse overwrite")
	}
	env.mustRun("config", "init", "--path", target, "--overwrite")
}

type releaseOnEOF struct {
	r       io.Reader
	release func()
}

func (e releaseOnEOF) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if errors.Is(err, io.EOF) {
		e.release()
	}
	return n, err
}

func TestReviewFailsWhenDecisionNeverLands(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	inner := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedLead(t, inner, "lead-1", 50, 3)
	store := testsupport.NewFaultyStore(inner)
	store.FailStatus("lead-1", queue.StatusApproved, true)

	manager := claims.NewManager(store, cfg.LeaseDuration())
	opts := session.OptionsFromConfig(cfg, "worker-a")
	opts.PersistAttempts = 2
	opts.BackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	s := session.New(store, manager, nil, opts)
	defer s.Teardown()

	// Writes stay blocked until the reviewer's input is exhausted, so the
	// failure settles only after the interactive loop has exited.
	release := store.HoldStatusWrites()
	in := releaseOnEOF{r: strings.NewReader("a\n"), release: release}
	var out bytes.Buffer
	err := runReview(t.Context(), s, in, &out)
	if err == nil || !strings.Contains(err.Error(), "lead-1") {
		t.Fatalf("expected unconfirmed lead-1 to fail the review, got %v\n%s", err, out.String())
	}
	if got := testsupport.MustGet(t, inner, "lead-1").Status; got != queue.StatusPending {
		t.Fatalf("expected lead-1 still pending in the store, got %s", got)
	}
	if cur := s.Current(); cur == nil || cur.ID != "lead-1" {
		t.Fatalf("expected lead-1 back in the session queue, got %#v", cur)
	}
}
