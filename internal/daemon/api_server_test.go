package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"leadswiper/internal/api"
	"leadswiper/internal/daemon"
	"leadswiper/internal/logging"
	"leadswiper/internal/queue"
	"leadswiper/internal/testsupport"
)

type gateway struct {
	t      *testing.T
	store  *queue.Store
	server *httptest.Server
	token  string
}

func newGateway(t *testing.T, opts ...testsupport.ConfigOption) *gateway {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	d, err := daemon.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	server := httptest.NewServer(d.Handler())
	t.Cleanup(server.Close)
	return &gateway{t: t, store: store, server: server, token: cfg.API.Token}
}

func (g *gateway) do(method, path string, body any) *http.Response {
	g.t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			g.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, g.server.URL+path, reader)
	if err != nil {
		g.t.Fatalf("new request: %v", err)
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		g.t.Fatalf("%s %s: %v", method, path, err)
	}
	g.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func window(now time.Time, lease time.Duration) (string, string) {
	return api.FormatTime(now), api.FormatTime(now.Add(-lease))
}

func TestTryClaimIsExclusiveAcrossWorkers(t *testing.T) {
	g := newGateway(t)
	testsupport.SeedLead(t, g.store, "lead-1", 10)

	now, cutoff := window(time.Now(), 5*time.Minute)
	first := decodeBody[api.TryClaimResponse](t, g.do(http.MethodPost, "/api/claims/try",
		api.TryClaimRequest{ID: "lead-1", Worker: "worker-a", Now: now, Cutoff: cutoff}))
	if !first.Claimed {
		t.Fatal("expected worker-a to claim lead-1")
	}
	second := decodeBody[api.TryClaimResponse](t, g.do(http.MethodPost, "/api/claims/try",
		api.TryClaimRequest{ID: "lead-1", Worker: "worker-b", Now: now, Cutoff: cutoff}))
	if second.Claimed {
		t.Fatal("worker-b should lose the race for a live claim")
	}

	lead := testsupport.MustGet(t, g.store, "lead-1")
	if lead.ClaimedBy != "worker-a" {
		t.Fatalf("expected worker-a to hold lead-1, got %q", lead.ClaimedBy)
	}
}

func TestTryClaimRejectsMissingFields(t *testing.T) {
	g := newGateway(t)
	resp := g.do(http.MethodPost, "/api/claims/try", api.TryClaimRequest{Worker: "worker-a"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	body := decodeBody[api.ErrorResponse](t, resp)
	if body.Code != api.CodeBadRequest {
		t.Fatalf("expected bad_request code, got %q", body.Code)
	}
}

func TestRenewAndReleaseReportCounts(t *testing.T) {
	g := newGateway(t)
	testsupport.SeedLead(t, g.store, "lead-1", 10)
	testsupport.SeedLead(t, g.store, "lead-2", 9)

	now, cutoff := window(time.Now(), 5*time.Minute)
	for _, id := range []string{"lead-1", "lead-2"} {
		g.do(http.MethodPost, "/api/claims/try", api.TryClaimRequest{ID: id, Worker: "worker-a", Now: now, Cutoff: cutoff})
	}

	renewed := decodeBody[api.CountResponse](t, g.do(http.MethodPost, "/api/claims/renew",
		api.RenewRequest{IDs: []string{"lead-1", "lead-2"}, Worker: "worker-a"}))
	if renewed.Count != 2 {
		t.Fatalf("expected 2 renewed, got %d", renewed.Count)
	}
	foreign := decodeBody[api.CountResponse](t, g.do(http.MethodPost, "/api/claims/renew",
		api.RenewRequest{IDs: []string{"lead-1"}, Worker: "worker-b"}))
	if foreign.Count != 0 {
		t.Fatalf("renewal by a non-owner must not touch the claim, got %d", foreign.Count)
	}

	released := decodeBody[api.CountResponse](t, g.do(http.MethodPost, "/api/claims/release",
		api.ReleaseRequest{Worker: "worker-a", IDs: []string{"lead-2"}}))
	if released.Count != 1 {
		t.Fatalf("expected 1 released, got %d", released.Count)
	}

	claims := decodeBody[api.ClaimListResponse](t, g.do(http.MethodGet, "/api/claims", nil))
	if len(claims.Claims) != 1 || claims.Claims[0].LeadID != "lead-1" {
		t.Fatalf("expected only lead-1 claimed, got %+v", claims.Claims)
	}
}

func TestReleaseAllAcknowledgesBeforeReleasing(t *testing.T) {
	g := newGateway(t)
	testsupport.SeedLead(t, g.store, "lead-1", 10)
	now, cutoff := window(time.Now(), 5*time.Minute)
	g.do(http.MethodPost, "/api/claims/try", api.TryClaimRequest{ID: "lead-1", Worker: "worker-a", Now: now, Cutoff: cutoff})

	resp := g.do(http.MethodPost, "/api/claims/release-all", api.ReleaseRequest{Worker: "worker-a"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if lead := testsupport.MustGet(t, g.store, "lead-1"); lead.ClaimedBy == "" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("release-all never cleared the claim")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEligibleSkipsLiveForeignClaims(t *testing.T) {
	g := newGateway(t)
	testsupport.SeedLead(t, g.store, "lead-1", 30)
	testsupport.SeedLead(t, g.store, "lead-2", 20)
	testsupport.SeedLead(t, g.store, "lead-3", 10)

	now, cutoff := window(time.Now(), 5*time.Minute)
	g.do(http.MethodPost, "/api/claims/try", api.TryClaimRequest{ID: "lead-1", Worker: "worker-a", Now: now, Cutoff: cutoff})

	resp := decodeBody[api.LeadListResponse](t, g.do(http.MethodPost, "/api/leads/eligible",
		api.EligibleRequest{Worker: "worker-b", Now: now, Cutoff: cutoff, Limit: 10}))
	if len(resp.Leads) != 2 || resp.Leads[0].ID != "lead-2" || resp.Leads[1].ID != "lead-3" {
		t.Fatalf("expected [lead-2 lead-3], got %+v", resp.Leads)
	}
}

func TestSetStatusMapsStoreErrors(t *testing.T) {
	g := newGateway(t)
	testsupport.SeedLead(t, g.store, "lead-1", 10)

	resp := g.do(http.MethodPost, "/api/leads/lead-1/status", api.StatusRequest{Status: "approved"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if lead := testsupport.MustGet(t, g.store, "lead-1"); lead.Status != queue.StatusApproved {
		t.Fatalf("expected approved, got %s", lead.Status)
	}

	missing := g.do(http.MethodPost, "/api/leads/nope/status", api.StatusRequest{Status: "approved"})
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.StatusCode)
	}
	if body := decodeBody[api.ErrorResponse](t, missing); body.Code != api.CodeNotFound {
		t.Fatalf("expected not_found code, got %q", body.Code)
	}

	invalid := g.do(http.MethodPost, "/api/leads/lead-1/status", api.StatusRequest{Status: "archived"})
	if invalid.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", invalid.StatusCode)
	}
	if body := decodeBody[api.ErrorResponse](t, invalid); body.Code != api.CodeInvalidStatus {
		t.Fatalf("expected invalid_status code, got %q", body.Code)
	}
}

func TestLeadEndpointsRoundTrip(t *testing.T) {
	g := newGateway(t)
	posted := api.FormatTime(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	upserted := decodeBody[api.LeadResponse](t, g.do(http.MethodPost, "/api/leads", api.Lead{
		ID:       "lead-9",
		Username: "gopher",
		Karma:    42,
		Posts:    []api.Post{{ID: "p1", Group: "golang", Upvotes: 7, PostedAt: posted}},
	}))
	if upserted.Lead.ID != "lead-9" {
		t.Fatalf("expected lead-9, got %q", upserted.Lead.ID)
	}

	g.do(http.MethodPost, "/api/leads/lead-9/contact", api.NotesRequest{Notes: "sent intro"})

	got := decodeBody[api.LeadResponse](t, g.do(http.MethodGet, "/api/leads/lead-9", nil))
	if got.Lead.Status != string(queue.StatusContacted) || got.Lead.Notes != "sent intro" {
		t.Fatalf("unexpected lead after contact: %+v", got.Lead)
	}
	if len(got.Lead.Posts) != 1 || got.Lead.Posts[0].Upvotes != 7 {
		t.Fatalf("expected posts to survive, got %+v", got.Lead.Posts)
	}

	list := decodeBody[api.LeadListResponse](t, g.do(http.MethodGet, "/api/leads?status=contacted&limit=5", nil))
	if len(list.Leads) != 1 {
		t.Fatalf("expected one contacted lead, got %d", len(list.Leads))
	}
	if resp := g.do(http.MethodGet, "/api/leads?status=bogus", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bogus status, got %d", resp.StatusCode)
	}
	if resp := g.do(http.MethodGet, "/api/leads/missing", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for missing lead, got %d", resp.StatusCode)
	}

	stats := decodeBody[api.StatsResponse](t, g.do(http.MethodGet, "/api/stats", nil))
	if stats.Counts[string(queue.StatusContacted)] != 1 {
		t.Fatalf("expected contacted=1, got %v", stats.Counts)
	}
}

func TestAuthRequiredWhenTokenConfigured(t *testing.T) {
	g := newGateway(t, testsupport.WithAPIToken("s3cret"))

	req, _ := http.NewRequest(http.MethodGet, g.server.URL+"/api/stats", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	if resp := g.do(http.MethodGet, "/api/stats", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}

	health, err := http.Get(g.server.URL + "/api/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("health should not require auth, got %d", health.StatusCode)
	}
}

func TestMetricsEndpointExposesHTTPCounters(t *testing.T) {
	g := newGateway(t)
	g.do(http.MethodGet, "/api/stats", nil)

	resp := g.do(http.MethodGet, "/metrics", nil)
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(body), "leadswiper_gateway_requests_total") {
		t.Fatalf("metrics output missing request counter:\n%s", body)
	}
	if !strings.Contains(string(body), `route="stats"`) {
		t.Fatalf("metrics output missing stats route label")
	}
}

func TestDaemonStartEnforcesSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	first, err := daemon.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Stop()

	status := first.Status()
	if !status.Running || status.Address == "" {
		t.Fatalf("expected running daemon with address, got %+v", status)
	}

	second, err := daemon.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("expected second daemon to fail on the state lock")
	}

	resp, err := http.Get("http://" + status.Address + "/api/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected healthy gateway, got %d", resp.StatusCode)
	}
}
