package queueaccess_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"leadswiper/internal/apiclient"
	"leadswiper/internal/claims"
	"leadswiper/internal/config"
	"leadswiper/internal/daemon"
	"leadswiper/internal/logging"
	"leadswiper/internal/queue"
	"leadswiper/internal/queueaccess"
	"leadswiper/internal/testsupport"
)

func TestOpenSQLiteUsesDirectRelease(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	session, err := queueaccess.Open(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer session.Close()

	if _, ok := session.Store.(*queue.Store); !ok {
		t.Fatalf("expected sqlite store, got %T", session.Store)
	}
	manager := claims.NewManager(session.Store, cfg.LeaseDuration())
	if _, ok := session.Teardown(manager, cfg).(*claims.AsyncReleaser); !ok {
		t.Fatal("expected async releaser teardown for sqlite")
	}
}

func TestOpenRemoteUsesBeacon(t *testing.T) {
	gatewayCfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, gatewayCfg)
	d, err := daemon.New(gatewayCfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	server := httptest.NewServer(d.Handler())
	defer server.Close()
	testsupport.SeedLead(t, store, "lead-1", 10)

	cfg := testsupport.NewConfig(t)
	cfg.Store.Driver = config.DriverRemote
	cfg.Store.RemoteURL = server.URL
	session, err := queueaccess.Open(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := session.Store.(*apiclient.Client); !ok {
		t.Fatalf("expected gateway client, got %T", session.Store)
	}

	now := time.Now()
	if ok, err := session.Store.TryClaim(context.Background(), "lead-1", "worker-a", now, now.Add(-cfg.LeaseDuration())); err != nil || !ok {
		t.Fatalf("TryClaim = %v, %v", ok, err)
	}
	manager := claims.NewManager(session.Store, cfg.LeaseDuration())
	teardown := session.Teardown(manager, cfg)
	if _, ok := teardown.(*apiclient.Beacon); !ok {
		t.Fatalf("expected beacon teardown, got %T", teardown)
	}
	teardown.ReleaseAll("worker-a")
	if err := session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for testsupport.MustGet(t, store, "lead-1").ClaimedBy != "" {
		if time.Now().After(deadline) {
			t.Fatal("beacon never released the claim")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Store.Driver = "mongo"
	if _, err := queueaccess.Open(context.Background(), cfg, logging.NewNop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
