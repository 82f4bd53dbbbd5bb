package daemon

import (
	"testing"
	"time"

	"leadswiper/internal/api"
	"leadswiper/internal/logging"
	"leadswiper/internal/testsupport"
)

func TestWindowKeepsClientLeaseOnGatewayClock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	gatewayNow := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	srv := newAPIServer(cfg, store, logging.NewNop(), nil, func() time.Time { return gatewayNow })

	clientNow := gatewayNow.Add(-90 * time.Second)
	now, cutoff, err := srv.window(api.FormatTime(clientNow), api.FormatTime(clientNow.Add(-4*time.Minute)))
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if !now.Equal(gatewayNow) {
		t.Fatalf("expected gateway now %v, got %v", gatewayNow, now)
	}
	if want := gatewayNow.Add(-4 * time.Minute); !cutoff.Equal(want) {
		t.Fatalf("expected cutoff %v, got %v", want, cutoff)
	}
}

func TestWindowFallsBackToConfiguredLease(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithLease(600, 120))
	store := testsupport.MustOpenStore(t, cfg)
	gatewayNow := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	srv := newAPIServer(cfg, store, logging.NewNop(), nil, func() time.Time { return gatewayNow })

	_, cutoff, err := srv.window("", "")
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if want := gatewayNow.Add(-10 * time.Minute); !cutoff.Equal(want) {
		t.Fatalf("expected cutoff %v, got %v", want, cutoff)
	}
}

func TestWindowRejectsInvertedRange(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	srv := newAPIServer(cfg, store, logging.NewNop(), nil, nil)

	now := time.Now()
	if _, _, err := srv.window(api.FormatTime(now), api.FormatTime(now.Add(time.Minute))); err == nil {
		t.Fatal("expected error for cutoff after now")
	}
	if _, _, err := srv.window("yesterday", ""); err == nil {
		t.Fatal("expected parse error")
	}
}
