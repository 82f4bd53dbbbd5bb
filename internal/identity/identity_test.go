package identity_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"

	"leadswiper/internal/identity"
)

func TestLoadOrCreateIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "worker_id")

	first, err := identity.LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if _, err := uuid.Parse(first); err != nil {
		t.Fatalf("expected uuid, got %q", first)
	}
	second, err := identity.LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if first != second {
		t.Fatalf("identity changed: %s -> %s", first, second)
	}
}

func TestConcurrentCallersShareOneIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker_id")
	const callers = 8

	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := identity.LoadOrCreate(path)
			if err != nil {
				t.Errorf("LoadOrCreate: %v", err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()
	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("expected one identity, got %v", ids)
		}
	}
}

func TestResetGeneratesNewIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker_id")
	first, err := identity.LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if err := identity.Reset(path); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := identity.Reset(path); err != nil {
		t.Fatalf("second Reset: %v", err)
	}
	if _, err := identity.Load(path); !os.IsNotExist(err) {
		t.Fatalf("expected missing identity after reset, got %v", err)
	}
	second, err := identity.LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if first == second {
		t.Fatal("expected a fresh identity after reset")
	}
}

func TestCorruptIdentityIsReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker_id")
	if err := os.WriteFile(path, []byte("not-a-uuid"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := identity.LoadOrCreate(path); err == nil {
		t.Fatal("expected corrupt identity error")
	}
}
