package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// LoadOrCreate returns the worker identity stored at path, generating and
// persisting a new UUID when the file is missing. Concurrent callers on the
// same host serialize on path+".lock" so only one identity is ever written.
func LoadOrCreate(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("identity path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create identity dir: %w", err)
	}
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return "", fmt.Errorf("lock identity: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	id, err := read(path)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	id = uuid.NewString()
	if err := write(path, id); err != nil {
		return "", err
	}
	return id, nil
}

// Load returns the stored identity without creating one.
func Load(path string) (string, error) {
	return read(path)
}

// Reset discards the stored identity. The next LoadOrCreate generates a new
// one; claims held under the old identity expire on their own.
func Reset(path string) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock identity: %w", err)
	}
	defer func() { _ = lock.Unlock() }()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove identity: %w", err)
	}
	return nil
}

func read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(string(data))
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("identity file %s is corrupt: %w", path, err)
	}
	return id, nil
}

func write(path, id string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(id+"\n"), 0o600); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("persist identity: %w", err)
	}
	return nil
}
