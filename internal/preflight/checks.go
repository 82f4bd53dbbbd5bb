package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"leadswiper/internal/config"
	"leadswiper/internal/identity"
)

// CheckDirectoryAccess verifies that path is a directory the process can
// read, write, and traverse.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckIdentity reports the stored worker id, or whether one can be created.
func CheckIdentity(name, path string) Result {
	id, err := identity.Load(path)
	switch {
	case err == nil:
		return Result{Name: name, Passed: true, Detail: id}
	case errors.Is(err, os.ErrNotExist):
		return Result{Name: name, Passed: true, Detail: "not yet created"}
	default:
		return Result{Name: name, Detail: err.Error()}
	}
}

// CheckLeaseTiming confirms a lease survives at least two missed renewals.
func CheckLeaseTiming(cfg *config.Config) Result {
	const name = "Lease timing"
	lease, renew := cfg.LeaseDuration(), cfg.RenewInterval()
	detail := fmt.Sprintf("lease %s, renew every %s", lease, renew)
	if lease <= 2*renew {
		return Result{Name: name, Detail: detail + " (error: lease must exceed two renew intervals)"}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckStore pings the lease store with a 5-second budget.
func CheckStore(ctx context.Context, name string, store Pinger, openErr error) Result {
	if openErr != nil {
		return Result{Name: name, Detail: fmt.Sprintf("error: %v", openErr)}
	}
	if store == nil {
		return Result{Name: name, Detail: "not configured"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	start := time.Now()
	if err := store.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("error: %v", err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable (%s)", time.Since(start).Round(time.Millisecond))}
}
