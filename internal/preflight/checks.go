package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"squeeze/internal/blobstore"
	"squeeze/internal/capacity"
	"squeeze/internal/config"
	"squeeze/internal/fileutil"
	"squeeze/internal/logging"
	"squeeze/internal/remote"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
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

// CheckCacheStore opens the cache database and reports its usage. A store
// that cannot be opened is not fatal for squeeze itself, which runs
// degraded without one, so the detail says what the consequence is.
// Callers must not hold the store open themselves while running this
// check: the single-writer lock would report their own session as a
// conflicting process.
func CheckCacheStore(ctx context.Context, cfg *config.Config) Result {
	const name = "Cache store"

	if cfg == nil {
		return Result{Name: name, Detail: "no configuration"}
	}
	store, err := blobstore.Open(cfg, logging.NewNop())
	if err != nil {
		if errors.Is(err, blobstore.ErrLocked) {
			return Result{Name: name, Detail: "locked by another squeeze process (commands fall back to the service)"}
		}
		return Result{Name: name, Detail: fmt.Sprintf("unavailable: %v (commands fall back to the service)", err)}
	}
	defer store.Close()

	count, err := store.Count(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("opened but unreadable: %v", err)}
	}
	total, err := store.TotalSize(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("opened but unreadable: %v", err)}
	}
	return Result{
		Name:   name,
		Passed: true,
		Detail: fmt.Sprintf("%d entries, %s of %s used", count, fileutil.FormatBytes(total), fileutil.FormatBytes(capacity.DefaultBudget)),
	}
}

// CheckService verifies the compression service is reachable and its
// workers are running. It uses a 5-second timeout and a single attempt.
func CheckService(ctx context.Context, cfg *config.Config) Result {
	const name = "Compression service"

	if cfg == nil {
		return Result{Name: name, Detail: "no configuration"}
	}
	if strings.TrimSpace(cfg.Server.BaseURL) == "" {
		return Result{Name: name, Detail: "missing server base_url"}
	}

	client, err := remote.New(cfg, logging.NewNop())
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("client setup failed: %v", err)}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status, err := client.Ping(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizeServiceError(err)}
	}
	if status.Status != "running" {
		return Result{Name: name, Detail: fmt.Sprintf("reachable at %s but compression workers are %s", client.BaseURL(), status.Status)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("running at %s:%d", status.Host, status.Port)}
}

// summarizeServiceError produces a human-readable summary for service check failures.
func summarizeServiceError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "status check timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "status check timed out (service unreachable)"
	}
	return err.Error()
}
