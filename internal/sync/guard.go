package sync

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrSyncInProgress is returned when another sync run already holds the
// guard for the same vault and provider.
var ErrSyncInProgress = errors.New("sync already in progress")

// Guard is an exclusive file lock held for the duration of a sync run.
// It keeps concurrent runs against the same vault and provider from
// interleaving uploads and downloads.
type Guard struct {
	lock *flock.Flock
}

// AcquireGuard takes the per-vault, per-provider lock without blocking.
// The lock file lives under <root>/.azimuth so it never shows up in the
// vault manifest.
func AcquireGuard(root, provider string) (*Guard, error) {
	dir := filepath.Join(root, ".azimuth")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating lock dir: %w", err)
	}

	lock := flock.New(filepath.Join(dir, "sync-"+provider+".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring sync lock: %w", err)
	}
	if !locked {
		return nil, ErrSyncInProgress
	}
	return &Guard{lock: lock}, nil
}

// Release drops the lock.
func (g *Guard) Release() error {
	return g.lock.Unlock()
}
