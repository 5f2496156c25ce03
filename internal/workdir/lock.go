package workdir

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Lock is the advisory exclusive file lock taken for the entire duration of
// an `up` or `down` mutation on a work directory (spec §5). Concurrent
// shells' hooks only read the ledger and are unaffected.
type Lock struct {
	fl *flock.Flock
}

// AcquireExclusive takes the exclusive lock for trustID's data directory,
// blocking up to timeout. dataHome is the root data directory (spec §6).
func AcquireExclusive(ctx context.Context, dataHome, trustID string, timeout time.Duration) (*Lock, error) {
	dir := filepath.Join(dataHome, "locks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating lock dir: %w", err)
	}
	path := filepath.Join(dir, DataDirName(trustID, "")+".lock")

	fl := flock.New(path)
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	locked, err := fl.TryLockContext(lctx, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("acquiring lock for %s: %w", trustID, err)
	}
	if !locked {
		return nil, fmt.Errorf("timed out waiting for exclusive lock on %s (another up/down in progress?)", trustID)
	}
	return &Lock{fl: fl}, nil
}

// Release unlocks the wd's exclusive lock.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
