package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/upkit-dev/upkit/internal/config"
	"github.com/upkit-dev/upkit/internal/logging"
	"github.com/upkit-dev/upkit/internal/workdir"
)

// DownOptions is everything one `down` invocation needs.
type DownOptions struct {
	WorkDir     string
	Manifest    *config.Manifest
	Progress    io.Writer
	LockTimeout time.Duration
}

// Down reverses a work directory's binding: each backend's Down is
// best-effort (spec §7: "down and cleanup paths are best-effort: errors
// are logged and do not stop subsequent entries"), then the wd's current
// binding and open history row are torn down. The heavy lifting of
// actually removing installed artifacts belongs to §4.7 GC, run
// separately.
func (p *Pipeline) Down(ctx context.Context, opts DownOptions) error {
	wdTrustID, err := workdir.TrustID(opts.WorkDir)
	if err != nil {
		return err
	}

	timeout := opts.LockTimeout
	if timeout == 0 {
		timeout = DefaultLockTimeout
	}
	lock, err := workdir.AcquireExclusive(ctx, p.DataHome, wdTrustID, timeout)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	manifest := opts.Manifest
	if manifest == nil {
		manifest = &config.Manifest{}
	}

	for _, entry := range manifest.Entries {
		b, err := p.buildBackend(ctx, entry, wdTrustID)
		if err != nil {
			logging.Get().Warn("down: skipping entry, could not build backend", "error", err)
			continue
		}
		if err := b.Down(ctx, opts.Progress); err != nil {
			logging.Get().Warn("down: backend reported an error", "error", err)
		}
	}

	return p.Ledger.RemoveBinding(ctx, wdTrustID)
}
