// Package gc implements the per-backend cleanup sweep of spec §4.7:
// drop unreferenced installed_artifacts rows, then reconcile each
// backend's on-disk store root against what survives.
package gc

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/upkit-dev/upkit/internal/ledger"
)

// StoreRoot is one backend's on-disk root directory to reconcile against
// the ledger, e.g. "<data>/mise" for the mise backend.
type StoreRoot struct {
	Backend string
	Root    string
}

// BackendResult is one backend's sweep outcome (spec §4.7: "the walk
// returns (root_removed, num_removed, removed_paths)").
type BackendResult struct {
	Backend         string
	ArtifactsPruned int
	RootRemoved     bool
	RemovedPaths    []string
	BytesReclaimed  uint64
}

// Sweeper runs the spec §4.7 GC algorithm across every registered backend
// store.
type Sweeper struct {
	Ledger          *ledger.Ledger
	CleanupAfterSec int64
	Clock           func() time.Time
}

func New(l *ledger.Ledger, cleanupAfterSec int64) *Sweeper {
	return &Sweeper{Ledger: l, CleanupAfterSec: cleanupAfterSec, Clock: time.Now}
}

// Run executes steps 1-3 of spec §4.7 for each store root in order,
// returning one BackendResult per root.
func (s *Sweeper) Run(ctx context.Context, roots []StoreRoot) ([]BackendResult, error) {
	results := make([]BackendResult, 0, len(roots))
	for _, root := range roots {
		r, err := s.sweepBackend(ctx, root)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}

func (s *Sweeper) sweepBackend(ctx context.Context, root StoreRoot) (BackendResult, error) {
	result := BackendResult{Backend: root.Backend}

	// Step 1: drop installed_artifacts rows with no required_by edge and
	// unused for longer than cleanup_after.
	pruned, err := s.Ledger.DeleteOrphanedInstalled(ctx, root.Backend, s.CleanupAfterSec)
	if err != nil {
		return result, err
	}
	result.ArtifactsPruned = len(pruned)

	// Step 2: the expected on-disk paths are whatever survives.
	surviving, err := s.Ledger.ListInstalled(ctx, root.Backend)
	if err != nil {
		return result, err
	}
	expected := make(map[string]bool)
	for _, a := range surviving {
		if a.DataPath != "" {
			expected[filepath.Clean(a.DataPath)] = true
		}
		for _, p := range a.BinPaths {
			expected[filepath.Clean(filepath.Dir(p))] = true
		}
	}

	// Step 3: walk the store root, removing anything not covered.
	if root.Root == "" {
		return result, nil
	}
	entries, err := os.ReadDir(root.Root)
	if os.IsNotExist(err) {
		return result, nil
	}
	if err != nil {
		return result, err
	}

	for _, entry := range entries {
		path := filepath.Join(root.Root, entry.Name())
		if coveredByExpected(path, expected) {
			continue
		}
		size, _ := dirSize(path)
		if err := os.RemoveAll(path); err != nil {
			return result, err
		}
		result.RemovedPaths = append(result.RemovedPaths, path)
		result.BytesReclaimed += size
	}

	remaining, err := os.ReadDir(root.Root)
	if err == nil && len(remaining) == 0 {
		if err := os.Remove(root.Root); err == nil {
			result.RootRemoved = true
		}
	}

	return result, nil
}

// coveredByExpected reports whether path is, or is an ancestor of, any
// expected surviving path — a store root's intermediate directories
// (e.g. "<data>/go/tools_gopls") must survive as long as any
// version underneath them does.
func coveredByExpected(path string, expected map[string]bool) bool {
	for e := range expected {
		if e == path || isAncestor(path, e) {
			return true
		}
	}
	return false
}

func isAncestor(ancestor, descendant string) bool {
	rel, err := filepath.Rel(ancestor, descendant)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func dirSize(path string) (uint64, error) {
	var total uint64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += uint64(info.Size())
		}
		return nil
	})
	return total, err
}

// RenderSummary writes a human-readable table of the sweep's results,
// spec §4.7's "the caller renders a user-facing summary."
func RenderSummary(w io.Writer, results []BackendResult) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Backend", "Pruned", "Removed Paths", "Reclaimed", "Root Removed"})

	for _, r := range results {
		rootRemoved := "no"
		if r.RootRemoved {
			rootRemoved = "yes"
		}
		table.Append([]string{
			r.Backend,
			humanize.Comma(int64(r.ArtifactsPruned)),
			humanize.Comma(int64(len(r.RemovedPaths))),
			humanize.Bytes(r.BytesReclaimed),
			rootRemoved,
		})
	}
	table.Render()
}
