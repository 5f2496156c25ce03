package pipeline

import (
	"context"
	"io"
	"path/filepath"

	"github.com/upkit-dev/upkit/internal/backend"
	"github.com/upkit-dev/upkit/internal/gc"
	"github.com/upkit-dev/upkit/internal/ledger"
)

// backendKinds enumerates every installer backend GC sweeps over; the
// names match the "backend" column installed_artifacts stores them under
// (spec §3's four per-backend tables, unified into one generalized
// table — see internal/ledger/installed.go).
var backendKinds = []string{"mise", "homebrew", "nix", "go-install", "cargo-install", "github-release", "custom"}

// Cleanup runs the §4.7 GC sweep across every backend that has recorded
// installs, rendering a summary to progress if non-nil.
func (p *Pipeline) Cleanup(ctx context.Context, cleanupAfterSeconds int64, progress io.Writer) ([]gc.BackendResult, error) {
	var roots []gc.StoreRoot
	for _, kind := range backendKinds {
		installed, err := p.Ledger.ListInstalled(ctx, kind)
		if err != nil {
			return nil, err
		}
		roots = append(roots, p.storeRootsFor(kind, installed)...)
	}

	sweeper := gc.New(p.Ledger, cleanupAfterSeconds)
	results, err := sweeper.Run(ctx, roots)
	if err != nil {
		return nil, err
	}
	if progress != nil {
		gc.RenderSummary(progress, results)
	}
	return results, nil
}

// storeRootsFor derives the on-disk store root(s) for one backend kind
// from its surviving installed_artifacts rows, matching each concrete
// backend's own layout convention (spec §6). Backends that nest a version
// directory under a per-tool directory (mise, go-install, cargo-install,
// github-release) get one root per distinct tool so gc.Sweeper's single-
// level directory walk reaches the version-level orphans; backends with a
// single shared store (nix's profile directory) get one root total;
// backends with no content-addressed store of their own (homebrew,
// custom) get a Root-less entry so step 1's ledger-row pruning still runs
// (gc.Sweeper skips steps 2-3 when Root == "").
func (p *Pipeline) storeRootsFor(kind string, installed []ledger.InstalledArtifact) []gc.StoreRoot {
	switch kind {
	case "mise":
		return dedupRoots(kind, installed, func(a ledger.InstalledArtifact) string {
			return filepath.Join(p.DataHome, "mise", "installs", a.Key1)
		})
	case "go-install":
		return dedupRoots(kind, installed, func(a ledger.InstalledArtifact) string {
			return filepath.Join(p.DataHome, "go", backend.GoInstallStoreKey(a.Key1))
		})
	case "cargo-install":
		return dedupRoots(kind, installed, func(a ledger.InstalledArtifact) string {
			return filepath.Join(p.DataHome, "cargo", a.Key1)
		})
	case "github-release":
		return dedupRoots(kind, installed, func(a ledger.InstalledArtifact) string {
			return filepath.Join(p.DataHome, "github-release", a.Key1, a.Key2)
		})
	case "nix":
		return []gc.StoreRoot{{Backend: kind, Root: filepath.Join(p.DataHome, "nix", "profiles")}}
	default: // homebrew, custom: no data-home store of their own
		return []gc.StoreRoot{{Backend: kind, Root: ""}}
	}
}

func dedupRoots(kind string, installed []ledger.InstalledArtifact, rootFor func(ledger.InstalledArtifact) string) []gc.StoreRoot {
	seen := make(map[string]bool, len(installed))
	var out []gc.StoreRoot
	for _, a := range installed {
		root := rootFor(a)
		if seen[root] {
			continue
		}
		seen[root] = true
		out = append(out, gc.StoreRoot{Backend: kind, Root: root})
	}
	return out
}
