// Package backend implements the installer backend contract of spec §4.1:
// one concrete type per ecosystem (mise, homebrew, nix, go-install,
// cargo-install, github-release, custom), composed through a uniform
// plan/up/commit/down/cleanup_global interface, plus the `any:` group
// that tries alternatives in sequence.
package backend

import (
	"context"
	"io"

	"github.com/upkit-dev/upkit/internal/config"
	"github.com/upkit-dev/upkit/internal/environment"
)

// PlanResult is the pure, side-effect-free result of Plan (spec §4.1).
type PlanResult struct {
	NormalizedPlugin string
	RequestedVersion string
	WillInstall      bool
}

// Outcome is what a backend's Up call records for the assembler and,
// later, Commit (spec §4.1 "up... records: (a) actual installed version...
// (b) PATH entries... (c) env-var operations... (d) data-paths").
type Outcome struct {
	ActualVersion string
	BinPaths      []string
	EnvVars       []environment.EnvVarEntry
	DataPaths     []string

	// artifactID is the installed_artifacts row Up created or reused; set
	// internally by each backend's install step and consumed by Commit.
	// A set-once field in spirit (spec §9 "interior mutability for
	// compute once"), though Go's lack of enforced write-once just makes
	// it a plain field populated exactly once per Outcome's lifetime.
	artifactID int64
}

// Backend is the per-ecosystem installer contract of spec §4.1.
type Backend interface {
	Plan(ctx context.Context, entry config.Entry) (PlanResult, error)
	Up(ctx context.Context, entry config.Entry, progress io.Writer) (*Outcome, error)
	Commit(ctx context.Context, envVersionID string, outcome *Outcome) error
	Down(ctx context.Context, progress io.Writer) error
}

// GlobalCleaner is implemented by backends with a "static method" scan-and-
// remove-orphans step (spec §4.1 cleanup_global); it walks the backend's
// store root against the ledger and removes anything the ledger no longer
// references.
type GlobalCleaner interface {
	CleanupGlobal(ctx context.Context, progress io.Writer) (rootRemoved bool, removed []string, err error)
}
