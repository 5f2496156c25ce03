// Package upkit provides a minimal public API for embedding up's
// environment engine in other Go programs: opening the ledger directly
// and driving the up/down pipeline without shelling out to the CLI.
//
// Most callers should just run the up binary. This package exists for
// tooling that wants programmatic access to the same engine.
package upkit

import (
	"context"

	"github.com/upkit-dev/upkit/internal/config"
	"github.com/upkit-dev/upkit/internal/ledger"
	"github.com/upkit-dev/upkit/internal/pipeline"
	"github.com/upkit-dev/upkit/internal/versionsrc"

	"github.com/jonboulle/clockwork"
)

// Ledger is the embedded installation/environment store.
type Ledger = ledger.Ledger

// OpenLedger opens the ledger at the given path, creating it if absent.
func OpenLedger(ctx context.Context, path string) (*Ledger, error) {
	return ledger.Open(ctx, path)
}

// Manifest is a parsed up: declaration.
type Manifest = config.Manifest

// ParseManifest parses the up: sequence out of raw per-wd config YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	return config.ParseManifest(data)
}

// LoadManifestForDir finds and parses the manifest that applies to dir.
func LoadManifestForDir(dir string) (*Manifest, string, error) {
	return config.LoadManifestForDir(dir)
}

// Pipeline drives the up/down/cleanup engine against a ledger.
type Pipeline = pipeline.Pipeline

// UpOptions and DownOptions configure one Pipeline.Up/Down call.
type (
	UpOptions   = pipeline.UpOptions
	DownOptions = pipeline.DownOptions
	UpResult    = pipeline.UpResult
)

// NewPipeline constructs a Pipeline backed by l, storing installed
// artifacts under dataHome. ghToken may be empty for unauthenticated
// GitHub release lookups (subject to the public API's rate limit).
func NewPipeline(l *Ledger, dataHome string, ghToken string, retention config.Retention) *Pipeline {
	sources := versionsrc.New(l, clockwork.NewRealClock())
	return pipeline.New(l, sources, dataHome, ghToken, retention)
}

// Retention bundles the env_versions/workdir_history retention knobs.
type Retention = config.Retention

// DefaultRetention returns the same defaults the CLI's config layer falls
// back to when no settings file overrides them.
func DefaultRetention() Retention {
	return config.GetRetention()
}
