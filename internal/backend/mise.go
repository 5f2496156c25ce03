package backend

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/upkit-dev/upkit/internal/config"
	"github.com/upkit-dev/upkit/internal/semver"
	"github.com/upkit-dev/upkit/internal/versionsrc"
)

const miseInstallTimeout = 10 * time.Minute

// MiseBackend drives the `mise` CLI for mise-managed tool installs (spec
// §6: "<data>/mise/installs/<tool>/<version>/…").
type MiseBackend struct {
	Deps
	DataHome string
	Plugin   string
}

func NewMiseBackend(d Deps, dataHome, plugin string) *MiseBackend {
	return &MiseBackend{Deps: d, DataHome: dataHome, Plugin: plugin}
}

func (b *MiseBackend) Plan(ctx context.Context, entry config.Entry) (PlanResult, error) {
	version := entry.Version
	if version == "" {
		version = "latest"
	}
	// mise resolves plugin aliases itself; the plugin name as written in
	// the manifest is already its stable, canonical form.
	return PlanResult{NormalizedPlugin: b.Plugin, RequestedVersion: version, WillInstall: true}, nil
}

func (b *MiseBackend) Up(ctx context.Context, entry config.Entry, progress io.Writer) (*Outcome, error) {
	opts := resolveOptions{Upgrade: entry.Upgrade, Prerelease: entry.Prerelease, Build: entry.Build}
	version, usedInstalled, err := resolveVersion(ctx, b.Deps, "mise", b.Plugin, "", versionExprOf(entry), opts,
		"mise:"+b.Plugin, versionsrc.CommandFetcher("mise", "ls-remote", b.Plugin))
	if err != nil {
		return nil, err
	}

	miseEnv := []string{"MISE_DATA_DIR=" + filepath.Join(b.DataHome, "mise")}

	if !usedInstalled {
		if _, err := RunWithEnv(ctx, progress, miseInstallTimeout, miseEnv, "mise", "install", fmt.Sprintf("%s@%s", b.Plugin, version)); err != nil {
			if fallback, ok := fallbackToInstalled(ctx, b.Deps, "mise", b.Plugin, "", versionExprOf(entry), entry.FailOnUpgrade); ok {
				version = fallback
			} else {
				return nil, err
			}
		}
	}

	binPath := filepath.Join(b.DataHome, "mise", "installs", b.Plugin, version, "bin")
	artifactID, err := recordInstalled(ctx, b.Deps, "mise", b.Plugin, "", version, []string{binPath}, "")
	if err != nil {
		return nil, err
	}

	return &Outcome{ActualVersion: version, BinPaths: []string{binPath}, artifactID: artifactID}, nil
}

func (b *MiseBackend) Commit(ctx context.Context, envVersionID string, outcome *Outcome) error {
	return b.Ledger.AddRequiredBy(ctx, outcome.artifactID, envVersionID)
}

func (b *MiseBackend) Down(ctx context.Context, progress io.Writer) error { return nil }

// versionExprOf reads the requested version expression off a manifest
// entry, defaulting to "latest" (spec §4.2).
func versionExprOf(entry config.Entry) string {
	if entry.Version == "" {
		return "latest"
	}
	return entry.Version
}

// fallbackToInstalled implements spec §4.2's "Fallback on install failure":
// after a failed install, re-resolve against already-installed versions
// only, unless fail_on_upgrade is set.
func fallbackToInstalled(ctx context.Context, d Deps, backendKind, key1, key2, expr string, failOnUpgrade bool) (string, bool) {
	if failOnUpgrade {
		return "", false
	}
	installed, err := d.Ledger.InstalledVersions(ctx, backendKind, key1, key2)
	if err != nil || len(installed) == 0 {
		return "", false
	}
	parsed, err := semver.Parse(expr)
	if err != nil {
		return "", false
	}
	return semver.ResolveFromInstalledOnly(parsed, installed)
}
