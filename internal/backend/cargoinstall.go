package backend

import (
	"context"
	"io"
	"path/filepath"
	"time"

	"github.com/upkit-dev/upkit/internal/config"
	"github.com/upkit-dev/upkit/internal/versionsrc"
)

const cargoInstallTimeout = 20 * time.Minute

// CargoInstallBackend drives `cargo install --version <v> --root <dir>
// <crate>`, content-addressing the install root the same way GoInstall
// content-addresses GOBIN (spec §6: "<data>/cargo/<crate>/<version>").
type CargoInstallBackend struct {
	Deps
	DataHome string
	Crate    string
}

func NewCargoInstallBackend(d Deps, dataHome, crate string) *CargoInstallBackend {
	return &CargoInstallBackend{Deps: d, DataHome: dataHome, Crate: crate}
}

func (b *CargoInstallBackend) Plan(ctx context.Context, entry config.Entry) (PlanResult, error) {
	return PlanResult{NormalizedPlugin: b.Crate, RequestedVersion: versionExprOf(entry), WillInstall: true}, nil
}

func (b *CargoInstallBackend) Up(ctx context.Context, entry config.Entry, progress io.Writer) (*Outcome, error) {
	opts := resolveOptions{Upgrade: entry.Upgrade, Prerelease: entry.Prerelease, Build: entry.Build}
	version, usedInstalled, err := resolveVersion(ctx, b.Deps, "cargo-install", b.Crate, "", versionExprOf(entry), opts,
		"cargo-install:"+b.Crate, versionsrc.CommandFetcher("cargo", "search", b.Crate, "--limit", "1"))
	if err != nil {
		return nil, err
	}

	root := filepath.Join(b.DataHome, "cargo", b.Crate, version)
	if !usedInstalled {
		args := []string{"install", "--version", version, "--root", root, b.Crate}
		if _, err := Run(ctx, progress, cargoInstallTimeout, "cargo", args...); err != nil {
			if fallback, ok := fallbackToInstalled(ctx, b.Deps, "cargo-install", b.Crate, "", versionExprOf(entry), entry.FailOnUpgrade); ok {
				version = fallback
				root = filepath.Join(b.DataHome, "cargo", b.Crate, version)
			} else {
				return nil, err
			}
		}
	}

	binPath := filepath.Join(root, "bin")
	artifactID, err := recordInstalled(ctx, b.Deps, "cargo-install", b.Crate, "", version, []string{binPath}, root)
	if err != nil {
		return nil, err
	}
	return &Outcome{ActualVersion: version, BinPaths: []string{binPath}, artifactID: artifactID}, nil
}

func (b *CargoInstallBackend) Commit(ctx context.Context, envVersionID string, outcome *Outcome) error {
	return b.Ledger.AddRequiredBy(ctx, outcome.artifactID, envVersionID)
}

func (b *CargoInstallBackend) Down(ctx context.Context, progress io.Writer) error { return nil }
