package backend

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/upkit-dev/upkit/internal/config"
)

const nixInstallTimeout = 20 * time.Minute

// NixBackend drives `nix profile install`, pinning each install to a
// per-environment profile directory under dataHome so multiple work
// directories never fight over nix's default user profile (spec §6:
// "<data>/nix/profiles/<profile-id>").
type NixBackend struct {
	Deps
	DataHome  string
	Attribute string // e.g. "nixpkgs#ripgrep"
	ProfileID string // stable per (wd, attribute), supplied by the pipeline
}

func NewNixBackend(d Deps, dataHome, attribute, profileID string) *NixBackend {
	return &NixBackend{Deps: d, DataHome: dataHome, Attribute: attribute, ProfileID: profileID}
}

func (b *NixBackend) Plan(ctx context.Context, entry config.Entry) (PlanResult, error) {
	return PlanResult{NormalizedPlugin: b.Attribute, RequestedVersion: versionExprOf(entry), WillInstall: true}, nil
}

func (b *NixBackend) profileDir() string {
	return filepath.Join(b.DataHome, "nix", "profiles", b.ProfileID)
}

func (b *NixBackend) Up(ctx context.Context, entry config.Entry, progress io.Writer) (*Outcome, error) {
	profileDir := b.profileDir()
	if err := os.MkdirAll(filepath.Dir(profileDir), 0o755); err != nil {
		return nil, err
	}

	if _, err := Run(ctx, progress, nixInstallTimeout, "nix", "profile", "install",
		"--profile", profileDir, b.Attribute); err != nil {
		return nil, err
	}

	versionOut, err := Run(ctx, progress, 10*time.Second, "nix", "profile", "list", "--profile", profileDir)
	if err != nil {
		return nil, err
	}
	version := parseNixProfileVersion(versionOut.Stdout, b.Attribute)

	binPath := filepath.Join(profileDir, "bin")
	artifactID, err := recordInstalled(ctx, b.Deps, "nix", b.Attribute, b.ProfileID, version, []string{binPath}, profileDir)
	if err != nil {
		return nil, err
	}

	return &Outcome{ActualVersion: version, BinPaths: []string{binPath}, artifactID: artifactID}, nil
}

func (b *NixBackend) Commit(ctx context.Context, envVersionID string, outcome *Outcome) error {
	return b.Ledger.AddRequiredBy(ctx, outcome.artifactID, envVersionID)
}

// Down removes the per-environment profile directory entirely; nix profiles
// are cheap to recreate and keeping an unused one around just pins its
// store paths against GC forever.
func (b *NixBackend) Down(ctx context.Context, progress io.Writer) error {
	return os.RemoveAll(b.profileDir())
}

func parseNixProfileVersion(listing, attribute string) string {
	for _, line := range strings.Split(listing, "\n") {
		if strings.Contains(line, attribute) {
			fields := strings.Fields(line)
			if len(fields) > 0 {
				return fields[len(fields)-1]
			}
		}
	}
	return fmt.Sprintf("unknown-%s", attribute)
}
