package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/upkit-dev/upkit/internal/backend"
	"github.com/upkit-dev/upkit/internal/config"
	"github.com/upkit-dev/upkit/internal/errs"
	"github.com/upkit-dev/upkit/internal/workdir"
)

// buildBackend realizes the tagged-sum dispatch of spec §9
// ("UpConfigTool::{Mise, Homebrew, Nix, GoInstall, CargoInstall,
// GithubRelease, Custom, Any(Vec<…>)}") against a concrete
// backend.Backend, recursing into each alternative for an `any:` group.
func (p *Pipeline) buildBackend(ctx context.Context, entry config.Entry, wdTrustID string) (backend.Backend, error) {
	deps := backend.Deps{Ledger: p.Ledger, Sources: p.Sources}

	switch entry.Backend {
	case config.BackendMise:
		return backend.NewMiseBackend(deps, p.DataHome, entry.Plugin), nil

	case config.BackendHomebrew:
		return backend.NewHomebrewBackend(deps, entry.Plugin), nil

	case config.BackendNix:
		profileID := workdir.DataDirName(wdTrustID, entry.Plugin)
		return backend.NewNixBackend(deps, p.DataHome, entry.Plugin, profileID), nil

	case config.BackendGoInstall:
		return backend.NewGoInstallBackend(deps, p.DataHome, entry.Plugin), nil

	case config.BackendCargoInstall:
		return backend.NewCargoInstallBackend(deps, p.DataHome, entry.Plugin), nil

	case config.BackendGithubRelease:
		owner, repo, err := splitRepository(entry.Repository)
		if err != nil {
			return nil, err
		}
		return backend.NewGithubReleaseBackend(deps, p.DataHome, p.GithubClient, owner, repo), nil

	case config.BackendCustom:
		return backend.NewCustomBackend(deps, customName(entry), entry), nil

	case config.BackendAny:
		if len(entry.Any) == 0 {
			return nil, errs.Config("any: group has no alternatives", nil)
		}
		alts := make([]backend.Backend, 0, len(entry.Any))
		for _, alt := range entry.Any {
			b, err := p.buildBackend(ctx, alt, wdTrustID)
			if err != nil {
				return nil, err
			}
			alts = append(alts, b)
		}
		return backend.NewAnyBackend(alts), nil

	default:
		return nil, errs.Config("unrecognized backend kind "+string(entry.Backend), nil)
	}
}

// splitRepository parses a github-release entry's "owner/repo" field.
func splitRepository(repository string) (owner, repo string, err error) {
	parts := strings.SplitN(repository, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errs.Config("github-release repository must be \"owner/repo\", got "+repository, nil)
	}
	return parts[0], parts[1], nil
}

// customName picks the ledger key for a custom: entry. Manifests aren't
// required to give custom entries a plugin name, so entries that omit one
// fall back to a short digest of their commands — stable across runs,
// distinguishable from a sibling custom entry with different commands.
func customName(entry config.Entry) string {
	if entry.Plugin != "" {
		return entry.Plugin
	}
	h := sha256.Sum256([]byte(entry.UpCommand + "\x00" + entry.DownCommand + "\x00" + entry.ListCommand))
	return "custom-" + hex.EncodeToString(h[:])[:12]
}
