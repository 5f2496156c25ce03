package backend

import (
	"context"
	"time"

	"github.com/upkit-dev/upkit/internal/errs"
	"github.com/upkit-dev/upkit/internal/ledger"
	"github.com/upkit-dev/upkit/internal/semver"
	"github.com/upkit-dev/upkit/internal/versionsrc"
)

// defaultVersionsTTL is used by backends that don't have a more specific
// remote-churn rate; github releases, mise plugin versions, go/cargo
// registries all change on the order of days, not minutes.
const defaultVersionsTTL = 24 * time.Hour

// Deps bundles the ledger and version-source handles every non-custom
// backend needs; each concrete backend embeds Deps rather than repeating
// the same two fields.
type Deps struct {
	Ledger  *ledger.Ledger
	Sources *versionsrc.Source
}

// resolveVersion implements spec §4.2 steps 1-6, shared by every backend
// that resolves a version expression against a fetchable remote candidate
// list. When that list cannot be fetched it resolves against the
// already-installed versions only.
func resolveVersion(ctx context.Context, d Deps, backendKind, key1, key2, expr string, entry resolveOptions, cacheKey string, fetch versionsrc.Fetcher) (version string, usedInstalled bool, err error) {
	parsed, perr := semver.Parse(expr)
	if perr != nil {
		return "", false, errs.Config("parsing version expression "+expr, perr)
	}

	installed, ierr := d.Ledger.InstalledVersions(ctx, backendKind, key1, key2)
	if ierr != nil {
		return "", false, ierr
	}

	candidates, _, ferr := d.Sources.Versions(ctx, cacheKey, defaultVersionsTTL, fetch)
	if ferr != nil {
		if v, ok := semver.ResolveFromInstalledOnly(parsed, installed); ok {
			return v, true, nil
		}
		return "", false, errs.Network("resolving version for "+cacheKey, ferr)
	}

	v, used, ok := semver.Resolve(parsed, candidates, semver.ResolveOptions{
		Prerelease: entry.Prerelease,
		Build:      entry.Build,
		Upgrade:    entry.Upgrade,
		Installed:  installed,
	})
	if !ok {
		return "", false, errs.Resolution("no version of "+cacheKey+" satisfies "+expr, nil)
	}
	return v, used, nil
}

// resolveOptions carries the subset of config.Entry that affects
// resolution, independent of any particular backend's field layout.
type resolveOptions struct {
	Upgrade    bool
	Prerelease bool
	Build      bool
}

// recordInstalled writes the install-started mark and then the completed
// row back to back, returning the installed_artifacts row id Commit will
// bind required_by edges to. Every backend calls it after its install step
// has succeeded, so no started-but-incomplete row exists while that install
// runs.
func recordInstalled(ctx context.Context, d Deps, backendKind, key1, key2, version string, binPaths []string, dataPath string) (int64, error) {
	if err := d.Ledger.MarkInstallStarted(ctx, backendKind, key1, key2, version); err != nil {
		return 0, err
	}
	return d.Ledger.AddInstalled(ctx, backendKind, key1, key2, version, binPaths, dataPath)
}
