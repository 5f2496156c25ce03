package semver

// ResolveOptions controls filtering and tie-breaking for Resolve (spec §4.2).
type ResolveOptions struct {
	Prerelease bool
	Build      bool
	// Upgrade, when false, prefers an already-installed version that
	// satisfies the expression over fetching/installing a newer one.
	Upgrade bool
	// Installed lists versions already present locally, used when
	// Upgrade is false (step 5) and as the fallback set on install
	// failure (spec §4.2 "Fallback on install failure").
	Installed []string
}

// Resolve picks the version to use from candidates for the given expression
// and options, implementing spec §4.2 steps 2-6.
//
// ok is false when no candidate (pre/build-filtered) satisfies expr — the
// caller should surface a ResolutionError.
func Resolve(expr Expr, candidates []string, opts ResolveOptions) (version string, usedInstalled bool, ok bool) {
	filtered := filterCandidates(candidates, expr, opts)
	if len(filtered) == 0 {
		return "", false, false
	}
	SortDescending(filtered)

	if !opts.Upgrade && len(opts.Installed) > 0 {
		installedFiltered := filterCandidates(opts.Installed, expr, ResolveOptions{Prerelease: true, Build: true})
		if len(installedFiltered) > 0 {
			SortDescending(installedFiltered)
			return installedFiltered[0], true, true
		}
	}

	return filtered[0], false, true
}

// ResolveFromInstalledOnly implements the "fallback on install failure"
// behavior of spec §4.2: after a failed download/build, re-run step 5
// against already-installed versions only.
func ResolveFromInstalledOnly(expr Expr, installed []string) (version string, ok bool) {
	filtered := filterCandidates(installed, expr, ResolveOptions{Prerelease: true, Build: true})
	if len(filtered) == 0 {
		return "", false
	}
	SortDescending(filtered)
	return filtered[0], true
}

func filterCandidates(candidates []string, expr Expr, opts ResolveOptions) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if !Valid(c) {
			continue
		}
		if !opts.Prerelease && IsPrerelease(c) {
			continue
		}
		if !opts.Build && HasBuildMetadata(c) {
			continue
		}
		if !expr.Matches(c) {
			continue
		}
		out = append(out, c)
	}
	return out
}
