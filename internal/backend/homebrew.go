package backend

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/upkit-dev/upkit/internal/config"
)

const homebrewInstallTimeout = 15 * time.Minute

// HomebrewBackend drives the system `brew` CLI. Homebrew manages its own
// global Cellar rather than a per-tool content-addressed path, so the
// ledger records the formula's resolved version purely for usage tracking
// (§4.7 GC still applies to the *edge*, never to Homebrew's own store).
type HomebrewBackend struct {
	Deps
	Formula string
}

func NewHomebrewBackend(d Deps, formula string) *HomebrewBackend {
	return &HomebrewBackend{Deps: d, Formula: formula}
}

func (b *HomebrewBackend) Plan(ctx context.Context, entry config.Entry) (PlanResult, error) {
	return PlanResult{NormalizedPlugin: b.Formula, RequestedVersion: versionExprOf(entry), WillInstall: true}, nil
}

func (b *HomebrewBackend) Up(ctx context.Context, entry config.Entry, progress io.Writer) (*Outcome, error) {
	formula := b.Formula
	if entry.Exact {
		formula = b.Formula + "@" + versionExprOf(entry)
	}

	if _, err := Run(ctx, progress, homebrewInstallTimeout, "brew", "install", formula); err != nil {
		return nil, err
	}

	prefixOut, err := Run(ctx, progress, 10*time.Second, "brew", "--prefix", formula)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimSpace(prefixOut.Stdout)

	versionOut, err := Run(ctx, progress, 10*time.Second, "brew", "list", "--versions", formula)
	if err != nil {
		return nil, err
	}
	version := lastField(versionOut.Stdout)

	binPath := filepath.Join(prefix, "bin")
	artifactID, err := recordInstalled(ctx, b.Deps, "homebrew", b.Formula, "", version, []string{binPath}, "")
	if err != nil {
		return nil, err
	}

	return &Outcome{ActualVersion: version, BinPaths: []string{binPath}, artifactID: artifactID}, nil
}

func (b *HomebrewBackend) Commit(ctx context.Context, envVersionID string, outcome *Outcome) error {
	return b.Ledger.AddRequiredBy(ctx, outcome.artifactID, envVersionID)
}

func (b *HomebrewBackend) Down(ctx context.Context, progress io.Writer) error { return nil }

func lastField(s string) string {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
