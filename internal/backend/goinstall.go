package backend

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/upkit-dev/upkit/internal/config"
	"github.com/upkit-dev/upkit/internal/versionsrc"
)

const goInstallTimeout = 10 * time.Minute

// GoInstallBackend drives `go install <path>@<version>`, pinning GOBIN to a
// content-addressed directory so each (path, version) pair gets its own
// binary rather than clobbering a shared GOBIN (spec §6:
// "<data>/go/<import-path-tail>/<version>/bin").
type GoInstallBackend struct {
	Deps
	DataHome   string
	ImportPath string // e.g. "golang.org/x/tools/gopls" or "mvdan.cc/gofumpt"
}

func NewGoInstallBackend(d Deps, dataHome, importPath string) *GoInstallBackend {
	return &GoInstallBackend{Deps: d, DataHome: dataHome, ImportPath: importPath}
}

func (b *GoInstallBackend) Plan(ctx context.Context, entry config.Entry) (PlanResult, error) {
	return PlanResult{NormalizedPlugin: b.ImportPath, RequestedVersion: versionExprOf(entry), WillInstall: true}, nil
}

func (b *GoInstallBackend) Up(ctx context.Context, entry config.Entry, progress io.Writer) (*Outcome, error) {
	opts := resolveOptions{Upgrade: entry.Upgrade, Prerelease: entry.Prerelease, Build: entry.Build}
	version, usedInstalled, err := resolveVersion(ctx, b.Deps, "go-install", b.ImportPath, "", versionExprOf(entry), opts,
		"go-install:"+b.ImportPath, versionsrc.CommandFetcher("go", "list", "-m", "-versions", b.ImportPath))
	if err != nil {
		return nil, err
	}

	binDir := filepath.Join(b.DataHome, "go", goInstallPathKey(b.ImportPath), version, "bin")
	if !usedInstalled {
		goEnv := []string{"GOBIN=" + binDir}
		target := fmt.Sprintf("%s@%s", b.ImportPath, version)
		if _, err := RunWithEnv(ctx, progress, goInstallTimeout, goEnv, "go", "install", target); err != nil {
			if fallback, ok := fallbackToInstalled(ctx, b.Deps, "go-install", b.ImportPath, "", versionExprOf(entry), entry.FailOnUpgrade); ok {
				version = fallback
				binDir = filepath.Join(b.DataHome, "go", goInstallPathKey(b.ImportPath), version, "bin")
			} else {
				return nil, err
			}
		}
	}

	artifactID, err := recordInstalled(ctx, b.Deps, "go-install", b.ImportPath, "", version, []string{binDir}, "")
	if err != nil {
		return nil, err
	}
	return &Outcome{ActualVersion: version, BinPaths: []string{binDir}, artifactID: artifactID}, nil
}

func (b *GoInstallBackend) Commit(ctx context.Context, envVersionID string, outcome *Outcome) error {
	return b.Ledger.AddRequiredBy(ctx, outcome.artifactID, envVersionID)
}

func (b *GoInstallBackend) Down(ctx context.Context, progress io.Writer) error { return nil }

// goInstallPathKey derives the data-directory key for an import path per
// the Open Question resolution in DESIGN.md: use the last two slash-
// separated path components regardless of the path's total depth, so
// "golang.org/x/tools/gopls" and "mvdan.cc/gofumpt" both land in a
// directory segment short enough to keep filesystem paths sane, while
// staying distinguishable from sibling tools in the same module
// ("golang.org/x/tools/cmd/stringer" vs "golang.org/x/tools/gopls").
func goInstallPathKey(importPath string) string {
	parts := strings.Split(strings.Trim(importPath, "/"), "/")
	if len(parts) <= 2 {
		return strings.Join(parts, "_")
	}
	return strings.Join(parts[len(parts)-2:], "_")
}

// GoInstallStoreKey exports goInstallPathKey for callers outside this
// package (internal/pipeline's cleanup-root enumeration) that need to
// derive the same on-disk directory key without duplicating the Open
// Question resolution.
func GoInstallStoreKey(importPath string) string { return goInstallPathKey(importPath) }
