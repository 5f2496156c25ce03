package backend

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"

	"github.com/upkit-dev/upkit/internal/config"
	"github.com/upkit-dev/upkit/internal/errs"
	"github.com/upkit-dev/upkit/internal/versionsrc"
)

const githubReleaseDownloadTimeout = 10 * time.Minute

// GithubReleaseBackend downloads a prebuilt binary asset from a GitHub
// release, the one backend that talks to a registry (the GitHub API)
// directly rather than shelling out to another package manager (spec §6:
// "<data>/github-release/<owner>/<repo>/<version>").
type GithubReleaseBackend struct {
	Deps
	DataHome   string
	Client     *github.Client
	HTTP       *http.Client
	Owner      string
	Repo       string
	AssetMatch func(assetName string) bool // nil selects the GOOS/GOARCH default matcher
}

func NewGithubReleaseBackend(d Deps, dataHome string, client *github.Client, owner, repo string) *GithubReleaseBackend {
	return &GithubReleaseBackend{Deps: d, DataHome: dataHome, Client: client, HTTP: http.DefaultClient, Owner: owner, Repo: repo}
}

func (b *GithubReleaseBackend) Plan(ctx context.Context, entry config.Entry) (PlanResult, error) {
	return PlanResult{NormalizedPlugin: b.Owner + "/" + b.Repo, RequestedVersion: versionExprOf(entry), WillInstall: true}, nil
}

func (b *GithubReleaseBackend) Up(ctx context.Context, entry config.Entry, progress io.Writer) (*Outcome, error) {
	opts := resolveOptions{Upgrade: entry.Upgrade, Prerelease: entry.Prerelease, Build: entry.Build}
	cacheKey := "github-release:" + b.Owner + "/" + b.Repo
	version, usedInstalled, err := resolveVersion(ctx, b.Deps, "github-release", b.Owner, b.Repo, versionExprOf(entry), opts,
		cacheKey, versionsrc.GithubReleaseFetcher(b.Client, b.Owner, b.Repo))
	if err != nil {
		return nil, err
	}

	destDir := filepath.Join(b.DataHome, "github-release", b.Owner, b.Repo, version)
	if !usedInstalled {
		if err := b.downloadAndExtract(ctx, version, destDir, progress); err != nil {
			if fallback, ok := fallbackToInstalled(ctx, b.Deps, "github-release", b.Owner, b.Repo, versionExprOf(entry), entry.FailOnUpgrade); ok {
				version = fallback
				destDir = filepath.Join(b.DataHome, "github-release", b.Owner, b.Repo, version)
			} else {
				return nil, err
			}
		}
	}

	artifactID, err := recordInstalled(ctx, b.Deps, "github-release", b.Owner, b.Repo, version, []string{destDir}, destDir)
	if err != nil {
		return nil, err
	}
	return &Outcome{ActualVersion: version, BinPaths: []string{destDir}, artifactID: artifactID}, nil
}

func (b *GithubReleaseBackend) Commit(ctx context.Context, envVersionID string, outcome *Outcome) error {
	return b.Ledger.AddRequiredBy(ctx, outcome.artifactID, envVersionID)
}

func (b *GithubReleaseBackend) Down(ctx context.Context, progress io.Writer) error { return nil }

func (b *GithubReleaseBackend) downloadAndExtract(ctx context.Context, version, destDir string, progress io.Writer) error {
	cctx, cancel := context.WithTimeout(ctx, githubReleaseDownloadTimeout)
	defer cancel()

	release, _, err := b.Client.Repositories.GetReleaseByTag(cctx, b.Owner, b.Repo, "v"+version)
	if err != nil {
		release, _, err = b.Client.Repositories.GetReleaseByTag(cctx, b.Owner, b.Repo, version)
		if err != nil {
			return errs.Network("fetching release "+version+" for "+b.Owner+"/"+b.Repo, err)
		}
	}

	match := b.AssetMatch
	if match == nil {
		match = defaultAssetMatcher(runtime.GOOS, runtime.GOARCH)
	}

	var assetURL, assetName string
	for _, a := range release.Assets {
		if match(a.GetName()) {
			assetURL, assetName = a.GetBrowserDownloadURL(), a.GetName()
			break
		}
	}
	if assetURL == "" {
		return errs.Resolution(fmt.Sprintf("no release asset for %s/%s matched %s/%s", b.Owner, b.Repo, runtime.GOOS, runtime.GOARCH), nil)
	}

	if progress != nil {
		fmt.Fprintf(progress, "downloading %s\n", assetName)
	}

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return err
	}
	resp, err := b.HTTP.Do(req)
	if err != nil {
		return errs.Network("downloading "+assetName, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errs.Network(fmt.Sprintf("downloading %s: status %d", assetName, resp.StatusCode), nil)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	return extractArchive(assetName, resp.Body, destDir)
}

// defaultAssetMatcher recognizes the common release-asset naming schemes
// ("<tool>_linux_amd64.tar.gz", "<tool>-darwin-arm64.zip") well enough for
// the majority of Go/Rust-toolchain-produced release assets.
func defaultAssetMatcher(goos, goarch string) func(string) bool {
	osAliases := map[string][]string{
		"darwin":  {"darwin", "macos", "osx"},
		"linux":   {"linux"},
		"windows": {"windows", "win"},
	}
	archAliases := map[string][]string{
		"amd64": {"amd64", "x86_64", "x64"},
		"arm64": {"arm64", "aarch64"},
	}
	osNames := osAliases[goos]
	archNames := archAliases[goarch]
	return func(name string) bool {
		lower := strings.ToLower(name)
		osOK := len(osNames) == 0
		for _, o := range osNames {
			if strings.Contains(lower, o) {
				osOK = true
				break
			}
		}
		archOK := len(archNames) == 0
		for _, a := range archNames {
			if strings.Contains(lower, a) {
				archOK = true
				break
			}
		}
		return osOK && archOK
	}
}

// extractArchive unpacks r into destDir based on name's extension. There is
// no archive library in the dependency stack (none of the example repos
// import one), so this uses the standard library's archive/tar,
// archive/zip, and compress/gzip directly — see DESIGN.md.
func extractArchive(name string, r io.Reader, destDir string) error {
	switch {
	case strings.HasSuffix(name, ".tar.gz") || strings.HasSuffix(name, ".tgz"):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return err
		}
		defer gz.Close()
		return extractTar(gz, destDir)
	case strings.HasSuffix(name, ".tar"):
		return extractTar(r, destDir)
	case strings.HasSuffix(name, ".zip"):
		return extractZip(r, destDir)
	default:
		// Bare binary asset: write it through as-is.
		out, err := os.OpenFile(filepath.Join(destDir, name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, r)
		return err
	}
}

func extractTar(r io.Reader, destDir string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}

func extractZip(r io.Reader, destDir string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	zr, err := zip.NewReader(strings.NewReader(string(data)), int64(len(data)))
	if err != nil {
		return err
	}
	for _, f := range zr.File {
		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		src, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
		if err != nil {
			src.Close()
			return err
		}
		_, err = io.Copy(out, src)
		src.Close()
		out.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// safeJoin guards against zip-slip/tar-slip path traversal from a
// maliciously crafted archive entry name.
func safeJoin(destDir, name string) (string, error) {
	target := filepath.Join(destDir, name)
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) && target != filepath.Clean(destDir) {
		return "", errs.Config("archive entry escapes destination: "+name, nil)
	}
	return target, nil
}
