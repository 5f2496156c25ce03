// Package workdir resolves the stable identity of a work directory (its
// trust id) and provides the advisory exclusive lock that serializes
// mutation of a wd's installed state (spec §5, "per-work-directory
// exclusivity").
package workdir

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
)

// TrustID is the stable identifier for a work directory: either
// "<host>:<owner>/<repo>" derived from the repo's origin remote, or the
// directory's canonicalized absolute path when no usable origin exists.
// Directory renames/moves don't invalidate state as long as the id is
// stable (spec §3).
func TrustID(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	abs = canonical(abs)

	if id, ok := fromGitOrigin(abs); ok {
		return id, nil
	}
	return abs, nil
}

func canonical(p string) string {
	if real, err := filepath.EvalSymlinks(p); err == nil {
		return real
	}
	return p
}

func fromGitOrigin(dir string) (string, bool) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", false
	}
	remote, err := repo.Remote("origin")
	if err != nil {
		return "", false
	}
	cfg := remote.Config()
	if cfg == nil || len(cfg.URLs) == 0 {
		return "", false
	}
	host, owner, repoName, ok := parseOriginURL(cfg.URLs[0])
	if !ok {
		return "", false
	}
	return host + ":" + owner + "/" + repoName, true
}

var (
	scpLike = regexp.MustCompile(`^(?:[\w.-]+@)?([\w.-]+):(.+)$`)
	httpLike = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://(?:[^@/]+@)?([^/]+)/(.+)$`)
)

// parseOriginURL extracts (host, owner, repo) from a git remote URL in
// either scp-like ("git@github.com:owner/repo.git") or URL
// ("https://github.com/owner/repo.git", "ssh://git@host/owner/repo") form.
func parseOriginURL(raw string) (host, owner, repo string, ok bool) {
	raw = strings.TrimSpace(raw)

	var hostPart, pathPart string
	if m := httpLike.FindStringSubmatch(raw); m != nil {
		hostPart, pathPart = m[1], m[2]
	} else if m := scpLike.FindStringSubmatch(raw); m != nil {
		hostPart, pathPart = m[1], m[2]
	} else {
		return "", "", "", false
	}

	pathPart = strings.TrimSuffix(pathPart, ".git")
	pathPart = strings.Trim(pathPart, "/")
	segs := strings.Split(pathPart, "/")
	if len(segs) < 2 {
		return "", "", "", false
	}
	owner = segs[len(segs)-2]
	repo = segs[len(segs)-1]
	if owner == "" || repo == "" {
		return "", "", "", false
	}
	// Strip a credentials/port suffix from the host if present.
	if idx := strings.IndexByte(hostPart, '@'); idx >= 0 {
		hostPart = hostPart[idx+1:]
	}
	if idx := strings.IndexByte(hostPart, ':'); idx >= 0 {
		hostPart = hostPart[:idx]
	}
	return hostPart, owner, repo, true
}

// DataDirName derives a short, filesystem-safe, content-addressed name for
// a wd's per-project data directory (used for isolated per-project stores
// like GOPATH/venv, spec §6) from an arbitrary relative subdirectory path.
func DataDirName(trustID, subdir string) string {
	h := sha256.Sum256([]byte(trustID + "\x00" + subdir))
	return hex.EncodeToString(h[:])[:16]
}
