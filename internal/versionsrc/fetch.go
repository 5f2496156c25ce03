package versionsrc

import (
	"bufio"
	"context"
	"os/exec"
	"strings"

	"github.com/google/go-github/v66/github"

	"github.com/upkit-dev/upkit/internal/errs"
)

// GithubReleaseFetcher lists release tag names for owner/repo via the
// GitHub API (spec §4.1's github-release backend is the one backend that
// talks to the network directly rather than shelling out).
func GithubReleaseFetcher(client *github.Client, owner, repo string) Fetcher {
	return func(ctx context.Context) ([]string, error) {
		opts := &github.ListOptions{PerPage: 100}
		var versions []string
		for {
			releases, resp, err := client.Repositories.ListReleases(ctx, owner, repo, opts)
			if err != nil {
				return nil, errs.Network("listing releases for "+owner+"/"+repo, err)
			}
			for _, r := range releases {
				if r.GetDraft() {
					continue
				}
				versions = append(versions, strings.TrimPrefix(r.GetTagName(), "v"))
			}
			if resp.NextPage == 0 {
				break
			}
			opts.Page = resp.NextPage
		}
		return versions, nil
	}
}

// CommandFetcher runs a backend CLI's own remote-listing subcommand (e.g.
// `mise ls-remote <plugin>`, `brew info --json`, `nix search`) and parses
// its stdout as one version per line. Backends that delegate version
// discovery to their underlying package manager (mise, homebrew, nix) use
// this rather than talking to a registry directly.
func CommandFetcher(name string, args ...string) Fetcher {
	return func(ctx context.Context) ([]string, error) {
		cmd := exec.CommandContext(ctx, name, args...)
		out, err := cmd.Output()
		if err != nil {
			return nil, errs.Exec("running "+name, err)
		}

		var versions []string
		scanner := bufio.NewScanner(strings.NewReader(string(out)))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			versions = append(versions, line)
		}
		return versions, scanner.Err()
	}
}
