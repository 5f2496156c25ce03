package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/upkit-dev/upkit/internal/config"
	"github.com/upkit-dev/upkit/internal/pipeline"
)

// runUp is rootCmd's default action (spec §1: "a single command (`up`)
// realizes it"): running the bare binary installs and binds the current
// directory's declared tool versions.
func runUp(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	dir, err := currentWorkDir()
	if err != nil {
		return err
	}

	manifest, configPath, err := config.LoadManifestForDir(dir)
	if err != nil {
		return err
	}
	if manifest == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "no up: manifest found for %s\n", dir)
		return nil
	}
	manifest = manifest.FilterForPlatform(runtime.GOOS, runtime.GOARCH)

	modtimes, hash, err := manifestFingerprint(configPath)
	if err != nil {
		return err
	}

	p, l, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = l.Close() }()
	defer p.Sources.Close()

	result, err := p.Up(ctx, pipeline.UpOptions{
		WorkDir:        dir,
		Manifest:       manifest,
		ConfigModtimes: modtimes,
		ConfigHash:     hash,
		HeadSHA:        headSHA(dir),
		Progress:       cmd.OutOrStdout(),
		LockTimeout:    lockTimeout(),
		AskpassPrompt:  promptAskpass,
	})
	if err != nil {
		return err
	}

	if jsonOut {
		fmt.Fprintf(cmd.OutOrStdout(), `{"env_version_id":%q,"is_new":%t,"tool_count":%d}`+"\n",
			result.EnvVersionID, result.IsNew, result.ToolCount)
		return nil
	}
	if result.IsNew {
		fmt.Fprintf(cmd.OutOrStdout(), "up: %s (%d tools)\n", result.EnvVersionID, result.ToolCount)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "up: already current (%s)\n", result.EnvVersionID)
	}
	return nil
}

// manifestFingerprint stats and hashes the manifest file so the resulting
// environment-version id changes whenever either does (spec §3's
// config_modtimes_json / config_hash).
func manifestFingerprint(path string) (map[string]int64, string, error) {
	if path == "" {
		return nil, "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(data)
	return map[string]int64{path: info.ModTime().Unix()}, hex.EncodeToString(sum[:]), nil
}

// headSHA best-effort resolves the current git HEAD commit for the
// work-directory history row (spec §3's workdir_history.head_sha); a
// failure (no git, not a repo) just leaves it empty.
func headSHA(dir string) string {
	out, err := exec.Command("git", "-C", dir, "rev-parse", "HEAD").Output() // #nosec G204 -- fixed args, no user input
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// promptAskpass reads a password from the controlling terminal for the
// askpass broker (spec §4.8 step 4), echoing nothing back to the screen.
func promptAskpass(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
