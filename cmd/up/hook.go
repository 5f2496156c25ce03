package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/upkit-dev/upkit/internal/config"
	"github.com/upkit-dev/upkit/internal/dynenv"
	"github.com/upkit-dev/upkit/internal/ledger"
	"github.com/upkit-dev/upkit/internal/workdir"
)

var (
	hookQuiet     bool
	hookKeepShims bool
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Shell integration helpers",
}

var hookEnvCmd = &cobra.Command{
	Use:   "env [shell]",
	Short: "Emit the shell statements that reconcile the active environment with the current directory (spec §6)",
	Args:  cobra.MaximumNArgs(1),
	// The hook must never break the user's prompt (spec §7: "on any
	// internal failure it emits no state change and exits 0"), so every
	// error path here is swallowed after logging rather than returned.
	Run: func(cmd *cobra.Command, args []string) {
		shellName := ""
		if len(args) > 0 {
			shellName = args[0]
		}
		script, err := runHookEnv(shellName)
		if err != nil {
			return
		}
		fmt.Fprint(cmd.OutOrStdout(), script)
	},
}

func init() {
	hookEnvCmd.Flags().BoolVar(&hookQuiet, "quiet", false, "Suppress the re-run notification hint")
	hookEnvCmd.Flags().BoolVar(&hookKeepShims, "keep-shims", false, "Don't strip the shim directory from PATH before reconciling")
	hookCmd.AddCommand(hookEnvCmd)
	rootCmd.AddCommand(hookCmd)
}

func runHookEnv(shellName string) (string, error) {
	ctx := context.Background()

	homes := config.GetHomes()
	l, err := ledger.Open(ctx, filepath.Join(homes.Cache, "ledger.db"))
	if err != nil {
		return "", err
	}
	defer func() { _ = l.Close() }()

	dir, err := currentWorkDir()
	if err != nil {
		return "", err
	}
	wdTrustID, _ := workdir.TrustID(dir) // empty on failure: "not a recognized work directory"

	environ := map[string]string{}
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				environ[kv[:i]] = kv[i+1:]
				break
			}
		}
	}

	var modtimes map[string]int64
	var hash string
	if _, configPath, err := config.LoadManifestForDir(dir); err == nil && configPath != "" {
		modtimes, hash, _ = manifestFingerprint(configPath)
	}

	h := &dynenv.Hook{Ledger: l}
	return h.Run(ctx, dynenv.Request{
		Environ:           environ,
		WdTrustID:         wdTrustID,
		Shell:             dynenv.ParseShell(shellName),
		KeepShims:         hookKeepShims || config.GetBool("keep-shims"),
		Quiet:             hookQuiet,
		ShimDir:           filepath.Join(homes.Data, "shims"),
		ConfigModtimes:    modtimes,
		ConfigHash:        hash,
		NotifySuppressVar: "UP_NO_NOTIFY",
	})
}
