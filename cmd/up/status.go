package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/upkit-dev/upkit/internal/config"
	"github.com/upkit-dev/upkit/internal/environment"
	"github.com/upkit-dev/upkit/internal/ledger"
	"github.com/upkit-dev/upkit/internal/workdir"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current directory's trust id and bound environment version",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusOutput struct {
	WorkDir      string                     `json:"work_dir"`
	WdTrustID    string                     `json:"wd_trust_id"`
	HasManifest  bool                       `json:"has_manifest"`
	Bound        bool                       `json:"bound"`
	EnvVersionID string                     `json:"env_version_id,omitempty"`
	Versions     []environment.VersionEntry `json:"versions,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	dir, err := currentWorkDir()
	if err != nil {
		return err
	}
	wdTrustID, err := workdir.TrustID(dir)
	if err != nil {
		return err
	}

	manifest, _, err := config.LoadManifestForDir(dir)
	if err != nil {
		return err
	}

	homes := config.GetHomes()
	l, err := ledger.Open(ctx, filepath.Join(homes.Cache, "ledger.db"))
	if err != nil {
		return err
	}
	defer func() { _ = l.Close() }()

	out := statusOutput{
		WorkDir:     dir,
		WdTrustID:   wdTrustID,
		HasManifest: manifest != nil,
	}

	envVersionID, ok, err := l.CurrentBinding(ctx, wdTrustID)
	if err != nil {
		return err
	}
	if ok {
		out.Bound = true
		out.EnvVersionID = envVersionID
		ev, err := l.GetEnvVersion(ctx, envVersionID)
		if err != nil {
			return err
		}
		var versions []environment.VersionEntry
		if err := json.Unmarshal([]byte(ev.VersionsJSON), &versions); err != nil {
			return err
		}
		out.Versions = versions
	}

	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		return enc.Encode(out)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wd: %s\n", out.WdTrustID)
	if !out.HasManifest {
		fmt.Fprintln(cmd.OutOrStdout(), "no up: manifest for this directory")
		return nil
	}
	if !out.Bound {
		fmt.Fprintln(cmd.OutOrStdout(), "not bound — run `up` to install and bind")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "bound: %s\n", out.EnvVersionID)
	for _, v := range out.Versions {
		vdir := v.Dir
		if vdir == "" {
			vdir = "."
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  %s %s@%s (%s)\n", v.Tool, v.Plugin, v.Version, vdir)
	}
	return nil
}
