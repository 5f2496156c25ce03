package main

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/upkit-dev/upkit/internal/config"
	"github.com/upkit-dev/upkit/internal/pipeline"
)

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Reverse the current directory's tool-version binding",
	RunE:  runDown,
}

func init() {
	rootCmd.AddCommand(downCmd)
}

func runDown(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	dir, err := currentWorkDir()
	if err != nil {
		return err
	}

	manifest, _, err := config.LoadManifestForDir(dir)
	if err != nil {
		return err
	}
	if manifest != nil {
		manifest = manifest.FilterForPlatform(runtime.GOOS, runtime.GOARCH)
	}

	p, l, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = l.Close() }()
	defer p.Sources.Close()

	if err := p.Down(ctx, pipeline.DownOptions{
		WorkDir:     dir,
		Manifest:    manifest,
		Progress:    cmd.OutOrStdout(),
		LockTimeout: lockTimeout(),
	}); err != nil {
		return err
	}

	if !jsonOut {
		fmt.Fprintf(cmd.OutOrStdout(), "down: %s\n", dir)
	}
	return nil
}
