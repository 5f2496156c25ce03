package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/upkit-dev/upkit/internal/config"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Sweep installed artifacts with no surviving ledger reference",
	RunE:  runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	p, l, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = l.Close() }()
	defer p.Sources.Close()

	graceSeconds := int64(config.GetDuration("gc.cleanup-after").Seconds())
	_, err = p.Cleanup(ctx, graceSeconds, cmd.OutOrStdout())
	return err
}
