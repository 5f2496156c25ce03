package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/upkit-dev/upkit/internal/config"
	"github.com/upkit-dev/upkit/internal/ledger"
	"github.com/upkit-dev/upkit/internal/logging"
	"github.com/upkit-dev/upkit/internal/pipeline"
	"github.com/upkit-dev/upkit/internal/versionsrc"
)

var (
	verbose bool
	jsonOut bool
	workDir string
)

var rootCmd = &cobra.Command{
	Use:           "up",
	Short:         "Per-directory development environment manager",
	Long:          "up installs and binds a work directory's declared tool versions; the sibling subcommands reverse it, emit shell exports, and sweep orphaned installs.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runUp,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return err
		}
		homes := config.GetHomes()
		logging.Init(logging.Options{
			Dir:     filepath.Join(homes.Cache, "log"),
			Verbose: verbose,
			JSON:    jsonOut,
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON output")
	rootCmd.PersistentFlags().StringVar(&workDir, "dir", "", "Work directory (defaults to the current directory)")
}

// currentWorkDir resolves --dir, falling back to the process's cwd.
func currentWorkDir() (string, error) {
	if workDir != "" {
		return filepath.Abs(workDir)
	}
	return os.Getwd()
}

// openPipeline wires a Pipeline against the configured ledger/data homes,
// ready to drive Up/Down/Cleanup. Callers must Close() the returned ledger.
func openPipeline(ctx context.Context) (*pipeline.Pipeline, *ledger.Ledger, error) {
	homes := config.GetHomes()
	if homes.Cache == "" || homes.Data == "" {
		return nil, nil, fmt.Errorf("could not resolve cache/data home directories")
	}
	if err := os.MkdirAll(homes.Cache, 0o755); err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(homes.Data, 0o755); err != nil {
		return nil, nil, err
	}

	l, err := ledger.Open(ctx, filepath.Join(homes.Cache, "ledger.db"))
	if err != nil {
		return nil, nil, err
	}

	sources := versionsrc.New(l, clockwork.NewRealClock())
	ghToken := os.Getenv("GITHUB_TOKEN")
	p := pipeline.New(l, sources, homes.Data, ghToken, config.GetRetention())
	return p, l, nil
}

func lockTimeout() time.Duration {
	return config.GetDuration("lock-timeout")
}
