package main

import (
	"github.com/spf13/cobra"

	"github.com/upkit-dev/upkit/internal/askpass"
)

// askpassClientCmd is the hidden subcommand the generated shim scripts
// re-invoke (spec §4.8 step 2): `<binary> __askpass-client <socket> [prompt]`.
var askpassClientCmd = &cobra.Command{
	Use:    "__askpass-client <socket> [prompt]",
	Hidden: true,
	Args:   cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := ""
		if len(args) > 1 {
			prompt = args[1]
		}
		return askpass.RunClient(args[0], prompt, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(askpassClientCmd)
}
