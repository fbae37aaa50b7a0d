package cli

import (
	"github.com/spf13/cobra"

	"github.com/r9s-ai/cardq/internal/cardserver"
)

// runServerFn is swapped in tests.
var runServerFn = cardserver.Run

func newServeCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve address books over CardDAV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServerFn(cfgPath)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "config yaml path")
	return cmd
}
