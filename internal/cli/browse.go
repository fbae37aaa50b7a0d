package cli

import (
	"github.com/spf13/cobra"

	"github.com/r9s-ai/cardq/internal/tui"
)

// runBrowserFn is swapped in tests.
var runBrowserFn = tui.Run

func newBrowseCmd() *cobra.Command {
	var opts storeOptions
	cmd := &cobra.Command{
		Use:   "browse [PATH]",
		Short: "Browse address books in the terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := "/"
			if len(args) == 1 {
				start = args[0]
			}
			st, err := opts.open()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()
			ctx, cancel := contextWithTimeout(cmd, 0)
			defer cancel()
			return runBrowserFn(ctx, st, start, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	opts.bind(cmd)
	return cmd
}
