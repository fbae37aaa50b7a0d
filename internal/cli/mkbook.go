package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

type mkbookOptions struct {
	storeOptions
	name        string
	description string
}

func newMkbookCmd() *cobra.Command {
	var opts mkbookOptions
	cmd := &cobra.Command{
		Use:   "mkbook PATH",
		Short: "Create an address book in the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.open()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()
			ctx, cancel := contextWithTimeout(cmd, 0)
			defer cancel()
			if err := st.MkAddressBook(ctx, args[0], opts.name, opts.description); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "created address book %s\n", args[0])
			return err
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.description, "description", "", "address book description")
	return cmd
}
