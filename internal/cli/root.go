// Package cli implements the cardq command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "cardq.yaml"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cardq",
		Short:         "CardDAV address book server and tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCmd(),
		newValidateCmd(),
		newConvertCmd(),
		newQueryCmd(),
		newMultigetCmd(),
		newMkbookCmd(),
		newBrowseCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	return execute(os.Args[1:], os.Stderr)
}

func execute(args []string, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(stderr, "error: "+err.Error())
		return 1
	}
	return 0
}

// readInput reads a file, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	// #nosec G304 -- path is supplied by the operator.
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}
