package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/r9s-ai/cardq/pkg/cardvalidate"
)

type validateOptions struct {
	strict bool
	write  bool
	print  bool
}

func newValidateCmd() *cobra.Command {
	var opts validateOptions
	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a vCard or jCard file and optionally store the repaired form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0], opts)
		},
	}
	fs := cmd.Flags()
	fs.BoolVar(&opts.strict, "strict", false, "treat repairable problems as errors")
	fs.BoolVar(&opts.write, "write", false, "write the repaired card back to FILE")
	fs.BoolVar(&opts.print, "print", false, "print the card as it would be stored")
	return cmd
}

func runValidate(cmd *cobra.Command, path string, opts validateOptions) error {
	data, err := readInput(cmd, path)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	res, err := cardvalidate.New().ValidateAndRepair(data, cardvalidate.Options{Strict: opts.strict})
	if err != nil {
		var rej *cardvalidate.RejectError
		if errors.As(err, &rej) {
			return fmt.Errorf("%s: rejected: %s", path, rej.Reason)
		}
		return err
	}
	for _, m := range res.Messages {
		_, _ = fmt.Fprintln(out, m.String())
	}
	status := "ok"
	switch {
	case res.Modified:
		status = "repaired"
	case res.Warning != "":
		status = "warning"
	}
	_, _ = fmt.Fprintf(out, "%s: %s\n", path, status)

	if opts.print {
		_, _ = out.Write(res.Data)
	}
	if opts.write && res.Modified {
		if path == "-" {
			return errors.New("--write needs a file, not stdin")
		}
		if err := os.WriteFile(path, res.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		_, _ = fmt.Fprintf(out, "wrote %s\n", path)
	}
	return nil
}
