package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/r9s-ai/cardq/pkg/cardconv"
)

type convertOptions struct {
	to        string
	props     []string
	productID string
}

func newConvertCmd() *cobra.Command {
	opts := convertOptions{to: "vcard4"}
	cmd := &cobra.Command{
		Use:   "convert FILE",
		Short: "Convert a card between vCard 3.0, vCard 4.0 and jCard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, args[0], opts)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&opts.to, "to", "vcard4", "target dialect: vcard3, vcard4 or jcard")
	fs.StringSliceVar(&opts.props, "props", nil, "keep only these properties (UID, VERSION and FN are always kept)")
	fs.StringVar(&opts.productID, "product-id", "", "PRODID written on version conversion")
	return cmd
}

func parseDialect(s string) (cardconv.Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vcard3", "3", "3.0":
		return cardconv.VCard3, nil
	case "vcard4", "4", "4.0":
		return cardconv.VCard4, nil
	case "jcard", "json":
		return cardconv.JCard, nil
	default:
		return 0, fmt.Errorf("unknown dialect %q (want vcard3, vcard4 or jcard)", s)
	}
}

func runConvert(cmd *cobra.Command, path string, opts convertOptions) error {
	dialect, err := parseDialect(opts.to)
	if err != nil {
		return err
	}
	data, err := readInput(cmd, path)
	if err != nil {
		return err
	}
	out, err := cardconv.NewConverter(opts.productID).Convert(data, dialect, opts.props)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	_, _ = w.Write(out)
	if dialect == cardconv.JCard {
		_, _ = fmt.Fprintln(w)
	}
	return nil
}
