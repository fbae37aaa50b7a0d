package cli

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/r9s-ai/cardq/internal/davprops"
	"github.com/r9s-ai/cardq/internal/version"
	"github.com/r9s-ai/cardq/pkg/cardclient"
	"github.com/r9s-ai/cardq/pkg/cardfilter"
	"github.com/r9s-ai/cardq/pkg/cardreport"
)

// newClientFn is swapped in tests.
var newClientFn = func(base string) (*cardclient.Client, error) {
	return cardclient.New(base, cardclient.WithUserAgent("cardq/"+version.Get().Version))
}

type reportOptions struct {
	contentType string
	version     string
	timeout     time.Duration
}

func (o *reportOptions) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&o.contentType, "content-type", "", "address-data content type (text/vcard or application/vcard+json)")
	fs.StringVar(&o.version, "card-version", "", "address-data version (3.0 or 4.0)")
	fs.DurationVar(&o.timeout, "timeout", 60*time.Second, "request timeout")
}

type queryOptions struct {
	reportOptions
	depth       int
	test        string
	propFilters []string
	limit       int
	dataProps   []string
}

func newQueryCmd() *cobra.Command {
	opts := queryOptions{depth: 1}
	cmd := &cobra.Command{
		Use:   "query URL",
		Short: "Run an addressbook-query REPORT against a CardDAV collection",
		Long: `Run an addressbook-query REPORT against a CardDAV collection.

Filters are NAME:MATCH:VALUE where MATCH is contains, equals, starts-with or
ends-with, optionally prefixed with ! to negate. NAME:undefined matches cards
without the property.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args[0], opts)
		},
	}
	opts.bind(cmd)
	fs := cmd.Flags()
	fs.IntVar(&opts.depth, "depth", 1, "Depth header (0 or 1)")
	fs.StringVar(&opts.test, "test", "anyof", "combine filters with anyof or allof")
	fs.StringArrayVarP(&opts.propFilters, "prop-filter", "f", nil, "property filter NAME:MATCH:VALUE (repeatable)")
	fs.IntVar(&opts.limit, "limit", 0, "maximum number of results (0 = unlimited)")
	fs.StringSliceVar(&opts.dataProps, "data-props", nil, "project address-data onto these properties")
	return cmd
}

// parsePropFilter reads NAME:MATCH:VALUE or NAME:undefined.
func parsePropFilter(s string) (cardfilter.PropertyFilter, error) {
	parts := strings.SplitN(s, ":", 3)
	name := strings.ToUpper(strings.TrimSpace(parts[0]))
	if name == "" {
		return cardfilter.PropertyFilter{}, fmt.Errorf("prop-filter %q: missing property name", s)
	}
	if len(parts) == 2 && strings.EqualFold(strings.TrimSpace(parts[1]), "undefined") {
		return cardfilter.PropertyFilter{Name: name, IsNotDefined: true}, nil
	}
	if len(parts) != 3 {
		return cardfilter.PropertyFilter{}, fmt.Errorf("prop-filter %q: want NAME:MATCH:VALUE", s)
	}
	match, negate := strings.CutPrefix(strings.TrimSpace(parts[1]), "!")
	mt, err := cardfilter.ParseMatchType(match)
	if err != nil {
		return cardfilter.PropertyFilter{}, fmt.Errorf("prop-filter %q: %w", s, err)
	}
	tm := cardfilter.TextMatch{
		Value:     parts[2],
		Collation: cardfilter.CollationUnicodeCasemap,
		MatchType: mt,
		Negate:    negate,
	}
	return cardfilter.PropertyFilter{Name: name, TextMatches: []cardfilter.TextMatch{tm}}, nil
}

// splitURL separates the server base from the collection path.
func splitURL(raw string) (string, string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", fmt.Errorf("url %q must be absolute", raw)
	}
	p := u.Path
	if p == "" {
		p = "/"
	}
	return u.Scheme + "://" + u.Host, p, nil
}

func reportProps() []cardreport.PropName {
	return []cardreport.PropName{davprops.GetETag, cardreport.AddressData}
}

func runQuery(cmd *cobra.Command, rawURL string, opts queryOptions) error {
	base, p, err := splitURL(rawURL)
	if err != nil {
		return err
	}
	test, err := cardfilter.ParseTest(opts.test)
	if err != nil {
		return err
	}
	req := cardreport.QueryRequest{
		Path:             p,
		Depth:            opts.depth,
		Limit:            opts.limit,
		Filter:           cardfilter.FilterSet{Test: test},
		Properties:       reportProps(),
		ContentType:      opts.contentType,
		Version:          opts.version,
		AddressDataProps: opts.dataProps,
	}
	for _, s := range opts.propFilters {
		pf, err := parsePropFilter(s)
		if err != nil {
			return err
		}
		req.Filter.Filters = append(req.Filter.Filters, pf)
	}
	client, err := newClientFn(base)
	if err != nil {
		return err
	}
	ctx, cancel := contextWithTimeout(cmd, opts.timeout)
	defer cancel()
	resps, err := client.Query(ctx, req)
	if err != nil {
		return err
	}
	printResponses(cmd.OutOrStdout(), resps)
	return nil
}

func newMultigetCmd() *cobra.Command {
	var opts reportOptions
	cmd := &cobra.Command{
		Use:   "multiget URL HREF...",
		Short: "Fetch cards by href with an addressbook-multiget REPORT",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMultiget(cmd, args[0], args[1:], opts)
		},
	}
	opts.bind(cmd)
	return cmd
}

func runMultiget(cmd *cobra.Command, rawURL string, hrefs []string, opts reportOptions) error {
	base, p, err := splitURL(rawURL)
	if err != nil {
		return err
	}
	client, err := newClientFn(base)
	if err != nil {
		return err
	}
	ctx, cancel := contextWithTimeout(cmd, opts.timeout)
	defer cancel()
	resps, err := client.Multiget(ctx, p, cardreport.MultigetRequest{
		Paths:       hrefs,
		Properties:  reportProps(),
		ContentType: opts.contentType,
		Version:     opts.version,
	})
	if err != nil {
		return err
	}
	printResponses(cmd.OutOrStdout(), resps)
	return nil
}

func printResponses(w io.Writer, resps []cardreport.Response) {
	for _, r := range resps {
		if r.Status != 0 {
			_, _ = fmt.Fprintf(w, "%s  %d\n", r.Path, r.Status)
			continue
		}
		var etag, data string
		for _, p := range r.Found {
			switch p.Name {
			case davprops.GetETag:
				etag = p.Text
			case cardreport.AddressData:
				data = p.Text
			}
		}
		_, _ = fmt.Fprintf(w, "%s  %s\n", r.Path, etag)
		if data != "" {
			data = strings.ReplaceAll(data, "\r\n", "\n")
			_, _ = fmt.Fprint(w, data)
			if !strings.HasSuffix(data, "\n") {
				_, _ = fmt.Fprintln(w)
			}
		}
	}
	_, _ = fmt.Fprintf(w, "%d result(s)\n", len(resps))
}
