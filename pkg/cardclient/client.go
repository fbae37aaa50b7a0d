// Package cardclient issues CardDAV REPORT requests against a remote
// server.
package cardclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/r9s-ai/cardq/pkg/cardreport"
	"github.com/r9s-ai/cardq/pkg/davxml"
	"github.com/r9s-ai/cardq/pkg/httpclient"
)

const maxErrorBody = 4 << 10

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.Code)
	if b := strings.TrimSpace(e.Body); b != "" {
		msg += ": " + b
	}
	return msg
}

type Client struct {
	base      *url.URL
	http      httpclient.HTTPDoer
	userAgent string
	log       zerolog.Logger
	retryMax  int
}

type Option func(*Client)

// WithHTTPClient replaces the retrying default transport.
func WithHTTPClient(d httpclient.HTTPDoer) Option {
	return func(c *Client) { c.http = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithRetryMax sets the retry budget of the default transport.
func WithRetryMax(n int) Option {
	return func(c *Client) { c.retryMax = n }
}

// New returns a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	c := &Client{base: u, log: zerolog.Nop(), userAgent: "cardq", retryMax: 3}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		rc := retryablehttp.NewClient()
		rc.RetryMax = c.retryMax
		rc.RetryWaitMin = 200 * time.Millisecond
		rc.RetryWaitMax = 5 * time.Second
		rc.Logger = leveledLogger{log: c.log}
		rc.HTTPClient = &http.Client{Timeout: 60 * time.Second}
		c.http = rc.StandardClient()
	}
	return c, nil
}

// Query runs an addressbook-query REPORT on req.Path with req.Depth.
// Negative depths are sent as "infinity".
func (c *Client) Query(ctx context.Context, req cardreport.QueryRequest) ([]cardreport.Response, error) {
	depth := "infinity"
	if req.Depth >= 0 {
		depth = strconv.Itoa(req.Depth)
	}
	return c.report(ctx, req.Path, depth, davxml.EncodeQuery(req))
}

// Multiget runs an addressbook-multiget REPORT on collection for req.Paths.
// The paths are sent as hrefs unchanged.
func (c *Client) Multiget(ctx context.Context, collection string, req cardreport.MultigetRequest) ([]cardreport.Response, error) {
	body := davxml.EncodeMultiget(req.Paths, req.Properties, req.ContentType, req.Version)
	return c.report(ctx, collection, "0", body)
}

// Get fetches a single card with the given Accept header and returns its
// body and content type.
func (c *Client) Get(ctx context.Context, path, accept string) ([]byte, string, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, "", statusError(req, resp)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	return b, resp.Header.Get("Content-Type"), nil
}

func (c *Client) report(ctx context.Context, path, depth string, body []byte) ([]cardreport.Response, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "REPORT", target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	req.Header.Set("Depth", depth)
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusMultiStatus {
		return nil, statusError(req, resp)
	}
	out, err := davxml.DecodeMultiStatus(resp.Body)
	if err != nil {
		return nil, err
	}
	c.log.Debug().Str("url", target).Str("depth", depth).Int("responses", len(out)).Msg("report done")
	return out, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	return resp, nil
}

func (c *Client) resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return c.base.String(), nil
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse path %q: %w", path, err)
	}
	return c.base.ResolveReference(ref).String(), nil
}

func statusError(req *http.Request, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Method: req.Method, URL: req.URL.String(), Code: resp.StatusCode, Body: string(b)}
}
