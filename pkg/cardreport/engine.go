// Package cardreport runs addressbook-query and addressbook-multiget
// reports against a card store.
package cardreport

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/r9s-ai/cardq/pkg/cardconv"
	"github.com/r9s-ai/cardq/pkg/cardfilter"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrReportNotSupported is returned for a depth 0 query on a resource that
// is not a card.
var ErrReportNotSupported = errors.New("the addressbook-query report is not supported on this url with Depth: 0")

// QueryRequest is a decoded addressbook-query.
type QueryRequest struct {
	Path  string
	Depth int
	// Limit caps the number of matches; zero means unlimited.
	Limit       int
	Filter      cardfilter.FilterSet
	Properties  []PropName
	ContentType string
	Version     string
	// AddressDataProps projects address-data onto these property names.
	AddressDataProps []string
}

// MultigetRequest is a decoded addressbook-multiget. Paths are store
// paths in request order.
type MultigetRequest struct {
	Paths       []string
	Properties  []PropName
	ContentType string
	Version     string
}

// Response is one entry of a multistatus. A non-zero Status marks a
// resource that could not be served at all.
type Response struct {
	Path     string
	Status   int
	Found    []Property
	NotFound []PropName
}

// MultiStatus is the result of a report.
type MultiStatus struct {
	Negotiation cardconv.Negotiation
	// Candidates is the number of cards a query evaluated.
	Candidates int
	Responses  []Response
}

// Config wires an Engine.
type Config struct {
	Store     Store
	Fetcher   PropertyFetcher
	Converter *cardconv.Converter
	// Workers bounds concurrent candidate evaluation. Values below 2 run
	// sequentially and stop reading candidates once Limit is reached.
	Workers int
	Logger  zerolog.Logger
}

// Engine evaluates reports. It keeps no per-request state and is safe for
// concurrent use.
type Engine struct {
	store   Store
	fetcher PropertyFetcher
	conv    *cardconv.Converter
	workers int
	log     zerolog.Logger
}

// NewEngine validates cfg and returns an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("cardreport: store is required")
	}
	conv := cfg.Converter
	if conv == nil {
		conv = cardconv.NewConverter("")
	}
	return &Engine{
		store:   cfg.Store,
		fetcher: cfg.Fetcher,
		conv:    conv,
		workers: cfg.Workers,
		log:     cfg.Logger,
	}, nil
}

type candidate struct {
	res   Resource
	data  []byte
	match bool
}

// Query runs an addressbook-query. Depth 0 targets the card at Path;
// any other depth considers the direct children of Path.
func (e *Engine) Query(ctx context.Context, req QueryRequest) (*MultiStatus, error) {
	target, err := e.store.Stat(ctx, req.Path)
	if err != nil {
		return nil, err
	}
	var resources []Resource
	if req.Depth == 0 {
		if target.Kind != KindCard {
			return nil, ErrReportNotSupported
		}
		resources = []Resource{target}
	} else {
		children, err := e.store.Children(ctx, req.Path)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			if c.Kind == KindCard {
				resources = append(resources, c)
			}
		}
	}

	neg := cardconv.NegotiateRequest(req.ContentType, req.Version)
	matched, err := e.evaluate(ctx, resources, req.Filter, req.Limit)
	if err != nil {
		return nil, err
	}
	e.log.Debug().
		Str("path", req.Path).
		Int("depth", req.Depth).
		Int("candidates", len(resources)).
		Int("matched", len(matched)).
		Str("dialect", neg.Dialect.String()).
		Msg("addressbook-query evaluated")

	ms := &MultiStatus{Negotiation: neg, Candidates: len(resources), Responses: make([]Response, 0, len(matched))}
	for _, m := range matched {
		resp, err := e.respond(ctx, m.res, m.data, req.Properties, neg, req.AddressDataProps)
		if err != nil {
			return nil, err
		}
		ms.Responses = append(ms.Responses, resp)
	}
	return ms, nil
}

// evaluate loads and filters candidates. Matches are returned in
// enumeration order, truncated to limit.
func (e *Engine) evaluate(ctx context.Context, resources []Resource, fs cardfilter.FilterSet, limit int) ([]candidate, error) {
	if e.workers < 2 {
		var out []candidate
		for _, res := range resources {
			c, err := e.load(ctx, res, fs)
			if err != nil {
				return nil, err
			}
			if !c.match {
				continue
			}
			out = append(out, c)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return out, nil
	}

	results := make([]candidate, len(resources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, res := range resources {
		i, res := i, res
		g.Go(func() error {
			c, err := e.load(gctx, res, fs)
			if err != nil {
				return err
			}
			results[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make([]candidate, 0, len(results))
	for _, c := range results {
		if !c.match {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (e *Engine) load(ctx context.Context, res Resource, fs cardfilter.FilterSet) (candidate, error) {
	if err := ctx.Err(); err != nil {
		return candidate{}, err
	}
	data, err := e.store.Get(ctx, res.Path)
	if err != nil {
		return candidate{}, fmt.Errorf("load %s: %w", res.Path, err)
	}
	ok, err := cardfilter.MatchesData(data, fs)
	if err != nil {
		return candidate{}, fmt.Errorf("filter %s: %w", res.Path, err)
	}
	c := candidate{res: res, match: ok}
	if ok {
		c.data = data
	}
	return c, nil
}

// Multiget resolves each path in order. Paths that do not exist yield a
// 404 entry; the batch itself only fails on store or conversion errors.
func (e *Engine) Multiget(ctx context.Context, req MultigetRequest) (*MultiStatus, error) {
	neg := cardconv.NegotiateRequest(req.ContentType, req.Version)
	wantData := false
	for _, n := range req.Properties {
		if n == AddressData {
			wantData = true
			break
		}
	}
	ms := &MultiStatus{Negotiation: neg, Responses: make([]Response, 0, len(req.Paths))}
	for _, p := range req.Paths {
		res, err := e.store.Stat(ctx, p)
		if errors.Is(err, ErrNotFound) {
			ms.Responses = append(ms.Responses, Response{Path: p, Status: http.StatusNotFound})
			continue
		}
		if err != nil {
			return nil, err
		}
		var data []byte
		if wantData && res.Kind == KindCard {
			data, err = e.store.Get(ctx, p)
			if errors.Is(err, ErrNotFound) {
				ms.Responses = append(ms.Responses, Response{Path: p, Status: http.StatusNotFound})
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("load %s: %w", p, err)
			}
		}
		resp, err := e.respond(ctx, res, data, req.Properties, neg, nil)
		if err != nil {
			return nil, err
		}
		ms.Responses = append(ms.Responses, resp)
	}
	return ms, nil
}

// respond builds the property response for one resource in the requested
// property order. data is nil for resources without card content.
func (e *Engine) respond(ctx context.Context, res Resource, data []byte, names []PropName, neg cardconv.Negotiation, allow []string) (Response, error) {
	resp := Response{Path: res.Path}
	others := make([]PropName, 0, len(names))
	for _, n := range names {
		if n != AddressData {
			others = append(others, n)
		}
	}
	found := map[PropName]Property{}
	if len(others) > 0 && e.fetcher != nil {
		props, err := e.fetcher.FetchProperties(ctx, res, others)
		if err != nil {
			return Response{}, fmt.Errorf("fetch properties of %s: %w", res.Path, err)
		}
		for _, p := range props {
			found[p.Name] = p
		}
	}
	for _, n := range names {
		if n == AddressData {
			if data == nil {
				resp.NotFound = append(resp.NotFound, n)
				continue
			}
			out, err := e.conv.Convert(data, neg.Dialect, allow)
			if err != nil {
				return Response{}, fmt.Errorf("convert %s: %w", res.Path, err)
			}
			resp.Found = append(resp.Found, Property{Name: n, Text: string(out)})
			continue
		}
		if p, ok := found[n]; ok {
			resp.Found = append(resp.Found, p)
		} else {
			resp.NotFound = append(resp.NotFound, n)
		}
	}
	return resp, nil
}
