// Package cardserver serves address books over CardDAV.
//
// REPORT, card GET/HEAD/PUT, OPTIONS and extended MKCOL are handled here.
// Every other WebDAV method is served by golang.org/x/net/webdav on top of
// the store's file system.
package cardserver

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/net/webdav"

	"github.com/r9s-ai/cardq/internal/davprops"
	"github.com/r9s-ai/cardq/internal/metrics"
	"github.com/r9s-ai/cardq/internal/store"
	"github.com/r9s-ai/cardq/pkg/cardconv"
	"github.com/r9s-ai/cardq/pkg/cardreport"
	"github.com/r9s-ai/cardq/pkg/cardvalidate"
	"github.com/r9s-ai/cardq/pkg/config"
	"github.com/r9s-ai/cardq/pkg/davxml"
)

// Keys under which handlers publish per-request details for the access log.
const (
	ctxDepth      = "cardq.depth"
	ctxReport     = "cardq.report"
	ctxCandidates = "cardq.candidates"
	ctxMatched    = "cardq.matched"
	ctxDialect    = "cardq.dialect"
	ctxValidation = "cardq.validation"
)

const xmlContentType = "application/xml; charset=utf-8"

type Server struct {
	cfg       *config.Config
	prefix    string
	store     *store.Store
	engine    *cardreport.Engine
	validator *cardvalidate.Validator
	conv      *cardconv.Converter
	props     *davprops.Builder
	dav       *webdav.Handler
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// New wires a Server. m may be nil.
func New(cfg *config.Config, st *store.Store, log zerolog.Logger, m *metrics.Metrics) (*Server, error) {
	if cfg == nil || st == nil {
		return nil, errors.New("cardserver: config and store are required")
	}
	prefix := strings.TrimSuffix(cfg.Server.DAVPrefix, "/")
	props := &davprops.Builder{MaxResourceSize: cfg.Server.MaxResourceSize, CTag: st.CTag}
	conv := cardconv.NewConverter(cfg.Validation.ProductID)
	engine, err := cardreport.NewEngine(cardreport.Config{
		Store:     st,
		Fetcher:   props,
		Converter: conv,
		Workers:   cfg.Server.ReportWorkers,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:       cfg,
		prefix:    prefix,
		store:     st,
		engine:    engine,
		validator: cardvalidate.New(),
		conv:      conv,
		props:     props,
		metrics:   m,
		log:       log,
	}
	s.dav = &webdav.Handler{
		Prefix:     prefix,
		FileSystem: st.FileSystem(props),
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				log.Debug().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("webdav")
			}
		},
	}
	return s, nil
}

// storePath maps a request path to a store path. ok is false for paths
// outside the DAV prefix.
func (s *Server) storePath(urlPath string) (string, bool) {
	if s.prefix != "" && urlPath == s.prefix {
		return "/", true
	}
	rest, ok := strings.CutPrefix(urlPath, s.prefix+"/")
	if !ok {
		return "", false
	}
	return store.Clean(rest), true
}

// hrefPath resolves a multiget href, absolute or path-only.
func (s *Server) hrefPath(href string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || u.Path == "" {
		return "", false
	}
	return s.storePath(u.Path)
}

func (s *Server) href(p string) string {
	u := url.URL{Path: s.prefix + p}
	return u.EscapedPath()
}

func (s *Server) writeError(c *gin.Context, status int, condition cardreport.PropName, message string) {
	c.Data(status, xmlContentType, davxml.EncodeError(condition, message))
}

func (s *Server) serveDAV(c *gin.Context) {
	p, ok := s.storePath(c.Request.URL.Path)
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	ctx := davprops.WithUserAgent(c.Request.Context(), c.GetHeader("User-Agent"))
	c.Request = c.Request.WithContext(ctx)

	switch c.Request.Method {
	case "REPORT":
		s.handleReport(c, p)
		return
	case http.MethodOptions:
		s.handleOptions(c)
		return
	case http.MethodPut:
		if s.handlePut(c, p) {
			return
		}
	case "MKCOL":
		if s.handleMkcol(c, p) {
			return
		}
	case http.MethodGet, http.MethodHead:
		if s.handleGet(c, p) {
			return
		}
	}
	s.dav.ServeHTTP(c.Writer, c.Request)
}

func (s *Server) handleOptions(c *gin.Context) {
	c.Header("DAV", "1, 2, 3, addressbook, extended-mkcol")
	c.Header("Allow", "OPTIONS, GET, HEAD, POST, DELETE, PROPFIND, PROPPATCH, COPY, MOVE, LOCK, UNLOCK, PUT, MKCOL, REPORT")
	c.Header("MS-Author-Via", "DAV")
	c.Status(http.StatusOK)
}

func (s *Server) internalError(c *gin.Context, op string, err error) {
	s.log.Error().Err(err).Str("op", op).Str("path", c.Request.URL.Path).Msg("request failed")
	c.String(http.StatusInternalServerError, fmt.Sprintf("%s failed", op))
}
