package cardserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/r9s-ai/cardq/pkg/cardreport"
	"github.com/r9s-ai/cardq/pkg/davxml"
)

const maxReportBody = 10 << 20

const (
	reportQuery    = "addressbook-query"
	reportMultiget = "addressbook-multiget"
)

func (s *Server) handleReport(c *gin.Context, p string) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxReportBody+1))
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	if len(body) > maxReportBody {
		c.Status(http.StatusRequestEntityTooLarge)
		return
	}
	rep, err := davxml.DecodeReport(bytes.NewReader(body))
	if errors.Is(err, davxml.ErrUnsupportedReport) {
		s.metrics.ObserveReport("other", "unsupported", 0)
		s.writeError(c, http.StatusForbidden, davxml.SupportedReport, err.Error())
		return
	}
	if err != nil {
		s.metrics.ObserveReport("other", "bad_request", 0)
		s.writeError(c, http.StatusBadRequest, cardreport.PropName{}, err.Error())
		return
	}

	c.Header("Vary", "Brief,Prefer")
	ctx := c.Request.Context()
	var (
		name string
		ms   *cardreport.MultiStatus
		href func(string) string
	)
	if rep.Query != nil {
		name = reportQuery
		c.Set(ctxReport, name)
		depth, err := parseDepth(c.GetHeader("Depth"))
		if err != nil {
			s.metrics.ObserveReport(name, "bad_request", 0)
			s.writeError(c, http.StatusBadRequest, cardreport.PropName{}, err.Error())
			return
		}
		c.Set(ctxDepth, depth)
		q := *rep.Query
		q.Path = p
		q.Depth = depth
		ms, err = s.engine.Query(ctx, q)
		if err != nil {
			s.reportFailed(c, name, err)
			return
		}
		href = s.href
		c.Set(ctxCandidates, ms.Candidates)
	} else {
		name = reportMultiget
		c.Set(ctxReport, name)
		req := *rep.Multiget
		paths := make([]string, len(req.Paths))
		echo := make(map[string]string, len(req.Paths))
		for i, h := range req.Paths {
			sp, ok := s.hrefPath(h)
			if !ok {
				// Never resolves, so the engine reports it as missing.
				sp = fmt.Sprintf("/.invalid/%d", i)
			}
			paths[i] = sp
			if _, seen := echo[sp]; !seen {
				echo[sp] = h
			}
		}
		req.Paths = paths
		ms, err = s.engine.Multiget(ctx, req)
		if err != nil {
			s.reportFailed(c, name, err)
			return
		}
		href = func(sp string) string {
			if h, ok := echo[sp]; ok {
				return h
			}
			return s.href(sp)
		}
	}

	dialect := ms.Negotiation.Dialect.String()
	c.Set(ctxMatched, len(ms.Responses))
	c.Set(ctxDialect, dialect)
	s.metrics.ObserveReport(name, "ok", len(ms.Responses))
	s.metrics.ObserveConversion(dialect)
	c.Data(http.StatusMultiStatus, xmlContentType, davxml.EncodeMultiStatus(ms, href, preferMinimal(c.Request.Header)))
}

func (s *Server) reportFailed(c *gin.Context, name string, err error) {
	switch {
	case errors.Is(err, cardreport.ErrReportNotSupported):
		s.metrics.ObserveReport(name, "unsupported", 0)
		s.writeError(c, http.StatusForbidden, davxml.SupportedReport, err.Error())
	case errors.Is(err, cardreport.ErrNotFound):
		s.metrics.ObserveReport(name, "not_found", 0)
		c.Status(http.StatusNotFound)
	case errors.Is(err, context.Canceled):
		s.metrics.ObserveReport(name, "canceled", 0)
		// client closed request
		c.Status(499)
	default:
		s.metrics.ObserveReport(name, "error", 0)
		s.internalError(c, name, err)
	}
}
