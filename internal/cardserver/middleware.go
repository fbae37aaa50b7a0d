package cardserver

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/r9s-ai/cardq/internal/logx"
	"github.com/r9s-ai/cardq/internal/metrics"
	"github.com/r9s-ai/cardq/pkg/requestid"
)

// AccessLog configures per-request logging. With a Formatter, or with
// Structured unset, one text line per request goes to Out. Otherwise a
// structured event goes to Logger.
type AccessLog struct {
	Out        io.Writer
	Logger     zerolog.Logger
	Formatter  *logx.AccessLogFormatter
	Color      bool
	Structured bool
}

type contextFieldSpec struct {
	ctxKey string
	logKey string
}

type accessLogRecord struct {
	RequestID string
	UserAgent string
	LatencyMS int64
	Extras    map[string]any
}

func (r accessLogRecord) Fields() map[string]any {
	out := make(map[string]any, len(r.Extras)+3)
	if strings.TrimSpace(r.RequestID) != "" {
		out["request_id"] = r.RequestID
	}
	if strings.TrimSpace(r.UserAgent) != "" {
		out["user_agent"] = r.UserAgent
	}
	out["latency_ms"] = r.LatencyMS
	for k, v := range r.Extras {
		out[k] = v
	}
	return out
}

var accessLogContextFieldSpecs = []contextFieldSpec{
	{ctxKey: ctxDepth, logKey: "depth"},
	{ctxKey: ctxReport, logKey: "report"},
	{ctxKey: ctxCandidates, logKey: "candidates"},
	{ctxKey: ctxMatched, logKey: "matched"},
	{ctxKey: ctxDialect, logKey: "dialect"},
	{ctxKey: ctxValidation, logKey: "validation"},
}

func requestLogger(a *AccessLog, requestIDHeaderKey string) gin.HandlerFunc {
	requestIDHeaderKey = requestid.ResolveHeaderKey(requestIDHeaderKey)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		fields := buildAccessLogRecord(c, requestIDHeaderKey, latency).Fields()
		ts := time.Now()
		switch {
		case a.Formatter != nil:
			_, _ = fmt.Fprintln(a.Out, a.Formatter.Format(ts, status, latency, c.ClientIP(), c.Request.Method, c.Request.URL.Path, fields, a.Color))
		case a.Structured:
			a.Logger.Info().
				Int("status", status).
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Str("client_ip", c.ClientIP()).
				Dur("latency", latency).
				Fields(fields).
				Msg("request")
		default:
			_, _ = fmt.Fprintln(a.Out, logx.FormatRequestLineWithColor(ts, status, latency, c.ClientIP(), c.Request.Method, c.Request.URL.Path, fields, a.Color))
		}
	}
}

func buildAccessLogRecord(c *gin.Context, requestIDHeaderKey string, latency time.Duration) accessLogRecord {
	rec := accessLogRecord{
		RequestID: c.GetString(requestIDHeaderKey),
		UserAgent: c.GetHeader("User-Agent"),
		LatencyMS: latency.Milliseconds(),
		Extras:    map[string]any{},
	}
	for _, s := range accessLogContextFieldSpecs {
		if v, ok := c.Get(s.ctxKey); ok {
			rec.Extras[s.logKey] = v
		}
	}
	return rec
}

func requestIDMiddleware(headerKey string) gin.HandlerFunc {
	headerKey = requestid.ResolveHeaderKey(headerKey)
	return func(c *gin.Context) {
		id := requestid.FromHeader(c.GetHeader(headerKey))
		c.Header(headerKey, id)
		c.Set(headerKey, id)
		c.Next()
	}
}

func metricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.ObserveRequest(c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}
