package cardserver

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/r9s-ai/cardq/internal/store"
	"github.com/r9s-ai/cardq/pkg/cardconv"
	"github.com/r9s-ai/cardq/pkg/cardreport"
	"github.com/r9s-ai/cardq/pkg/cardvalidate"
	"github.com/r9s-ai/cardq/pkg/davxml"
)

const maxMkcolBody = 1 << 20

var errTooLarge = errors.New("request body too large")

// readBody reads at most limit bytes of the request body. A limit of zero
// or less disables the check.
func readBody(r *http.Request, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r.Body)
	}
	if r.ContentLength > limit {
		return nil, errTooLarge
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, errTooLarge
	}
	return b, nil
}

// handleGet serves a card in the dialect picked from Accept. It returns
// false for anything that is not a card.
func (s *Server) handleGet(c *gin.Context, p string) bool {
	ctx := c.Request.Context()
	res, err := s.store.Stat(ctx, p)
	if err != nil || res.Kind != cardreport.KindCard {
		return false
	}
	data, err := s.store.Get(ctx, p)
	if err != nil {
		return false
	}
	neg := cardconv.Negotiate(c.GetHeader("Accept"))
	out, err := s.conv.Convert(data, neg.Dialect, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("path", p).Msg("stored card does not convert, serving as is")
		out, neg = data, cardconv.Default
	}
	c.Set(ctxDialect, neg.Dialect.String())
	s.metrics.ObserveConversion(neg.Dialect.String())

	c.Header("Vary", "Accept")
	c.Header("Last-Modified", res.ModTime.UTC().Format(http.TimeFormat))
	// The stored entity keeps its tag only when served byte for byte.
	if bytes.Equal(out, data) {
		etag := store.ETag(res)
		c.Header("ETag", etag)
		if v := c.GetHeader("If-None-Match"); v != "" && etagListMatches(v, etag, true) {
			c.Status(http.StatusNotModified)
			return true
		}
	}
	if c.Request.Method == http.MethodHead {
		c.Header("Content-Type", neg.ContentType())
		c.Header("Content-Length", strconv.Itoa(len(out)))
		c.Status(http.StatusOK)
		return true
	}
	c.Data(http.StatusOK, neg.ContentType(), out)
	return true
}

// handlePut validates and stores a card written into an address book.
// Writes anywhere else are left to the generic handler.
func (s *Server) handlePut(c *gin.Context, p string) bool {
	ctx := c.Request.Context()
	if p == "/" {
		return false
	}
	parent, err := s.store.Stat(ctx, path.Dir(p))
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.Status(http.StatusConflict)
		return true
	case err != nil:
		s.internalError(c, "put", err)
		return true
	case parent.Kind != cardreport.KindAddressBook:
		return false
	}

	body, err := readBody(c.Request, s.cfg.Server.MaxResourceSize)
	if errors.Is(err, errTooLarge) {
		s.writeError(c, http.StatusRequestEntityTooLarge, davxml.MaxResourceSize,
			"card exceeds "+strconv.FormatInt(s.cfg.Server.MaxResourceSize, 10)+" bytes")
		return true
	}
	if err != nil {
		c.Status(http.StatusBadRequest)
		return true
	}

	existing, err := s.store.Stat(ctx, p)
	exists := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.internalError(c, "put", err)
		return true
	}
	if exists && existing.Kind.IsCollection() {
		c.Status(http.StatusMethodNotAllowed)
		return true
	}
	etag := ""
	if exists {
		etag = store.ETag(existing)
	}
	if !preconditionsHold(c.Request.Header, exists, etag) {
		c.Status(http.StatusPreconditionFailed)
		return true
	}

	res, err := s.validator.ValidateAndRepair(body, cardvalidate.Options{Strict: preferStrict(c.Request.Header)})
	if err != nil {
		var rej *cardvalidate.RejectError
		if !errors.As(err, &rej) {
			s.internalError(c, "validate", err)
			return true
		}
		c.Set(ctxValidation, "rejected")
		s.metrics.ObserveValidation("rejected")
		cond := davxml.ValidAddressData
		if errors.Is(err, cardvalidate.ErrKindMismatch) {
			cond = davxml.SupportedAddressData
		}
		s.writeError(c, http.StatusUnsupportedMediaType, cond, rej.Reason)
		return true
	}

	outcome := "ok"
	switch {
	case res.Modified:
		outcome = "repaired"
	case res.Warning != "":
		outcome = "warning"
	}
	c.Set(ctxValidation, outcome)
	s.metrics.ObserveValidation(outcome)

	saved, created, err := s.store.Put(ctx, p, res.Data)
	if err != nil {
		s.internalError(c, "put", err)
		return true
	}
	if res.Warning != "" && s.cfg.Validation.WarningHeader != "" {
		c.Header(s.cfg.Validation.WarningHeader, singleLine(res.Warning))
	}
	if !res.Modified {
		c.Header("ETag", store.ETag(saved))
	}
	if created {
		c.Status(http.StatusCreated)
	} else {
		c.Status(http.StatusNoContent)
	}
	return true
}

// handleMkcol creates an address book from an extended MKCOL body. A
// request without a body is left to the generic handler.
func (s *Server) handleMkcol(c *gin.Context, p string) bool {
	if c.Request.ContentLength == 0 {
		return false
	}
	body, err := readBody(c.Request, maxMkcolBody)
	if errors.Is(err, errTooLarge) {
		c.Status(http.StatusRequestEntityTooLarge)
		return true
	}
	if err != nil {
		c.Status(http.StatusBadRequest)
		return true
	}
	if len(bytes.TrimSpace(body)) == 0 {
		c.Request.Body = http.NoBody
		c.Request.ContentLength = 0
		return false
	}
	if p == "/" {
		c.Status(http.StatusMethodNotAllowed)
		return true
	}
	if store.Hidden(p) {
		c.Status(http.StatusForbidden)
		return true
	}
	m, err := davxml.DecodeMkcol(bytes.NewReader(body))
	if err != nil {
		s.writeError(c, http.StatusBadRequest, cardreport.PropName{}, err.Error())
		return true
	}
	if !m.AddressBook {
		s.writeError(c, http.StatusForbidden, davxml.ValidResourceType, "only address books can be created with a request body")
		return true
	}
	err = s.store.MkAddressBook(c.Request.Context(), p, m.DisplayName, m.Description)
	switch {
	case errors.Is(err, store.ErrExists):
		c.Status(http.StatusMethodNotAllowed)
	case errors.Is(err, store.ErrNotFound):
		c.Status(http.StatusConflict)
	case err != nil:
		s.internalError(c, "mkcol", err)
	default:
		s.log.Info().Str("path", p).Str("displayname", m.DisplayName).Msg("address book created")
		c.Status(http.StatusCreated)
	}
	return true
}
