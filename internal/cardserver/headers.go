package cardserver

import (
	"errors"
	"net/http"
	"strings"
)

var errBadDepth = errors.New("invalid Depth header")

// parseDepth reads a REPORT Depth header. A missing header means 0 and
// infinity is served as 1.
func parseDepth(v string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0":
		return 0, nil
	case "1", "infinity":
		return 1, nil
	default:
		return 0, errBadDepth
	}
}

// preferences returns the Prefer tokens of h, lower cased and without
// parameters.
func preferences(h http.Header) map[string]bool {
	out := map[string]bool{}
	for _, line := range h.Values("Prefer") {
		for _, tok := range strings.Split(line, ",") {
			tok, _, _ = strings.Cut(tok, ";")
			tok = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(tok), " ", ""))
			if tok != "" {
				out[tok] = true
			}
		}
	}
	return out
}

// preferMinimal reports whether the client asked for 404 propstats to be
// left out, either through Prefer or the older Brief header.
func preferMinimal(h http.Header) bool {
	if strings.EqualFold(strings.TrimSpace(h.Get("Brief")), "t") {
		return true
	}
	return preferences(h)["return=minimal"]
}

func preferStrict(h http.Header) bool {
	return preferences(h)["handling=strict"]
}

// etagListMatches reports whether the If-Match style header value v names
// etag. "*" matches any existing resource.
func etagListMatches(v, etag string, exists bool) bool {
	for _, tok := range strings.Split(v, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "*" {
			return exists
		}
		tok = strings.TrimPrefix(tok, "W/")
		if exists && tok == etag {
			return true
		}
	}
	return false
}

// preconditionsHold evaluates If-Match and If-None-Match for a write.
func preconditionsHold(h http.Header, exists bool, etag string) bool {
	if v := h.Get("If-Match"); v != "" && !etagListMatches(v, etag, exists) {
		return false
	}
	if v := h.Get("If-None-Match"); v != "" && etagListMatches(v, etag, exists) {
		return false
	}
	return true
}

// singleLine folds a message into a value safe for a response header.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
