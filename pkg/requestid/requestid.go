package requestid

import (
	"strings"

	"github.com/google/uuid"
)

const DefaultHeaderKey = "X-Request-Id"

// ResolveHeaderKey returns the provided header key when non-empty,
// otherwise falls back to the default request id header key.
func ResolveHeaderKey(headerKey string) string {
	if v := strings.TrimSpace(headerKey); v != "" {
		return v
	}
	return DefaultHeaderKey
}

// Gen generates a random request id.
func Gen() string {
	return uuid.NewString()
}

// FromHeader returns the incoming id when it looks usable, otherwise a
// fresh one. Ids longer than 128 bytes or holding control characters are
// replaced.
func FromHeader(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || len(v) > 128 {
		return Gen()
	}
	for i := 0; i < len(v); i++ {
		if v[i] < 0x20 || v[i] == 0x7f {
			return Gen()
		}
	}
	return v
}
