package httpclient

import "net/http"

// HTTPDoer captures the subset of *http.Client the CardDAV client relies on.
// Tests inject fake implementations so they run without a server.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}
