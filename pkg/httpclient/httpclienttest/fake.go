package httpclienttest

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/r9s-ai/cardq/pkg/httpclient"
)

// FakeDoer implements httpclient.HTTPDoer so callers can run tests without
// making outbound HTTP requests. Request bodies are captured before Do
// returns.
type FakeDoer struct {
	t         testing.TB
	mu        sync.Mutex
	responses []*http.Response
	requests  []*http.Request
	bodies    [][]byte
}

// NewFakeDoer returns a FakeDoer seeded with the responses that should be
// returned for each Do call.
func NewFakeDoer(t testing.TB, responses ...*http.Response) *FakeDoer {
	return &FakeDoer{
		t:         t,
		responses: append([]*http.Response(nil), responses...),
	}
}

// Do records the request and returns the next queued response.
func (f *FakeDoer) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		_ = req.Body.Close()
		body = b
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	f.bodies = append(f.bodies, body)
	if len(f.responses) == 0 {
		f.t.Fatalf("fake http client has no responses left for request %s %s", req.Method, req.URL.String())
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	resp.Request = req
	return resp, nil
}

// Requests returns the HTTP requests captured so far.
func (f *FakeDoer) Requests() []*http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*http.Request(nil), f.requests...)
}

// Body returns the body sent with the i-th request.
func (f *FakeDoer) Body(i int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return bytes.Clone(f.bodies[i])
}

// NewStringResponse builds a minimal http.Response with the provided status
// code and body string.
func NewStringResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

// NewXMLResponse is NewStringResponse with an XML content type.
func NewXMLResponse(status int, body string) *http.Response {
	resp := NewStringResponse(status, body)
	resp.Header.Set("Content-Type", "application/xml; charset=utf-8")
	return resp
}

var _ httpclient.HTTPDoer = (*FakeDoer)(nil)
