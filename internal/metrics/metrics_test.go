package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New()
	m.ObserveRequest("REPORT", 207, 10*time.Millisecond)
	m.ObserveRequest("REPORT", 207, 20*time.Millisecond)
	m.ObserveReport("addressbook-query", "ok", 3)
	m.ObserveReport("addressbook-query", "error", 0)
	m.ObserveValidation("repaired")
	m.ObserveConversion("vcard4")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("REPORT", "207")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reports.WithLabelValues("addressbook-query", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Validations.WithLabelValues("repaired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Conversions.WithLabelValues("vcard4")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ReportMatches))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("GET", 200, time.Millisecond)
	m.ObserveReport("addressbook-query", "ok", 1)
	m.ObserveValidation("ok")
	m.ObserveConversion("jcard")
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveValidation("rejected")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `cardq_validation_total{outcome="rejected"} 1`), body)
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
