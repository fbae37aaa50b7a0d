// Package metrics holds the Prometheus collectors of the CardDAV server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the server collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Reports         *prometheus.CounterVec
	ReportMatches   *prometheus.HistogramVec
	Validations     *prometheus.CounterVec
	Conversions     *prometheus.CounterVec
}

// New registers every collector plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cardq",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by method and status code",
			},
			[]string{"method", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "cardq",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		Reports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cardq",
				Subsystem: "report",
				Name:      "total",
				Help:      "REPORT requests by report type and outcome",
			},
			[]string{"report", "outcome"},
		),
		ReportMatches: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "cardq",
				Subsystem: "report",
				Name:      "responses",
				Help:      "Number of responses per REPORT",
				Buckets:   []float64{0, 1, 5, 10, 50, 100, 500, 1000},
			},
			[]string{"report"},
		),
		Validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cardq",
				Subsystem: "validation",
				Name:      "total",
				Help:      "Card writes by validation outcome (ok, repaired, warning, rejected)",
			},
			[]string{"outcome"},
		),
		Conversions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cardq",
				Subsystem: "conversion",
				Name:      "total",
				Help:      "Card serializations by negotiated dialect",
			},
			[]string{"dialect"},
		),
	}
	m.registry.MustRegister(
		m.Requests, m.RequestDuration, m.Reports, m.ReportMatches, m.Validations, m.Conversions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveReport records a REPORT outcome and, on success, its size.
func (m *Metrics) ObserveReport(report, outcome string, responses int) {
	if m == nil {
		return
	}
	m.Reports.WithLabelValues(report, outcome).Inc()
	if outcome == "ok" {
		m.ReportMatches.WithLabelValues(report).Observe(float64(responses))
	}
}

func (m *Metrics) ObserveValidation(outcome string) {
	if m == nil {
		return
	}
	m.Validations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveConversion(dialect string) {
	if m == nil {
		return
	}
	m.Conversions.WithLabelValues(dialect).Inc()
}
