// Package metrics exposes Prometheus collectors for the edge service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	edgeRequestsTotal          *prometheus.CounterVec
	upstreamFetchSeconds       *prometheus.HistogramVec
	handlerPanicsTotal         *prometheus.CounterVec
	renderBudgetRejections     *prometheus.CounterVec
	catalogLookupSeconds       *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "route"},
		)

		edgeRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edge_requests_total",
				Help: "Crawler requests seen by the edge boundary, labeled by handler and decision.",
			},
			[]string{"handler", "decision", "reason"},
		)

		upstreamFetchSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edge_upstream_fetch_duration_seconds",
				Help:    "Rendering upstream latency, labeled by engine and outcome.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"engine", "outcome"},
		)

		handlerPanicsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edge_handler_panics_total",
				Help: "Panics recovered from edge handlers.",
			},
			[]string{"handler"},
		)

		renderBudgetRejections = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edge_render_budget_rejections_total",
				Help: "Render requests skipped because the host budget was exhausted.",
			},
			[]string{"site"},
		)

		catalogLookupSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edge_catalog_lookup_duration_seconds",
				Help:    "Product lookup latency, labeled by driver and outcome.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 5},
			},
			[]string{"driver", "outcome"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveEdgeDecision counts a crawler request outcome.
func ObserveEdgeDecision(handler, decision, reason string) {
	Init()
	if handler == "" {
		handler = "none"
	}
	edgeRequestsTotal.WithLabelValues(handler, decision, reason).Inc()
}

// ObserveUpstreamFetch records one call to a rendering engine.
func ObserveUpstreamFetch(engine, outcome string, duration time.Duration) {
	Init()
	upstreamFetchSeconds.WithLabelValues(engine, outcome).Observe(duration.Seconds())
}

// ObserveHandlerPanic counts a recovered handler panic.
func ObserveHandlerPanic(handler string) {
	Init()
	handlerPanicsTotal.WithLabelValues(handler).Inc()
}

// ObserveBudgetRejection counts a render skipped by the host budget.
func ObserveBudgetRejection(site string) {
	Init()
	renderBudgetRejections.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveCatalogLookup records one product lookup.
func ObserveCatalogLookup(driver, outcome string, duration time.Duration) {
	Init()
	catalogLookupSeconds.WithLabelValues(driver, outcome).Observe(duration.Seconds())
}
