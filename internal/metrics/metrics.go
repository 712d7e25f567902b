// Package metrics exposes Prometheus collectors for the harvester.
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
	harvesterItemsTotal           *prometheus.CounterVec
	harvesterTargetsTotal         *prometheus.CounterVec
	harvesterPagesTotal           *prometheus.CounterVec
	harvesterCatalogTotal         *prometheus.CounterVec
	harvesterFetchDuration        *prometheus.HistogramVec
	harvesterPaceDelaySeconds     *prometheus.HistogramVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec
	harvesterRunsInterruptedTotal prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvesterItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_items_total",
				Help: "Items processed, labeled by outcome (stored, skipped, failed).",
			},
			[]string{"outcome"},
		)

		harvesterTargetsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_targets_total",
				Help: "Targets finished, labeled by final state.",
			},
			[]string{"state"},
		)

		harvesterPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_pages_total",
				Help: "Listing pages fetched, labeled by site and result.",
			},
			[]string{"site", "result"},
		)

		harvesterCatalogTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_catalog_observations_total",
				Help: "Catalog observations, labeled by result (new, duplicate, error).",
			},
			[]string{"result"},
		)

		harvesterFetchDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by kind (listing, detail).",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		)

		harvesterPaceDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_pace_delay_seconds",
				Help:    "Histogram of politeness wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 3, 5, 10},
			},
			[]string{"domain"},
		)

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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		harvesterRunsInterruptedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_runs_interrupted_total",
				Help: "Runs stopped early by cancellation.",
			},
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

// ObserveItem counts one processed item.
func ObserveItem(outcome string) {
	harvesterItemsTotal.WithLabelValues(outcome).Inc()
}

// ObserveTarget counts one finished target.
func ObserveTarget(state string) {
	harvesterTargetsTotal.WithLabelValues(state).Inc()
}

// ObservePage counts one listing page fetch.
func ObservePage(site, result string) {
	harvesterPagesTotal.WithLabelValues(SanitizeSite(site), result).Inc()
}

// ObserveCatalog counts one catalog observation.
func ObserveCatalog(result string) {
	harvesterCatalogTotal.WithLabelValues(result).Inc()
}

// ObserveFetch records the latency of a page fetch.
func ObserveFetch(kind string, duration time.Duration) {
	harvesterFetchDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObservePaceDelay records the duration of a politeness wait.
func ObservePaceDelay(domain string, duration time.Duration) {
	harvesterPaceDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveInterrupted counts a run stopped by cancellation.
func ObserveInterrupted() {
	harvesterRunsInterruptedTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
