// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	inputsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckharvest_inputs_total",
			Help: "Total number of inputs processed, labeled by route kind and outcome status.",
		},
		[]string{"route", "status"},
	)

	fetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckharvest_fetch_total",
			Help: "Total number of fetch attempts, labeled by site and status.",
		},
		[]string{"site", "status"},
	)

	fetchRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckharvest_fetch_retries_total",
			Help: "Total number of fetch retries, labeled by site.",
		},
		[]string{"site"},
	)

	cardResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckharvest_card_resolutions_total",
			Help: "Total number of card name lookups, labeled by the stage that resolved them.",
		},
		[]string{"stage"},
	)

	decksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckharvest_decks_total",
			Help: "Total number of decks harvested, labeled by source site.",
		},
		[]string{"source"},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deckharvest_rate_limit_delay_seconds",
			Help:    "Histogram of per-host politeness wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckharvest_http_requests_total",
			Help: "Total number of status server requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deckharvest_http_request_duration_seconds",
			Help:    "Histogram of status server latencies, labeled by method and route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"method", "route"},
	)
)

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
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveInput counts one processed input.
func ObserveInput(route, status string) {
	inputsTotal.WithLabelValues(route, status).Inc()
}

// ObserveFetch counts one fetch attempt against the site of rawURL.
func ObserveFetch(rawURL, status string) {
	fetchTotal.WithLabelValues(SanitizeSite(rawURL), status).Inc()
}

// ObserveRetry counts one retry against the site of rawURL.
func ObserveRetry(rawURL string) {
	fetchRetriesTotal.WithLabelValues(SanitizeSite(rawURL)).Inc()
}

// ObserveResolution counts one card lookup by resolving stage.
func ObserveResolution(stage string) {
	cardResolutionsTotal.WithLabelValues(stage).Inc()
}

// ObserveDeck counts one harvested deck.
func ObserveDeck(source string) {
	decksTotal.WithLabelValues(source).Inc()
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the status server request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
