// Package metrics exposes Prometheus collectors for fetch traffic and the
// read-only API.
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
	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archiver_fetches_total",
			Help: "Upstream fetches, labeled by kind and status class.",
		},
		[]string{"kind", "status_class"},
	)

	fetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archiver_fetch_bytes_total",
			Help: "Bytes downloaded, labeled by kind.",
		},
		[]string{"kind"},
	)

	fetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archiver_fetch_duration_seconds",
			Help:    "Upstream fetch latency, labeled by kind.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)

	rateLimitHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "archiver_rate_limit_hits_total",
			Help: "Upstream 429 responses that triggered a cooldown.",
		},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archiver_retries_total",
			Help: "Retries scheduled, labeled by scope (request or item).",
		},
		[]string{"scope"},
	)

	inflightItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "archiver_inflight_items",
			Help: "Work items currently owned by a worker.",
		},
	)

	politenessDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archiver_politeness_delay_seconds",
			Help:    "Time spent waiting on the per-host request limiter.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
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
)

// SanitizeHost extracts a lowercase hostname, or "unknown" for invalid input.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// StatusClass groups a status code as 2xx/3xx/4xx/5xx, or "error" when no
// response was received.
func StatusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "error"
	}
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one upstream fetch of the given kind (index, page, asset).
func ObserveFetch(kind string, code int, bytesFetched int, duration time.Duration) {
	fetchesTotal.WithLabelValues(kind, StatusClass(code)).Inc()
	fetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(kind).Add(float64(bytesFetched))
	}
}

// ObserveRateLimit counts a 429 cooldown.
func ObserveRateLimit() {
	rateLimitHitsTotal.Inc()
}

// ObserveRetry counts a scheduled retry.
func ObserveRetry(scope string) {
	retriesTotal.WithLabelValues(scope).Inc()
}

// IncInflight increments the in-flight items gauge.
func IncInflight() {
	inflightItems.Inc()
}

// DecInflight decrements the in-flight items gauge.
func DecInflight() {
	inflightItems.Dec()
}

// ObservePolitenessDelay records time spent in the request limiter.
func ObservePolitenessDelay(host string, duration time.Duration) {
	politenessDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
