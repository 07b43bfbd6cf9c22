// Package metrics exposes Prometheus collectors for the indexer service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlRunsTotal             *prometheus.CounterVec
	documentsTotal             *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	chatForwardDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Document outcome labels recorded per crawl item.
const (
	DocIndexed = "indexed"
	DocStub    = "stub"
	DocSkipped = "skipped"
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_crawl_runs_total",
				Help: "Total number of crawl runs, labeled by outcome.",
			},
			[]string{"status"},
		)

		documentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_documents_total",
				Help: "Total number of crawl items processed, labeled by result.",
			},
			[]string{"result"},
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

		chatForwardDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chat_forward_duration_seconds",
				Help:    "Histogram of worker chat call latencies, labeled by outcome.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"status"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCrawlRun increments the crawl run counter for the given outcome.
func ObserveCrawlRun(status string) {
	crawlRunsTotal.WithLabelValues(status).Inc()
}

// ObserveDocument increments the per-item counter for the given result.
func ObserveDocument(result string) {
	documentsTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveChatForward records the duration of one worker chat call.
func ObserveChatForward(status string, duration time.Duration) {
	chatForwardDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}
