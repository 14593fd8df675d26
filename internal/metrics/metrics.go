// Package metrics exposes Prometheus collectors for the trainwatch service.
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
	aggregationPassesTotal    *prometheus.CounterVec
	aggregationDurationSecond prometheus.Histogram
	aggregationAnomaliesTotal *prometheus.CounterVec
	runsTotal                 *prometheus.CounterVec
	activeRuns                prometheus.Gauge
	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDuration       *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		aggregationPassesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trainwatch_aggregation_passes_total",
				Help: "Averaging passes executed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		aggregationDurationSecond = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "trainwatch_aggregation_duration_seconds",
				Help:    "Histogram of averaging pass latencies.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		)

		aggregationAnomaliesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trainwatch_aggregation_anomalies_total",
				Help: "Recoverable anomalies observed while averaging, labeled by kind.",
			},
			[]string{"kind"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trainwatch_runs_total",
				Help: "Runs processed, labeled by final status.",
			},
			[]string{"status"},
		)

		activeRuns = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "trainwatch_active_runs",
				Help: "Number of runs currently marked running.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAggregation records one averaging pass.
func ObserveAggregation(outcome string, duration time.Duration) {
	aggregationPassesTotal.WithLabelValues(outcome).Inc()
	aggregationDurationSecond.Observe(duration.Seconds())
}

// ObserveAnomaly increments the anomaly counter for the given kind.
func ObserveAnomaly(kind string) {
	aggregationAnomaliesTotal.WithLabelValues(kind).Inc()
}

// ObserveRunCompleted increments the run counter for the given status.
func ObserveRunCompleted(status string) {
	runsTotal.WithLabelValues(status).Inc()
}

// IncActiveRuns increments the active runs gauge.
func IncActiveRuns() {
	activeRuns.Inc()
}

// DecActiveRuns decrements the active runs gauge.
func DecActiveRuns() {
	activeRuns.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
