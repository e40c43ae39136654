// Package metrics exposes Prometheus collectors for the archiver.
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

// Sync day results.
const (
	DaySynced  = "synced"
	DaySkipped = "skipped"
	DayFailed  = "failed"
)

var (
	syncDaysTotal              *prometheus.CounterVec
	programsInsertedTotal      prometheus.Counter
	programsRejectedTotal      prometheus.Counter
	programsPrunedTotal        prometheus.Counter
	syncDurationSeconds        prometheus.Histogram
	archivesTotal              *prometheus.CounterVec
	activeArchivers            prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		syncDaysTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_sync_days_total",
				Help: "Listing days processed by the synchronizer, labeled by result.",
			},
			[]string{"result"},
		)

		programsInsertedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "archiver_programs_inserted_total",
				Help: "Programs inserted into the catalog.",
			},
		)

		programsRejectedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "archiver_programs_rejected_total",
				Help: "Listing entries dropped by validation.",
			},
		)

		programsPrunedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "archiver_programs_pruned_total",
				Help: "Programs removed by retention pruning.",
			},
		)

		syncDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "archiver_sync_duration_seconds",
				Help:    "Duration of a full catalog synchronization.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		)

		archivesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_archives_total",
				Help: "Archive attempts, labeled by final status.",
			},
			[]string{"status"},
		)

		activeArchivers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "archiver_active_archivers",
				Help: "Number of workers currently capturing a program.",
			},
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

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archiver_rate_limit_delay_seconds",
				Help:    "Time upstream requests waited for the rate limiter, labeled by host.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSyncDay counts one processed listing day.
func ObserveSyncDay(result string, inserted, rejected int) {
	syncDaysTotal.WithLabelValues(result).Inc()
	if inserted > 0 {
		programsInsertedTotal.Add(float64(inserted))
	}
	if rejected > 0 {
		programsRejectedTotal.Add(float64(rejected))
	}
}

// ObserveSync records the duration of a full synchronization.
func ObserveSync(duration time.Duration) {
	syncDurationSeconds.Observe(duration.Seconds())
}

// ObservePrune adds deleted program rows.
func ObservePrune(deleted int64) {
	if deleted > 0 {
		programsPrunedTotal.Add(float64(deleted))
	}
}

// ObserveArchive counts an archive attempt ending in status.
func ObserveArchive(status string) {
	archivesTotal.WithLabelValues(status).Inc()
}

// IncActiveArchivers increments the active archivers gauge.
func IncActiveArchivers() {
	activeArchivers.Inc()
}

// DecActiveArchivers decrements the active archivers gauge.
func DecActiveArchivers() {
	activeArchivers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records how long a request to host was held back.
func ObserveRateLimitDelay(host string, d time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}
