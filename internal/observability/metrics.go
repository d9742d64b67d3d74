package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// --- Sessions ---
	SessionsActive    prometheus.Gauge
	MutationsApplied  *prometheus.CounterVec
	MutationsRejected *prometheus.CounterVec
	RecomputeDuration prometheus.Histogram

	// --- Feed ---
	FeedRecordsNormalized *prometheus.CounterVec
	FeedRecordsRejected   *prometheus.CounterVec
	FetchDuration         *prometheus.HistogramVec
	FetchErrors           *prometheus.CounterVec

	// --- Archive ---
	ArchiveBatches prometheus.Counter
	ArchiveErrors  prometheus.Counter

	// --- HTTP API ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	recomputeBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005,
	}

	return &Metrics{
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "roi_sessions_active",
			Help: "Currently registered sessions",
		}),

		MutationsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roi_mutations_applied_total",
			Help: "Session mutations successfully applied",
		}, []string{"mutation"}),

		MutationsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roi_mutations_rejected_total",
			Help: "Session mutations rejected by validation",
		}, []string{"mutation", "reason"}),

		RecomputeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "roi_recompute_duration_seconds",
			Help:    "Time for a full derivation pass after a mutation",
			Buckets: recomputeBuckets,
		}),

		FeedRecordsNormalized: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roi_feed_records_normalized_total",
			Help: "Raw feed records normalized into typed records",
		}, []string{"record_type"}),

		FeedRecordsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roi_feed_records_rejected_total",
			Help: "Raw feed records rejected during normalization",
		}, []string{"record_type", "reason"}),

		FetchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roi_fetch_duration_seconds",
			Help:    "Venue fetch latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		}, []string{"venue"}),

		FetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roi_fetch_errors_total",
			Help: "Venue fetch failures",
		}, []string{"venue"}),

		ArchiveBatches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roi_archive_batches_total",
			Help: "Fetched batches archived to Postgres",
		}),

		ArchiveErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roi_archive_errors_total",
			Help: "Archive write failures",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roi_http_requests_total",
			Help: "HTTP API requests",
		}, []string{"route", "method", "status"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roi_http_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"route"}),
	}
}
