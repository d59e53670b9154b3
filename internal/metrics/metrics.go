// Package metrics defines the Prometheus collectors exported by remuxd.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job metrics
var (
	JobsSubmittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "remux_jobs_submitted_total",
			Help: "Total number of transcode jobs accepted",
		},
	)

	JobsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remux_jobs_completed_total",
			Help: "Total number of finished jobs by terminal status",
		},
		[]string{"status"},
	)

	FormatsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remux_formats_processed_total",
			Help: "Total number of per-format results by outcome",
		},
		[]string{"outcome"},
	)

	EncodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remux_encode_duration_seconds",
			Help:    "Codec engine invocation duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"engine"},
	)
)

// Cache metrics
var (
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remux_cache_requests_total",
			Help: "Cache lookups by population and result",
		},
		[]string{"kind", "result"},
	)

	CacheUsageBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "remux_cache_usage_bytes",
			Help: "Indexed bytes per cache population",
		},
		[]string{"kind"},
	)

	CacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remux_cache_evictions_total",
			Help: "Evicted cache entries per population",
		},
		[]string{"kind"},
	)
)

// Storage metrics
var (
	StorageTransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remux_storage_transfers_total",
			Help: "Storage backend transfers by backend, direction, and status",
		},
		[]string{"backend", "direction", "status"},
	)
)
