package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the gauges/counters/histograms the gateway exposes on GET
// /metrics.
var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jetgate_http_requests_total",
			Help: "Total number of HTTP requests handled, by route and status.",
		},
		[]string{"route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jetgate_http_request_duration_seconds",
			Help:    "HTTP request handling duration in seconds, by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	EphemeralConsumersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jetgate_ephemeral_consumers_active",
			Help: "Number of ephemeral consumers currently open for fetches and websocket streams.",
		},
	)

	EphemeralConsumerCleanupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jetgate_ephemeral_consumer_cleanup_failures_total",
			Help: "Total number of ephemeral consumer deletions that failed and were left to the broker's reaper.",
		},
	)

	StreamFramesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jetgate_stream_frames_sent_total",
			Help: "Total number of websocket frames written, by frame kind.",
		},
		[]string{"kind"},
	)

	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jetgate_publish_total",
			Help: "Total number of publish requests, by outcome.",
		},
		[]string{"outcome"},
	)
)
