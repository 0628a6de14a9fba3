package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Poll metrics
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertwatch_polls_total",
			Help: "Total number of poll cycles",
		},
		[]string{"poller", "result"}, // result: success, stale, fetch_error, status_error, decode_error
	)

	PollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alertwatch_poll_duration_seconds",
			Help:    "Time taken to fetch, decode and render one poll cycle",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"poller"},
	)

	PollsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "alertwatch_polls_in_flight",
			Help: "Number of poll requests currently awaiting a response",
		},
		[]string{"poller"},
	)

	AlertsRendered = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "alertwatch_alerts_rendered",
			Help: "Number of alerts in the last rendered snapshot",
		},
		[]string{"poller", "container_id"},
	)

	LastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "alertwatch_last_success_timestamp_seconds",
			Help: "Unix time of the last successful render",
		},
		[]string{"poller"},
	)

	StaleRendersDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertwatch_stale_renders_dropped_total",
			Help: "Responses discarded because a newer poll had already rendered",
		},
		[]string{"poller"},
	)

	SnapshotsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertwatch_snapshots_dropped_total",
			Help: "Snapshots not handed to the publisher because its queue was full",
		},
		[]string{"poller"},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertwatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alertwatch_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alertwatch_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "endpoint"},
	)

	// Worker metrics
	WorkerQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alertwatch_worker_queue_size",
			Help: "Current size of the snapshot queue",
		},
	)

	WorkerQueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alertwatch_worker_queue_capacity",
			Help: "Capacity of the snapshot queue",
		},
	)

	WorkerProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertwatch_worker_processed_total",
			Help: "Total number of snapshots published by workers",
		},
	)

	WorkerFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertwatch_worker_failed_total",
			Help: "Total number of snapshots failed in workers",
		},
	)

	WorkerBatchPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alertwatch_worker_batch_publish_duration_seconds",
			Help:    "Time taken to publish a batch of snapshots",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Kafka producer metrics
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertwatch_kafka_publish_total",
			Help: "Total number of snapshots published to Kafka",
		},
		[]string{"status"}, // status: success, failed
	)

	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alertwatch_kafka_publish_duration_seconds",
			Help:    "Time taken to publish to Kafka",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	KafkaPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertwatch_kafka_publish_retries_total",
			Help: "Total number of Kafka publish retries",
		},
	)

	KafkaBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertwatch_kafka_bytes_written_total",
			Help: "Total bytes written to Kafka",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertwatch_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
