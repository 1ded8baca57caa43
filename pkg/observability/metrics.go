// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the chat engine.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatengine_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatengine_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method"},
	)

	// StreamingConnections tracks the number of active SSE streaming connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatengine_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// UpstreamStreamsTotal counts streams opened against the model backend.
	// A conversation turn with tool calls opens one stream per continuation.
	UpstreamStreamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatengine_upstream_streams_total",
			Help: "Upstream streams opened",
		},
		[]string{"model", "status"},
	)

	// UpstreamStreamLatency records full upstream stream duration,
	// from open until the terminal event.
	UpstreamStreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatengine_upstream_stream_seconds",
			Help:    "Upstream stream duration",
			Buckets: LLMBuckets,
		},
		[]string{"model"},
	)

	// UpstreamTokensTotal counts tokens reported by the backend by direction
	// (input/output).
	UpstreamTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatengine_upstream_tokens_total",
			Help: "Token count",
		},
		[]string{"model", "direction"},
	)

	// ContinuationDepth records how many upstream streams a single
	// conversation turn required before reaching a terminal state.
	ContinuationDepth = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatengine_continuation_depth",
			Help:    "Upstream streams per conversation turn",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		},
	)

	// AnnotationDownloadsTotal counts file annotation resolutions by source
	// kind and outcome.
	AnnotationDownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatengine_annotation_downloads_total",
			Help: "Annotation file downloads",
		},
		[]string{"kind", "status"},
	)

	// PersistenceFailuresTotal counts message persistence failures. Persistence
	// errors never fail the stream, so this is the only place they surface.
	PersistenceFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatengine_persistence_failures_total",
			Help: "Message store upsert failures",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		UpstreamStreamsTotal,
		UpstreamStreamLatency,
		UpstreamTokensTotal,
		ContinuationDepth,
		AnnotationDownloadsTotal,
		PersistenceFailuresTotal,
	)
}
