package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskbot_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "taskbot_http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "endpoint"},
	)

	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskbot_messages_total",
			Help: "Inbound chat messages by channel and payload kind",
		},
		[]string{"channel", "kind"},
	)

	DispatchBranches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskbot_dispatch_total",
			Help: "Dispatcher decisions by terminal branch",
		},
		[]string{"branch"},
	)

	LLMLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskbot_llm_latency_seconds",
			Help:    "LLM call latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		},
		[]string{"operation"},
	)

	LLMFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskbot_llm_failures_total",
			Help: "Failed LLM calls by operation",
		},
		[]string{"operation"},
	)

	ReplyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskbot_reply_failures_total",
			Help: "Replies the transport failed to deliver",
		},
		[]string{"channel"},
	)

	DigestsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskbot_digests_sent_total",
			Help: "Daily digests by outcome",
		},
		[]string{"status"},
	)

	DroppedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskbot_dropped_messages_total",
			Help: "Inbound messages dropped before dispatch",
		},
		[]string{"reason"},
	)

	InFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskbot_messages_in_flight",
			Help: "Messages currently being processed",
		},
	)
)
