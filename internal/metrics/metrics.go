package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dispatch metrics
	MessagesDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botkit_messages_dispatched_total",
			Help: "Inbound messages by dispatch outcome",
		},
		[]string{"scope", "outcome"}, // outcome: "conversation", "handler", "dropped"
	)

	// Conversation metrics
	ConversationsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botkit_conversations_started_total",
			Help: "Conversations started",
		},
		[]string{"kind"}, // "channel" or "private"
	)

	ConversationsEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botkit_conversations_ended_total",
			Help: "Conversations ended by terminal status",
		},
		[]string{"status"}, // "completed", "stopped", "timed_out"
	)

	PromptsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "botkit_prompts_sent_total",
			Help: "Question prompts sent to recipients",
		},
	)

	RepliesUnmatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "botkit_replies_unmatched_total",
			Help: "Replies that matched no branch and repeated the question",
		},
	)

	// Ops HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botkit_http_requests_total",
			Help: "Total HTTP requests on the ops listener",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "botkit_http_request_duration_seconds",
			Help:    "Ops HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "botkit_store_latency_seconds",
			Help:    "Slot store operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"backend", "op"},
	)
)
