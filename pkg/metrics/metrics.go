// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration on the backend.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests on the backend.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// LLMRequestDuration tracks assistant completion latency.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM completion duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// TitlesGenerated tracks automatic conversation titles.
	TitlesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_titles_generated_total",
			Help: "Conversation titles generated from the first user message",
		},
		[]string{"source"},
	)

	// ConversationsTotal tracks total conversations created.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
		[]string{"client_id"},
	)

	// MessagesTotal tracks total messages stored.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages stored",
		},
		[]string{"role"},
	)

	// AttachmentsTotal tracks uploaded files.
	AttachmentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attachments_total",
			Help: "Total files uploaded with messages",
		},
	)

	// StoreRequestDuration tracks client-side store call latency.
	StoreRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quorra_store_request_duration_seconds",
			Help:    "Conversation store call duration as seen by the client",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"op", "outcome"},
	)

	// SendsTotal tracks client sends by kind and outcome.
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quorra_sends_total",
			Help: "Messages sent by the client",
		},
		[]string{"kind", "outcome"},
	)

	// StaleResponsesTotal tracks completions dropped because the selection changed.
	StaleResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quorra_stale_responses_total",
			Help: "Store responses dropped because they targeted a conversation no longer selected",
		},
		[]string{"op"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLM records metrics for one assistant completion.
func RecordLLM(provider, model, status string, duration float64, tokensIn, tokensOut int) {
	LLMRequestDuration.WithLabelValues(provider, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordStoreCall records a client-side store call.
func RecordStoreCall(op string, err error, duration float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	StoreRequestDuration.WithLabelValues(op, outcome).Observe(duration)
}

// RecordSend records the outcome of a client send.
func RecordSend(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	SendsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordStale records a dropped stale response.
func RecordStale(op string) {
	StaleResponsesTotal.WithLabelValues(op).Inc()
}
