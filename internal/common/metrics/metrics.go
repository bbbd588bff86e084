// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhooksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_received_total",
			Help: "Total number of webhook deliveries received by channel",
		},
		[]string{"channel"},
	)

	WebhooksRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_rejected_total",
			Help: "Total number of webhook deliveries rejected by channel and reason",
		},
		[]string{"channel", "reason"},
	)

	PipelineStageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_failures_total",
			Help: "Non-fatal failures per pipeline stage",
		},
		[]string{"stage"},
	)

	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pipeline_duration_seconds",
			Help: "Duration of one pipeline execution in seconds",
		},
		[]string{"channel"},
	)

	LLMFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_fallbacks_total",
			Help: "Times a deterministic fallback replaced an LLM result",
		},
		[]string{"operation"},
	)

	EngineCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_calls_total",
			Help: "Workflow engine API calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
)
