package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a Prometheus registry wrapper for the signals a single-agent
// session produces: LLM request latency/tokens, tool execution outcomes,
// backoff/retry attempts, and classified errors.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	defer metrics.RecordLLMRequest("anthropic", "claude-sonnet-4", "success", elapsed, in, out)
type Metrics struct {
	// LLMRequestDuration measures LLM completion latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests by provider, model, and outcome.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption by provider, model, and kind.
	// Labels: provider, model, type (input|output)
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations by name and outcome.
	// Labels: tool_name, status (success|error|timed_out)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ErrorCounter tracks classified errors by dispatch phase and action.
	// Labels: phase (stream|tool|turn), action (reflect|backoff|abort)
	ErrorCounter *prometheus.CounterVec

	// RunAttempts counts turn attempts by outcome, incremented once per
	// backoff/retry cycle around a turn.
	// Labels: status (success|retry|failed)
	RunAttempts *prometheus.CounterVec

	// ContextWindowUsed tracks per-request token usage against the model's
	// context window, for spotting sessions approaching the limit.
	// Labels: provider, model
	ContextWindowUsed *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus collectors with the
// default registry. Call once at startup; the returned Metrics is safe
// for concurrent use by the dispatcher's event sinks.
func NewMetrics() *Metrics {
	return &Metrics{
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_llm_request_duration_seconds",
				Help:    "Duration of LLM completion requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_llm_tokens_total",
				Help: "Total number of tokens consumed by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_errors_total",
				Help: "Total number of classified dispatch errors by phase and action",
			},
			[]string{"phase", "action"},
		),

		RunAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_turn_attempts_total",
				Help: "Total number of turn attempts by outcome",
			},
			[]string{"status"},
		),

		ContextWindowUsed: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_context_window_tokens",
				Help:    "Total tokens (input+output) used per request",
				Buckets: []float64{1000, 4000, 8000, 16000, 32000, 64000, 128000},
			},
			[]string{"provider", "model"},
		),
	}
}

// RecordLLMRequest records metrics for a single completed (or failed) LLM
// request.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, inputTokens, outputTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if inputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
	if inputTokens > 0 || outputTokens > 0 {
		m.ContextWindowUsed.WithLabelValues(provider, model).Observe(float64(inputTokens + outputTokens))
	}
}

// RecordToolExecution records metrics for a single tool invocation.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordError increments the error counter for a classified dispatch phase
// and the backoff action it resulted in.
func (m *Metrics) RecordError(phase, action string) {
	m.ErrorCounter.WithLabelValues(phase, action).Inc()
}

// RecordRunAttempt records a turn attempt outcome (success, retry, or
// failed) for retry-rate dashboards.
func (m *Metrics) RecordRunAttempt(status string) {
	m.RunAttempts.WithLabelValues(status).Inc()
}
