// Package observability centralizes the ambient stack — metrics, tracing,
// and structured logging — shared across the agent loop, tool dispatch, and
// credit ledger. None of it participates in a correctness invariant; it
// exists so a deployment can see what the system is doing.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - LLM provider request performance and token consumption
//   - Tool dispatch outcomes, latencies, and retries
//   - Credit ledger debits
//   - Session lifecycle and context compaction
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	defer metrics.LLMRequestDuration.WithLabelValues("anthropic", "claude-3-5-sonnet").Observe(time.Since(start).Seconds())
type Metrics struct {
	// LLMRequestDuration measures provider round-trip latency in seconds.
	// Labels: provider (anthropic|openai), model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts provider calls by outcome.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error|retryable)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool handler latency in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ToolRetries counts bounded-retry attempts spent per tool (spec §4.3
	// step 7's exponential backoff).
	// Labels: tool_name
	ToolRetries *prometheus.CounterVec

	// ActiveSessions is a gauge of sessions currently in Running.
	ActiveSessions prometheus.Gauge

	// SessionDuration measures wall-clock session lifetime in seconds.
	// Labels: terminal_status (completed|timeout|interrupted|error)
	SessionDuration *prometheus.HistogramVec

	// SessionsSweptTimeout counts sessions the background TimeoutSweeper
	// moved to Timeout, as opposed to an active Step/Status caller.
	SessionsSweptTimeout prometheus.Counter

	// ContextCompactions counts compaction runs by outcome.
	// Labels: status (ok|error)
	ContextCompactions *prometheus.CounterVec

	// ContextTokensEstimated observes the history+context token estimate at
	// the moment a compaction check ran, for tuning TokenThreshold.
	ContextTokensEstimated prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
//
// All metrics are automatically registered with Prometheus's default
// registry and available at the /metrics endpoint when scraped.
func NewMetrics() *Metrics {
	return &Metrics{
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_llm_request_duration_seconds",
				Help:    "Duration of LLM provider requests in seconds",
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
				Help: "Total number of tokens used by provider, model, and type",
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

		ToolRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_tool_retries_total",
				Help: "Total retry attempts spent on retryable tool failures",
			},
			[]string{"tool_name"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentcore_active_sessions",
				Help: "Current number of sessions in the Running status",
			},
		),

		SessionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_session_duration_seconds",
				Help:    "Wall-clock lifetime of a session from creation to its terminal status",
				Buckets: []float64{5, 30, 60, 300, 900, 3600, 14400},
			},
			[]string{"terminal_status"},
		),

		SessionsSweptTimeout: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "agentcore_sessions_swept_timeout_total",
				Help: "Sessions transitioned to Timeout by the background sweeper rather than an active caller",
			},
		),

		ContextCompactions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_context_compactions_total",
				Help: "Total context compaction runs by outcome",
			},
			[]string{"status"},
		),

		ContextTokensEstimated: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agentcore_context_tokens_estimated",
				Help:    "Estimated history+context tokens at the moment a compaction check ran",
				Buckets: []float64{1000, 4000, 8000, 16000, 32000, 64000, 128000},
			},
		),
	}
}

// RecordLLMRequest records metrics for an LLM provider request.
//
// Example:
//
//	start := time.Now()
//	// ... call the provider ...
//	metrics.RecordLLMRequest("anthropic", "claude-3-5-sonnet", "success", time.Since(start).Seconds(), 100, 500)
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolExecution records a completed tool dispatch, including any
// retries spent before it settled (spec §4.3 step 7).
//
// Example:
//
//	start := time.Now()
//	// ... dispatch the tool ...
//	metrics.RecordToolExecution("document", "success", time.Since(start).Seconds(), 1)
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64, retries int) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
	if retries > 0 {
		m.ToolRetries.WithLabelValues(toolName).Add(float64(retries))
	}
}

// SessionStarted increments the active-session gauge.
func (m *Metrics) SessionStarted() {
	m.ActiveSessions.Inc()
}

// SessionEnded decrements the active-session gauge and records the
// session's total lifetime under its terminal status.
//
// Example:
//
//	metrics.SessionEnded("completed", time.Since(session.CreatedAt).Seconds())
func (m *Metrics) SessionEnded(terminalStatus string, durationSeconds float64) {
	m.ActiveSessions.Dec()
	m.SessionDuration.WithLabelValues(terminalStatus).Observe(durationSeconds)
}

// RecordSweptTimeout records a session the background TimeoutSweeper moved
// to Timeout rather than an active Step/Status call.
func (m *Metrics) RecordSweptTimeout() {
	m.SessionsSweptTimeout.Inc()
}

// RecordCompaction records a context compaction attempt and the token
// estimate that triggered it (spec §4.5 step 3, §9).
func (m *Metrics) RecordCompaction(status string, estimatedTokens int) {
	m.ContextCompactions.WithLabelValues(status).Inc()
	m.ContextTokensEstimated.Observe(float64(estimatedTokens))
}
