package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting gatewayd metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Message flow through the Channel adapters (inbound/outbound)
//   - LLM request performance, token usage, and failure rates
//   - Tool execution counts and latencies
//   - Errors by loop phase
//   - Active session counts for capacity planning
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.MessageReceived("wsref", "inbound")
//	defer metrics.RecordLLMRequest("openai", "gpt-4o", "success", elapsed, 120, 340)
type Metrics struct {
	// MessageCounter tracks messages by channel adapter ID and direction.
	// Labels: channel, direction (inbound|outbound)
	MessageCounter *prometheus.CounterVec

	// LLMRequestDuration measures one Provider.Complete call's latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests by provider, model, and status.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption by provider, model, and type.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations by tool name and status.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ErrorCounter tracks loop errors by phase (spec §4.6's loop phases).
	// Labels: phase
	ErrorCounter *prometheus.CounterVec

	// ActiveSessions is a gauge tracking sessions currently held by the
	// Session Manager.
	ActiveSessions prometheus.Gauge

	// SessionsEvicted counts sessions removed by the Sweeper's inactivity sweep.
	SessionsEvicted prometheus.Counter
}

// NewMetrics creates and registers every gatewayd metric with Prometheus's
// default registry. Call once at startup; the registered collectors are
// served from startMetricsServer's /metrics handler.
func NewMetrics() *Metrics {
	return &Metrics{
		MessageCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openvia_messages_total",
				Help: "Total number of messages processed by channel and direction",
			},
			[]string{"channel", "direction"},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "openvia_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openvia_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openvia_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openvia_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "openvia_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openvia_loop_errors_total",
				Help: "Total number of Agent Orchestrator errors by loop phase",
			},
			[]string{"phase"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "openvia_active_sessions",
				Help: "Current number of sessions held by the Session Manager",
			},
		),

		SessionsEvicted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "openvia_sessions_evicted_total",
				Help: "Total number of sessions removed by the inactivity sweep",
			},
		),
	}
}

// MessageReceived increments the message counter for an inbound message on
// the given channel.
func (m *Metrics) MessageReceived(channel string) {
	m.MessageCounter.WithLabelValues(channel, "inbound").Inc()
}

// MessageSent increments the message counter for an outbound reply.
func (m *Metrics) MessageSent(channel string) {
	m.MessageCounter.WithLabelValues(channel, "outbound").Inc()
}

// RecordLLMRequest records metrics for one Provider.Complete call.
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

// RecordToolExecution records metrics for one tool execution.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordLoopError increments the error counter for the loop phase a LoopError
// occurred in.
func (m *Metrics) RecordLoopError(phase string) {
	m.ErrorCounter.WithLabelValues(phase).Inc()
}

// SessionCreated increments the active-sessions gauge.
func (m *Metrics) SessionCreated() {
	m.ActiveSessions.Inc()
}

// SessionsSwept decrements the active-sessions gauge by n and records n
// evictions, mirroring one Sweeper.Sweep() pass.
func (m *Metrics) SessionsSwept(n int) {
	if n <= 0 {
		return
	}
	m.ActiveSessions.Sub(float64(n))
	m.SessionsEvicted.Add(float64(n))
}
