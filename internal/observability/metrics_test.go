package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newTestMetrics builds a Metrics with the same collectors NewMetrics
// creates, but registered against a private registry so tests never collide
// with each other or with NewMetrics's use of the default registry.
func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	registry := prometheus.NewRegistry()

	m := &Metrics{
		MessageCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "test_messages_total", Help: "h"},
			[]string{"channel", "direction"},
		),
		LLMRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "test_llm_request_duration_seconds", Help: "h"},
			[]string{"provider", "model"},
		),
		LLMRequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "test_llm_requests_total", Help: "h"},
			[]string{"provider", "model", "status"},
		),
		LLMTokensUsed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "test_llm_tokens_total", Help: "h"},
			[]string{"provider", "model", "type"},
		),
		ToolExecutionCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "test_tool_executions_total", Help: "h"},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "test_tool_execution_duration_seconds", Help: "h"},
			[]string{"tool_name"},
		),
		ErrorCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "test_loop_errors_total", Help: "h"},
			[]string{"phase"},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "test_active_sessions", Help: "h"},
		),
		SessionsEvicted: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "test_sessions_evicted_total", Help: "h"},
		),
	}

	registry.MustRegister(
		m.MessageCounter, m.LLMRequestDuration, m.LLMRequestCounter, m.LLMTokensUsed,
		m.ToolExecutionCounter, m.ToolExecutionDuration, m.ErrorCounter, m.ActiveSessions, m.SessionsEvicted,
	)
	return m
}

func TestMessageReceivedAndSent(t *testing.T) {
	m := newTestMetrics(t)

	m.MessageReceived("websocket")
	m.MessageReceived("websocket")
	m.MessageSent("websocket")

	if got := testutil.ToFloat64(m.MessageCounter.WithLabelValues("websocket", "inbound")); got != 2 {
		t.Errorf("inbound count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.MessageCounter.WithLabelValues("websocket", "outbound")); got != 1 {
		t.Errorf("outbound count = %v, want 1", got)
	}
}

func TestRecordLLMRequest(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordLLMRequest("anthropic", "claude-3-opus", "success", 1.2, 120, 340)
	m.RecordLLMRequest("anthropic", "claude-3-opus", "error", 0.1, 0, 0)

	if got := testutil.ToFloat64(m.LLMRequestCounter.WithLabelValues("anthropic", "claude-3-opus", "success")); got != 1 {
		t.Errorf("success count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LLMRequestCounter.WithLabelValues("anthropic", "claude-3-opus", "error")); got != 1 {
		t.Errorf("error count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("anthropic", "claude-3-opus", "prompt")); got != 120 {
		t.Errorf("prompt tokens = %v, want 120", got)
	}
	if got := testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("anthropic", "claude-3-opus", "completion")); got != 340 {
		t.Errorf("completion tokens = %v, want 340", got)
	}
	// The error call passed zero tokens; it must not have added a zero sample.
	if got := testutil.CollectAndCount(m.LLMTokensUsed); got != 2 {
		t.Errorf("token series count = %v, want 2 (prompt, completion)", got)
	}
}

func TestRecordToolExecution(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordToolExecution("web_search", "success", 0.25)
	m.RecordToolExecution("web_search", "success", 0.4)
	m.RecordToolExecution("browser", "error", 1.1)

	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("web_search", "success")); got != 2 {
		t.Errorf("web_search success count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("browser", "error")); got != 1 {
		t.Errorf("browser error count = %v, want 1", got)
	}
}

func TestRecordLoopError(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordLoopError("stream")
	m.RecordLoopError("stream")
	m.RecordLoopError("execute_tools")

	if got := testutil.ToFloat64(m.ErrorCounter.WithLabelValues("stream")); got != 2 {
		t.Errorf("stream error count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ErrorCounter.WithLabelValues("execute_tools")); got != 1 {
		t.Errorf("execute_tools error count = %v, want 1", got)
	}
}

func TestSessionCreatedAndSwept(t *testing.T) {
	m := newTestMetrics(t)

	m.SessionCreated()
	m.SessionCreated()
	m.SessionCreated()

	if got := testutil.ToFloat64(m.ActiveSessions); got != 3 {
		t.Errorf("active sessions = %v, want 3", got)
	}

	m.SessionsSwept(2)

	if got := testutil.ToFloat64(m.ActiveSessions); got != 1 {
		t.Errorf("active sessions after sweep = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SessionsEvicted); got != 2 {
		t.Errorf("sessions evicted = %v, want 2", got)
	}

	// A no-op sweep (nothing evicted) must not touch either collector.
	m.SessionsSwept(0)
	if got := testutil.ToFloat64(m.ActiveSessions); got != 1 {
		t.Errorf("active sessions after no-op sweep = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SessionsEvicted); got != 2 {
		t.Errorf("sessions evicted after no-op sweep = %v, want 2", got)
	}
}

func TestConcurrentToolExecutionRecording(t *testing.T) {
	m := newTestMetrics(t)

	done := make(chan struct{})
	const iterations = 100

	go func() {
		for i := 0; i < iterations; i++ {
			m.RecordToolExecution("a", "success", 0.01)
			time.Sleep(time.Microsecond)
		}
		done <- struct{}{}
	}()
	go func() {
		for i := 0; i < iterations; i++ {
			m.RecordToolExecution("b", "success", 0.01)
			time.Sleep(time.Microsecond)
		}
		done <- struct{}{}
	}()
	<-done
	<-done

	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("a", "success")); got != iterations {
		t.Errorf("a count = %v, want %d", got, iterations)
	}
	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("b", "success")); got != iterations {
		t.Errorf("b count = %v, want %d", got, iterations)
	}
}
