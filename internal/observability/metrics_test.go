package observability

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	// NewMetrics registers against the default registry, so it can only be
	// exercised once per test binary. Just verify it doesn't panic and
	// returns a populated struct.
	m := NewMetrics()
	if m.LLMRequestDuration == nil || m.ToolExecutionCounter == nil || m.ActiveSessions == nil {
		t.Fatal("expected NewMetrics to populate all collectors")
	}
}

// newIsolatedMetrics builds a Metrics struct registered against a fresh
// registry so tests can run independently of each other and of NewMetrics.
func newIsolatedMetrics(t *testing.T) *Metrics {
	t.Helper()
	registry := prometheus.NewRegistry()

	m := &Metrics{
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
		ToolRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "test_tool_retries_total", Help: "h"},
			[]string{"tool_name"},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "test_active_sessions", Help: "h"},
		),
		SessionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "test_session_duration_seconds", Help: "h"},
			[]string{"terminal_status"},
		),
		SessionsSweptTimeout: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "test_sessions_swept_timeout_total", Help: "h"},
		),
		ContextCompactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "test_context_compactions_total", Help: "h"},
			[]string{"status"},
		),
		ContextTokensEstimated: prometheus.NewHistogram(
			prometheus.HistogramOpts{Name: "test_context_tokens_estimated", Help: "h"},
		),
	}

	registry.MustRegister(
		m.LLMRequestDuration, m.LLMRequestCounter, m.LLMTokensUsed,
		m.ToolExecutionCounter, m.ToolExecutionDuration, m.ToolRetries,
		m.ActiveSessions, m.SessionDuration,
		m.SessionsSweptTimeout, m.ContextCompactions, m.ContextTokensEstimated,
	)
	return m
}

func TestRecordLLMRequest(t *testing.T) {
	m := newIsolatedMetrics(t)

	m.RecordLLMRequest("anthropic", "claude-3-5-sonnet", "success", 1.2, 100, 500)
	m.RecordLLMRequest("openai", "gpt-4", "error", 0.3, 20, 0)

	if count := testutil.CollectAndCount(m.LLMRequestCounter); count != 2 {
		t.Errorf("expected 2 label combinations, got %d", count)
	}

	expected := `
		# HELP test_llm_tokens_total h
		# TYPE test_llm_tokens_total counter
		test_llm_tokens_total{model="claude-3-5-sonnet",provider="anthropic",type="completion"} 500
		test_llm_tokens_total{model="claude-3-5-sonnet",provider="anthropic",type="prompt"} 100
		test_llm_tokens_total{model="gpt-4",provider="openai",type="prompt"} 20
	`
	if err := testutil.CollectAndCompare(m.LLMTokensUsed, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected token counter value: %v", err)
	}
}

func TestRecordToolExecution(t *testing.T) {
	m := newIsolatedMetrics(t)

	m.RecordToolExecution("document", "success", 0.05, 0)
	m.RecordToolExecution("generation", "error", 1.5, 2)

	expected := `
		# HELP test_tool_retries_total h
		# TYPE test_tool_retries_total counter
		test_tool_retries_total{tool_name="generation"} 2
	`
	if err := testutil.CollectAndCompare(m.ToolRetries, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected retry counter value: %v", err)
	}

	if count := testutil.CollectAndCount(m.ToolExecutionCounter); count != 2 {
		t.Errorf("expected 2 label combinations, got %d", count)
	}
}

func TestSessionLifecycle(t *testing.T) {
	m := newIsolatedMetrics(t)

	m.SessionStarted()
	m.SessionStarted()
	if got := testutil.ToFloat64(m.ActiveSessions); got != 2 {
		t.Errorf("expected active sessions gauge 2, got %v", got)
	}

	m.SessionEnded("completed", 120.5)
	if got := testutil.ToFloat64(m.ActiveSessions); got != 1 {
		t.Errorf("expected active sessions gauge 1, got %v", got)
	}

	if testutil.CollectAndCount(m.SessionDuration) < 1 {
		t.Error("expected session duration histogram to have observations")
	}
}

func TestRecordSweptTimeout(t *testing.T) {
	m := newIsolatedMetrics(t)

	m.RecordSweptTimeout()
	m.RecordSweptTimeout()

	if got := testutil.ToFloat64(m.SessionsSweptTimeout); got != 2 {
		t.Errorf("expected 2 swept timeouts, got %v", got)
	}
}

func TestRecordCompaction(t *testing.T) {
	m := newIsolatedMetrics(t)

	m.RecordCompaction("ok", 8000)
	m.RecordCompaction("error", 16000)

	expected := `
		# HELP test_context_compactions_total h
		# TYPE test_context_compactions_total counter
		test_context_compactions_total{status="error"} 1
		test_context_compactions_total{status="ok"} 1
	`
	if err := testutil.CollectAndCompare(m.ContextCompactions, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected compaction counter value: %v", err)
	}

	if testutil.CollectAndCount(m.ContextTokensEstimated) < 1 {
		t.Error("expected token-estimate histogram to have observations")
	}
}

func TestHistogramBuckets(t *testing.T) {
	registry := prometheus.NewRegistry()
	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_duration_seconds",
			Help:    "Test duration histogram",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0},
		},
		[]string{"operation"},
	)
	registry.MustRegister(histogram)

	durations := []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0}
	for _, duration := range durations {
		histogram.WithLabelValues("test").Observe(duration)
	}

	if testutil.CollectAndCount(histogram) < 1 {
		t.Error("expected histogram to have observations across buckets")
	}
}

func TestConcurrentMetrics(t *testing.T) {
	m := newIsolatedMetrics(t)

	done := make(chan bool)
	iterations := 100

	go func() {
		for i := 0; i < iterations; i++ {
			m.RecordToolExecution("a", "success", 0.01, 0)
			time.Sleep(time.Microsecond)
		}
		done <- true
	}()

	go func() {
		for i := 0; i < iterations; i++ {
			m.RecordToolExecution("b", "success", 0.01, 0)
			time.Sleep(time.Microsecond)
		}
		done <- true
	}()

	<-done
	<-done

	if testutil.CollectAndCount(m.ToolExecutionCounter) < 1 {
		t.Error("expected concurrent metric recording to work")
	}
}
