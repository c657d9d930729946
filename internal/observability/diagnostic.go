// Package observability provides diagnostic event types and emission.
package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// DiagnosticSessionState mirrors a session's coarse lifecycle state for the
// live diagnostic feed (distinct from sessionmgr's own Status, which is the
// source of truth — this is a point-in-time snapshot for observers).
type DiagnosticSessionState string

const (
	SessionStateIdle       DiagnosticSessionState = "idle"
	SessionStateRunning    DiagnosticSessionState = "running"
	SessionStateWaiting    DiagnosticSessionState = "waiting_tool"
	SessionStateTerminated DiagnosticSessionState = "terminated"
)

// DiagnosticEventType identifies the type of diagnostic event.
type DiagnosticEventType string

const (
	EventTypeModelUsage          DiagnosticEventType = "model.usage"
	EventTypeToolDispatchStart   DiagnosticEventType = "tool.dispatch.start"
	EventTypeToolDispatchEnd     DiagnosticEventType = "tool.dispatch.end"
	EventTypeLedgerDebit         DiagnosticEventType = "ledger.debit"
	EventTypeSessionState        DiagnosticEventType = "session.state"
	EventTypeSessionStuck        DiagnosticEventType = "session.stuck"
	EventTypeStepAttempt         DiagnosticEventType = "step.attempt"
	EventTypeDiagnosticHeartbeat DiagnosticEventType = "diagnostic.heartbeat"
)

// DiagnosticEvent is the base event structure.
type DiagnosticEvent struct {
	Type DiagnosticEventType `json:"type"`
	Seq  int64               `json:"seq"`
	Ts   int64               `json:"ts"`
}

// ModelUsageEvent tracks token usage and cost for an LLM provider request
// made during a turn (spec §4.5 step 4, §9).
type ModelUsageEvent struct {
	DiagnosticEvent
	SessionID  string          `json:"session_id,omitempty"`
	Provider   string          `json:"provider,omitempty"`
	Model      string          `json:"model,omitempty"`
	Usage      UsageDetails    `json:"usage"`
	Context    *ContextDetails `json:"context,omitempty"`
	DurationMs int64           `json:"duration_ms,omitempty"`
}

// UsageDetails contains token usage breakdown.
type UsageDetails struct {
	PromptTokens     int64 `json:"prompt_tokens,omitempty"`
	CompletionTokens int64 `json:"completion_tokens,omitempty"`
	Total            int64 `json:"total,omitempty"`
}

// ContextDetails contains context window information at the moment a
// request was made, for tuning TokenThreshold (spec §9).
type ContextDetails struct {
	EstimatedTokens int64 `json:"estimated_tokens,omitempty"`
	Compacted       bool  `json:"compacted,omitempty"`
}

// ToolDispatchStartEvent tracks the start of a tool dispatch (spec §4.3).
type ToolDispatchStartEvent struct {
	DiagnosticEvent
	SessionID string `json:"session_id,omitempty"`
	ToolName  string `json:"tool_name"`
	Cost      int    `json:"cost"`
}

// ToolDispatchEndEvent tracks the outcome of a tool dispatch, including any
// retries spent (spec §4.3 step 7).
type ToolDispatchEndEvent struct {
	DiagnosticEvent
	SessionID  string `json:"session_id,omitempty"`
	ToolName   string `json:"tool_name"`
	Outcome    string `json:"outcome"` // "success", "error", "admission_denied"
	Retries    int    `json:"retries,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

// LedgerDebitEvent tracks a credit ledger debit attempt (spec §4.7).
type LedgerDebitEvent struct {
	DiagnosticEvent
	SessionID string  `json:"session_id,omitempty"`
	Subject   string  `json:"subject"`
	Source    string  `json:"source"` // "llm_turn" or "tool"
	Amount    float64 `json:"amount"`
	Outcome   string  `json:"outcome"` // "ok", "insufficient_credits", "error"
}

// SessionStateEvent tracks session state transitions.
type SessionStateEvent struct {
	DiagnosticEvent
	SessionID string                 `json:"session_id,omitempty"`
	PrevState DiagnosticSessionState `json:"prev_state,omitempty"`
	State     DiagnosticSessionState `json:"state"`
	Reason    string                 `json:"reason,omitempty"`
}

// SessionStuckEvent tracks sessions the TimeoutSweeper is about to reclaim
// (spec §4.1).
type SessionStuckEvent struct {
	DiagnosticEvent
	SessionID string                 `json:"session_id,omitempty"`
	State     DiagnosticSessionState `json:"state"`
	AgeMs     int64                  `json:"age_ms"`
}

// StepAttemptEvent tracks one Loop.Step iteration (spec §4.5).
type StepAttemptEvent struct {
	DiagnosticEvent
	SessionID string `json:"session_id,omitempty"`
	Attempt   int    `json:"attempt"`
}

// DiagnosticHeartbeatEvent summarizes recent activity for a live dashboard.
type DiagnosticHeartbeatEvent struct {
	DiagnosticEvent
	ActiveSessions int   `json:"active_sessions"`
	StepsTotal     int64 `json:"steps_total"`
	ToolCallsTotal int64 `json:"tool_calls_total"`
}

// DiagnosticEventPayload is a union type for all diagnostic events.
type DiagnosticEventPayload interface {
	EventType() DiagnosticEventType
	Sequence() int64
	Timestamp() int64
}

// Implement DiagnosticEventPayload for all event types
func (e *DiagnosticEvent) EventType() DiagnosticEventType { return e.Type }
func (e *DiagnosticEvent) Sequence() int64                { return e.Seq }
func (e *DiagnosticEvent) Timestamp() int64               { return e.Ts }

// DiagnosticListener receives diagnostic events.
type DiagnosticListener func(event DiagnosticEventPayload)

// DiagnosticEmitter manages diagnostic event emission for a live feed (e.g.
// an operator dashboard tailing one deployment). This is intentionally
// separate from the durable run timeline in events.go: a diagnostic
// listener sees only events emitted while it's subscribed, while an
// EventStore retains history queryable by run or session ID after the fact.
type DiagnosticEmitter struct {
	mu        sync.RWMutex
	seq       int64
	enabled   bool
	listeners []DiagnosticListener
}

var globalEmitter = &DiagnosticEmitter{}

// SetDiagnosticsEnabled enables or disables diagnostic events.
func SetDiagnosticsEnabled(enabled bool) {
	globalEmitter.mu.Lock()
	defer globalEmitter.mu.Unlock()
	globalEmitter.enabled = enabled
}

// IsDiagnosticsEnabled returns whether diagnostics are enabled.
func IsDiagnosticsEnabled() bool {
	globalEmitter.mu.RLock()
	defer globalEmitter.mu.RUnlock()
	return globalEmitter.enabled
}

// OnDiagnosticEvent registers a listener for diagnostic events.
func OnDiagnosticEvent(listener DiagnosticListener) func() {
	globalEmitter.mu.Lock()
	defer globalEmitter.mu.Unlock()
	globalEmitter.listeners = append(globalEmitter.listeners, listener)

	// Return unsubscribe function
	return func() {
		globalEmitter.mu.Lock()
		defer globalEmitter.mu.Unlock()
		for i, l := range globalEmitter.listeners {
			// Compare function pointers (this is a simplification)
			if &l == &listener {
				globalEmitter.listeners = append(globalEmitter.listeners[:i], globalEmitter.listeners[i+1:]...)
				break
			}
		}
	}
}

// nextSeq returns the next sequence number.
func nextSeq() int64 {
	return atomic.AddInt64(&globalEmitter.seq, 1)
}

// emit sends an event to all listeners.
func emit(event DiagnosticEventPayload) {
	globalEmitter.mu.RLock()
	if !globalEmitter.enabled {
		globalEmitter.mu.RUnlock()
		return
	}
	listeners := make([]DiagnosticListener, len(globalEmitter.listeners))
	copy(listeners, globalEmitter.listeners)
	globalEmitter.mu.RUnlock()

	for _, listener := range listeners {
		func() {
			defer func() {
				if recovered := recover(); recovered != nil {
					_ = recovered
				}
			}() // Ignore listener panics
			listener(event)
		}()
	}
}

// EmitModelUsage emits a model usage event.
func EmitModelUsage(e *ModelUsageEvent) {
	e.Type = EventTypeModelUsage
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitToolDispatchStart emits a tool dispatch start event.
func EmitToolDispatchStart(e *ToolDispatchStartEvent) {
	e.Type = EventTypeToolDispatchStart
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitToolDispatchEnd emits a tool dispatch end event.
func EmitToolDispatchEnd(e *ToolDispatchEndEvent) {
	e.Type = EventTypeToolDispatchEnd
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitLedgerDebit emits a ledger debit event.
func EmitLedgerDebit(e *LedgerDebitEvent) {
	e.Type = EventTypeLedgerDebit
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitSessionState emits a session state event.
func EmitSessionState(e *SessionStateEvent) {
	e.Type = EventTypeSessionState
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitSessionStuck emits a session stuck event.
func EmitSessionStuck(e *SessionStuckEvent) {
	e.Type = EventTypeSessionStuck
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitStepAttempt emits a step attempt event.
func EmitStepAttempt(e *StepAttemptEvent) {
	e.Type = EventTypeStepAttempt
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitDiagnosticHeartbeat emits a diagnostic heartbeat event.
func EmitDiagnosticHeartbeat(e *DiagnosticHeartbeatEvent) {
	e.Type = EventTypeDiagnosticHeartbeat
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// ResetDiagnosticsForTest resets diagnostic state for testing.
func ResetDiagnosticsForTest() {
	globalEmitter.mu.Lock()
	defer globalEmitter.mu.Unlock()
	atomic.StoreInt64(&globalEmitter.seq, 0)
	globalEmitter.listeners = nil
}
