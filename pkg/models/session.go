package models

import "time"

// SessionStatus is the lifecycle state of an agent session.
//
// Terminal statuses (Completed, Error, Interrupted, Timeout) are absorbing:
// once a session enters one, no further transitions occur. Running and
// AwaitingInput may alternate freely while the session is live.
type SessionStatus string

const (
	StatusPending       SessionStatus = "pending"
	StatusRunning       SessionStatus = "running"
	StatusAwaitingInput SessionStatus = "awaiting_input"
	StatusCompleted     SessionStatus = "completed"
	StatusError         SessionStatus = "error"
	StatusInterrupted   SessionStatus = "interrupted"
	StatusTimeout       SessionStatus = "timeout"
)

// Terminal reports whether status is absorbing: once reached, no further
// transitions are permitted.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusInterrupted, StatusTimeout:
		return true
	default:
		return false
	}
}

// SessionConfig holds the per-session tunables from spec §3.
type SessionConfig struct {
	// TimeLimit bounds total session wall-clock time. Default 1h.
	TimeLimit time.Duration `json:"time_limit"`

	// TokenThreshold is the prompt-token count above which compaction
	// is triggered before the next LLM call.
	TokenThreshold int `json:"token_threshold"`

	// PreserveExchanges is the tail of history the compactor must never
	// drop. Default 3.
	PreserveExchanges int `json:"preserve_exchanges"`

	// InitialInstruction optionally seeds the session's first user message.
	InitialInstruction string `json:"initial_instruction,omitempty"`

	// CompactionPolicy configures the context compactor.
	CompactionPolicy CompactionPolicy `json:"compaction_policy"`

	// EvaluationPolicy configures the context evaluator.
	EvaluationPolicy EvaluationPolicy `json:"evaluation_policy"`
}

// CompactionPolicy bounds how long a compaction run may take before the
// original history is retained unmodified.
type CompactionPolicy struct {
	Budget time.Duration `json:"budget"`
}

// EvaluationPolicy gates whether the context evaluator runs each turn.
type EvaluationPolicy struct {
	Enabled bool `json:"enabled"`
	TopK    int  `json:"top_k"`
}

// DefaultSessionConfig returns the spec §3 defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		TimeLimit:         time.Hour,
		TokenThreshold:    100_000,
		PreserveExchanges: 3,
		CompactionPolicy:  CompactionPolicy{Budget: 10 * time.Second},
		EvaluationPolicy:  EvaluationPolicy{Enabled: true, TopK: 3},
	}
}

// Sanitize fills zero-valued fields with spec defaults.
func (c SessionConfig) Sanitize() SessionConfig {
	d := DefaultSessionConfig()
	if c.TimeLimit <= 0 {
		c.TimeLimit = d.TimeLimit
	}
	if c.TokenThreshold < 0 {
		c.TokenThreshold = d.TokenThreshold
	}
	if c.PreserveExchanges <= 0 {
		c.PreserveExchanges = d.PreserveExchanges
	}
	if c.CompactionPolicy.Budget <= 0 {
		c.CompactionPolicy.Budget = d.CompactionPolicy.Budget
	}
	if c.EvaluationPolicy.TopK <= 0 {
		c.EvaluationPolicy.TopK = d.EvaluationPolicy.TopK
	}
	return c
}

// Session is a stateful agent run owned by a user and optionally attributed
// to an organization. History is append-only from the outside; only the
// compactor may rewrite a prefix.
type Session struct {
	ID           string          `json:"id"`
	Owner        string          `json:"owner"`
	Organization string          `json:"organization,omitempty"`
	Status       SessionStatus   `json:"status"`
	Progress     string          `json:"progress,omitempty"`
	Config       SessionConfig   `json:"config"`
	ResearchGoal string          `json:"research_goal,omitempty"`
	SystemMsg    string          `json:"system_message,omitempty"`
	History      []Conversation  `json:"history"`
	Context      []ContextEntry  `json:"context"`
	Messages     []Message       `json:"messages"`
	LastActivity time.Time       `json:"last_activity"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TimeRemaining returns the duration until the session's time limit expires,
// measured from now. Negative once expired.
func (s *Session) TimeRemaining(now time.Time) time.Duration {
	deadline := s.LastActivity.Add(s.Config.TimeLimit)
	if s.LastActivity.IsZero() {
		deadline = s.CreatedAt.Add(s.Config.TimeLimit)
	}
	return deadline.Sub(now)
}

// Expired reports whether the session has exceeded its configured time
// limit as of now.
func (s *Session) Expired(now time.Time) bool {
	return s.TimeRemaining(now) <= 0
}

// StatusSnapshot is the O(1) status projection returned by Manager.Status.
type StatusSnapshot struct {
	Status        SessionStatus `json:"status"`
	Progress      string        `json:"progress,omitempty"`
	TimeRemaining time.Duration `json:"time_remaining"`
}
