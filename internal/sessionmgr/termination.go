package sessionmgr

import (
	"strings"
)

// DefaultCompletionMarker is the vendor-agnostic sentinel an assistant
// turn may emit to signal it considers the task done (spec §4.8). It is
// configurable per deployment via TerminationPolicy.CompletionMarker.
const DefaultCompletionMarker = "TASK_COMPLETE"

// DefaultMaxTurnsWithoutProgress bounds how many assistant turns may pass
// without a user message before the loop force-completes (spec §4.5 step 6,
// §4.8).
const DefaultMaxTurnsWithoutProgress = 8

// TerminationPolicy configures the termination predicate.
type TerminationPolicy struct {
	CompletionMarker       string
	MaxTurnsWithoutProgress int
}

// DefaultTerminationPolicy returns the spec's stated defaults.
func DefaultTerminationPolicy() TerminationPolicy {
	return TerminationPolicy{
		CompletionMarker:        DefaultCompletionMarker,
		MaxTurnsWithoutProgress: DefaultMaxTurnsWithoutProgress,
	}
}

// TerminationState is the running tally ShouldTerminate needs that a bare
// history scan can't reconstruct cheaply: consecutive high-relevance
// evaluator scores. The driver threads this between turns; it is not
// persisted as session state (spec §9: evaluator is a pure function, the
// driver owns state).
type TerminationState struct {
	ConsecutiveHighRelevance int
}

// Observe folds one turn's evaluator result into state, returning the
// updated state. relevanceScore ≥ 0.95 increments the streak; anything else
// (or a turn with tool calls) resets it, per spec §4.8's "twice
// consecutively with no tool calls in between".
func (s TerminationState) Observe(relevanceScore float64, hadToolCalls bool) TerminationState {
	if !hadToolCalls && relevanceScore >= 0.95 {
		s.ConsecutiveHighRelevance++
	} else {
		s.ConsecutiveHighRelevance = 0
	}
	return s
}

// ShouldTerminate implements the spec §4.8 disjunction:
//   - the latest assistant text contains the completion marker and no tool
//     calls are outstanding,
//   - turnsSinceLastUserMessage exceeds policy.MaxTurnsWithoutProgress,
//   - the evaluator has returned relevance_score >= 0.95 twice consecutively
//     with no tool calls in between (state.ConsecutiveHighRelevance >= 2),
//   - interrupted is true (the caller invoked interrupt).
//
// It is a pure function of its arguments: no session or global state.
func ShouldTerminate(policy TerminationPolicy, lastAssistantText string, hasOutstandingToolCalls bool, turnsSinceLastUserMessage int, state TerminationState, interrupted bool) bool {
	if interrupted {
		return true
	}
	marker := policy.CompletionMarker
	if marker == "" {
		marker = DefaultCompletionMarker
	}
	if strings.Contains(lastAssistantText, marker) && !hasOutstandingToolCalls {
		return true
	}
	maxTurns := policy.MaxTurnsWithoutProgress
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurnsWithoutProgress
	}
	if turnsSinceLastUserMessage > maxTurns {
		return true
	}
	if state.ConsecutiveHighRelevance >= 2 {
		return true
	}
	return false
}

// NoProgressOutcome labels the status the driver records when termination
// fires purely because of the turn-count bound (spec §4.5 step 6: "Else
// stay Running... after which -> Completed with a 'no-progress' marker").
func NoProgressOutcome(turnsSinceLastUserMessage int, policy TerminationPolicy) bool {
	maxTurns := policy.MaxTurnsWithoutProgress
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurnsWithoutProgress
	}
	return turnsSinceLastUserMessage > maxTurns
}
