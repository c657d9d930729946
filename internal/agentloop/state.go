package agentloop

import "github.com/atelierai/agentcore/internal/sessionmgr"

// turnState is the per-call-to-Step bookkeeping that the driver folds
// across internal iterations (spec §9: "Compactor and Evaluator are pure
// functions... the driver owns state"). It never outlives a single Step
// call — sessionmgr.Manager serializes Step calls per session, so there is
// nothing to persist between calls beyond what's already written onto
// models.Session.
type turnState struct {
	termination               sessionmgr.TerminationState
	turnsSinceLastUserMessage int
	iterationsThisStep        int

	// hadToolCallsSinceLastEval tracks whether a tool call happened since
	// the last evaluator run, the input to TerminationState.Observe that
	// resets the consecutive-high-relevance streak (spec §4.8).
	hadToolCallsSinceLastEval bool
}

func newTurnState() turnState {
	return turnState{}
}
