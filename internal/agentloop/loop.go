// Package agentloop implements the Agent Loop Driver (spec §4.5): the
// per-turn state machine that ties the Context Evaluator/Compactor, the
// Tool Dispatcher, the Credit Ledger's admission gate, and the LLM Vendor
// Abstraction together around a models.Session. It owns every piece of
// state the pure packages it calls (contextpack, toolkit) deliberately do
// not (spec §9).
package agentloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/atelierai/agentcore/internal/contextpack"
	"github.com/atelierai/agentcore/internal/ledger"
	"github.com/atelierai/agentcore/internal/llm"
	"github.com/atelierai/agentcore/internal/observability"
	"github.com/atelierai/agentcore/internal/sessionmgr"
	"github.com/atelierai/agentcore/internal/toolkit"
	"github.com/atelierai/agentcore/pkg/models"
)

// Per-call deadlines (spec §5): the LLM gets the longest leash, the
// context-pack calls are capped short enough that a slow vendor response
// degrades a turn instead of blocking it indefinitely.
const (
	llmCallCap       = 60 * time.Second
	toolCallCap      = 120 * time.Second
	evaluatorCallCap = 10 * time.Second

	quotaExceededText = "I've run out of credits to continue this turn. Please add credits or wait for your next grant."
)

// MaxIterationsPerStep bounds how many LLM round-trips a single Step call
// may spend before yielding control back to the caller, regardless of
// termination state — a safety backstop against a session that never
// produces a text-only turn or a tool-call loop that never completes.
const MaxIterationsPerStep = 25

// Loop implements sessionmgr.Driver, running the spec §4.5 seven-step
// per-turn procedure until the session leaves Running or the iteration
// cap is hit.
type Loop struct {
	Provider   llm.Provider
	Dispatcher *toolkit.Dispatcher
	Ledger     ledger.Ledger

	Model     string
	MaxTokens int

	TerminationPolicy sessionmgr.TerminationPolicy

	Logger *slog.Logger

	// Metrics records LLM request and context-compaction observability
	// (spec §9's "metrics" open area). Nil disables recording; NewLoop
	// leaves it unset so tests don't need to wire a registry.
	Metrics *observability.Metrics

	// Tracer emits spans around each Step and LLM call. Nil disables
	// tracing; NewLoop leaves it unset so tests don't need a provider.
	Tracer *observability.Tracer

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// NewLoop constructs a Loop with spec defaults.
func NewLoop(provider llm.Provider, dispatcher *toolkit.Dispatcher, creditLedger ledger.Ledger) *Loop {
	return &Loop{
		Provider:          provider,
		Dispatcher:        dispatcher,
		Ledger:            creditLedger,
		MaxTokens:         4096,
		TerminationPolicy: sessionmgr.DefaultTerminationPolicy(),
		Logger:            slog.Default(),
		Now:               time.Now,
	}
}

func (l *Loop) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Step advances session by one or more internal turns until it leaves
// Running (spec §4.5). It implements sessionmgr.Driver.
func (l *Loop) Step(ctx context.Context, session *models.Session, interrupted func() bool) error {
	if l.Tracer != nil {
		var span trace.Span
		ctx, span = l.Tracer.TraceStep(ctx, session.ID)
		defer span.End()
	}

	ts := newTurnState()

	for ts.iterationsThisStep < MaxIterationsPerStep {
		ts.iterationsThisStep++

		if session.Expired(l.now()) {
			session.Status = models.StatusTimeout
			return nil
		}
		if interrupted() {
			session.Status = models.StatusInterrupted
			return nil
		}

		subject, err := l.Ledger.ResolveSubject(ctx, session.Owner, session.Organization)
		if err != nil {
			session.Status = models.StatusError
			return fmt.Errorf("agentloop: resolve subject: %w", err)
		}

		// Step 1: admission gate on the turn's estimated cost (spec §4.5
		// step 1, §4.7): one credit for the LLM call itself.
		admitted, err := l.Ledger.CanDebit(ctx, subject, 1)
		if err != nil {
			session.Status = models.StatusError
			return fmt.Errorf("agentloop: admission check: %w", err)
		}
		if !admitted {
			l.appendEntry(session, models.NewAssistantMessage(quotaExceededText, nil))
			session.Status = models.StatusAwaitingInput
			return nil
		}

		// Step 2: context evaluation, policy-gated. A failed evaluation
		// degrades the turn rather than aborting it — the evaluator is an
		// optimization over prompt relevance, not a correctness gate.
		if session.Config.EvaluationPolicy.Enabled {
			evalCtx, cancel := context.WithTimeout(ctx, evaluatorCallCap)
			result, evalErr := contextpack.Evaluate(evalCtx, l.Provider, session.History, session.Context, session.Config.EvaluationPolicy.TopK)
			cancel()
			if evalErr != nil {
				l.Logger.Warn("context evaluation failed, continuing without it", "session", session.ID, "error", evalErr)
			} else {
				ts.termination = ts.termination.Observe(result.RelevanceScore, ts.hadToolCallsSinceLastEval)
				ts.hadToolCallsSinceLastEval = false
				if result.NeedsUpdate && len(result.Suggestions) > 0 {
					fresh := make([]models.ContextEntry, 0, len(result.Suggestions))
					for _, s := range result.Suggestions {
						fresh = append(fresh, models.ContextEntry{Content: s, Source: "evaluator", Timestamp: l.now()})
					}
					session.Context = contextpack.MergeEntries(session.Context, fresh...)
				}
				if progress := progressFrom(nil, result.Suggestions); progress != "" {
					session.Progress = progress
				}
			}
		}

		// Step 3: compaction check against the configured token threshold.
		if session.Config.TokenThreshold > 0 {
			estimated := contextpack.EstimateHistoryTokens(session.History) + contextpack.EstimateContextTokens(session.Context)
			if l.Metrics != nil {
				l.Metrics.ContextTokensEstimated.Observe(float64(estimated))
			}
			if estimated > session.Config.TokenThreshold {
				compactCtx, cancel := context.WithTimeout(ctx, session.Config.CompactionPolicy.Budget)
				result, compactErr := contextpack.Compact(compactCtx, l.Provider, session.History, session.Config.CompactionPolicy, session.Config.PreserveExchanges)
				cancel()
				if compactErr != nil {
					l.Logger.Warn("compaction failed, retaining history unmodified", "session", session.ID, "error", compactErr)
					if l.Metrics != nil {
						l.Metrics.RecordCompaction("error", estimated)
					}
				} else {
					session.History = result.History
					if result.SummariesCreated > 0 {
						session.Context = contextpack.MergeEntries(session.Context, contextpack.KeyFactEntries(result.KeyFacts, l.now())...)
					}
					if l.Metrics != nil {
						l.Metrics.RecordCompaction("ok", estimated)
					}
				}
			}
		}

		// Step 4: prompt construction.
		messages := buildPrompt(session)

		// Step 5: the LLM call.
		llmCtx, cancel := context.WithTimeout(ctx, llmCallCap)
		var llmSpan trace.Span
		if l.Tracer != nil {
			llmCtx, llmSpan = l.Tracer.TraceLLMRequest(llmCtx, l.Provider.Name(), l.Model)
		}
		llmStart := l.now()
		turn, err := l.Provider.Chat(llmCtx, messages, l.toolDecls(), llm.Options{Model: l.Model, MaxTokens: l.MaxTokens})
		cancel()
		if err != nil {
			if l.Metrics != nil {
				l.Metrics.RecordLLMRequest(l.Provider.Name(), l.Model, "error", l.now().Sub(llmStart).Seconds(), 0, 0)
			}
			if llmSpan != nil {
				l.Tracer.RecordError(llmSpan, err)
				llmSpan.End()
			}
			if adapterErr, ok := llm.AsAdapterError(err); ok && adapterErr.Kind == llm.KindCancelled {
				session.Status = models.StatusInterrupted
				return nil
			}
			session.Status = models.StatusError
			return fmt.Errorf("agentloop: chat: %w", err)
		}
		if l.Metrics != nil {
			l.Metrics.RecordLLMRequest(l.Provider.Name(), l.Model, "success", l.now().Sub(llmStart).Seconds(), turn.InputTokens, turn.OutputTokens)
		}
		if llmSpan != nil {
			l.Tracer.SetAttributes(llmSpan, "input_tokens", turn.InputTokens, "output_tokens", turn.OutputTokens)
			llmSpan.End()
		}

		// Step 6: classify the assistant's turn.
		if len(turn.ToolCalls) == 0 {
			l.appendEntry(session, models.NewAssistantMessage(turn.Text, nil))
			ts.turnsSinceLastUserMessage++

			if sessionmgr.ShouldTerminate(l.TerminationPolicy, turn.Text, false, ts.turnsSinceLastUserMessage, ts.termination, false) {
				if sessionmgr.NoProgressOutcome(ts.turnsSinceLastUserMessage, l.TerminationPolicy) && session.Progress == "" {
					session.Progress = "no further progress after " + l.TerminationPolicy.CompletionMarker
				}
				session.Status = models.StatusCompleted
				return nil
			}

			// No completion marker, no tool calls, no further queued
			// input: the loop yields back to the caller for the next
			// user message.
			session.Status = models.StatusAwaitingInput
			return nil
		}

		ts.hadToolCallsSinceLastEval = true
		if stop, stopErr := l.dispatchToolCalls(ctx, session, subject, turn.ToolCalls); stop {
			return stopErr
		}
	}

	// Iteration cap hit: leave the session Running so the next external
	// Step call resumes where this one left off.
	return nil
}

// dispatchToolCalls runs spec §4.5 step 6's tool-call branch: each call is
// dispatched in turn, its (ToolCall, ToolResult) pair appended to history
// together (never one without the other, per the no-half-debit invariant),
// and a handler-classified failure may end the Step call early.
func (l *Loop) dispatchToolCalls(ctx context.Context, session *models.Session, subject models.Subject, calls []models.ToolCall) (stop bool, err error) {
	caller := toolkit.CallerContext{UserID: session.Owner, OrganizationID: session.Organization}
	ctx = toolkit.WithSessionID(ctx, session.ID)

	for _, call := range calls {
		outcome, dispatchErr := l.Dispatcher.Dispatch(ctx, call, caller, subject, toolCallCap)
		if dispatchErr != nil {
			var toolErr *toolkit.ToolError
			if !errors.As(dispatchErr, &toolErr) {
				session.Status = models.StatusError
				return true, fmt.Errorf("agentloop: dispatch %s: %w", call.Name, dispatchErr)
			}

			switch toolErr.Kind {
			case toolkit.KindInvalidArguments, toolkit.KindUnknownTool:
				// Surfaced to the model as a tool result, never fatal
				// (spec §7): the LLM gets a chance to retry with
				// corrected arguments next turn.
				l.appendEntry(session, models.NewToolCallEntry(call.ID, call.Name, call.Input))
				l.appendEntry(session, models.NewToolResultEntry(call.ID,
					&models.FullToolResponse{ToolName: call.Name, Response: toolErr.Error()},
					&models.UserToolResponse{ToolName: call.Name, Summary: "could not run " + call.Name + ": " + toolErr.Reason},
				))
				continue
			case toolkit.KindQuotaExceeded:
				l.appendEntry(session, models.NewAssistantMessage(quotaExceededText, nil))
				session.Status = models.StatusAwaitingInput
				return true, nil
			case toolkit.KindCancelled:
				session.Status = models.StatusInterrupted
				return true, nil
			default: // KindFatal, exhausted KindRetryable
				session.Status = models.StatusError
				return true, fmt.Errorf("agentloop: tool %s: %w", call.Name, toolErr)
			}
		}

		l.appendEntry(session, models.NewToolCallEntry(call.ID, call.Name, call.Input))
		l.appendEntry(session, models.NewToolResultEntry(call.ID, outcome.Full, outcome.User))
		if progress := progressFrom(outcome.User, nil); progress != "" {
			session.Progress = progress
		}
	}

	return false, nil
}

func (l *Loop) toolDecls() []llm.ToolDecl {
	decls := l.Dispatcher.Registry.Declarations()
	out := make([]llm.ToolDecl, len(decls))
	for i, d := range decls {
		out[i] = llm.ToolDecl{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
	}
	return out
}

// appendEntry assigns the next strictly-increasing rank and appends to the
// session's history (spec §3: "Rank is a strictly increasing sequence
// number assigned on append").
func (l *Loop) appendEntry(session *models.Session, entry models.Conversation) {
	var nextRank int64
	if n := len(session.History); n > 0 {
		nextRank = session.History[n-1].Rank + 1
	}
	entry.Rank = nextRank
	session.History = append(session.History, entry)
}

var _ sessionmgr.Driver = (*Loop)(nil)
