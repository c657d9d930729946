package contextpack

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atelierai/agentcore/internal/llm"
	"github.com/atelierai/agentcore/pkg/models"
)

// CompactResult is the Context Compactor's output (spec §4.6): the
// rewritten history and the key facts extracted from each summarized run,
// which the caller merges into the session's context set.
type CompactResult struct {
	History          []models.Conversation
	SummariesCreated int
	KeyFacts         []string
	TimedOut         bool
}

var summarySchema = json.RawMessage(`{
	"type": "object",
	"required": ["summary", "key_facts"],
	"properties": {
		"summary": {"type": "string"},
		"key_facts": {"type": "array", "items": {"type": "string"}}
	}
}`)

// Compact implements the spec §4.6 contract:
//
//	compact(history, policy, preserve_exchanges) -> (new_history, summaries_created)
//
// The last preserveExchanges user<->assistant exchange pairs are retained
// verbatim, along with any ToolCall/ToolResult a preserved Assistant entry
// references. Everything older is partitioned into contiguous runs and
// each run is replaced by one SystemSummary, produced by a structured LLM
// call. Already-compacted runs (a lone SystemSummary) are left untouched,
// making repeated calls idempotent. The whole call is bounded by
// policy.Budget; on timeout the original history is returned unmodified
// with TimedOut=true.
func Compact(ctx context.Context, provider llm.Provider, history []models.Conversation, policy models.CompactionPolicy, preserveExchanges int) (CompactResult, error) {
	budget := policy.Budget
	if budget <= 0 {
		budget = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	preservedFrom := preserveBoundary(history, preserveExchanges)
	preserved := history[preservedFrom:]
	candidate := history[:preservedFrom]

	runs := partitionRuns(candidate, keepIDs(preserved))
	if len(runs) == 0 {
		return CompactResult{History: history, SummariesCreated: 0}, nil
	}

	schema, err := llm.CompileSchema("compaction_summary", summarySchema)
	if err != nil {
		return CompactResult{}, fmt.Errorf("contextpack: compile summary schema: %w", err)
	}

	var rewritten []models.Conversation
	var keyFacts []string
	summariesCreated := 0
	for _, run := range runs {
		if run.alreadySummary {
			rewritten = append(rewritten, run.entries...)
			continue
		}
		summary, err := summarizeRun(cctx, provider, schema, run.entries)
		if err != nil {
			if cctx.Err() != nil {
				return CompactResult{History: history, SummariesCreated: 0, TimedOut: true}, nil
			}
			return CompactResult{}, err
		}
		rewritten = append(rewritten, models.NewSystemSummary(summary.Summary, summary.KeyFacts))
		keyFacts = append(keyFacts, summary.KeyFacts...)
		summariesCreated++
	}
	rewritten = append(rewritten, preserved...)

	if summariesCreated == 0 {
		return CompactResult{History: history, SummariesCreated: 0}, nil
	}
	return CompactResult{
		History:          rewritten,
		SummariesCreated: summariesCreated,
		KeyFacts:         keyFacts,
	}, nil
}

// preserveBoundary returns the index in history where the last n
// user<->assistant exchange pairs begin. An exchange pair is one
// KindUserMessage followed by the entries up to (and including) the next
// KindAssistantMessage.
func preserveBoundary(history []models.Conversation, n int) int {
	if n <= 0 {
		return len(history)
	}
	exchanges := 0
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Kind == models.KindUserMessage {
			exchanges++
			if exchanges >= n {
				return i
			}
		}
	}
	return 0
}

// keepIDs collects the tool-call ids referenced by preserved Assistant
// entries, so their ToolCall/ToolResult pairs survive compaction even if
// they otherwise fall in an older run.
func keepIDs(preserved []models.Conversation) map[string]struct{} {
	keep := make(map[string]struct{})
	for _, entry := range preserved {
		if entry.Kind == models.KindAssistantMessage {
			for _, id := range entry.ReferencedToolCallIDs {
				keep[id] = struct{}{}
			}
		}
	}
	return keep
}

type run struct {
	entries        []models.Conversation
	alreadySummary bool
}

// partitionRuns splits candidate into contiguous runs to summarize,
// carving out any referenced ToolCall/ToolResult pairs as their own
// one-entry "already summarized" passthrough so they survive verbatim,
// and treating a lone pre-existing SystemSummary as already compacted
// (idempotence: compacting an already-compacted history is a no-op).
func partitionRuns(candidate []models.Conversation, keep map[string]struct{}) []run {
	var runs []run
	var current []models.Conversation
	flush := func() {
		if len(current) > 0 {
			runs = append(runs, run{entries: current})
			current = nil
		}
	}
	for _, entry := range candidate {
		if entry.Kind == models.KindSystemSummary {
			flush()
			runs = append(runs, run{entries: []models.Conversation{entry}, alreadySummary: true})
			continue
		}
		if isKept(entry, keep) {
			flush()
			runs = append(runs, run{entries: []models.Conversation{entry}, alreadySummary: true})
			continue
		}
		current = append(current, entry)
	}
	flush()
	return runs
}

func isKept(entry models.Conversation, keep map[string]struct{}) bool {
	switch entry.Kind {
	case models.KindToolCall:
		_, ok := keep[entry.ToolCallID]
		return ok
	case models.KindToolResult:
		_, ok := keep[entry.ToolCallID]
		return ok
	default:
		return false
	}
}

type runSummary struct {
	Summary  string   `json:"summary"`
	KeyFacts []string `json:"key_facts"`
}

func summarizeRun(ctx context.Context, provider llm.Provider, schema llm.CompiledSchema, entries []models.Conversation) (runSummary, error) {
	prompt := "Summarize the following conversation run. Respond only with JSON matching the schema.\n\n"
	for _, entry := range entries {
		prompt += fmt.Sprintf("- [%s] %s\n", entry.Kind, summarizeEntry(entry))
	}

	messages := []models.UnifiedMessage{
		{Role: models.UnifiedUser, Content: prompt},
	}
	var out runSummary
	if err := provider.ChatTyped(ctx, messages, schema, llm.Options{MaxTokens: 512}, &out); err != nil {
		return runSummary{}, fmt.Errorf("contextpack: summarize run: %w", err)
	}
	return out, nil
}
