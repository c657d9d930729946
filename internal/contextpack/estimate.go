// Package contextpack implements the Context Evaluator and Context
// Compactor (spec §4.5 step 2-3, §4.6) as pure functions over a session's
// history and context set — the driver in internal/agentloop owns all
// state; this package never retains anything between calls.
package contextpack

import (
	"unicode/utf8"

	"github.com/atelierai/agentcore/pkg/models"
)

// EstimateTokens approximates the token count of s. The spec leaves the
// exact tokenizer unspecified (Open Question #1); we use the common
// ceil(utf8_len/4) proxy rather than wiring a real vendor tokenizer, since
// both adapters (Anthropic, OpenAI) count tokens server-side and no
// example in the pack ships a local BPE implementation.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// EstimateMessageTokens sums the estimated token cost of a unified message
// list, the prompt-construction input at spec §4.5 step 3.
func EstimateMessageTokens(messages []models.UnifiedMessage) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}
	return total
}

// EstimateContextTokens sums the estimated token cost of a session's
// context-entry set, appended as the system annex at spec §4.5 step 4.
func EstimateContextTokens(entries []models.ContextEntry) int {
	total := 0
	for _, e := range entries {
		total += EstimateTokens(e.Content)
	}
	return total
}

// EstimatePromptTokens is the spec §4.5 step 3 estimate: messages plus
// context, the figure compared against config.token_threshold.
func EstimatePromptTokens(messages []models.UnifiedMessage, context []models.ContextEntry) int {
	return EstimateMessageTokens(messages) + EstimateContextTokens(context)
}

// EstimateHistoryTokens sums the estimated token cost of raw session
// history before prompt construction (spec §4.5 step 3: "Estimate prompt
// tokens = sum over messages + context", checked ahead of building the
// unified message list).
func EstimateHistoryTokens(history []models.Conversation) int {
	total := 0
	for _, entry := range history {
		total += EstimateTokens(entry.Text)
		total += EstimateTokens(entry.Summary)
		if entry.User != nil {
			total += EstimateTokens(entry.User.Summary)
		}
	}
	return total
}
