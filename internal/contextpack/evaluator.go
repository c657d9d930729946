package contextpack

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/atelierai/agentcore/internal/llm"
	"github.com/atelierai/agentcore/pkg/models"
)

// EvaluationResult is the Context Evaluator's output (spec §4.5 step 2):
// a relevance score, optional suggestions for the next turn, and a flag
// telling the driver whether to inject them as a system message.
type EvaluationResult struct {
	RelevanceScore float64  `json:"relevance_score"`
	Suggestions    []string `json:"suggestions"`
	NeedsUpdate    bool     `json:"needs_update"`
}

var evaluationSchema = json.RawMessage(`{
	"type": "object",
	"required": ["relevance_score", "suggestions", "needs_update"],
	"properties": {
		"relevance_score": {"type": "number", "minimum": 0, "maximum": 1},
		"suggestions": {"type": "array", "items": {"type": "string"}},
		"needs_update": {"type": "boolean"}
	}
}`)

// Evaluate scores the session's current history and context via a
// structured LLM call (spec §4.5 step 2, §9: "Compactor and Evaluator are
// pure functions"). topK bounds the suggestions surfaced to the driver.
func Evaluate(ctx context.Context, provider llm.Provider, history []models.Conversation, contextEntries []models.ContextEntry, topK int) (EvaluationResult, error) {
	schema, err := llm.CompileSchema("context_evaluation", evaluationSchema)
	if err != nil {
		return EvaluationResult{}, fmt.Errorf("contextpack: compile evaluation schema: %w", err)
	}

	prompt := buildEvaluationPrompt(history, contextEntries, topK)
	messages := []models.UnifiedMessage{
		{Role: models.UnifiedSystem, Content: evaluatorInstruction},
		{Role: models.UnifiedUser, Content: prompt},
	}

	var result EvaluationResult
	if err := provider.ChatTyped(ctx, messages, schema, llm.Options{MaxTokens: 512}, &result); err != nil {
		return EvaluationResult{}, fmt.Errorf("contextpack: evaluate: %w", err)
	}
	if len(result.Suggestions) > topK {
		result.Suggestions = result.Suggestions[:topK]
	}
	return result, nil
}

const evaluatorInstruction = `You score how relevant a conversation's current trajectory is to its
stated goal. Respond only with JSON matching the given schema: a
relevance_score in [0,1], up to top_k short suggestions for what the
assistant should do next, and needs_update=true only when a suggestion
would materially change the assistant's next action.`

func buildEvaluationPrompt(history []models.Conversation, contextEntries []models.ContextEntry, topK int) string {
	var b []byte
	b = append(b, fmt.Sprintf("top_k=%d\n\nhistory (most recent last):\n", topK)...)
	for _, entry := range history {
		b = append(b, fmt.Sprintf("- [%s] %s\n", entry.Kind, summarizeEntry(entry))...)
	}
	b = append(b, "\ncontext entries:\n"...)
	for _, e := range contextEntries {
		b = append(b, fmt.Sprintf("- (%s) %s\n", e.Source, e.Content)...)
	}
	return string(b)
}

func summarizeEntry(c models.Conversation) string {
	switch c.Kind {
	case models.KindUserMessage, models.KindAssistantMessage:
		return c.Text
	case models.KindToolCall:
		return fmt.Sprintf("call %s", c.ToolName)
	case models.KindToolResult:
		if c.User != nil {
			return c.User.Summary
		}
		return "tool result"
	case models.KindSystemSummary:
		return c.Summary
	default:
		return ""
	}
}
