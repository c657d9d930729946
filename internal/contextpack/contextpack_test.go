package contextpack

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/atelierai/agentcore/internal/llm"
	"github.com/atelierai/agentcore/pkg/models"
)

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abcd", 1},
		{"abcde", 2},
		{"capybaras are great", 5},
	}
	for _, c := range cases {
		if got := EstimateTokens(c.in); got != c.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestMergeEntries_DedupesByContentAndSource(t *testing.T) {
	existing := []models.ContextEntry{{Content: "fact one", Source: "compaction"}}
	fresh := []models.ContextEntry{
		{Content: "fact one", Source: "compaction"}, // duplicate, dropped
		{Content: "fact one", Source: "search"},      // same content, different source: kept
		{Content: "fact two", Source: "compaction"},  // new: kept
	}
	merged := MergeEntries(existing, fresh...)
	if len(merged) != 3 {
		t.Fatalf("len(merged) = %d, want 3: %+v", len(merged), merged)
	}
}

// fakeProvider answers ChatTyped by decoding a pre-canned JSON payload,
// letting compactor/evaluator tests avoid a real vendor call.
type fakeProvider struct {
	typedResponse json.RawMessage
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Chat(ctx context.Context, messages []models.UnifiedMessage, tools []llm.ToolDecl, opts llm.Options) (*llm.AssistantTurn, error) {
	return &llm.AssistantTurn{Text: "ok", FinishReason: llm.FinishStop}, nil
}

func (f *fakeProvider) ChatTyped(ctx context.Context, messages []models.UnifiedMessage, schema llm.CompiledSchema, opts llm.Options, out any) error {
	return json.Unmarshal(f.typedResponse, out)
}

func TestEvaluate_TrimsSuggestionsToTopK(t *testing.T) {
	provider := &fakeProvider{typedResponse: json.RawMessage(`{
		"relevance_score": 0.4,
		"suggestions": ["a", "b", "c", "d"],
		"needs_update": true
	}`)}
	result, err := Evaluate(context.Background(), provider, nil, nil, 2)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(result.Suggestions) != 2 {
		t.Fatalf("len(Suggestions) = %d, want 2", len(result.Suggestions))
	}
	if !result.NeedsUpdate {
		t.Error("NeedsUpdate should be true")
	}
}

func TestCompact_PreservesTailVerbatim(t *testing.T) {
	history := []models.Conversation{
		models.NewUserMessage("old question 1"),
		models.NewAssistantMessage("old answer 1", nil),
		models.NewUserMessage("old question 2"),
		models.NewAssistantMessage("old answer 2", nil),
		models.NewUserMessage("recent question"),
		models.NewAssistantMessage("recent answer", nil),
	}
	provider := &fakeProvider{typedResponse: json.RawMessage(`{
		"summary": "the user asked two old questions",
		"key_facts": ["fact-a", "fact-b"]
	}`)}

	result, err := Compact(context.Background(), provider, history, models.CompactionPolicy{Budget: time.Second}, 1)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if result.TimedOut {
		t.Fatal("unexpected timeout")
	}
	if result.SummariesCreated != 1 {
		t.Fatalf("SummariesCreated = %d, want 1", result.SummariesCreated)
	}

	last := result.History[len(result.History)-1]
	if last.Kind != models.KindAssistantMessage || last.Text != "recent answer" {
		t.Fatalf("last entry not preserved verbatim: %+v", last)
	}
	secondLast := result.History[len(result.History)-2]
	if secondLast.Kind != models.KindUserMessage || secondLast.Text != "recent question" {
		t.Fatalf("preserved tail missing the user turn: %+v", secondLast)
	}
	if result.History[0].Kind != models.KindSystemSummary {
		t.Fatalf("expected a leading SystemSummary, got %+v", result.History[0])
	}
	if len(result.KeyFacts) != 2 {
		t.Fatalf("KeyFacts = %v, want 2 entries", result.KeyFacts)
	}
}

func TestCompact_IdempotentOnAlreadyCompactedHistory(t *testing.T) {
	history := []models.Conversation{
		models.NewSystemSummary("prior summary", []string{"fact-a"}),
		models.NewUserMessage("recent question"),
		models.NewAssistantMessage("recent answer", nil),
	}
	provider := &fakeProvider{typedResponse: json.RawMessage(`{"summary":"x","key_facts":[]}`)}

	result, err := Compact(context.Background(), provider, history, models.CompactionPolicy{Budget: time.Second}, 1)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if result.SummariesCreated != 0 {
		t.Fatalf("SummariesCreated = %d, want 0 (already compacted)", result.SummariesCreated)
	}
	if len(result.History) != len(history) {
		t.Fatalf("len(History) = %d, want %d unchanged", len(result.History), len(history))
	}
}
