package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/atelierai/agentcore/internal/backoff"
	"github.com/atelierai/agentcore/pkg/models"
)

// GeminiAdapter implements Provider over Google's Gemini API, grounded on
// the teacher's streaming GoogleProvider but collapsed to the unified
// non-streaming chat/chat_typed contract, the same trim anthropic.go and
// openai.go apply to their own streaming originals.
type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
	maxRetries   int
}

// GeminiConfig configures GeminiAdapter.
type GeminiConfig struct {
	APIKey       string
	DefaultModel string
	MaxRetries   int
}

// NewGeminiAdapter constructs a GeminiAdapter.
func NewGeminiAdapter(cfg GeminiConfig) (*GeminiAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm/gemini: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-2.0-flash"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llm/gemini: create client: %w", err)
	}

	return &GeminiAdapter{
		client:       client,
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
	}, nil
}

func (g *GeminiAdapter) Name() string { return "gemini" }

func (g *GeminiAdapter) Chat(ctx context.Context, messages []models.UnifiedMessage, tools []ToolDecl, opts Options) (*AssistantTurn, error) {
	model := opts.Model
	if model == "" {
		model = g.defaultModel
	}
	contents := convertGeminiMessages(messages)
	config := g.buildConfig(messages, tools, opts)

	resp, err := g.sendWithRetry(ctx, model, contents, config)
	if err != nil {
		return nil, err
	}
	return g.toAssistantTurn(resp), nil
}

func (g *GeminiAdapter) ChatTyped(ctx context.Context, messages []models.UnifiedMessage, schema CompiledSchema, opts Options, out any) error {
	model := opts.Model
	if model == "" {
		model = g.defaultModel
	}
	contents := convertGeminiMessages(messages)
	config := g.buildConfig(messages, nil, opts)
	config.ResponseMIMEType = "application/json"

	resp, err := g.sendWithRetry(ctx, model, contents, config)
	if err != nil {
		return err
	}
	turn := g.toAssistantTurn(resp)
	return ValidateTyped(schema, []byte(extractJSON(turn.Text)), out)
}

// buildConfig separates Gemini's system instruction from the conversation
// turns (Gemini has no "system" role in Content.Role, unlike Claude's
// top-level System field or OpenAI's system message).
func (g *GeminiAdapter) buildConfig(messages []models.UnifiedMessage, tools []ToolDecl, opts Options) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	var system strings.Builder
	for _, m := range messages {
		if m.Role == models.UnifiedSystem {
			if system.Len() > 0 {
				system.WriteByte('\n')
			}
			system.WriteString(m.Content)
		}
	}
	if system.Len() > 0 {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system.String()}}}
	}

	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.Temperature > 0 {
		temp := float32(opts.Temperature)
		config.Temperature = &temp
	}
	if len(tools) > 0 {
		config.Tools = convertGeminiTools(tools)
	}
	return config
}

// convertGeminiMessages maps UnifiedMessage onto Gemini's Content/Role
// shape. System messages are dropped here (they feed SystemInstruction in
// buildConfig instead); Gemini has no third-party "tool" role, so tool
// results ride back as a user-turn FunctionResponse part, matching the
// teacher's convertMessages.
func convertGeminiMessages(messages []models.UnifiedMessage) []*genai.Content {
	var result []*genai.Content
	for _, m := range messages {
		if m.Role == models.UnifiedSystem {
			continue
		}

		content := &genai.Content{Role: genai.RoleUser}
		if m.Role == models.UnifiedAssistant {
			content.Role = genai.RoleModel
		}

		if m.Content != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: m.Content})
		}
		for _, tc := range m.ToolCalls {
			var args map[string]any
			if err := json.Unmarshal(tc.Input, &args); err != nil {
				args = map[string]any{}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: args},
			})
		}
		for _, tr := range m.ToolResults {
			var response map[string]any
			if err := json.Unmarshal([]byte(tr.Content), &response); err != nil {
				response = map[string]any{"result": tr.Content, "error": tr.IsError}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{Name: toolNameForResult(tr.ToolCallID, messages), Response: response},
			})
		}

		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}
	return result
}

// toolNameForResult recovers the function name a ToolResult answers, since
// Gemini's FunctionResponse part addresses by name rather than call ID.
func toolNameForResult(toolCallID string, messages []models.UnifiedMessage) string {
	for _, m := range messages {
		for _, tc := range m.ToolCalls {
			if tc.ID == toolCallID {
				return tc.Name
			}
		}
	}
	return toolCallID
}

func convertGeminiTools(tools []ToolDecl) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		var schema genai.Schema
		if err := json.Unmarshal(t.Parameters, &schema); err != nil {
			schema = genai.Schema{Type: genai.TypeObject}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  &schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func (g *GeminiAdapter) sendWithRetry(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	policy := backoff.Policy{InitialMs: 1000, MaxMs: 30000, Factor: 2, Jitter: 0.1}
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		resp, err := g.client.Models.GenerateContent(ctx, model, contents, config)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryableGeminiError(err) {
			return nil, &AdapterError{Kind: KindFatal, Vendor: g.Name(), Cause: err}
		}
		if attempt == g.maxRetries {
			break
		}
		delay := backoff.Compute(policy, attempt+1)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &AdapterError{Kind: KindCancelled, Vendor: g.Name(), Cause: ctx.Err()}
		}
	}
	return nil, &AdapterError{Kind: KindRetryable, Vendor: g.Name(), Cause: fmt.Errorf("max retries exceeded: %w", lastErr)}
}

func (g *GeminiAdapter) toAssistantTurn(resp *genai.GenerateContentResponse) *AssistantTurn {
	turn := &AssistantTurn{FinishReason: FinishStop}
	if resp.UsageMetadata != nil {
		turn.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		turn.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return turn
	}

	candidate := resp.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				args = []byte("{}")
			}
			turn.ToolCalls = append(turn.ToolCalls, models.ToolCall{
				ID:    part.FunctionCall.Name,
				Name:  part.FunctionCall.Name,
				Input: json.RawMessage(args),
			})
		}
	}
	turn.Text = text.String()

	if len(turn.ToolCalls) > 0 {
		turn.FinishReason = FinishToolCalls
	} else if candidate.FinishReason == genai.FinishReasonMaxTokens {
		turn.FinishReason = FinishLength
	}
	return turn
}

func isRetryableGeminiError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"429", "500", "502", "503", "504", "timeout", "rate limit", "resource exhausted", "unavailable"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
