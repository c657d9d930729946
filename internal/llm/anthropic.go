package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/atelierai/agentcore/internal/backoff"
	"github.com/atelierai/agentcore/pkg/models"
)

// AnthropicAdapter implements Provider over Anthropic's Claude API. Request
// construction and retry/backoff are grounded on the teacher's streaming
// AnthropicProvider, trimmed to the unified, non-streaming chat/chat_typed
// contract this spec requires.
type AnthropicAdapter struct {
	client       anthropic.Client
	defaultModel string
	maxRetries   int
}

// AnthropicConfig configures AnthropicAdapter.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxRetries   int
}

// NewAnthropicAdapter constructs an AnthropicAdapter.
func NewAnthropicAdapter(cfg AnthropicConfig) (*AnthropicAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm/anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicAdapter{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
	}, nil
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

func (a *AnthropicAdapter) Chat(ctx context.Context, messages []models.UnifiedMessage, tools []ToolDecl, opts Options) (*AssistantTurn, error) {
	params, err := a.buildParams(messages, tools, opts)
	if err != nil {
		return nil, &AdapterError{Kind: KindFatal, Vendor: a.Name(), Cause: err}
	}

	msg, err := a.sendWithRetry(ctx, params)
	if err != nil {
		return nil, err
	}
	return a.toAssistantTurn(msg), nil
}

func (a *AnthropicAdapter) ChatTyped(ctx context.Context, messages []models.UnifiedMessage, schema CompiledSchema, opts Options, out any) error {
	// Claude has no first-class structured-output mode in this SDK surface;
	// the unified contract asks for JSON via instruction and validates on
	// the way back, same as the teacher steers models with system prompts
	// elsewhere in the repo.
	typedMessages := append([]models.UnifiedMessage{{
		Role:    models.UnifiedSystem,
		Content: "Respond with a single JSON value matching the requested schema. No prose, no markdown fences.",
	}}, messages...)

	turn, err := a.Chat(ctx, typedMessages, nil, opts)
	if err != nil {
		return err
	}
	raw := extractJSON(turn.Text)
	if err := ValidateTyped(schema, []byte(raw), out); err != nil {
		return err
	}
	return nil
}

func (a *AnthropicAdapter) buildParams(messages []models.UnifiedMessage, tools []ToolDecl, opts Options) (anthropic.MessageNewParams, error) {
	model := opts.Model
	if model == "" {
		model = a.defaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
	}

	var converted []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case models.UnifiedSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Type: "text", Text: m.Content})
		case models.UnifiedUser:
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case models.UnifiedAssistant:
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	params.Messages = converted

	if len(tools) > 0 {
		toolParams, err := a.convertTools(tools)
		if err != nil {
			return params, err
		}
		params.Tools = toolParams
	}
	return params, nil
}

func (a *AnthropicAdapter) convertTools(tools []ToolDecl) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", t.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", t.Name)
		}
		toolParam.OfTool.Description = anthropic.String(t.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

func (a *AnthropicAdapter) sendWithRetry(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	policy := backoff.Policy{InitialMs: 1000, MaxMs: 30000, Factor: 2, Jitter: 0.1}
	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		msg, err := a.client.Messages.New(ctx, params)
		if err == nil {
			return msg, nil
		}
		lastErr = err

		if !isRetryableAnthropicError(err) {
			return nil, &AdapterError{Kind: KindFatal, Vendor: a.Name(), Cause: err}
		}
		if attempt == a.maxRetries {
			break
		}
		delay := backoff.Compute(policy, attempt+1)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &AdapterError{Kind: KindCancelled, Vendor: a.Name(), Cause: ctx.Err()}
		}
	}
	return nil, &AdapterError{Kind: KindRetryable, Vendor: a.Name(), Cause: fmt.Errorf("max retries exceeded: %w", lastErr)}
}

func (a *AnthropicAdapter) toAssistantTurn(msg *anthropic.Message) *AssistantTurn {
	turn := &AssistantTurn{FinishReason: FinishStop}
	if msg.Usage.InputTokens > 0 {
		turn.InputTokens = int(msg.Usage.InputTokens)
	}
	if msg.Usage.OutputTokens > 0 {
		turn.OutputTokens = int(msg.Usage.OutputTokens)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			turn.ToolCalls = append(turn.ToolCalls, models.ToolCall{
				ID:    variant.ID,
				Name:  variant.Name,
				Input: json.RawMessage(variant.Input),
			})
		}
	}
	turn.Text = text.String()
	if len(turn.ToolCalls) > 0 {
		turn.FinishReason = FinishToolCalls
	}
	if msg.StopReason == "max_tokens" {
		turn.FinishReason = FinishLength
	}
	return turn
}

func isRetryableAnthropicError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"429", "500", "502", "503", "504", "timeout", "rate limit", "overloaded"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// extractJSON strips leading/trailing prose or markdown fences a model may
// wrap structured output in, isolating the first balanced JSON value.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return "{}"
	}
	return trimmed
}
