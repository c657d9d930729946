package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/atelierai/agentcore/internal/backoff"
	"github.com/atelierai/agentcore/pkg/models"
)

// OpenAIAdapter implements Provider over the Chat Completions API, grounded
// on the teacher's streaming OpenAIProvider but collapsed to the unified
// non-streaming chat/chat_typed contract.
type OpenAIAdapter struct {
	client       *openai.Client
	defaultModel string
	maxRetries   int
}

// OpenAIConfig configures OpenAIAdapter.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxRetries   int
}

// NewOpenAIAdapter constructs an OpenAIAdapter.
func NewOpenAIAdapter(cfg OpenAIConfig) (*OpenAIAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm/openai: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIAdapter{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
	}, nil
}

func (o *OpenAIAdapter) Name() string { return "openai" }

func (o *OpenAIAdapter) Chat(ctx context.Context, messages []models.UnifiedMessage, tools []ToolDecl, opts Options) (*AssistantTurn, error) {
	req := o.buildRequest(messages, tools, opts)
	resp, err := o.sendWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	return o.toAssistantTurn(resp), nil
}

func (o *OpenAIAdapter) ChatTyped(ctx context.Context, messages []models.UnifiedMessage, schema CompiledSchema, opts Options, out any) error {
	req := o.buildRequest(messages, nil, opts)
	req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}

	resp, err := o.sendWithRetry(ctx, req)
	if err != nil {
		return err
	}
	turn := o.toAssistantTurn(resp)
	return ValidateTyped(schema, []byte(extractJSON(turn.Text)), out)
}

func (o *OpenAIAdapter) buildRequest(messages []models.UnifiedMessage, tools []ToolDecl, opts Options) openai.ChatCompletionRequest {
	model := opts.Model
	if model == "" {
		model = o.defaultModel
	}

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertOpenAIMessages(messages),
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if len(tools) > 0 {
		req.Tools = convertOpenAITools(tools)
	}
	return req
}

func convertOpenAIMessages(messages []models.UnifiedMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case models.UnifiedSystem:
			role = openai.ChatMessageRoleSystem
		case models.UnifiedAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		result = append(result, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return result
}

func convertOpenAITools(tools []ToolDecl) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		var schema map[string]any
		if err := json.Unmarshal(t.Parameters, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		}
	}
	return result
}

func (o *OpenAIAdapter) sendWithRetry(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	policy := backoff.Policy{InitialMs: 1000, MaxMs: 30000, Factor: 2, Jitter: 0.1}
	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		resp, err := o.client.CreateChatCompletion(ctx, req)
		if err == nil {
			return &resp, nil
		}
		lastErr = err

		if !isRetryableOpenAIError(err) {
			return nil, &AdapterError{Kind: KindFatal, Vendor: o.Name(), Cause: err}
		}
		if attempt == o.maxRetries {
			break
		}
		delay := backoff.Compute(policy, attempt+1)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &AdapterError{Kind: KindCancelled, Vendor: o.Name(), Cause: ctx.Err()}
		}
	}
	return nil, &AdapterError{Kind: KindRetryable, Vendor: o.Name(), Cause: fmt.Errorf("max retries exceeded: %w", lastErr)}
}

func (o *OpenAIAdapter) toAssistantTurn(resp *openai.ChatCompletionResponse) *AssistantTurn {
	turn := &AssistantTurn{FinishReason: FinishStop}
	if resp.Usage.PromptTokens > 0 {
		turn.InputTokens = resp.Usage.PromptTokens
	}
	if resp.Usage.CompletionTokens > 0 {
		turn.OutputTokens = resp.Usage.CompletionTokens
	}
	if len(resp.Choices) == 0 {
		return turn
	}
	choice := resp.Choices[0]
	turn.Text = choice.Message.Content
	for _, tc := range choice.Message.ToolCalls {
		turn.ToolCalls = append(turn.ToolCalls, models.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}
	if len(turn.ToolCalls) > 0 {
		turn.FinishReason = FinishToolCalls
	} else if choice.FinishReason == openai.FinishReasonLength {
		turn.FinishReason = FinishLength
	}
	return turn
}

func isRetryableOpenAIError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"rate limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
