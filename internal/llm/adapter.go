// Package llm implements the LLM Vendor Abstraction (spec §4.4): a single
// interface over multiple vendors with unified messages, JSON-schema tool
// declarations, and schema-validated structured output.
package llm

import (
	"context"
	"encoding/json"

	"github.com/atelierai/agentcore/pkg/models"
)

// ToolDecl is a tool declaration presented to the vendor (spec §6): name,
// description, and a JSON Schema draft 2020-12 parameter schema. The
// adapter never rewrites a tool's schema between calls in the same
// session — callers should build the slice once per session and reuse it.
type ToolDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// FinishReason describes why the vendor stopped generating.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
)

// AssistantTurn is the result of a chat call: text and/or tool calls, plus
// why the vendor stopped (spec §4.4).
type AssistantTurn struct {
	Text         string            `json:"text,omitempty"`
	ToolCalls    []models.ToolCall `json:"tool_calls,omitempty"`
	FinishReason FinishReason      `json:"finish_reason"`
	InputTokens  int               `json:"input_tokens,omitempty"`
	OutputTokens int               `json:"output_tokens,omitempty"`
}

// Options carries the generation parameters common to every vendor.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Provider is the vendor-agnostic interface every LLM adapter implements
// (spec §9: "an interface with two operations, chat and chat_typed"). Role
// and tool-call normalization happens inside the adapter; the Agent Loop
// only ever deals in UnifiedMessage and ToolDecl.
type Provider interface {
	// Name identifies the vendor ("anthropic", "openai") for logging/metrics.
	Name() string

	// Chat sends a conversation and returns the assistant's next turn.
	Chat(ctx context.Context, messages []models.UnifiedMessage, tools []ToolDecl, opts Options) (*AssistantTurn, error)

	// ChatTyped sends a conversation constrained to return JSON matching
	// schema, decoding the result into out (a pointer). Implementations
	// delegate the compile-validate-fallback procedure to ValidateTyped.
	ChatTyped(ctx context.Context, messages []models.UnifiedMessage, schema CompiledSchema, opts Options, out any) error
}
