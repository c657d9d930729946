package models

import (
	"encoding/json"
	"time"
)

// ConversationKind discriminates the variants of Conversation, the tagged
// union over a session's append-only history (spec §3).
type ConversationKind string

const (
	KindUserMessage      ConversationKind = "user_message"
	KindAssistantMessage ConversationKind = "assistant_message"
	KindToolCall         ConversationKind = "tool_call"
	KindToolResult       ConversationKind = "tool_result"
	KindSystemSummary    ConversationKind = "system_summary"
)

// Conversation is a single immutable entry in a session's history. Exactly
// one of the variant-specific fields is populated, selected by Kind; this
// models the closed tagged union in spec §3 without runtime reflection.
type Conversation struct {
	Kind ConversationKind `json:"kind"`

	// Rank is a strictly increasing sequence number assigned on append.
	// Compaction preserves the ordering of surviving entries; it never
	// decreases any entry's rank.
	Rank int64 `json:"rank"`

	CreatedAt time.Time `json:"created_at"`

	// UserMessage / AssistantMessage text content.
	Text string `json:"text,omitempty"`

	// ToolCall fields (Kind == KindToolCall).
	ToolName string          `json:"tool_name,omitempty"`
	ToolArgs json.RawMessage `json:"tool_args,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`

	// ToolResult fields (Kind == KindToolResult). Full is used for history
	// and downstream reasoning; User is the UI-facing summary. Both must be
	// present together (spec §6).
	Full *FullToolResponse `json:"full,omitempty"`
	User *UserToolResponse `json:"user,omitempty"`

	// SystemSummary fields (Kind == KindSystemSummary), produced by the
	// compactor in place of a contiguous run of older entries.
	Summary  string   `json:"summary,omitempty"`
	KeyFacts []string `json:"key_facts,omitempty"`

	// ReferencedToolCallIDs lets the compactor know which ToolResult
	// entries a preserved AssistantMessage still refers to (spec §4.6).
	ReferencedToolCallIDs []string `json:"referenced_tool_call_ids,omitempty"`
}

// NewUserMessage constructs a KindUserMessage entry.
func NewUserMessage(text string) Conversation {
	return Conversation{Kind: KindUserMessage, Text: text, CreatedAt: time.Now()}
}

// NewAssistantMessage constructs a KindAssistantMessage entry.
func NewAssistantMessage(text string, referencedToolCallIDs []string) Conversation {
	return Conversation{
		Kind:                  KindAssistantMessage,
		Text:                  text,
		ReferencedToolCallIDs: referencedToolCallIDs,
		CreatedAt:             time.Now(),
	}
}

// NewToolCallEntry constructs a KindToolCall entry.
func NewToolCallEntry(toolCallID, name string, args json.RawMessage) Conversation {
	return Conversation{
		Kind:       KindToolCall,
		ToolCallID: toolCallID,
		ToolName:   name,
		ToolArgs:   args,
		CreatedAt:  time.Now(),
	}
}

// NewToolResultEntry constructs a KindToolResult entry. Both full and user
// responses are required (spec §6: "the loop rejects handlers that return
// only one").
func NewToolResultEntry(toolCallID string, full *FullToolResponse, user *UserToolResponse) Conversation {
	return Conversation{
		Kind:       KindToolResult,
		ToolCallID: toolCallID,
		Full:       full,
		User:       user,
		CreatedAt:  time.Now(),
	}
}

// NewSystemSummary constructs a KindSystemSummary entry produced by the
// compactor in place of a contiguous run of older entries.
func NewSystemSummary(summary string, keyFacts []string) Conversation {
	return Conversation{
		Kind:      KindSystemSummary,
		Summary:   summary,
		KeyFacts:  keyFacts,
		CreatedAt: time.Now(),
	}
}

// FullToolResponse is the structured payload recorded in history and used
// for downstream reasoning (spec §3, §6).
type FullToolResponse struct {
	ToolName string `json:"tool_name"`
	Response any    `json:"response"`
}

// UserToolResponse is the human-facing summary surfaced to the UI (spec §3, §6).
type UserToolResponse struct {
	ToolName string `json:"tool_name"`
	Summary  string `json:"summary"`
	Icon     string `json:"icon,omitempty"`
	Data     any    `json:"data,omitempty"`
}
