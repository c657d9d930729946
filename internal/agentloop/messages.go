package agentloop

import (
	"fmt"

	"github.com/atelierai/agentcore/pkg/models"
)

// buildPrompt implements spec §4.5 step 4: an optional system message,
// the (already compacted, if applicable) history converted to the unified
// shape, and the session's context entries appended as a system annex.
//
// Tool-call turns carry no AssistantMessage entry of their own (the driver
// appends only ToolCall/ToolResult, spec §4.5 step 6); contiguous runs of
// each are folded back into a single Assistant-with-ToolCalls message
// followed by a synthetic User-with-ToolResults message, matching the
// UnifiedMessage doc comment's encoding convention.
func buildPrompt(session *models.Session) []models.UnifiedMessage {
	var messages []models.UnifiedMessage
	if session.SystemMsg != "" {
		messages = append(messages, models.UnifiedMessage{Role: models.UnifiedSystem, Content: session.SystemMsg})
	}

	var pendingCalls []models.ToolCall
	var pendingResults []models.ToolResult
	flushCalls := func() {
		if len(pendingCalls) > 0 {
			messages = append(messages, models.UnifiedMessage{Role: models.UnifiedAssistant, ToolCalls: pendingCalls})
			pendingCalls = nil
		}
	}
	flushResults := func() {
		if len(pendingResults) > 0 {
			messages = append(messages, models.UnifiedMessage{Role: models.UnifiedUser, ToolResults: pendingResults})
			pendingResults = nil
		}
	}

	for _, entry := range session.History {
		switch entry.Kind {
		case models.KindUserMessage:
			flushCalls()
			flushResults()
			messages = append(messages, models.UnifiedMessage{Role: models.UnifiedUser, Content: entry.Text})
		case models.KindAssistantMessage:
			flushCalls()
			flushResults()
			messages = append(messages, models.UnifiedMessage{Role: models.UnifiedAssistant, Content: entry.Text})
		case models.KindSystemSummary:
			flushCalls()
			flushResults()
			messages = append(messages, models.UnifiedMessage{Role: models.UnifiedSystem, Content: entry.Summary})
		case models.KindToolCall:
			flushResults()
			pendingCalls = append(pendingCalls, models.ToolCall{ID: entry.ToolCallID, Name: entry.ToolName, Input: entry.ToolArgs})
		case models.KindToolResult:
			flushCalls()
			content := ""
			isError := false
			if entry.Full != nil {
				content = fmt.Sprintf("%v", entry.Full.Response)
			}
			pendingResults = append(pendingResults, models.ToolResult{ToolCallID: entry.ToolCallID, Content: content, IsError: isError})
		}
	}
	flushCalls()
	flushResults()

	if annex := buildContextAnnex(session.Context); annex != "" {
		messages = append(messages, models.UnifiedMessage{Role: models.UnifiedSystem, Content: annex})
	}

	return messages
}

func buildContextAnnex(entries []models.ContextEntry) string {
	if len(entries) == 0 {
		return ""
	}
	annex := "Known context:\n"
	for _, e := range entries {
		annex += fmt.Sprintf("- %s\n", e.Content)
	}
	return annex
}
