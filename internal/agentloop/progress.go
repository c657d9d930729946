package agentloop

import "github.com/atelierai/agentcore/pkg/models"

// progressFrom derives the short progress string the driver writes to
// Session.Progress after each tool result or evaluator suggestion (spec
// §4.8: "short_string is the latest tool's UserToolResponse.summary or an
// evaluator suggestion").
func progressFrom(userResponse *models.UserToolResponse, evaluatorSuggestions []string) string {
	if userResponse != nil && userResponse.Summary != "" {
		return userResponse.Summary
	}
	if len(evaluatorSuggestions) > 0 {
		return evaluatorSuggestions[0]
	}
	return ""
}
