// Package toolkit implements the Tool Registry and Tool Dispatch layer
// (spec §4.2, §4.3): a strongly-typed tool-calling surface that serializes
// JSON schemas for the LLM, deserializes tool arguments into tagged
// variants, routes to handlers, and produces both a "full" response (for
// history) and a "user-facing" summary (for UI).
package toolkit

import "github.com/atelierai/agentcore/pkg/models"

// CallerContext carries the identity the dispatcher injects into every tool
// call, overwriting whatever the model supplied for caller-scoped fields
// (spec §4.3 step 3: "the user_id/organization_id fields in parameters are
// never accepted from the model").
type CallerContext struct {
	UserID         string
	OrganizationID string
}

// Params is implemented by every tool's parameter variant. ApplyCaller
// overwrites the caller-scoped fields post-unmarshal; it is the only path
// by which identity enters a handler.
type Params interface {
	ApplyCaller(CallerContext)
}

// callerFields is embedded by every parameter struct to carry the
// caller-scoped fields the model is never trusted to set directly.
type callerFields struct {
	UserID         string `json:"-"`
	OrganizationID string `json:"-"`
}

func (c *callerFields) ApplyCaller(cc CallerContext) {
	c.UserID = cc.UserID
	c.OrganizationID = cc.OrganizationID
}

// SearchParams is the parameter variant for the built-in "search" tool.
type SearchParams struct {
	callerFields
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

// FetchURLParams is the parameter variant for the built-in "fetch-url" tool.
type FetchURLParams struct {
	callerFields
	URL string `json:"url"`
}

// SaveContextParams is the parameter variant for the built-in
// "save-context" tool, appending a ContextEntry to the session.
type SaveContextParams struct {
	callerFields
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
}

// CollectionOp is the CRUD verb for collection-item tools.
type CollectionOp string

const (
	CollectionCreate CollectionOp = "create"
	CollectionUpdate CollectionOp = "update"
	CollectionDelete CollectionOp = "delete"
)

// CollectionItemParams is the parameter variant for create/update/delete
// on a user's saved collections.
type CollectionItemParams struct {
	callerFields
	Op         CollectionOp   `json:"op"`
	Collection string         `json:"collection"`
	ItemID     string         `json:"item_id,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// DocumentOp is the CRUD verb for document tools.
type DocumentOp string

const (
	DocumentCreate DocumentOp = "create"
	DocumentUpdate DocumentOp = "update"
	DocumentDelete DocumentOp = "delete"
)

// DocumentParams is the parameter variant for document CRUD tools.
type DocumentParams struct {
	callerFields
	Op         DocumentOp `json:"op"`
	DocumentID string     `json:"document_id,omitempty"`
	Title      string     `json:"title,omitempty"`
	Body       string     `json:"body,omitempty"`
}

// GenerationKind selects the media pipeline a generation tool invokes.
type GenerationKind string

const (
	GenerationImage GenerationKind = "image"
	GenerationVideo GenerationKind = "video"
)

// GenerationParams is the parameter variant for image/video generation
// pipeline tools.
type GenerationParams struct {
	callerFields
	Kind   GenerationKind `json:"kind"`
	Prompt string         `json:"prompt"`
	Seed   int64          `json:"seed,omitempty"`
}

// Ensure every variant implements Params.
var (
	_ Params = (*SearchParams)(nil)
	_ Params = (*FetchURLParams)(nil)
	_ Params = (*SaveContextParams)(nil)
	_ Params = (*CollectionItemParams)(nil)
	_ Params = (*DocumentParams)(nil)
	_ Params = (*GenerationParams)(nil)
)

// HandlerResult is what a tool handler returns. Both Full and User must be
// populated; dispatch rejects a handler that supplies only one (spec §6).
type HandlerResult struct {
	Full *models.FullToolResponse
	User *models.UserToolResponse
}
