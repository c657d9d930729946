package toolkit

import (
	"context"
	"fmt"

	"github.com/atelierai/agentcore/pkg/models"
)

// CollectionStore is the seam through which the collection-item tool
// reaches a user's saved collections. Concrete storage (Postgres, SQLite,
// ...) lives outside the core.
type CollectionStore interface {
	CreateItem(ctx context.Context, userID, collection string, fields map[string]any) (itemID string, err error)
	UpdateItem(ctx context.Context, userID, collection, itemID string, fields map[string]any) error
	DeleteItem(ctx context.Context, userID, collection, itemID string) error
}

// CollectionItemTool is the built-in internal tool for create/update/delete
// on a user's saved collections (spec §4.2).
type CollectionItemTool struct {
	Store      CollectionStore
	CreditCost int
}

func (t *CollectionItemTool) Name() string        { return "collection-item" }
func (t *CollectionItemTool) Description() string { return "Create, update, or delete an item in one of the user's saved collections." }
func (t *CollectionItemTool) Cost() int           { return t.CreditCost }
func (t *CollectionItemTool) NewParams() Params   { return &CollectionItemParams{} }

func (t *CollectionItemTool) Handler(ctx context.Context, p Params) (*HandlerResult, error) {
	cp, ok := p.(*CollectionItemParams)
	if !ok {
		return nil, ErrInvalidArguments(t.Name(), "", "wrong parameter type")
	}
	if cp.Collection == "" {
		return nil, ErrInvalidArguments(t.Name(), "collection", "required")
	}
	if t.Store == nil {
		return nil, &ToolError{Kind: KindFatal, ToolName: t.Name(), Reason: "no collection store configured"}
	}

	switch cp.Op {
	case CollectionCreate:
		itemID, err := t.Store.CreateItem(ctx, cp.UserID, cp.Collection, cp.Fields)
		if err != nil {
			return nil, fmt.Errorf("collection-item create: %w", err)
		}
		return &HandlerResult{
			Full: &models.FullToolResponse{ToolName: t.Name(), Response: map[string]any{"op": cp.Op, "item_id": itemID}},
			User: &models.UserToolResponse{ToolName: t.Name(), Summary: fmt.Sprintf("added item to %s", cp.Collection), Icon: "collection"},
		}, nil
	case CollectionUpdate:
		if cp.ItemID == "" {
			return nil, ErrInvalidArguments(t.Name(), "item_id", "required for update")
		}
		if err := t.Store.UpdateItem(ctx, cp.UserID, cp.Collection, cp.ItemID, cp.Fields); err != nil {
			return nil, fmt.Errorf("collection-item update: %w", err)
		}
		return &HandlerResult{
			Full: &models.FullToolResponse{ToolName: t.Name(), Response: map[string]any{"op": cp.Op, "item_id": cp.ItemID}},
			User: &models.UserToolResponse{ToolName: t.Name(), Summary: fmt.Sprintf("updated item in %s", cp.Collection), Icon: "collection"},
		}, nil
	case CollectionDelete:
		if cp.ItemID == "" {
			return nil, ErrInvalidArguments(t.Name(), "item_id", "required for delete")
		}
		if err := t.Store.DeleteItem(ctx, cp.UserID, cp.Collection, cp.ItemID); err != nil {
			return nil, fmt.Errorf("collection-item delete: %w", err)
		}
		return &HandlerResult{
			Full: &models.FullToolResponse{ToolName: t.Name(), Response: map[string]any{"op": cp.Op, "item_id": cp.ItemID}},
			User: &models.UserToolResponse{ToolName: t.Name(), Summary: fmt.Sprintf("removed item from %s", cp.Collection), Icon: "collection"},
		}, nil
	default:
		return nil, ErrInvalidArguments(t.Name(), "op", "must be one of create, update, delete")
	}
}

// DocumentStore is the seam through which the document tool persists
// free-form text documents (notes, briefs, drafts) attached to a user.
type DocumentStore interface {
	CreateDocument(ctx context.Context, userID, title, body string) (documentID string, err error)
	UpdateDocument(ctx context.Context, userID, documentID, title, body string) error
	DeleteDocument(ctx context.Context, userID, documentID string) error
}

// DocumentTool is the built-in internal tool for document CRUD (spec §4.2).
type DocumentTool struct {
	Store      DocumentStore
	CreditCost int
}

func (t *DocumentTool) Name() string        { return "document" }
func (t *DocumentTool) Description() string { return "Create, update, or delete a document owned by the user." }
func (t *DocumentTool) Cost() int           { return t.CreditCost }
func (t *DocumentTool) NewParams() Params   { return &DocumentParams{} }

func (t *DocumentTool) Handler(ctx context.Context, p Params) (*HandlerResult, error) {
	dp, ok := p.(*DocumentParams)
	if !ok {
		return nil, ErrInvalidArguments(t.Name(), "", "wrong parameter type")
	}
	if t.Store == nil {
		return nil, &ToolError{Kind: KindFatal, ToolName: t.Name(), Reason: "no document store configured"}
	}

	switch dp.Op {
	case DocumentCreate:
		if dp.Title == "" {
			return nil, ErrInvalidArguments(t.Name(), "title", "required for create")
		}
		documentID, err := t.Store.CreateDocument(ctx, dp.UserID, dp.Title, dp.Body)
		if err != nil {
			return nil, fmt.Errorf("document create: %w", err)
		}
		return &HandlerResult{
			Full: &models.FullToolResponse{ToolName: t.Name(), Response: map[string]any{"op": dp.Op, "document_id": documentID}},
			User: &models.UserToolResponse{ToolName: t.Name(), Summary: fmt.Sprintf("created document %q", dp.Title), Icon: "document"},
		}, nil
	case DocumentUpdate:
		if dp.DocumentID == "" {
			return nil, ErrInvalidArguments(t.Name(), "document_id", "required for update")
		}
		if err := t.Store.UpdateDocument(ctx, dp.UserID, dp.DocumentID, dp.Title, dp.Body); err != nil {
			return nil, fmt.Errorf("document update: %w", err)
		}
		return &HandlerResult{
			Full: &models.FullToolResponse{ToolName: t.Name(), Response: map[string]any{"op": dp.Op, "document_id": dp.DocumentID}},
			User: &models.UserToolResponse{ToolName: t.Name(), Summary: "updated document", Icon: "document"},
		}, nil
	case DocumentDelete:
		if dp.DocumentID == "" {
			return nil, ErrInvalidArguments(t.Name(), "document_id", "required for delete")
		}
		if err := t.Store.DeleteDocument(ctx, dp.UserID, dp.DocumentID); err != nil {
			return nil, fmt.Errorf("document delete: %w", err)
		}
		return &HandlerResult{
			Full: &models.FullToolResponse{ToolName: t.Name(), Response: map[string]any{"op": dp.Op, "document_id": dp.DocumentID}},
			User: &models.UserToolResponse{ToolName: t.Name(), Summary: "deleted document", Icon: "document"},
		}, nil
	default:
		return nil, ErrInvalidArguments(t.Name(), "op", "must be one of create, update, delete")
	}
}

// GeneratedAsset is the handle a generation pipeline returns once a
// request completes; the agent loop stores the URL/ID in history, never
// the underlying binary.
type GeneratedAsset struct {
	AssetID string `json:"asset_id"`
	URL     string `json:"url"`
}

// GenerationPipeline is the seam through which the generation tool invokes
// an out-of-core image/video pipeline. Concrete vendor wiring (e.g. a
// diffusion API, a video renderer) lives outside the core per spec §1's
// Non-goals.
type GenerationPipeline interface {
	Generate(ctx context.Context, kind GenerationKind, prompt string, seed int64) (*GeneratedAsset, error)
}

// GenerationTool is the built-in internal tool fronting image/video
// generation pipelines (spec §4.2). It is the costliest internal tool by
// convention; CreditCost is set per deployment.
type GenerationTool struct {
	Pipeline   GenerationPipeline
	CreditCost int
}

func (t *GenerationTool) Name() string        { return "generate" }
func (t *GenerationTool) Description() string { return "Generate an image or video asset from a text prompt." }
func (t *GenerationTool) Cost() int           { return t.CreditCost }
func (t *GenerationTool) NewParams() Params   { return &GenerationParams{} }

func (t *GenerationTool) Handler(ctx context.Context, p Params) (*HandlerResult, error) {
	gp, ok := p.(*GenerationParams)
	if !ok {
		return nil, ErrInvalidArguments(t.Name(), "", "wrong parameter type")
	}
	if gp.Prompt == "" {
		return nil, ErrInvalidArguments(t.Name(), "prompt", "required")
	}
	if gp.Kind != GenerationImage && gp.Kind != GenerationVideo {
		return nil, ErrInvalidArguments(t.Name(), "kind", "must be one of image, video")
	}
	if t.Pipeline == nil {
		return nil, &ToolError{Kind: KindFatal, ToolName: t.Name(), Reason: "no generation pipeline configured"}
	}

	asset, err := t.Pipeline.Generate(ctx, gp.Kind, gp.Prompt, gp.Seed)
	if err != nil {
		return nil, err
	}
	return &HandlerResult{
		Full: &models.FullToolResponse{ToolName: t.Name(), Response: asset},
		User: &models.UserToolResponse{
			ToolName: t.Name(),
			Summary:  fmt.Sprintf("generated %s asset", gp.Kind),
			Icon:     "sparkles",
			Data:     asset,
		},
	}, nil
}

var (
	_ Tool = (*CollectionItemTool)(nil)
	_ Tool = (*DocumentTool)(nil)
	_ Tool = (*GenerationTool)(nil)
)
