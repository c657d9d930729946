package toolkit

import (
	"context"
	"testing"
)

type fakeCollectionStore struct {
	created map[string]map[string]any
	nextID  int
}

func newFakeCollectionStore() *fakeCollectionStore {
	return &fakeCollectionStore{created: make(map[string]map[string]any)}
}

func (s *fakeCollectionStore) CreateItem(ctx context.Context, userID, collection string, fields map[string]any) (string, error) {
	s.nextID++
	id := "item-1"
	s.created[id] = fields
	return id, nil
}

func (s *fakeCollectionStore) UpdateItem(ctx context.Context, userID, collection, itemID string, fields map[string]any) error {
	s.created[itemID] = fields
	return nil
}

func (s *fakeCollectionStore) DeleteItem(ctx context.Context, userID, collection, itemID string) error {
	delete(s.created, itemID)
	return nil
}

func TestCollectionItemTool_CreateThenDelete(t *testing.T) {
	store := newFakeCollectionStore()
	tool := &CollectionItemTool{Store: store}

	result, err := tool.Handler(context.Background(), &CollectionItemParams{
		Op: CollectionCreate, Collection: "favorites", Fields: map[string]any{"title": "x"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.User.Summary == "" {
		t.Fatal("expected non-empty summary")
	}
	if len(store.created) != 1 {
		t.Fatalf("expected 1 item stored, got %d", len(store.created))
	}

	_, err = tool.Handler(context.Background(), &CollectionItemParams{
		Op: CollectionDelete, Collection: "favorites", ItemID: "item-1",
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(store.created) != 0 {
		t.Fatalf("expected item removed, got %d remaining", len(store.created))
	}
}

func TestCollectionItemTool_UpdateWithoutItemIDIsInvalidArguments(t *testing.T) {
	tool := &CollectionItemTool{Store: newFakeCollectionStore()}
	_, err := tool.Handler(context.Background(), &CollectionItemParams{Op: CollectionUpdate, Collection: "favorites"})
	toolErr, ok := err.(*ToolError)
	if !ok || toolErr.Kind != KindInvalidArguments {
		t.Fatalf("expected KindInvalidArguments, got %v", err)
	}
}

type fakeDocumentStore struct {
	docs map[string]string
}

func (s *fakeDocumentStore) CreateDocument(ctx context.Context, userID, title, body string) (string, error) {
	if s.docs == nil {
		s.docs = make(map[string]string)
	}
	s.docs["doc-1"] = body
	return "doc-1", nil
}

func (s *fakeDocumentStore) UpdateDocument(ctx context.Context, userID, documentID, title, body string) error {
	s.docs[documentID] = body
	return nil
}

func (s *fakeDocumentStore) DeleteDocument(ctx context.Context, userID, documentID string) error {
	delete(s.docs, documentID)
	return nil
}

func TestDocumentTool_CreateRequiresTitle(t *testing.T) {
	tool := &DocumentTool{Store: &fakeDocumentStore{}}
	_, err := tool.Handler(context.Background(), &DocumentParams{Op: DocumentCreate, Body: "no title"})
	toolErr, ok := err.(*ToolError)
	if !ok || toolErr.Kind != KindInvalidArguments {
		t.Fatalf("expected KindInvalidArguments, got %v", err)
	}
}

func TestDocumentTool_CreateThenUpdate(t *testing.T) {
	store := &fakeDocumentStore{}
	tool := &DocumentTool{Store: store}

	_, err := tool.Handler(context.Background(), &DocumentParams{Op: DocumentCreate, Title: "Brief", Body: "v1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = tool.Handler(context.Background(), &DocumentParams{Op: DocumentUpdate, DocumentID: "doc-1", Body: "v2"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if store.docs["doc-1"] != "v2" {
		t.Fatalf("docs[doc-1] = %q, want v2", store.docs["doc-1"])
	}
}

type fakePipeline struct {
	lastKind GenerationKind
}

func (p *fakePipeline) Generate(ctx context.Context, kind GenerationKind, prompt string, seed int64) (*GeneratedAsset, error) {
	p.lastKind = kind
	return &GeneratedAsset{AssetID: "asset-1", URL: "https://example.test/asset-1"}, nil
}

func TestGenerationTool_RejectsUnknownKind(t *testing.T) {
	tool := &GenerationTool{Pipeline: &fakePipeline{}}
	_, err := tool.Handler(context.Background(), &GenerationParams{Kind: "audio", Prompt: "a sunrise"})
	toolErr, ok := err.(*ToolError)
	if !ok || toolErr.Kind != KindInvalidArguments {
		t.Fatalf("expected KindInvalidArguments, got %v", err)
	}
}

func TestGenerationTool_Success(t *testing.T) {
	pipeline := &fakePipeline{}
	tool := &GenerationTool{Pipeline: pipeline}
	result, err := tool.Handler(context.Background(), &GenerationParams{Kind: GenerationImage, Prompt: "a sunrise"})
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if pipeline.lastKind != GenerationImage {
		t.Fatalf("pipeline invoked with kind %q, want image", pipeline.lastKind)
	}
	if result.Full == nil || result.User == nil {
		t.Fatal("expected both Full and User responses")
	}
}
