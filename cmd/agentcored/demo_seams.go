package main

// In-memory implementations of the internal tool seams (toolkit.Searcher,
// toolkit.ContextSink, toolkit.CollectionStore, toolkit.DocumentStore,
// toolkit.GenerationPipeline). Real deployments swap these for a search
// vendor client, the session store's context writer, and a database/media
// pipeline respectively (spec §1 Non-goals, §4.2); this daemon's job is to
// prove every internal tool dispatches end to end, not to host them.

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/atelierai/agentcore/internal/sessionmgr"
	"github.com/atelierai/agentcore/internal/toolkit"
	"github.com/atelierai/agentcore/pkg/models"
)

// demoSearcher returns a single canned hit so the "search" tool has
// something to report without an outbound network call.
type demoSearcher struct{}

func (demoSearcher) Search(ctx context.Context, query string, maxResults int) ([]toolkit.SearchResult, error) {
	return []toolkit.SearchResult{{
		Title:   fmt.Sprintf("about %q", query),
		URL:     "https://example.invalid/search?q=" + query,
		Snippet: "demo search result; wire a real vendor client for production",
	}}, nil
}

// demoContextSink appends saved facts straight onto the session's Context
// slice, the same place the context evaluator and compactor read from.
type demoContextSink struct {
	store sessionmgr.Store
}

func (d *demoContextSink) AddContextEntry(ctx context.Context, sessionID string, entry models.ContextEntry) error {
	session, err := d.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	session.Context = append(session.Context, entry)
	return d.store.Update(ctx, session)
}

// demoCollectionStore keeps saved-collection items in process memory, keyed
// by (userID, collection, itemID).
type demoCollectionStore struct {
	mu    sync.Mutex
	items map[string]map[string]any
}

func newDemoCollectionStore() *demoCollectionStore {
	return &demoCollectionStore{items: make(map[string]map[string]any)}
}

func collectionKey(userID, collection, itemID string) string {
	return userID + "/" + collection + "/" + itemID
}

func (d *demoCollectionStore) CreateItem(ctx context.Context, userID, collection string, fields map[string]any) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	itemID := uuid.NewString()
	d.items[collectionKey(userID, collection, itemID)] = fields
	return itemID, nil
}

func (d *demoCollectionStore) UpdateItem(ctx context.Context, userID, collection, itemID string, fields map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := collectionKey(userID, collection, itemID)
	if _, ok := d.items[key]; !ok {
		return fmt.Errorf("collection item %s not found", itemID)
	}
	d.items[key] = fields
	return nil
}

func (d *demoCollectionStore) DeleteItem(ctx context.Context, userID, collection, itemID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := collectionKey(userID, collection, itemID)
	if _, ok := d.items[key]; !ok {
		return fmt.Errorf("collection item %s not found", itemID)
	}
	delete(d.items, key)
	return nil
}

// demoDocumentStore keeps documents in process memory, keyed by
// (userID, documentID).
type demoDocumentStore struct {
	mu   sync.Mutex
	docs map[string]struct{ title, body string }
}

func newDemoDocumentStore() *demoDocumentStore {
	return &demoDocumentStore{docs: make(map[string]struct{ title, body string })}
}

func documentKey(userID, documentID string) string { return userID + "/" + documentID }

func (d *demoDocumentStore) CreateDocument(ctx context.Context, userID, title, body string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	documentID := uuid.NewString()
	d.docs[documentKey(userID, documentID)] = struct{ title, body string }{title, body}
	return documentID, nil
}

func (d *demoDocumentStore) UpdateDocument(ctx context.Context, userID, documentID, title, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := documentKey(userID, documentID)
	if _, ok := d.docs[key]; !ok {
		return fmt.Errorf("document %s not found", documentID)
	}
	d.docs[key] = struct{ title, body string }{title, body}
	return nil
}

func (d *demoDocumentStore) DeleteDocument(ctx context.Context, userID, documentID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := documentKey(userID, documentID)
	if _, ok := d.docs[key]; !ok {
		return fmt.Errorf("document %s not found", documentID)
	}
	delete(d.docs, key)
	return nil
}

// demoGenerationPipeline stands in for an image/video generation backend.
// It returns a deterministic placeholder asset rather than calling out to a
// diffusion or rendering API (spec §1 Non-goals).
type demoGenerationPipeline struct{}

func (demoGenerationPipeline) Generate(ctx context.Context, kind toolkit.GenerationKind, prompt string, seed int64) (*toolkit.GeneratedAsset, error) {
	assetID := uuid.NewString()
	return &toolkit.GeneratedAsset{
		AssetID: assetID,
		URL:     fmt.Sprintf("https://example.invalid/assets/%s/%s.bin", kind, assetID),
	}, nil
}

// demoMembershipResolver treats every user as an active member of any
// organization it names as its own, and derives a stable personal
// organization id of "personal:<userID>" — enough to exercise
// ledger.ResolveSubject (spec §4.7) without a real identity store.
type demoMembershipResolver struct{}

func (demoMembershipResolver) ActiveMember(ctx context.Context, userID, organizationID string) (bool, error) {
	return organizationID != "", nil
}

func (demoMembershipResolver) PersonalOrganization(ctx context.Context, userID string) (string, error) {
	return "personal:" + userID, nil
}
