package toolkit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atelierai/agentcore/pkg/models"
)

// SearchResult is a single hit returned by a Searcher.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher performs the actual web search for the "search" tool. Concrete
// implementations (a vendor search API client) live outside the core per
// spec §1's Non-goals; this interface is the seam.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// SearchTool is the built-in "search" internal tool (spec §4.2).
type SearchTool struct {
	Searcher Searcher
	CreditCost int
}

func (t *SearchTool) Name() string        { return "search" }
func (t *SearchTool) Description() string { return "Search the web for information relevant to the current task." }
func (t *SearchTool) Cost() int            { return t.CreditCost }
func (t *SearchTool) NewParams() Params    { return &SearchParams{} }

func (t *SearchTool) Handler(ctx context.Context, p Params) (*HandlerResult, error) {
	sp, ok := p.(*SearchParams)
	if !ok {
		return nil, ErrInvalidArguments(t.Name(), "", "wrong parameter type")
	}
	if sp.Query == "" {
		return nil, ErrInvalidArguments(t.Name(), "query", "required")
	}
	if t.Searcher == nil {
		return nil, errors.New("search: no searcher configured")
	}
	maxResults := sp.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	results, err := t.Searcher.Search(ctx, sp.Query, maxResults)
	if err != nil {
		return nil, err
	}
	return &HandlerResult{
		Full: &models.FullToolResponse{ToolName: t.Name(), Response: results},
		User: &models.UserToolResponse{
			ToolName: t.Name(),
			Summary:  fmt.Sprintf("<%d results>", len(results)),
			Icon:     "search",
			Data:     results,
		},
	}, nil
}

// FetchURLTool is the built-in "fetch-url" internal tool. It uses the
// standard library HTTP client directly: this is a single bounded GET, not
// the scraper business logic spec.md places out of scope.
type FetchURLTool struct {
	Client     *http.Client
	CreditCost int
	MaxBytes   int64
}

func (t *FetchURLTool) Name() string        { return "fetch-url" }
func (t *FetchURLTool) Description() string { return "Fetch the textual content of a URL." }
func (t *FetchURLTool) Cost() int            { return t.CreditCost }
func (t *FetchURLTool) NewParams() Params    { return &FetchURLParams{} }

func (t *FetchURLTool) Handler(ctx context.Context, p Params) (*HandlerResult, error) {
	fp, ok := p.(*FetchURLParams)
	if !ok {
		return nil, ErrInvalidArguments(t.Name(), "", "wrong parameter type")
	}
	if fp.URL == "" {
		return nil, ErrInvalidArguments(t.Name(), "url", "required")
	}

	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	maxBytes := t.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fp.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch-url: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch-url: network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("fetch-url: upstream returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, &ToolError{Kind: KindFatal, ToolName: t.Name(), Reason: fmt.Sprintf("upstream returned %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch-url: reading body: %w", err)
	}

	content := string(body)
	return &HandlerResult{
		Full: &models.FullToolResponse{ToolName: t.Name(), Response: map[string]any{"url": fp.URL, "content": content}},
		User: &models.UserToolResponse{
			ToolName: t.Name(),
			Summary:  fmt.Sprintf("fetched %d bytes from %s", len(body), fp.URL),
			Icon:     "link",
		},
	}, nil
}

// ContextSink is the seam through which the save-context tool appends a
// ContextEntry to the active session, without pulling the session manager
// into this package.
type ContextSink interface {
	AddContextEntry(ctx context.Context, sessionID string, entry models.ContextEntry) error
}

// SaveContextTool is the built-in "save-context" internal tool. It has no
// credit cost: persisting a fact is bookkeeping, not a billable capability.
type SaveContextTool struct {
	Sink ContextSink
}

func (t *SaveContextTool) Name() string        { return "save-context" }
func (t *SaveContextTool) Description() string { return "Persist a durable fact to the session's context, surviving compaction." }
func (t *SaveContextTool) Cost() int            { return 0 }
func (t *SaveContextTool) NewParams() Params    { return &SaveContextParams{} }

func (t *SaveContextTool) Handler(ctx context.Context, p Params) (*HandlerResult, error) {
	sp, ok := p.(*SaveContextParams)
	if !ok {
		return nil, ErrInvalidArguments(t.Name(), "", "wrong parameter type")
	}
	if sp.Content == "" {
		return nil, ErrInvalidArguments(t.Name(), "content", "required")
	}
	sessionID, ok := SessionIDFromContext(ctx)
	if !ok || sessionID == "" {
		return nil, &ToolError{Kind: KindFatal, ToolName: t.Name(), Reason: "no active session in context"}
	}
	entry := models.ContextEntry{Content: sp.Content, Source: sp.Source, Timestamp: time.Now()}
	if t.Sink != nil {
		if err := t.Sink.AddContextEntry(ctx, sessionID, entry); err != nil {
			return nil, fmt.Errorf("save-context: %w", err)
		}
	}
	return &HandlerResult{
		Full: &models.FullToolResponse{ToolName: t.Name(), Response: entry},
		User: &models.UserToolResponse{ToolName: t.Name(), Summary: "saved context entry", Icon: "memo"},
	}, nil
}

var (
	_ Tool = (*SearchTool)(nil)
	_ Tool = (*FetchURLTool)(nil)
	_ Tool = (*SaveContextTool)(nil)
)
