package mcpadapter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/docling-console/internal/core/domain"
)

type searcherFake struct {
	query   string
	filters domain.SearchFilters
	err     error
}

func (f *searcherFake) Search(_ context.Context, queryText string, filters domain.SearchFilters) ([]domain.SearchResult, error) {
	f.query = queryText
	f.filters = filters
	if f.err != nil {
		return nil, f.err
	}
	return []domain.SearchResult{{ChunkID: "c-1", Distance: 0.12, DocumentText: "quarterly revenue table"}}, nil
}

type listerFake struct {
	page domain.PageRequest
}

func (f *listerFake) List(_ context.Context, page domain.PageRequest) (domain.ChunkPage, error) {
	f.page = page
	return domain.ChunkPage{Chunks: []domain.Chunk{{ChunkID: "c-1"}}, PageIndex: page.PageIndex, PageSize: page.PageSize}, nil
}

func (f *listerFake) Documents(context.Context) ([]domain.DocumentSummary, error) {
	return []domain.DocumentSummary{{DocumentID: "d-1", Filename: "a.pdf"}}, nil
}

type submitterFake struct {
	path string
}

func (f *submitterFake) Submit(context.Context, domain.UploadRequest) (string, error) {
	return "", errors.New("not used")
}

func (f *submitterFake) SubmitPath(_ context.Context, pathOrURL, _, _ string) (string, error) {
	f.path = pathOrURL
	return "t-1", nil
}

type tasksFake struct{}

func (tasksFake) Track(context.Context, string) error { return nil }

func (tasksFake) Snapshot(taskID string) (domain.TaskEvent, error) {
	if taskID != "t-1" {
		return domain.TaskEvent{}, domain.WrapError(domain.ErrNotFound, "snapshot", errors.New(taskID))
	}
	return domain.TaskEvent{TaskID: "t-1", State: domain.PollerSucceeded}, nil
}
func (tasksFake) Stop(string) error { return nil }

func (tasksFake) Revoke(context.Context, string) error { return nil }

func (tasksFake) Active() []domain.TaskEvent { return nil }

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", result.Content[0])
	}
	return text.Text
}

func newTestServer() (*Server, *searcherFake, *listerFake, *submitterFake) {
	searcher := &searcherFake{}
	lister := &listerFake{}
	submitter := &submitterFake{}
	return NewServer("docling-console", "test", Services{
		Submitter: submitter,
		Tasks:     tasksFake{},
		Chunks:    lister,
		Search:    searcher,
	}), searcher, lister, submitter
}

func TestSearchToolPassesFilters(t *testing.T) {
	s, searcher, _, _ := newTestServer()

	result, err := s.searchDocuments(context.Background(), callRequest("search_documents", map[string]any{
		"query":       "revenue",
		"max_results": float64(5),
		"tables_only": true,
		"category":    "finance",
	}))
	if err != nil {
		t.Fatalf("searchDocuments() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if searcher.query != "revenue" || searcher.filters.MaxResults != 5 || !searcher.filters.TablesOnly || searcher.filters.Category != "finance" {
		t.Fatalf("unexpected search call: %q %+v", searcher.query, searcher.filters)
	}
	if !strings.Contains(resultText(t, result), "quarterly revenue table") {
		t.Fatalf("result text missing chunk: %s", resultText(t, result))
	}
}

func TestSearchToolRequiresQuery(t *testing.T) {
	s, _, _, _ := newTestServer()

	result, err := s.searchDocuments(context.Background(), callRequest("search_documents", map[string]any{}))
	if err != nil {
		t.Fatalf("searchDocuments() error = %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error without query")
	}
}

func TestSearchToolSurfacesRemoteDetail(t *testing.T) {
	s, searcher, _, _ := newTestServer()
	searcher.err = &domain.RemoteError{Operation: "search documents", StatusCode: 503, Detail: "index warming up"}

	result, _ := s.searchDocuments(context.Background(), callRequest("search_documents", map[string]any{"query": "x"}))
	if !result.IsError || !strings.Contains(resultText(t, result), "index warming up") {
		t.Fatalf("expected remote detail in tool error, got %s", resultText(t, result))
	}
}

func TestListChunksToolDefaults(t *testing.T) {
	s, _, lister, _ := newTestServer()

	result, err := s.listChunks(context.Background(), callRequest("list_chunks", map[string]any{"document_id": "d-1", "page": float64(2)}))
	if err != nil || result.IsError {
		t.Fatalf("listChunks() failed: %v", err)
	}
	if lister.page.DocumentIDFilter != "d-1" || lister.page.PageIndex != 2 || lister.page.PageSize != defaultPageSize {
		t.Fatalf("unexpected page request: %+v", lister.page)
	}
}

func TestSubmitAndStatusTools(t *testing.T) {
	s, _, _, submitter := newTestServer()

	result, err := s.submitDocument(context.Background(), callRequest("submit_document", map[string]any{
		"path_or_url": "https://example.com/a.pdf",
		"category":    "manuals",
	}))
	if err != nil || result.IsError {
		t.Fatalf("submitDocument() failed: %v", err)
	}
	if submitter.path != "https://example.com/a.pdf" || !strings.Contains(resultText(t, result), "t-1") {
		t.Fatalf("unexpected submit result %s", resultText(t, result))
	}

	status, _ := s.taskStatus(context.Background(), callRequest("task_status", map[string]any{"task_id": "t-1"}))
	if status.IsError || !strings.Contains(resultText(t, status), "succeeded") {
		t.Fatalf("unexpected status result %s", resultText(t, status))
	}

	missing, _ := s.taskStatus(context.Background(), callRequest("task_status", map[string]any{"task_id": "nope"}))
	if !missing.IsError {
		t.Fatal("expected tool error for unknown task")
	}
}

func TestListDocumentsTool(t *testing.T) {
	s, _, _, _ := newTestServer()

	result, err := s.listDocuments(context.Background(), callRequest("list_documents", nil))
	if err != nil || result.IsError || !strings.Contains(resultText(t, result), "a.pdf") {
		t.Fatalf("listDocuments() unexpected: %v", err)
	}
}
