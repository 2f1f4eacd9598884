package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/docling-console/internal/core/domain"
	"github.com/kirillkom/docling-console/internal/core/ports"
)

const defaultPageSize = 10

// Services are the core ports exposed as MCP tools.
type Services struct {
	Submitter ports.DocumentSubmitter
	Tasks     ports.TaskTracking
	Chunks    ports.ChunkLister
	Search    ports.DocumentSearcher
	Logger    *slog.Logger
}

type Server struct {
	svc    Services
	logger *slog.Logger
	mcp    *server.MCPServer
}

func NewServer(name, version string, svc Services) *Server {
	logger := svc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:    svc,
		logger: logger,
		mcp:    server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
	}
	s.registerTools()
	return s
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Semantic search over ingested PDF chunks, most relevant first."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language query")),
		mcp.WithNumber("max_results", mcp.Description("Number of results, 1 to 50")),
		mcp.WithBoolean("images_only", mcp.Description("Only chunks containing images")),
		mcp.WithBoolean("tables_only", mcp.Description("Only chunks containing tables")),
		mcp.WithString("category", mcp.Description("Category filter")),
		mcp.WithString("subcategory", mcp.Description("Subcategory filter")),
	), s.searchDocuments)

	s.mcp.AddTool(mcp.NewTool("list_chunks",
		mcp.WithDescription("Page through ingested chunks, optionally for one document."),
		mcp.WithString("document_id", mcp.Description("Restrict to one document")),
		mcp.WithNumber("page", mcp.Description("Zero-based page index")),
		mcp.WithNumber("page_size", mcp.Description("Chunks per page")),
	), s.listChunks)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List ingested documents sorted by filename."),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("submit_document",
		mcp.WithDescription("Start ingestion of a PDF already stored on the backend or reachable by URL."),
		mcp.WithString("path_or_url", mcp.Required(), mcp.Description("Backend path or http(s) URL of the PDF")),
		mcp.WithString("category", mcp.Required(), mcp.Description("Document category")),
		mcp.WithString("subcategory", mcp.Description("Document subcategory")),
	), s.submitDocument)

	s.mcp.AddTool(mcp.NewTool("task_status",
		mcp.WithDescription("Latest known state of an ingestion task."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id returned by submit_document")),
	), s.taskStatus)
}

func (s *Server) searchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search.Search(ctx, query, domain.SearchFilters{
		MaxResults:  request.GetInt("max_results", 0),
		ImagesOnly:  request.GetBool("images_only", false),
		TablesOnly:  request.GetBool("tables_only", false),
		Category:    request.GetString("category", ""),
		Subcategory: request.GetString("subcategory", ""),
	})
	if err != nil {
		return s.toolError("search_documents", err), nil
	}
	return jsonResult(map[string]any{"query": query, "results": results, "count": len(results)})
}

func (s *Server) listChunks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page, err := s.svc.Chunks.List(ctx, domain.PageRequest{
		DocumentIDFilter: request.GetString("document_id", ""),
		PageIndex:        request.GetInt("page", 0),
		PageSize:         request.GetInt("page_size", defaultPageSize),
	})
	if err != nil {
		return s.toolError("list_chunks", err), nil
	}
	return jsonResult(page)
}

func (s *Server) listDocuments(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.svc.Chunks.Documents(ctx)
	if err != nil {
		return s.toolError("list_documents", err), nil
	}
	return jsonResult(map[string]any{"documents": docs, "count": len(docs)})
}

func (s *Server) submitDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pathOrURL, err := request.RequireString("path_or_url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	category, err := request.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	taskID, err := s.svc.Submitter.SubmitPath(ctx, pathOrURL, category, request.GetString("subcategory", ""))
	if err != nil && taskID == "" {
		return s.toolError("submit_document", err), nil
	}
	return jsonResult(map[string]string{"task_id": taskID})
}

func (s *Server) taskStatus(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := request.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	event, err := s.svc.Tasks.Snapshot(taskID)
	if err != nil {
		return s.toolError("task_status", err), nil
	}
	return jsonResult(event)
}

func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	s.logger.Warn("mcp_tool_failed", "tool", tool, "error", err)
	if detail, ok := domain.RemoteDetail(err); ok && detail != "" {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", tool, detail))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", tool, err))
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
