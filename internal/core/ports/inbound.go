package ports

import (
	"context"

	"github.com/kirillkom/docling-console/internal/core/domain"
)

// DocumentSubmitter validates and submits a PDF for processing.
type DocumentSubmitter interface {
	Submit(ctx context.Context, req domain.UploadRequest) (string, error)
	SubmitPath(ctx context.Context, pathOrURL, category, subcategory string) (string, error)
}

// ChunkLister is the paginated read model over ingested chunks.
type ChunkLister interface {
	List(ctx context.Context, page domain.PageRequest) (domain.ChunkPage, error)
	Documents(ctx context.Context) ([]domain.DocumentSummary, error)
}

// DocumentSearcher runs filtered semantic search.
type DocumentSearcher interface {
	Search(ctx context.Context, queryText string, filters domain.SearchFilters) ([]domain.SearchResult, error)
}

// TaskTracking owns the pollers of all tasks tracked by a process.
type TaskTracking interface {
	Track(ctx context.Context, taskID string) error
	Snapshot(taskID string) (domain.TaskEvent, error)
	Stop(taskID string) error
	Revoke(ctx context.Context, taskID string) error
	Active() []domain.TaskEvent
}
