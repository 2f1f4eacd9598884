package ports

import (
	"context"

	"github.com/kirillkom/docling-console/internal/core/domain"
)

// BackendGateway is the typed boundary to the document-processing service.
// One method per endpoint, no retries, no caching.
type BackendGateway interface {
	UploadFile(ctx context.Context, file domain.FileUpload) (domain.StoredFile, error)
	ProcessDocument(ctx context.Context, req domain.ProcessRequest) (string, error)
	GetTaskStatus(ctx context.Context, taskID string) (domain.IngestionTask, error)
	SearchDocuments(ctx context.Context, query domain.SearchQuery) ([]domain.SearchResult, error)
	ListChunks(ctx context.Context, query domain.ChunkQuery) (domain.ChunkListing, error)
	ListDocuments(ctx context.Context) ([]domain.DocumentSummary, error)
	RevokeTask(ctx context.Context, taskID string) error
	Health(ctx context.Context) (domain.BackendHealth, error)
}

// TaskStatusSource is the slice of the gateway a poller needs.
type TaskStatusSource interface {
	GetTaskStatus(ctx context.Context, taskID string) (domain.IngestionTask, error)
}

// TaskEventSink receives explicit task state transitions.
type TaskEventSink interface {
	PublishTaskEvent(ctx context.Context, event domain.TaskEvent) error
}

// TaskJournal persists submissions and their latest outcome.
type TaskJournal interface {
	RecordSubmission(ctx context.Context, submission domain.Submission) error
	ApplyEvent(ctx context.Context, event domain.TaskEvent) error
	GetTask(ctx context.Context, taskID string) (*domain.TaskRecord, error)
	ListRecent(ctx context.Context, limit int) ([]domain.TaskRecord, error)
}

// SubmissionQueue hands task ids to background trackers.
type SubmissionQueue interface {
	PublishTaskSubmitted(ctx context.Context, taskID string) error
	SubscribeTaskSubmitted(ctx context.Context, handler func(context.Context, string) error) error
}
