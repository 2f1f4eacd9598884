package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/kirillkom/docling-console/internal/core/domain"
)

type statusReply struct {
	task domain.IngestionTask
	err  error
	// block holds the reply until closed or the request context ends.
	block chan struct{}
}

type gatewayFake struct {
	mu sync.Mutex

	stored    domain.StoredFile
	uploadErr error
	uploads   []domain.FileUpload

	taskID     string
	processErr error
	processed  []domain.ProcessRequest

	replies     []statusReply
	statusCalls int
	entered     chan struct{}

	chunks     []domain.Chunk
	chunkTotal *int
	chunkErr   error
	chunkCalls []domain.ChunkQuery

	docs []domain.DocumentSummary

	results     []domain.SearchResult
	searchErr   error
	searchCalls []domain.SearchQuery

	revoked   []string
	revokeErr error
}

func (f *gatewayFake) UploadFile(_ context.Context, file domain.FileUpload) (domain.StoredFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, file)
	if f.uploadErr != nil {
		return domain.StoredFile{}, f.uploadErr
	}
	return f.stored, nil
}

func (f *gatewayFake) ProcessDocument(_ context.Context, req domain.ProcessRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, req)
	if f.processErr != nil {
		return "", f.processErr
	}
	return f.taskID, nil
}

func (f *gatewayFake) GetTaskStatus(ctx context.Context, taskID string) (domain.IngestionTask, error) {
	f.mu.Lock()
	f.statusCalls++
	if len(f.replies) == 0 {
		f.mu.Unlock()
		return domain.IngestionTask{}, errors.New("no reply configured")
	}
	idx := f.statusCalls - 1
	if idx >= len(f.replies) {
		idx = len(f.replies) - 1
	}
	reply := f.replies[idx]
	entered := f.entered
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if reply.block != nil {
		select {
		case <-reply.block:
		case <-ctx.Done():
			return domain.IngestionTask{}, domain.WrapError(domain.ErrTransport, "get task status", ctx.Err())
		}
	}
	task := reply.task
	task.TaskID = taskID
	return task, reply.err
}

func (f *gatewayFake) SearchDocuments(_ context.Context, query domain.SearchQuery) ([]domain.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls = append(f.searchCalls, query)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.results == nil {
		return nil, nil
	}
	out := make([]domain.SearchResult, 0, len(f.results))
	for _, result := range f.results {
		if query.TablesOnly && result.Metadata.TableCount == 0 {
			continue
		}
		if query.ImagesOnly && !result.Metadata.HasImages {
			continue
		}
		if len(out) == query.NResults {
			break
		}
		out = append(out, result)
	}
	return out, nil
}

func (f *gatewayFake) ListChunks(_ context.Context, query domain.ChunkQuery) (domain.ChunkListing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunkCalls = append(f.chunkCalls, query)
	if f.chunkErr != nil {
		return domain.ChunkListing{}, f.chunkErr
	}
	filtered := make([]domain.Chunk, 0, len(f.chunks))
	for _, chunk := range f.chunks {
		if query.DocumentID == "" || chunk.Metadata.DocumentID == query.DocumentID {
			filtered = append(filtered, chunk)
		}
	}
	start := min(query.Offset, len(filtered))
	end := min(start+query.Limit, len(filtered))
	return domain.ChunkListing{Chunks: filtered[start:end], Total: f.chunkTotal}, nil
}

func (f *gatewayFake) ListDocuments(context.Context) ([]domain.DocumentSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs, nil
}

func (f *gatewayFake) RevokeTask(_ context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revokeErr != nil {
		return f.revokeErr
	}
	f.revoked = append(f.revoked, taskID)
	return nil
}

func (f *gatewayFake) Health(context.Context) (domain.BackendHealth, error) {
	return domain.BackendHealth{Status: "healthy"}, nil
}

func (f *gatewayFake) calls() (uploads, processed, status, search, chunks int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads), len(f.processed), f.statusCalls, len(f.searchCalls), len(f.chunkCalls)
}

func pending() statusReply {
	return statusReply{task: domain.IngestionTask{Status: domain.TaskPending}}
}

func started(stage string, percent int) statusReply {
	return statusReply{task: domain.IngestionTask{
		Status:   domain.TaskStarted,
		Progress: &domain.TaskProgress{Stage: stage, Percent: percent},
	}}
}

func succeeded(chunks int, documentID string) statusReply {
	return statusReply{task: domain.IngestionTask{
		Status: domain.TaskSuccess,
		Result: &domain.TaskResult{ChunksProcessed: chunks, DocumentID: documentID},
	}}
}

func failed(message string) statusReply {
	return statusReply{task: domain.IngestionTask{Status: domain.TaskFailure, ErrorMessage: message}}
}
