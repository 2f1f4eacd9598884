package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/docling-console/internal/core/domain"
	"github.com/kirillkom/docling-console/internal/core/ports"
)

// ChunkBrowser is a paginated, document-filterable listing of ingested chunks.
type ChunkBrowser struct {
	gateway ports.BackendGateway
}

func NewChunkBrowser(gateway ports.BackendGateway) *ChunkBrowser {
	return &ChunkBrowser{gateway: gateway}
}

// List returns one page. HasMore comes from the backend total when it
// reports one, otherwise from a full page (returned count == page size).
func (b *ChunkBrowser) List(ctx context.Context, page domain.PageRequest) (domain.ChunkPage, error) {
	if err := page.Validate(); err != nil {
		return domain.ChunkPage{}, err
	}

	listing, err := b.gateway.ListChunks(ctx, domain.ChunkQuery{
		DocumentID: strings.TrimSpace(page.DocumentIDFilter),
		Limit:      page.PageSize,
		Offset:     page.Offset(),
	})
	if err != nil {
		return domain.ChunkPage{}, fmt.Errorf("list chunks: %w", err)
	}

	chunks := listing.Chunks
	if len(chunks) > page.PageSize {
		chunks = chunks[:page.PageSize]
	}
	if chunks == nil {
		chunks = []domain.Chunk{}
	}

	out := domain.ChunkPage{
		Chunks:    chunks,
		PageIndex: page.PageIndex,
		PageSize:  page.PageSize,
	}
	if listing.Total != nil {
		total := *listing.Total
		totalPages := (total + page.PageSize - 1) / page.PageSize
		out.Total = &total
		out.TotalPages = &totalPages
		out.HasMore = page.Offset()+len(chunks) < total
		return out, nil
	}
	out.HasMore = len(chunks) == page.PageSize
	return out, nil
}

// Documents lists the backend's document index, ordered by filename.
func (b *ChunkBrowser) Documents(ctx context.Context) ([]domain.DocumentSummary, error) {
	docs, err := b.gateway.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	out := make([]domain.DocumentSummary, len(docs))
	copy(out, docs)
	domain.SortDocuments(out)
	return out, nil
}
