package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/docling-console/internal/core/domain"
	"github.com/kirillkom/docling-console/internal/core/ports"
)

// SearchOrchestrator issues filtered semantic-search queries. Results keep
// the backend order, which is expected to be ascending by distance.
type SearchOrchestrator struct {
	gateway ports.BackendGateway
	policy  domain.ResultLimitPolicy
	logger  *slog.Logger
	metrics SearchMetrics
}

// SearchMetrics counts result sets that arrive out of distance order.
type SearchMetrics interface {
	ObserveUnorderedResults()
}

func NewSearchOrchestrator(gateway ports.BackendGateway, policy domain.ResultLimitPolicy, logger *slog.Logger) *SearchOrchestrator {
	if policy != domain.LimitReject {
		policy = domain.LimitClamp
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchOrchestrator{gateway: gateway, policy: policy, logger: logger}
}

func (s *SearchOrchestrator) WithMetrics(metrics SearchMetrics) *SearchOrchestrator {
	s.metrics = metrics
	return s
}

func (s *SearchOrchestrator) Search(ctx context.Context, queryText string, filters domain.SearchFilters) ([]domain.SearchResult, error) {
	query := strings.TrimSpace(queryText)
	if query == "" {
		return nil, domain.ValidationError("query text required")
	}
	n, err := s.resolveLimit(filters.MaxResults)
	if err != nil {
		return nil, err
	}

	results, err := s.gateway.SearchDocuments(ctx, domain.SearchQuery{
		QueryText:   query,
		NResults:    n,
		ImagesOnly:  filters.ImagesOnly,
		TablesOnly:  filters.TablesOnly,
		Category:    strings.TrimSpace(filters.Category),
		Subcategory: strings.TrimSpace(filters.Subcategory),
	})
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	if results == nil {
		results = []domain.SearchResult{}
	}
	if !domain.AscendingByDistance(results) {
		s.logger.Warn("search_results_unordered", "query", query, "results", len(results))
		if s.metrics != nil {
			s.metrics.ObserveUnorderedResults()
		}
	}
	return results, nil
}

func (s *SearchOrchestrator) resolveLimit(requested int) (int, error) {
	if s.policy == domain.LimitReject {
		if requested < domain.MinSearchResults || requested > domain.MaxSearchResults {
			return 0, domain.ValidationError(fmt.Sprintf("max results must be within [%d,%d], got %d",
				domain.MinSearchResults, domain.MaxSearchResults, requested))
		}
		return requested, nil
	}

	switch {
	case requested == 0:
		return domain.DefaultSearchResults, nil
	case requested < domain.MinSearchResults:
		return domain.MinSearchResults, nil
	case requested > domain.MaxSearchResults:
		return domain.MaxSearchResults, nil
	default:
		return requested, nil
	}
}
