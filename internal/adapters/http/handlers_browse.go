package httpadapter

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/docling-console/internal/core/domain"
)

type chunkQuery struct {
	DocumentID string `validate:"max=256"`
	Page       int    `validate:"gte=0"`
	PageSize   int    `validate:"gte=1,lte=200"`
}

type searchBody struct {
	Query       string `json:"query" validate:"required"`
	MaxResults  int    `json:"max_results"`
	ImagesOnly  bool   `json:"images_only"`
	TablesOnly  bool   `json:"tables_only"`
	Category    string `json:"category" validate:"max=128"`
	Subcategory string `json:"subcategory" validate:"max=128"`
}

type searchResponse struct {
	Query   string                `json:"query"`
	Results []domain.SearchResult `json:"results"`
	Count   int                   `json:"count"`
}

func (rt *Router) listChunks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := chunkQuery{
		DocumentID: strings.TrimSpace(q.Get("document_id")),
		PageSize:   rt.cfg.ChunkPageSize,
	}
	var err error
	if raw := q.Get("page"); raw != "" {
		if query.Page, err = strconv.Atoi(raw); err != nil {
			writeError(w, domain.ValidationError("page must be an integer"))
			return
		}
	}
	if raw := q.Get("page_size"); raw != "" {
		if query.PageSize, err = strconv.Atoi(raw); err != nil {
			writeError(w, domain.ValidationError("page_size must be an integer"))
			return
		}
	}
	if err := rt.validate.Struct(query); err != nil {
		rt.validationFailure(w, err)
		return
	}

	page, err := rt.svc.Chunks.List(r.Context(), domain.PageRequest{
		DocumentIDFilter: query.DocumentID,
		PageSize:         query.PageSize,
		PageIndex:        query.Page,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := rt.svc.Chunks.Documents(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "count": len(docs)})
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	var body searchBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := rt.validate.Struct(body); err != nil {
		rt.validationFailure(w, err)
		return
	}

	results, err := rt.svc.Search.Search(r.Context(), body.Query, domain.SearchFilters{
		MaxResults:  body.MaxResults,
		ImagesOnly:  body.ImagesOnly,
		TablesOnly:  body.TablesOnly,
		Category:    body.Category,
		Subcategory: body.Subcategory,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.svc.Metrics != nil {
		rt.svc.Metrics.RecordSearch(serviceName, len(results))
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Query:   strings.TrimSpace(body.Query),
		Results: results,
		Count:   len(results),
	})
}
