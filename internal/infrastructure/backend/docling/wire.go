package docling

import (
	"fmt"
	"math"
	"strings"

	"github.com/kirillkom/docling-console/internal/core/domain"
)

// Wire shapes of the backend's JSON API.

type uploadResponse struct {
	FilePath         string `json:"file_path"`
	Filename         string `json:"filename"`
	OriginalFilename string `json:"original_filename"`
	FileSize         int64  `json:"file_size"`
}

func (r uploadResponse) toDomain() domain.StoredFile {
	return domain.StoredFile{
		FilePath:         r.FilePath,
		Filename:         r.Filename,
		OriginalFilename: r.OriginalFilename,
		FileSize:         r.FileSize,
	}
}

type processRequest struct {
	PDFPathOrURL string `json:"pdf_path_or_url"`
	Category     string `json:"category"`
	Subcategory  string `json:"subcategory"`
}

type processResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type wireProgress struct {
	Stage    string  `json:"stage"`
	Progress float64 `json:"progress"`
}

type wireResult struct {
	ChunksProcessed int    `json:"chunks_processed"`
	DocumentID      string `json:"document_id"`
}

type taskStatusResponse struct {
	TaskID   string        `json:"task_id"`
	Status   string        `json:"status"`
	Progress *wireProgress `json:"progress"`
	Result   *wireResult   `json:"result"`
	Error    *string       `json:"error"`
}

func (r taskStatusResponse) toDomain(taskID string) (domain.IngestionTask, error) {
	status, defaultErr, ok := mapTaskStatus(r.Status)
	if !ok {
		return domain.IngestionTask{}, fmt.Errorf("unknown task status %q", r.Status)
	}

	task := domain.IngestionTask{TaskID: taskID, Status: status}
	if status == domain.TaskStarted && r.Progress != nil {
		task.Progress = &domain.TaskProgress{
			Stage:   r.Progress.Stage,
			Percent: int(math.Round(r.Progress.Progress)),
		}
	}
	if status == domain.TaskSuccess && r.Result != nil {
		task.Result = &domain.TaskResult{
			ChunksProcessed: r.Result.ChunksProcessed,
			DocumentID:      r.Result.DocumentID,
		}
	}
	if status == domain.TaskFailure {
		if r.Error != nil {
			task.ErrorMessage = strings.TrimSpace(*r.Error)
		}
		if task.ErrorMessage == "" {
			task.ErrorMessage = defaultErr
		}
	}
	return task.Normalize(), nil
}

// mapTaskStatus folds the backend's queue states onto the four-state model.
func mapTaskStatus(raw string) (domain.TaskStatus, string, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PENDING", "RECEIVED":
		return domain.TaskPending, "", true
	case "STARTED", "PROGRESS", "RETRY":
		return domain.TaskStarted, "", true
	case "SUCCESS":
		return domain.TaskSuccess, "", true
	case "FAILURE":
		return domain.TaskFailure, "task failed", true
	case "REVOKED":
		return domain.TaskFailure, "task revoked", true
	default:
		return "", "", false
	}
}

type searchRequest struct {
	QueryText         string  `json:"query_text"`
	NResults          int     `json:"n_results"`
	CategoryFilter    *string `json:"category_filter,omitempty"`
	SubcategoryFilter *string `json:"subcategory_filter,omitempty"`
	ImagesOnly        bool    `json:"images_only"`
	TablesOnly        bool    `json:"tables_only"`
}

func newSearchRequest(query domain.SearchQuery) searchRequest {
	req := searchRequest{
		QueryText:  query.QueryText,
		NResults:   query.NResults,
		ImagesOnly: query.ImagesOnly,
		TablesOnly: query.TablesOnly,
	}
	if query.Category != "" {
		category := query.Category
		req.CategoryFilter = &category
	}
	if query.Subcategory != "" {
		subcategory := query.Subcategory
		req.SubcategoryFilter = &subcategory
	}
	return req
}

type searchResponse struct {
	Query   string                `json:"query"`
	Results []domain.SearchResult `json:"results"`
	Count   int                   `json:"count"`
}

func (r searchResponse) toDomain() []domain.SearchResult {
	if r.Results == nil {
		return []domain.SearchResult{}
	}
	return r.Results
}

type chunksResponse struct {
	Chunks []domain.Chunk `json:"chunks"`
	Count  int            `json:"count"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
	Total  *int           `json:"total"`
}

func (r chunksResponse) toDomain() domain.ChunkListing {
	chunks := r.Chunks
	if chunks == nil {
		chunks = []domain.Chunk{}
	}
	return domain.ChunkListing{Chunks: chunks, Total: r.Total}
}

type wireDocument struct {
	Filename    string  `json:"filename"`
	Category    string  `json:"category"`
	Subcategory *string `json:"subcategory"`
	SourcePath  string  `json:"source_path"`
}

type documentsResponse struct {
	Documents map[string]wireDocument `json:"documents"`
	Count     int                     `json:"count"`
}

func (r documentsResponse) toDomain() []domain.DocumentSummary {
	out := make([]domain.DocumentSummary, 0, len(r.Documents))
	for id, doc := range r.Documents {
		summary := domain.DocumentSummary{
			DocumentID: id,
			Filename:   doc.Filename,
			Category:   doc.Category,
			SourcePath: doc.SourcePath,
		}
		if doc.Subcategory != nil {
			summary.Subcategory = *doc.Subcategory
		}
		out = append(out, summary)
	}
	domain.SortDocuments(out)
	return out
}
