package domain

import (
	"sort"
	"strings"
)

const PDFMimeType = "application/pdf"

type UploadRequest struct {
	FileBytes   []byte
	FileName    string
	MimeType    string
	Category    string
	Subcategory string
}

// Validate checks the local preconditions of an upload.
func (r UploadRequest) Validate() error {
	if len(r.FileBytes) == 0 || r.MimeType != PDFMimeType {
		return ValidationError("not a pdf")
	}
	if strings.TrimSpace(r.Category) == "" {
		return ValidationError("category required")
	}
	return nil
}

type DocumentSummary struct {
	DocumentID  string `json:"document_id"`
	Filename    string `json:"filename"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`
	SourcePath  string `json:"source_path,omitempty"`
}

// SortDocuments orders summaries by filename, then id.
func SortDocuments(docs []DocumentSummary) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Filename != docs[j].Filename {
			return docs[i].Filename < docs[j].Filename
		}
		return docs[i].DocumentID < docs[j].DocumentID
	})
}

type ChunkMetadata struct {
	DocumentID  string `json:"document_id"`
	Filename    string `json:"filename"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`
	Title       string `json:"title,omitempty"`
	PageNumbers string `json:"page_numbers,omitempty"`
	SourcePath  string `json:"source_path,omitempty"`
	HasImages   bool   `json:"has_images"`
	ImageCount  int    `json:"image_count"`
	TableCount  int    `json:"table_count"`
}

type Chunk struct {
	ChunkID  string        `json:"chunk_id"`
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

type PageRequest struct {
	DocumentIDFilter string
	PageSize         int
	PageIndex        int
}

func (p PageRequest) Offset() int {
	return p.PageIndex * p.PageSize
}

func (p PageRequest) Validate() error {
	if p.PageSize <= 0 {
		return ValidationError("page size must be positive")
	}
	if p.PageIndex < 0 {
		return ValidationError("page index must not be negative")
	}
	return nil
}

// ChunkPage is one page of a chunk listing. Total and TotalPages are set only
// when the backend reports a total count.
type ChunkPage struct {
	Chunks     []Chunk `json:"chunks"`
	PageIndex  int     `json:"page_index"`
	PageSize   int     `json:"page_size"`
	HasMore    bool    `json:"has_more"`
	Total      *int    `json:"total,omitempty"`
	TotalPages *int    `json:"total_pages,omitempty"`
}
