package domain

// Plain request/response values exchanged with the backend gateway.

type FileUpload struct {
	FileName string
	MimeType string
	Content  []byte
}

type StoredFile struct {
	FilePath         string `json:"file_path"`
	Filename         string `json:"filename,omitempty"`
	OriginalFilename string `json:"original_filename,omitempty"`
	FileSize         int64  `json:"file_size,omitempty"`
}

type ProcessRequest struct {
	PathOrURL   string
	Category    string
	Subcategory string
}

type ChunkQuery struct {
	DocumentID string
	Limit      int
	Offset     int
}

// ChunkListing is the raw backend page. Total is nil unless the backend
// reports a total count across all pages.
type ChunkListing struct {
	Chunks []Chunk
	Total  *int
}

type SearchQuery struct {
	QueryText   string
	NResults    int
	ImagesOnly  bool
	TablesOnly  bool
	Category    string
	Subcategory string
}

type BackendHealth struct {
	Status  string `json:"status"`
	Service string `json:"service,omitempty"`
	Version string `json:"version,omitempty"`
}
