package domain

const (
	MinSearchResults     = 1
	MaxSearchResults     = 50
	DefaultSearchResults = 10
)

// ResultLimitPolicy decides what happens to an out-of-range MaxResults.
type ResultLimitPolicy string

const (
	LimitClamp  ResultLimitPolicy = "clamp"
	LimitReject ResultLimitPolicy = "reject"
)

type SearchFilters struct {
	MaxResults  int
	ImagesOnly  bool
	TablesOnly  bool
	Category    string
	Subcategory string
}

type SearchResult struct {
	ChunkID      string        `json:"chunk_id"`
	Distance     float64       `json:"distance"`
	DocumentText string        `json:"document_text"`
	Metadata     ChunkMetadata `json:"metadata"`
}

// AscendingByDistance reports whether results are ordered most-relevant first.
func AscendingByDistance(results []SearchResult) bool {
	for i := 1; i < len(results); i++ {
		if results[i].Distance < results[i-1].Distance {
			return false
		}
	}
	return true
}
