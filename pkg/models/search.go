package models

// Match is a retrieved chunk and its cosine distance to the query.
type Match struct {
	ID         int64   `json:"id"`
	LabelID    int64   `json:"label_id"`
	Section    string  `json:"section"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Distance   float64 `json:"distance"`
}

type SearchResult struct {
	Matches      []Match `json:"matches"`
	UsedFallback bool    `json:"used_fallback"`
}

type Citation struct {
	ID         int64   `json:"id"`
	LabelID    int64   `json:"label_id"`
	Section    string  `json:"section"`
	ChunkIndex int     `json:"chunk_index"`
	Distance   float64 `json:"distance"`
}

type AnswerResult struct {
	Answer       string     `json:"answer"`
	Citations    []Citation `json:"citations"`
	UsedFallback bool       `json:"used_fallback"`
}

// SearchPayload is the request body for search and answer. LabelID narrows
// retrieval to a single label.
type SearchPayload struct {
	Query   string `json:"query"              validate:"required"`
	K       int    `json:"k,omitempty"        validate:"gte=0"`
	LabelID *int64 `json:"label_id,omitempty" validate:"omitempty,gt=0"`
}
