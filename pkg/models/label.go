package models

import (
	"encoding/json"
	"time"
)

// Label is one fetched FDA drug label. Labels are never mutated once stored.
type Label struct {
	ID            int64             `json:"id"`
	DrugQuery     string            `json:"drug_query"`
	BrandName     string            `json:"brand_name"`
	GenericName   string            `json:"generic_name"`
	Manufacturer  string            `json:"manufacturer"`
	EffectiveTime string            `json:"effective_time"`
	Sections      map[string]string `json:"sections,omitempty"`
	RawResult     json.RawMessage   `json:"raw_result,omitempty"`
	FetchedAt     time.Time         `json:"fetched_at"`
}

// Chunk is a fixed-size slice of one section of one Label, identified by
// (LabelID, Section, ChunkIndex).
type Chunk struct {
	ID          int64     `json:"id"`
	LabelID     int64     `json:"label_id"`
	Section     string    `json:"section"`
	ChunkIndex  int       `json:"chunk_index"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash,omitempty"`
	Embedding   []float32 `json:"-"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// ChunkEmbedding pairs a stored chunk with its unit-norm vector.
type ChunkEmbedding struct {
	ChunkID   int64
	Embedding []float32
}

type StoreStats struct {
	Labels         int `json:"labels"`
	Chunks         int `json:"chunks"`
	EmbeddedChunks int `json:"embedded_chunks"`
}

type IngestSummary struct {
	LabelID       int64    `json:"label_id"`
	Drug          string   `json:"drug"`
	BrandName     string   `json:"brand_name"`
	GenericName   string   `json:"generic_name"`
	SectionsFound []string `json:"sections_found"`
	ChunkCount    int      `json:"chunk_count"`
	EmbeddedCount int      `json:"embedded_count"`
}

type CreateLabelRequest struct {
	DrugName string `json:"drug_name" validate:"required,max=200"`
}
