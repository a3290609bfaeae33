package models

import "context"

// LabelStore persists labels and their chunks and answers the two retrieval
// queries: nearest neighbour by cosine distance and full-text match.
type LabelStore interface {
	// CreateLabel stores the label and its chunks in one transaction and sets label.ID.
	// It returns the number of chunks inserted.
	CreateLabel(ctx context.Context, label *Label, chunks []Chunk) (int, error)
	// PutChunks inserts chunks for an existing label. Chunks whose
	// (label, section, index) already exists are skipped.
	PutChunks(ctx context.Context, labelID int64, chunks []Chunk) (int, error)
	// GetLabel returns a label. RawResult is only populated when includeRaw is true.
	GetLabel(ctx context.Context, labelID int64, includeRaw bool) (*Label, error)
	// ListRecentLabels returns labels newest first, without sections or raw payload.
	ListRecentLabels(ctx context.Context, limit int) ([]Label, error)
	// DeleteLabel removes a label and, by cascade, its chunks.
	DeleteLabel(ctx context.Context, labelID int64) error
	GetChunk(ctx context.Context, chunkID int64) (*Chunk, error)
	// ChunksWithoutEmbeddings returns up to limit chunks lacking an embedding, by ascending ID.
	ChunksWithoutEmbeddings(ctx context.Context, limit int) ([]Chunk, error)
	// PutChunkEmbeddings stores vectors on their chunks. Chunks deleted since
	// they were read are skipped.
	PutChunkEmbeddings(ctx context.Context, embeddings []ChunkEmbedding) error
	// SearchNearest returns the k embedded chunks closest to vector, ascending by distance.
	SearchNearest(ctx context.Context, vector []float32, k int, labelID *int64) ([]Match, error)
	// SearchLexical returns up to k chunks matching query as English full text,
	// each reported at the given placeholder distance.
	SearchLexical(
		ctx context.Context,
		query string,
		k int,
		labelID *int64,
		distance float64,
	) ([]Match, error)
	// LockEmbeddings serialises embedding backfills across processes. The returned
	// func releases the lock.
	LockEmbeddings(ctx context.Context) (func(), error)
	Stats(ctx context.Context) (*StoreStats, error)
	Close() error
}
