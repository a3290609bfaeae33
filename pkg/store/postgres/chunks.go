package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jinzhu/copier"
	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"

	"github.com/rxevidence/rxevidence/pkg/models"
	"github.com/rxevidence/rxevidence/pkg/store"
)

type chunkDAO struct {
	db bun.IDB
	// dimensions is the embedding column width. Zero disables the width check.
	dimensions int
}

func newChunkDAO(db bun.IDB, dimensions int) *chunkDAO {
	return &chunkDAO{db: db, dimensions: dimensions}
}

// Create inserts chunks for labelID, skipping any whose
// (label_id, section, chunk_index) already exists, and returns the number inserted.
func (dao *chunkDAO) Create(
	ctx context.Context,
	labelID int64,
	chunks []models.Chunk,
) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	rows := make([]ChunkSchema, len(chunks))
	for i := range chunks {
		rows[i] = ChunkSchema{
			LabelID:     labelID,
			Section:     chunks[i].Section,
			ChunkIndex:  chunks[i].ChunkIndex,
			Content:     chunks[i].Content,
			ContentHash: chunks[i].ContentHash,
		}
	}

	r, err := dao.db.NewInsert().
		Model(&rows).
		On("CONFLICT (label_id, section, chunk_index) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return 0, store.NewStorageError("failed to insert chunks", err)
	}

	n, err := r.RowsAffected()
	if err != nil {
		return 0, store.NewStorageError("failed to get rows affected", err)
	}

	return int(n), nil
}

func (dao *chunkDAO) Get(ctx context.Context, chunkID int64) (*models.Chunk, error) {
	var row ChunkSchema
	err := dao.db.NewSelect().
		Model(&row).
		Where("lc.id = ?", chunkID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NewNotFoundError(fmt.Sprintf("chunk %d", chunkID))
		}
		return nil, store.NewStorageError("failed to get chunk", err)
	}

	var chunk models.Chunk
	if err := copier.Copy(&chunk, &row); err != nil {
		return nil, fmt.Errorf("failed to copy chunk: %w", err)
	}

	return &chunk, nil
}

// ListUnembedded returns up to limit chunks with a NULL embedding, oldest first.
func (dao *chunkDAO) ListUnembedded(ctx context.Context, limit int) ([]models.Chunk, error) {
	var rows []ChunkSchema
	err := dao.db.NewSelect().
		Model(&rows).
		Where("? IS NULL", bun.Ident(embeddingColumn)).
		Order("id").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, store.NewStorageError("failed to get unembedded chunks", err)
	}

	chunks := make([]models.Chunk, len(rows))
	if err := copier.Copy(&chunks, &rows); err != nil {
		return nil, fmt.Errorf("failed to copy chunks: %w", err)
	}

	return chunks, nil
}

// PutEmbeddings stores each vector on its chunk. Chunks that no longer exist
// are skipped.
func (dao *chunkDAO) PutEmbeddings(
	ctx context.Context,
	embeddings []models.ChunkEmbedding,
) error {
	for _, e := range embeddings {
		if dao.dimensions > 0 && len(e.Embedding) != dao.dimensions {
			return store.NewEmbeddingMismatchError(
				fmt.Errorf(
					"chunk %d: got %d dimensions, column has %d",
					e.ChunkID,
					len(e.Embedding),
					dao.dimensions,
				),
			)
		}

		r, err := dao.db.NewUpdate().
			Model((*ChunkSchema)(nil)).
			Set("? = ?", bun.Ident(embeddingColumn), pgvector.NewVector(e.Embedding)).
			Where("id = ?", e.ChunkID).
			Exec(ctx)
		if err != nil {
			return store.NewStorageError("failed to update chunk embedding", err)
		}
		// the chunk's label was deleted after the chunk was read
		if n, _ := r.RowsAffected(); n == 0 {
			log.Debugf("skipping embedding for deleted chunk %d", e.ChunkID)
		}
	}

	return nil
}
