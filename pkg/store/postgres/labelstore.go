package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/rxevidence/rxevidence/config"
	"github.com/rxevidence/rxevidence/pkg/models"
	"github.com/rxevidence/rxevidence/pkg/store"
)

// NewLabelStore returns a new LabelStore backed by Postgres and pgvector.
// The schema is created, and pending migrations applied, before returning.
func NewLabelStore(
	ctx context.Context,
	cfg *config.Config,
	client *bun.DB,
) (*LabelStore, error) {
	if client == nil {
		return nil, store.NewStorageError("nil client provided", nil)
	}

	if err := CreateSchema(ctx, cfg, client); err != nil {
		return nil, store.NewStorageError("failed to initialize store", err)
	}

	return &LabelStore{
		Client:     client,
		dimensions: cfg.Embeddings.Dimensions,
	}, nil
}

// Force compiler to validate that LabelStore implements the LabelStore interface.
var _ models.LabelStore = &LabelStore{}

type LabelStore struct {
	Client     *bun.DB
	dimensions int
}

func (ls *LabelStore) CreateLabel(
	ctx context.Context,
	label *models.Label,
	chunks []models.Chunk,
) (int, error) {
	if label == nil {
		return 0, errors.New("label cannot be nil")
	}

	dao := newLabelDAO(ls.Client)
	return dao.Create(ctx, label, chunks)
}

func (ls *LabelStore) PutChunks(
	ctx context.Context,
	labelID int64,
	chunks []models.Chunk,
) (int, error) {
	var inserted int
	err := ls.Client.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		n, err := newChunkDAO(tx, ls.dimensions).Create(ctx, labelID, chunks)
		inserted = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (ls *LabelStore) GetLabel(
	ctx context.Context,
	labelID int64,
	includeRaw bool,
) (*models.Label, error) {
	return newLabelDAO(ls.Client).Get(ctx, labelID, includeRaw)
}

func (ls *LabelStore) ListRecentLabels(ctx context.Context, limit int) ([]models.Label, error) {
	return newLabelDAO(ls.Client).ListRecent(ctx, limit)
}

func (ls *LabelStore) DeleteLabel(ctx context.Context, labelID int64) error {
	return newLabelDAO(ls.Client).Delete(ctx, labelID)
}

func (ls *LabelStore) GetChunk(ctx context.Context, chunkID int64) (*models.Chunk, error) {
	return newChunkDAO(ls.Client, ls.dimensions).Get(ctx, chunkID)
}

func (ls *LabelStore) ChunksWithoutEmbeddings(
	ctx context.Context,
	limit int,
) ([]models.Chunk, error) {
	return newChunkDAO(ls.Client, ls.dimensions).ListUnembedded(ctx, limit)
}

func (ls *LabelStore) PutChunkEmbeddings(
	ctx context.Context,
	embeddings []models.ChunkEmbedding,
) error {
	if len(embeddings) == 0 {
		return nil
	}
	return ls.Client.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return newChunkDAO(tx, ls.dimensions).PutEmbeddings(ctx, embeddings)
	})
}

func (ls *LabelStore) SearchNearest(
	ctx context.Context,
	vector []float32,
	k int,
	labelID *int64,
) ([]models.Match, error) {
	return newSearchDAO(ls.Client, ls.dimensions).Nearest(ctx, vector, k, labelID)
}

func (ls *LabelStore) SearchLexical(
	ctx context.Context,
	query string,
	k int,
	labelID *int64,
	distance float64,
) ([]models.Match, error) {
	return newSearchDAO(ls.Client, ls.dimensions).Lexical(ctx, query, k, labelID, distance)
}

func (ls *LabelStore) LockEmbeddings(ctx context.Context) (func(), error) {
	return lockSession(ctx, ls.Client, embeddingLockKey)
}

func (ls *LabelStore) Stats(ctx context.Context) (*models.StoreStats, error) {
	labels, err := ls.Client.NewSelect().Model((*LabelSchema)(nil)).Count(ctx)
	if err != nil {
		return nil, store.NewStorageError("failed to count labels", err)
	}

	chunks, err := ls.Client.NewSelect().Model((*ChunkSchema)(nil)).Count(ctx)
	if err != nil {
		return nil, store.NewStorageError("failed to count chunks", err)
	}

	embedded, err := ls.Client.NewSelect().
		Model((*ChunkSchema)(nil)).
		Where("? IS NOT NULL", bun.Ident(embeddingColumn)).
		Count(ctx)
	if err != nil {
		return nil, store.NewStorageError("failed to count embedded chunks", err)
	}

	return &models.StoreStats{
		Labels:         labels,
		Chunks:         chunks,
		EmbeddedChunks: embedded,
	}, nil
}

func (ls *LabelStore) Close() error {
	if ls.Client != nil {
		if err := ls.Client.Close(); err != nil {
			return fmt.Errorf("failed to close label store: %w", err)
		}
	}
	return nil
}
