package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"

	"github.com/rxevidence/rxevidence/pkg/models"
	"github.com/rxevidence/rxevidence/pkg/store"
)

const matchColumns = "lc.id, lc.label_id, lc.section, lc.chunk_index, lc.content"

// matchRow is the result row of both search queries.
type matchRow struct {
	ID         int64   `bun:"id"`
	LabelID    int64   `bun:"label_id"`
	Section    string  `bun:"section"`
	ChunkIndex int     `bun:"chunk_index"`
	Content    string  `bun:"content"`
	Distance   float64 `bun:"distance"`
}

type searchDAO struct {
	db         bun.IDB
	dimensions int
}

func newSearchDAO(db bun.IDB, dimensions int) *searchDAO {
	return &searchDAO{db: db, dimensions: dimensions}
}

// Nearest returns the k embedded chunks with the smallest cosine distance to
// vector. Ties are broken by chunk id.
func (dao *searchDAO) Nearest(
	ctx context.Context,
	vector []float32,
	k int,
	labelID *int64,
) ([]models.Match, error) {
	if k <= 0 {
		return []models.Match{}, nil
	}
	if dao.dimensions > 0 && len(vector) != dao.dimensions {
		return nil, store.NewEmbeddingMismatchError(
			fmt.Errorf("query has %d dimensions, column has %d", len(vector), dao.dimensions),
		)
	}

	var rows []matchRow
	query := dao.db.NewSelect().
		TableExpr("? AS lc", bun.Ident(chunkTable)).
		ColumnExpr(matchColumns).
		ColumnExpr("lc.embedding <=> ? AS distance", pgvector.NewVector(vector)).
		Where("lc.embedding IS NOT NULL")
	if labelID != nil {
		query = query.Where("lc.label_id = ?", *labelID)
	}

	err := query.
		OrderExpr("distance ASC, lc.id ASC").
		Limit(k).
		Scan(ctx, &rows)
	if err != nil {
		return nil, store.NewStorageError("failed to search chunks by embedding", err)
	}

	return toMatches(rows), nil
}

// Lexical returns up to k chunks whose content matches query as English full
// text, ranked by ts_rank. Every match is reported at distance.
func (dao *searchDAO) Lexical(
	ctx context.Context,
	query string,
	k int,
	labelID *int64,
	distance float64,
) ([]models.Match, error) {
	query = strings.TrimSpace(query)
	if k <= 0 || query == "" {
		return []models.Match{}, nil
	}

	var rows []matchRow
	q := dao.db.NewSelect().
		TableExpr("? AS lc", bun.Ident(chunkTable)).
		ColumnExpr(matchColumns).
		ColumnExpr("?::float8 AS distance", distance).
		Where("to_tsvector('english', lc.content) @@ plainto_tsquery('english', ?)", query)
	if labelID != nil {
		q = q.Where("lc.label_id = ?", *labelID)
	}

	err := q.
		OrderExpr(
			"ts_rank(to_tsvector('english', lc.content), plainto_tsquery('english', ?)) DESC, lc.id ASC",
			query,
		).
		Limit(k).
		Scan(ctx, &rows)
	if err != nil {
		return nil, store.NewStorageError("failed to search chunks by text", err)
	}

	return toMatches(rows), nil
}

func toMatches(rows []matchRow) []models.Match {
	matches := make([]models.Match, len(rows))
	for i, r := range rows {
		matches[i] = models.Match{
			ID:         r.ID,
			LabelID:    r.LabelID,
			Section:    r.Section,
			ChunkIndex: r.ChunkIndex,
			Content:    r.Content,
			Distance:   r.Distance,
		}
	}
	return matches
}
