package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jinzhu/copier"
	"github.com/uptrace/bun"

	"github.com/rxevidence/rxevidence/pkg/models"
	"github.com/rxevidence/rxevidence/pkg/store"
)

// labelListColumns excludes the section map and the raw payload.
var labelListColumns = []string{
	"id",
	"drug_query",
	"brand_name",
	"generic_name",
	"manufacturer",
	"effective_time",
	"fetched_at",
}

type labelDAO struct {
	db *bun.DB
}

func newLabelDAO(db *bun.DB) *labelDAO {
	return &labelDAO{db: db}
}

// Create inserts the label and its chunks atomically. label.ID and
// label.FetchedAt are set from the inserted row.
func (dao *labelDAO) Create(
	ctx context.Context,
	label *models.Label,
	chunks []models.Chunk,
) (int, error) {
	row := LabelSchema{
		DrugQuery:     label.DrugQuery,
		BrandName:     label.BrandName,
		GenericName:   label.GenericName,
		Manufacturer:  label.Manufacturer,
		EffectiveTime: label.EffectiveTime,
		Sections:      label.Sections,
		RawResult:     label.RawResult,
	}
	if row.Sections == nil {
		row.Sections = map[string]string{}
	}

	var inserted int
	err := dao.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&row).
			Returning("id, fetched_at").
			Exec(ctx)
		if err != nil {
			return store.NewStorageError("failed to insert label", err)
		}

		n, err := newChunkDAO(tx, 0).Create(ctx, row.ID, chunks)
		if err != nil {
			return err
		}
		inserted = n
		return nil
	})
	if err != nil {
		return 0, err
	}

	label.ID = row.ID
	label.FetchedAt = row.FetchedAt

	return inserted, nil
}

func (dao *labelDAO) Get(
	ctx context.Context,
	labelID int64,
	includeRaw bool,
) (*models.Label, error) {
	var row LabelSchema
	query := dao.db.NewSelect().
		Model(&row).
		Where("dl.id = ?", labelID)
	if !includeRaw {
		query = query.ExcludeColumn("raw_result")
	}

	if err := query.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NewNotFoundError(fmt.Sprintf("label %d", labelID))
		}
		return nil, store.NewStorageError("failed to get label", err)
	}

	var label models.Label
	if err := copier.Copy(&label, &row); err != nil {
		return nil, fmt.Errorf("failed to copy label: %w", err)
	}

	return &label, nil
}

// ListRecent returns labels ordered by fetch time, newest first.
func (dao *labelDAO) ListRecent(ctx context.Context, limit int) ([]models.Label, error) {
	var rows []LabelSchema
	err := dao.db.NewSelect().
		Model(&rows).
		Column(labelListColumns...).
		OrderExpr("fetched_at DESC, id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, store.NewStorageError("failed to list labels", err)
	}

	labels := make([]models.Label, len(rows))
	if err := copier.Copy(&labels, &rows); err != nil {
		return nil, fmt.Errorf("failed to copy labels: %w", err)
	}

	return labels, nil
}

// Delete removes the label. Chunks are removed by the foreign key cascade.
func (dao *labelDAO) Delete(ctx context.Context, labelID int64) error {
	r, err := dao.db.NewDelete().
		Model((*LabelSchema)(nil)).
		Where("id = ?", labelID).
		Exec(ctx)
	if err != nil {
		return store.NewStorageError("failed to delete label", err)
	}

	rowsAffected, err := r.RowsAffected()
	if err != nil {
		return store.NewStorageError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return models.NewNotFoundError(fmt.Sprintf("label %d", labelID))
	}

	return nil
}
