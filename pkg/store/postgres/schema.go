package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bunotel"

	"github.com/rxevidence/rxevidence/config"
	"github.com/rxevidence/rxevidence/internal"
	"github.com/rxevidence/rxevidence/pkg/store/postgres/migrations"
)

var log = internal.GetLogger()

const (
	labelTable      = "drug_labels"
	chunkTable      = "label_chunks"
	embeddingColumn = "embedding"
)

type LabelSchema struct {
	bun.BaseModel `bun:"table:drug_labels,alias:dl" yaml:"-"`

	ID            int64             `bun:",pk,autoincrement"                                           yaml:"id,omitempty"`
	DrugQuery     string            `bun:",notnull"                                                    yaml:"drug_query"`
	BrandName     string            `bun:","                                                           yaml:"brand_name,omitempty"`
	GenericName   string            `bun:","                                                           yaml:"generic_name,omitempty"`
	Manufacturer  string            `bun:","                                                           yaml:"manufacturer,omitempty"`
	EffectiveTime string            `bun:","                                                           yaml:"effective_time,omitempty"`
	Sections      map[string]string `bun:"type:jsonb,notnull"                                          yaml:"sections"`
	RawResult     json.RawMessage   `bun:"type:jsonb,nullzero,notnull,default:'{}'"                    yaml:"-"`
	FetchedAt     time.Time         `bun:"type:timestamptz,nullzero,notnull,default:current_timestamp" yaml:"fetched_at,omitempty"`
}

// ChunkSchema is a slice of one label section. The embedding column is added
// by CreateSchema with the configured width, so it is never loaded by bun.
type ChunkSchema struct {
	bun.BaseModel `bun:"table:label_chunks,alias:lc" yaml:"-"`

	ID          int64        `bun:",pk,autoincrement"                                           yaml:"id,omitempty"`
	LabelID     int64        `bun:",notnull,unique:label_section_chunk"                         yaml:"label_id"`
	Section     string       `bun:",notnull,unique:label_section_chunk"                         yaml:"section"`
	ChunkIndex  int          `bun:",notnull,unique:label_section_chunk"                         yaml:"chunk_index"`
	Content     string       `bun:",notnull"                                                    yaml:"content"`
	ContentHash string       `bun:",notnull"                                                    yaml:"content_hash"`
	CreatedAt   time.Time    `bun:"type:timestamptz,nullzero,notnull,default:current_timestamp" yaml:"created_at,omitempty"`
	Label       *LabelSchema `bun:"rel:belongs-to,join:label_id=id,on_delete:cascade"           yaml:"-"`
}

var _ bun.AfterCreateTableHook = (*LabelSchema)(nil)
var _ bun.AfterCreateTableHook = (*ChunkSchema)(nil)

func (*LabelSchema) AfterCreateTable(
	ctx context.Context,
	query *bun.CreateTableQuery,
) error {
	_, err := query.DB().NewCreateIndex().
		Model((*LabelSchema)(nil)).
		Index("drug_labels_fetched_at_idx").
		Column("fetched_at").
		IfNotExists().
		Exec(ctx)
	return err
}

func (*ChunkSchema) AfterCreateTable(
	ctx context.Context,
	query *bun.CreateTableQuery,
) error {
	_, err := query.DB().NewCreateIndex().
		Model((*ChunkSchema)(nil)).
		Index("label_chunks_label_id_idx").
		Column("label_id").
		IfNotExists().
		Exec(ctx)
	return err
}

// enablePgVectorExtension creates the pgvector extension if it does not exist and updates it if it is out of date.
func enablePgVectorExtension(ctx context.Context, db bun.IDB) error {
	// Create pgvector extension if it does not exist
	_, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("error creating pgvector extension: %w", err)
	}

	// this is a no-op if the extension is already up to date
	_, err = db.ExecContext(ctx, "ALTER EXTENSION vector UPDATE")
	if err != nil {
		return fmt.Errorf("error updating pgvector extension: %w", err)
	}

	return nil
}

// CreateSchema creates the db schema if it does not exist.
func CreateSchema(
	ctx context.Context,
	cfg *config.Config,
	db *bun.DB,
) error {
	_, err := db.NewCreateTable().
		Model((*LabelSchema)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("error creating table %s: %w", labelTable, err)
	}

	_, err = db.NewCreateTable().
		Model((*ChunkSchema)(nil)).
		// create the embedding column using the configured dimensions
		ColumnExpr("? vector(?)", bun.Ident(embeddingColumn), cfg.Embeddings.Dimensions).
		IfNotExists().
		WithForeignKeys().
		Exec(ctx)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("error creating table %s: %w", chunkTable, err)
	}

	if err := checkEmbeddingDims(ctx, cfg, db); err != nil {
		return fmt.Errorf("error checking chunk embedding dimensions: %w", err)
	}

	if cfg.Store.Postgres.AvailableIndexes.HSNW {
		if err := createHNSWIndex(ctx, db, chunkTable, embeddingColumn); err != nil {
			return fmt.Errorf("error creating hnsw index: %w", err)
		}
	}

	if err := migrations.Migrate(ctx, db); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

// createHNSWIndex creates an HNSW index on the given table and column if it does not exist.
// The index is created with the default M and efConstruction values. Only vector_cosine_ops is supported.
func createHNSWIndex(ctx context.Context, db *bun.DB, table, column string) error {
	const (
		m              = 16
		efConstruction = 64
	)

	idx := table + "_" + column + "_hnsw_idx"

	log.Infof("creating hnsw index on %s.%s if it does not exist", table, column)

	_, err := db.ExecContext(
		ctx,
		"CREATE INDEX CONCURRENTLY IF NOT EXISTS ? ON ? USING hnsw (? vector_cosine_ops) WITH (M = ?, ef_construction = ?);",
		bun.Safe(idx),
		bun.Ident(table),
		bun.Ident(column),
		m,
		efConstruction,
	)
	if err != nil {
		return err
	}

	return nil
}

// checkEmbeddingDims compares the width of the chunk embedding column with the
// configured embedding width. On mismatch the column is recreated and every
// chunk is left without an embedding, to be refilled by the next backfill.
func checkEmbeddingDims(ctx context.Context, cfg *config.Config, db *bun.DB) error {
	width, err := getEmbeddingColumnWidth(ctx, chunkTable, db)
	if err != nil {
		return err
	}

	if width != cfg.Embeddings.Dimensions {
		log.Warnf(
			"chunk embedding dimensions are %d, expected %d.\n migrating embedding column width to %d. existing embedding vectors will be dropped and recomputed",
			width,
			cfg.Embeddings.Dimensions,
			cfg.Embeddings.Dimensions,
		)
		if err := MigrateEmbeddingDims(ctx, db, cfg.Embeddings.Dimensions); err != nil {
			return fmt.Errorf("error migrating chunk embedding dimensions: %w", err)
		}
	}
	return nil
}

// getEmbeddingColumnWidth returns the width of the embedding column in the provided table.
func getEmbeddingColumnWidth(ctx context.Context, tableName string, db *bun.DB) (int, error) {
	var width int
	err := db.NewSelect().
		Table("pg_attribute").
		ColumnExpr("atttypmod"). // vector width is stored in atttypmod
		Where("attrelid = ?::regclass", tableName).
		Where("attname = ?", embeddingColumn).
		Scan(ctx, &width)
	if err != nil {
		return 0, fmt.Errorf("error getting embedding column width: %w", err)
	}
	return width, nil
}

// MigrateEmbeddingDims drops the chunk embedding column and recreates it with
// the given width.
func MigrateEmbeddingDims(
	ctx context.Context,
	db *bun.DB,
	dimensions int,
) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.ExecContext(
			ctx,
			"ALTER TABLE ? DROP COLUMN IF EXISTS ?",
			bun.Ident(chunkTable),
			bun.Ident(embeddingColumn),
		)
		if err != nil {
			return fmt.Errorf("error dropping column embedding: %w", err)
		}
		_, err = tx.NewAddColumn().
			Model((*ChunkSchema)(nil)).
			ColumnExpr("? vector(?)", bun.Ident(embeddingColumn), dimensions).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("error adding column embedding: %w", err)
		}
		return nil
	})
}

// NewPostgresConn creates a new bun.DB connection to a postgres database using the provided DSN.
// The connection is configured to pool connections based on the number of PROCs available.
func NewPostgresConn(cfg *config.Config) (*bun.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	maxOpenConns := 4 * runtime.GOMAXPROCS(0)

	// long read timeout so that index builds do not time out
	sqldb := sql.OpenDB(
		pgdriver.NewConnector(
			pgdriver.WithDSN(cfg.Store.Postgres.DSN),
			pgdriver.WithReadTimeout(10*time.Minute),
		),
	)
	sqldb.SetMaxOpenConns(maxOpenConns)
	sqldb.SetMaxIdleConns(maxOpenConns)

	db := bun.NewDB(sqldb, pgdialect.New())

	if cfg.Tracing.Enabled {
		db.AddQueryHook(bunotel.NewQueryHook(bunotel.WithDBName(cfg.Tracing.ServiceName)))
	}

	err := enablePgVectorExtension(ctx, db)
	if err != nil {
		log.Print("error enabling pgvector extension: ", err)
		return nil, err
	}

	isHNSW, err := isHNSWAvailable(ctx, db)
	if err != nil {
		log.Print("error checking if hnsw indexes are available: ", err)
		return nil, err
	}
	cfg.Store.Postgres.AvailableIndexes.HSNW = isHNSW

	return db, nil
}

// isHNSWAvailable checks if the vector extension version is 0.5.0+.
func isHNSWAvailable(ctx context.Context, db *bun.DB) (bool, error) {
	const minVersion = "0.5.0"
	requiredVersion, err := semver.NewVersion(minVersion)
	if err != nil {
		return false, fmt.Errorf("error parsing required vector extension version: %w", err)
	}

	var version string
	err = db.NewSelect().
		Column("extversion").
		TableExpr("pg_extension").
		Where("extname = 'vector'").
		Scan(ctx, &version)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Debug("vector extension not installed")
			return false, nil
		}
		return false, fmt.Errorf("error checking vector extension version: %w", err)
	}

	thisVersion, err := semver.NewVersion(version)
	if err != nil {
		return false, fmt.Errorf("error parsing vector extension version: %w", err)
	}

	if requiredVersion.GreaterThan(thisVersion) {
		log.Infof("vector extension version is < %s. hnsw indexing not available", minVersion)
		return false, nil
	}

	log.Infof("vector extension version is >= %s. hnsw indexing available", minVersion)

	return true, nil
}
