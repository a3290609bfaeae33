package postgres

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dbfixture"
	"github.com/uptrace/bun/extra/bundebug"
	"gopkg.in/yaml.v3"

	"github.com/rxevidence/rxevidence/config"
	"github.com/rxevidence/rxevidence/pkg/chunker"
)

type Row interface {
	LabelSchema | ChunkSchema
}

type FixtureModel[T Row] struct {
	Model string `yaml:"model"`
	Rows  []T    `yaml:"rows"`
}

type Fixtures[T Row] []FixtureModel[T]

func generateTimeLastNDays(nDays int) time.Time {
	now := time.Now()
	start := now.Add(time.Duration(-nDays) * 24 * time.Hour)
	return gofakeit.DateRange(start, now)
}

// GenerateFixtureData writes labels.yaml and chunks.yaml fixtures with
// fixtureCount fake labels to outputDir. Chunks are cut with the configured
// chunking window so fixtures match what ingestion would store.
func GenerateFixtureData(cfg *config.Config, fixtureCount int, outputDir string) error {
	fakerGlobal := gofakeit.NewUnlocked(0)
	gofakeit.SetGlobalFaker(fakerGlobal)

	labels := make([]LabelSchema, fixtureCount)
	var chunks []ChunkSchema
	for i := 0; i < fixtureCount; i++ {
		labelID := int64(i + 1)
		drug := strings.ToLower(gofakeit.Adjective() + gofakeit.Animal())

		sectionCount := gofakeit.Number(1, len(cfg.OpenFDA.Sections))
		order := append([]string(nil), cfg.OpenFDA.Sections...)
		gofakeit.ShuffleStrings(order)
		order = order[:sectionCount]

		sections := make(map[string]string, sectionCount)
		for _, section := range order {
			sections[section] = gofakeit.Paragraph(1, gofakeit.Number(2, 6), 25, " ")
		}

		labels[i] = LabelSchema{
			ID:            labelID,
			DrugQuery:     drug,
			BrandName:     strings.ToUpper(drug[:1]) + drug[1:],
			GenericName:   strings.ToUpper(drug),
			Manufacturer:  gofakeit.Company(),
			EffectiveTime: gofakeit.Date().Format("20060102"),
			Sections:      sections,
			FetchedAt:     generateTimeLastNDays(14),
		}

		labelChunks, err := chunker.SplitSections(
			sections,
			order,
			cfg.Chunking.Size,
			cfg.Chunking.Overlap,
		)
		if err != nil {
			return fmt.Errorf("failed to chunk fixture label: %w", err)
		}
		for _, c := range labelChunks {
			chunks = append(chunks, ChunkSchema{
				ID:          int64(len(chunks) + 1),
				LabelID:     labelID,
				Section:     c.Section,
				ChunkIndex:  c.ChunkIndex,
				Content:     c.Content,
				ContentHash: c.ContentHash,
				CreatedAt:   labels[i].FetchedAt,
			})
		}
	}

	labelFixture := Fixtures[LabelSchema]{
		{
			Model: "LabelSchema",
			Rows:  labels,
		},
	}

	chunkFixture := Fixtures[ChunkSchema]{
		{
			Model: "ChunkSchema",
			Rows:  chunks,
		},
	}

	if outputDir == "" {
		outputDir = "./"
	} else if _, err := os.Stat(outputDir); os.IsNotExist(err) {
		if err := os.Mkdir(outputDir, 0755); err != nil {
			return fmt.Errorf("unable to create %s: %w", outputDir, err)
		}
	}

	if err := writeFixtureFile(labelFixture, filepath.Join(outputDir, "labels.yaml")); err != nil {
		return err
	}
	return writeFixtureFile(chunkFixture, filepath.Join(outputDir, "chunks.yaml"))
}

func writeFixtureFile(fixture any, path string) error {
	data, err := yaml.Marshal(fixture)
	if err != nil {
		return fmt.Errorf("unable to marshal fixture: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil { //nolint:gosec
		return fmt.Errorf("unable to write %s: %w", path, err)
	}

	return nil
}

// LoadFixtures truncates the label tables and loads every yaml fixture in
// fixturePath. Sequences are advanced past the fixture IDs.
func LoadFixtures(
	ctx context.Context,
	cfg *config.Config,
	db *bun.DB,
	fixturePath string,
) error {
	db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))

	if err := enablePgVectorExtension(ctx, db); err != nil {
		return fmt.Errorf("failed to enable pg_vector extension: %w", err)
	}

	if err := CreateSchema(ctx, cfg, db); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	db.RegisterModel(
		(*LabelSchema)(nil),
		(*ChunkSchema)(nil),
	)

	// recreating the tables would drop the embedding column
	_, err := db.NewTruncateTable().
		Model((*LabelSchema)(nil)).
		Cascade().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to truncate tables: %w", err)
	}

	fixture := dbfixture.New(db)

	files, err := os.ReadDir(fixturePath)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	// labels must load before the chunks that reference them
	for _, name := range []string{"labels.yaml", "chunks.yaml"} {
		if err := fixture.Load(ctx, os.DirFS(fixturePath), name); err != nil {
			return fmt.Errorf("failed to load fixture %s: %w", name, err)
		}
	}
	for _, file := range files {
		if file.IsDir() || file.Name() == "labels.yaml" || file.Name() == "chunks.yaml" {
			continue
		}
		switch filepath.Ext(file.Name()) {
		case ".yaml", ".yml":
			if err := fixture.Load(ctx, os.DirFS(fixturePath), file.Name()); err != nil {
				return fmt.Errorf("failed to load fixture %s: %w", file.Name(), err)
			}
		}
	}

	for _, table := range []string{labelTable, chunkTable} {
		_, err := db.ExecContext(
			ctx,
			"SELECT setval(pg_get_serial_sequence(?, 'id'), COALESCE((SELECT MAX(id) FROM ?), 0) + 1, false)",
			table,
			bun.Ident(table),
		)
		if err != nil {
			return fmt.Errorf("failed to reset sequence for %s: %w", table, err)
		}
	}

	return nil
}
