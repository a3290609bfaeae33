package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxevidence/rxevidence/config"
	"github.com/rxevidence/rxevidence/pkg/llms/mock"
	"github.com/rxevidence/rxevidence/pkg/models"
	"github.com/rxevidence/rxevidence/pkg/store/memory"
)

const testDims = 32

// stubFetcher serves labels from a map keyed by drug name.
type stubFetcher struct {
	labels map[string]*models.Label
	errs   map[string]error
	calls  []string
}

func (f *stubFetcher) FetchLabel(_ context.Context, drug string) (*models.Label, error) {
	f.calls = append(f.calls, drug)
	if err, ok := f.errs[drug]; ok {
		return nil, err
	}
	l, ok := f.labels[drug]
	if !ok {
		return nil, models.NewLabelNotFoundError(drug)
	}
	label := *l
	return &label, nil
}

func fakeLabel(drug string, sections ...string) *models.Label {
	l := &models.Label{
		DrugQuery:   drug,
		BrandName:   strings.ToUpper(drug),
		GenericName: drug,
		Sections:    make(map[string]string),
	}
	for _, s := range sections {
		l.Sections[s] = gofakeit.Paragraph(2, 8, 20, " ")
	}
	return l
}

type testEnv struct {
	store    *memory.LabelStore
	fetcher  *stubFetcher
	embedder *mock.Embedder
	o        *Orchestrator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := memory.NewLabelStore(testDims)
	require.NoError(t, err)

	fetcher := &stubFetcher{
		labels: map[string]*models.Label{
			"ibuprofen": fakeLabel("ibuprofen", "warnings", "dosage_and_administration"),
			"naproxen":  fakeLabel("naproxen", "boxed_warning"),
			"placebo":   fakeLabel("placebo"),
		},
		errs: map[string]error{},
	}
	embedder := mock.NewEmbedder(testDims)

	cfg := config.Defaults()
	cfg.Embeddings.BatchSize = 2
	cfg.Ingest.Pause = 0

	o, err := NewOrchestrator(store, fetcher, embedder, &cfg)
	require.NoError(t, err)

	return &testEnv{store: store, fetcher: fetcher, embedder: embedder, o: o}
}

func TestFetchAndIngest(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	summary, err := env.o.FetchAndIngest(ctx, "ibuprofen")
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.LabelID)
	assert.Equal(t, "ibuprofen", summary.Drug)
	assert.Equal(t, "IBUPROFEN", summary.BrandName)
	// configured section order
	assert.Equal(t, []string{"dosage_and_administration", "warnings"}, summary.SectionsFound)
	assert.NotZero(t, summary.ChunkCount)
	assert.Equal(t, summary.ChunkCount, summary.EmbeddedCount)

	stats, err := env.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, summary.ChunkCount, stats.Chunks)
	assert.Equal(t, stats.Chunks, stats.EmbeddedChunks)

	// batches of two
	assert.Equal(t, (summary.ChunkCount+1)/2, env.embedder.CallCount())

	// chunk ids start at 1 in a fresh store
	persisted := make(map[string]int)
	for id := int64(1); id <= int64(summary.ChunkCount); id++ {
		c, err := env.store.GetChunk(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, summary.LabelID, c.LabelID)
		persisted[c.Section]++
	}
	for _, section := range summary.SectionsFound {
		assert.Positive(t, persisted[section], "section %s has no chunks", section)
	}
	assert.Len(t, persisted, len(summary.SectionsFound))
}

func TestFetchAndIngestTwiceCreatesDistinctLabels(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	first, err := env.o.FetchAndIngest(ctx, "ibuprofen")
	require.NoError(t, err)
	second, err := env.o.FetchAndIngest(ctx, "ibuprofen")
	require.NoError(t, err)

	assert.NotEqual(t, first.LabelID, second.LabelID)
	assert.Equal(t, first.ChunkCount, second.ChunkCount)
}

func TestFetchAndIngestNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.o.FetchAndIngest(context.Background(), "unobtainium")
	assert.ErrorIs(t, err, models.ErrLabelNotFound)

	stats, err := env.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Labels)
}

func TestFetchAndIngestUpstreamUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.errs["ibuprofen"] = models.NewUpstreamError(503, nil)

	_, err := env.o.FetchAndIngest(context.Background(), "ibuprofen")
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
}

func TestFetchAndIngestDeletesLabelWhenEmbeddingFails(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.o.FetchAndIngest(ctx, "naproxen")
	require.NoError(t, err)

	env.embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("model unavailable")
	}

	_, err = env.o.FetchAndIngest(ctx, "ibuprofen")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")

	stats, err := env.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Labels)
	assert.Equal(t, stats.Chunks, stats.EmbeddedChunks)

	labels, err := env.store.ListRecentLabels(ctx, 10)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, "naproxen", labels[0].DrugQuery)
}

func TestFetchAndIngestCleansUpOnCancelledContext(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	env.embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		cancel()
		return nil, context.Canceled
	}

	_, err := env.o.FetchAndIngest(ctx, "ibuprofen")
	assert.ErrorIs(t, err, context.Canceled)

	stats, err := env.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Labels)
	assert.Zero(t, stats.Chunks)
}

func TestFetchAndIngestKeepsLabelWhenBackfillIsBusy(t *testing.T) {
	env := newTestEnv(t)

	release, err := env.store.LockEmbeddings(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	summary, err := env.o.FetchAndIngest(ctx, "ibuprofen")
	require.NoError(t, err)
	assert.NotZero(t, summary.ChunkCount)
	assert.Zero(t, summary.EmbeddedCount)

	stats, err := env.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Labels)
	assert.Equal(t, summary.ChunkCount, stats.Chunks)
	assert.Zero(t, stats.EmbeddedChunks)

	// the lock holder's backfill picks the chunks up
	release()
	n, err := env.o.EmbedPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, summary.ChunkCount, n)
}

func TestFetchAndIngestIgnoresChunksDeletedDuringBackfill(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	other := fakeLabel("other", "warnings")
	_, err := env.store.CreateLabel(ctx, other, []models.Chunk{
		{Section: "warnings", ChunkIndex: 0, Content: "unrelated"},
	})
	require.NoError(t, err)

	vectors := mock.NewEmbedder(testDims)
	deleted := false
	env.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if !deleted {
			deleted = true
			require.NoError(t, env.store.DeleteLabel(ctx, other.ID))
		}
		return vectors.EmbedTexts(ctx, texts)
	}

	summary, err := env.o.FetchAndIngest(ctx, "ibuprofen")
	require.NoError(t, err)
	assert.True(t, deleted)

	label, err := env.store.GetLabel(ctx, summary.LabelID, false)
	require.NoError(t, err)
	assert.Equal(t, "ibuprofen", label.DrugQuery)

	stats, err := env.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Labels)
	assert.Equal(t, summary.ChunkCount, stats.Chunks)
	assert.Equal(t, stats.Chunks, stats.EmbeddedChunks)
}

func TestFetchAndIngestKeepsLabelWithoutSections(t *testing.T) {
	env := newTestEnv(t)

	summary, err := env.o.FetchAndIngest(context.Background(), "placebo")
	require.NoError(t, err)
	assert.Empty(t, summary.SectionsFound)
	assert.Zero(t, summary.ChunkCount)
	assert.Zero(t, summary.EmbeddedCount)
}

func TestEmbedPendingRejectsShortEmbedderResponse(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return [][]float32{}, nil
	}

	label := fakeLabel("x", "warnings")
	_, err := env.store.CreateLabel(ctx, label, []models.Chunk{{Section: "warnings", Content: "text"}})
	require.NoError(t, err)

	_, err = env.o.EmbedPending(ctx)
	assert.Error(t, err)
}

func TestIngestMany(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.fetcher.errs["flaky"] = models.NewUpstreamError(500, nil)

	report, err := env.o.IngestMany(ctx, []string{"ibuprofen", "unobtainium", "placebo", "flaky", "naproxen"})
	require.NoError(t, err)

	require.Len(t, report.Ingested, 2)
	assert.Equal(t, "ibuprofen", report.Ingested[0].Drug)
	assert.Equal(t, "naproxen", report.Ingested[1].Drug)
	assert.Equal(t, "not found", report.Skipped["unobtainium"])
	assert.Equal(t, "no sections", report.Skipped["placebo"])
	assert.Contains(t, report.Skipped, "flaky")

	stats, err := env.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Labels)
	assert.Equal(t, stats.Chunks, report.Embedded)
	assert.Equal(t, stats.Chunks, stats.EmbeddedChunks)
}

func TestIngestManyStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	env.o.pause = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := env.o.IngestMany(ctx, []string{"ibuprofen", "naproxen"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"ibuprofen"}, env.fetcher.calls)
}

func TestNewOrchestratorValidatesChunking(t *testing.T) {
	store, err := memory.NewLabelStore(testDims)
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.Chunking.Overlap = cfg.Chunking.Size

	_, err = NewOrchestrator(store, &stubFetcher{}, mock.NewEmbedder(testDims), &cfg)
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
}
