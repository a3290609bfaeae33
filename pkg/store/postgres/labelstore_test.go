//go:build testutils

package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/rxevidence/rxevidence/config"
	"github.com/rxevidence/rxevidence/internal"
	"github.com/rxevidence/rxevidence/pkg/chunker"
	"github.com/rxevidence/rxevidence/pkg/llms/mock"
	"github.com/rxevidence/rxevidence/pkg/models"
	"github.com/rxevidence/rxevidence/pkg/testutils"
)

var testDB *bun.DB
var testCtx context.Context
var testCfg *config.Config
var labelStore *LabelStore
var embedder *mock.Embedder

func TestMain(m *testing.M) {
	setup()
	exitCode := m.Run()
	tearDown()

	os.Exit(exitCode)
}

func setup() {
	logger := internal.GetLogger()
	internal.SetLogLevel(logrus.DebugLevel)

	testCfg = testutils.NewTestConfig()
	testCtx = context.Background()

	var err error
	testDB, err = NewPostgresConn(testCfg)
	if err != nil {
		panic(err)
	}
	testutils.SetUpDBLogging(testDB, logger)

	labelStore, err = NewLabelStore(testCtx, testCfg, testDB)
	if err != nil {
		panic(err)
	}

	embedder = mock.NewEmbedder(testCfg.Embeddings.Dimensions)
}

func tearDown() {
	// Close the database connection
	if err := testDB.Close(); err != nil {
		panic(err)
	}
}

func CleanDB(t *testing.T, db *bun.DB) {
	_, err := db.NewTruncateTable().
		Model((*LabelSchema)(nil)).
		Cascade().
		Exec(context.Background())
	require.NoError(t, err)
}

func createTestLabel(t *testing.T) (*models.Label, int) {
	t.Helper()

	label := testutils.TestLabel
	chunks, err := chunker.SplitSections(
		label.Sections,
		testutils.TestSectionOrder,
		testCfg.Chunking.Size,
		testCfg.Chunking.Overlap,
	)
	require.NoError(t, err)

	n, err := labelStore.CreateLabel(testCtx, &label, chunks)
	require.NoError(t, err)
	require.NotZero(t, label.ID)
	require.Equal(t, len(chunks), n)

	return &label, n
}

func embedAll(t *testing.T) {
	t.Helper()

	pending, err := labelStore.ChunksWithoutEmbeddings(testCtx, 1000)
	require.NoError(t, err)

	texts := make([]string, len(pending))
	for i, c := range pending {
		texts[i] = c.Content
	}
	vectors, err := embedder.EmbedTexts(testCtx, texts)
	require.NoError(t, err)

	embeddings := make([]models.ChunkEmbedding, len(pending))
	for i, c := range pending {
		embeddings[i] = models.ChunkEmbedding{ChunkID: c.ID, Embedding: vectors[i]}
	}
	require.NoError(t, labelStore.PutChunkEmbeddings(testCtx, embeddings))
}

func TestCreateAndGetLabel(t *testing.T) {
	CleanDB(t, testDB)

	label, _ := createTestLabel(t)

	t.Run("without raw", func(t *testing.T) {
		got, err := labelStore.GetLabel(testCtx, label.ID, false)
		require.NoError(t, err)
		assert.Equal(t, label.DrugQuery, got.DrugQuery)
		assert.Equal(t, label.BrandName, got.BrandName)
		assert.Equal(t, label.Sections, got.Sections)
		assert.False(t, got.FetchedAt.IsZero())
		assert.Empty(t, got.RawResult)
	})

	t.Run("with raw", func(t *testing.T) {
		got, err := labelStore.GetLabel(testCtx, label.ID, true)
		require.NoError(t, err)
		assert.JSONEq(t, string(label.RawResult), string(got.RawResult))
	})

	t.Run("missing", func(t *testing.T) {
		_, err := labelStore.GetLabel(testCtx, label.ID+1000, false)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestPutChunksSkipsExisting(t *testing.T) {
	CleanDB(t, testDB)

	label, n := createTestLabel(t)

	chunks, err := chunker.SplitSections(
		label.Sections,
		testutils.TestSectionOrder,
		testCfg.Chunking.Size,
		testCfg.Chunking.Overlap,
	)
	require.NoError(t, err)

	inserted, err := labelStore.PutChunks(testCtx, label.ID, chunks)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	stats, err := labelStore.Stats(testCtx)
	require.NoError(t, err)
	assert.Equal(t, n, stats.Chunks)
}

func TestListRecentLabels(t *testing.T) {
	CleanDB(t, testDB)

	var ids []int64
	for i := 0; i < 3; i++ {
		label, _ := createTestLabel(t)
		ids = append(ids, label.ID)
	}

	labels, err := labelStore.ListRecentLabels(testCtx, 2)
	require.NoError(t, err)
	require.Len(t, labels, 2)
	assert.Equal(t, ids[2], labels[0].ID)
	assert.Equal(t, ids[1], labels[1].ID)
	assert.Nil(t, labels[0].Sections)
}

func TestDeleteLabelCascades(t *testing.T) {
	CleanDB(t, testDB)

	label, _ := createTestLabel(t)

	require.NoError(t, labelStore.DeleteLabel(testCtx, label.ID))

	stats, err := labelStore.Stats(testCtx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Labels)
	assert.Equal(t, 0, stats.Chunks)

	err = labelStore.DeleteLabel(testCtx, label.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestEmbeddingBackfill(t *testing.T) {
	CleanDB(t, testDB)

	_, n := createTestLabel(t)

	pending, err := labelStore.ChunksWithoutEmbeddings(testCtx, 2)
	require.NoError(t, err)
	require.Len(t, pending, min(2, n))
	if len(pending) == 2 {
		assert.Less(t, pending[0].ID, pending[1].ID)
	}

	embedAll(t)

	pending, err = labelStore.ChunksWithoutEmbeddings(testCtx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	stats, err := labelStore.Stats(testCtx)
	require.NoError(t, err)
	assert.Equal(t, n, stats.EmbeddedChunks)

	t.Run("width mismatch", func(t *testing.T) {
		err := labelStore.PutChunkEmbeddings(testCtx, []models.ChunkEmbedding{
			{ChunkID: 1, Embedding: []float32{1, 0}},
		})
		assert.Error(t, err)
	})
}

func TestPutChunkEmbeddingsSkipsDeletedChunks(t *testing.T) {
	CleanDB(t, testDB)

	label, _ := createTestLabel(t)

	pending, err := labelStore.ChunksWithoutEmbeddings(testCtx, 100)
	require.NoError(t, err)
	require.NotEmpty(t, pending)

	var out []models.ChunkEmbedding
	for _, c := range pending {
		v, err := embedder.EmbedText(testCtx, c.Content)
		require.NoError(t, err)
		out = append(out, models.ChunkEmbedding{ChunkID: c.ID, Embedding: v})
	}

	require.NoError(t, labelStore.DeleteLabel(testCtx, label.ID))
	require.NoError(t, labelStore.PutChunkEmbeddings(testCtx, out))

	stats, err := labelStore.Stats(testCtx)
	require.NoError(t, err)
	assert.Zero(t, stats.Chunks)
	assert.Zero(t, stats.EmbeddedChunks)
}

func TestSearchNearest(t *testing.T) {
	CleanDB(t, testDB)

	label, n := createTestLabel(t)
	embedAll(t)

	vector, err := embedder.EmbedText(testCtx, "stomach bleeding warning NSAID")
	require.NoError(t, err)

	matches, err := labelStore.SearchNearest(testCtx, vector, n+5, nil)
	require.NoError(t, err)
	require.Len(t, matches, n)
	assert.Equal(t, "warnings", matches[0].Section)
	for i := 1; i < len(matches); i++ {
		assert.LessOrEqual(t, matches[i-1].Distance, matches[i].Distance)
	}

	other := label.ID + 1000
	matches, err = labelStore.SearchNearest(testCtx, vector, 5, &other)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearchLexical(t *testing.T) {
	CleanDB(t, testDB)

	label, _ := createTestLabel(t)

	matches, err := labelStore.SearchLexical(testCtx, "aspirin heart attack", 5, &label.ID, 0.6)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "drug_interactions", matches[0].Section)
	for _, m := range matches {
		assert.InDelta(t, 0.6, m.Distance, 1e-9)
	}

	matches, err = labelStore.SearchLexical(testCtx, "xylophone", 5, nil, 0.6)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestLockEmbeddingsIsExclusive(t *testing.T) {
	release, err := labelStore.LockEmbeddings(testCtx)
	require.NoError(t, err)

	conn, err := testDB.Conn(testCtx)
	require.NoError(t, err)
	defer conn.Close()

	_, err = tryAcquireAdvisoryLock(testCtx, conn, embeddingLockKey)
	assert.ErrorIs(t, err, models.ErrLockAcquisitionFailed)

	release()

	lockID, err := tryAcquireAdvisoryLock(testCtx, conn, embeddingLockKey)
	require.NoError(t, err)
	require.NoError(t, releaseAdvisoryLock(testCtx, conn, lockID))
}

func TestLoadFixtures(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, GenerateFixtureData(testCfg, 5, dir))
	require.NoError(t, LoadFixtures(testCtx, testCfg, testDB, dir))

	stats, err := labelStore.Stats(testCtx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Labels)
	assert.NotZero(t, stats.Chunks)
	assert.Zero(t, stats.EmbeddedChunks)

	// sequences continue after the fixture ids
	label, _ := createTestLabel(t)
	assert.Greater(t, label.ID, int64(5))
}
