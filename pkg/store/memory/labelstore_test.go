package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxevidence/rxevidence/pkg/chunker"
	"github.com/rxevidence/rxevidence/pkg/llms/mock"
	"github.com/rxevidence/rxevidence/pkg/models"
	"github.com/rxevidence/rxevidence/pkg/store"
)

const testDims = 64

var testSections = map[string]string{
	"warnings":          "Stomach bleeding warning: this product contains an NSAID, which may cause severe stomach bleeding.",
	"drug_interactions": "Ask a doctor before use if you are taking aspirin for heart attack or stroke.",
	"dosage_and_administration": "Adults: take 1 tablet every 4 to 6 hours while symptoms persist. " +
		"Do not exceed 6 tablets in 24 hours.",
}

var testOrder = []string{"dosage_and_administration", "drug_interactions", "warnings"}

func newTestStore(t *testing.T) *LabelStore {
	t.Helper()
	s, err := NewLabelStore(testDims)
	require.NoError(t, err)
	return s
}

func createLabel(t *testing.T, s *LabelStore, drug string) (*models.Label, int) {
	t.Helper()
	chunks, err := chunker.SplitSections(testSections, testOrder, 900, 120)
	require.NoError(t, err)

	label := &models.Label{
		DrugQuery: drug,
		Sections:  testSections,
		RawResult: []byte(`{"id":"x"}`),
	}
	n, err := s.CreateLabel(context.Background(), label, chunks)
	require.NoError(t, err)
	return label, n
}

func embedAll(t *testing.T, s *LabelStore) {
	t.Helper()
	ctx := context.Background()
	e := mock.NewEmbedder(testDims)

	pending, err := s.ChunksWithoutEmbeddings(ctx, 100)
	require.NoError(t, err)
	var out []models.ChunkEmbedding
	for _, c := range pending {
		v, err := e.EmbedText(ctx, c.Content)
		require.NoError(t, err)
		out = append(out, models.ChunkEmbedding{ChunkID: c.ID, Embedding: v})
	}
	require.NoError(t, s.PutChunkEmbeddings(ctx, out))
}

func TestNewLabelStoreRejectsBadDimensions(t *testing.T) {
	_, err := NewLabelStore(0)
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
}

func TestCreateAndGetLabel(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	label, n := createLabel(t, s, "ibuprofen")
	assert.Equal(t, int64(1), label.ID)
	assert.Equal(t, 3, n)
	assert.False(t, label.FetchedAt.IsZero())

	got, err := s.GetLabel(ctx, label.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "ibuprofen", got.DrugQuery)
	assert.Equal(t, testSections, got.Sections)
	assert.Nil(t, got.RawResult)

	got, err = s.GetLabel(ctx, label.ID, true)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"x"}`, string(got.RawResult))

	_, err = s.GetLabel(ctx, 99, false)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPutChunksIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	label, _ := createLabel(t, s, "ibuprofen")

	chunks, err := chunker.SplitSections(testSections, testOrder, 900, 120)
	require.NoError(t, err)

	n, err := s.PutChunks(ctx, label.ID, chunks)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.PutChunks(ctx, 42, chunks)
	assert.ErrorIs(t, err, models.ErrStorage)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListRecentLabels(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, drug := range []string{"a", "b", "c"} {
		createLabel(t, s, drug)
		time.Sleep(time.Millisecond)
	}

	labels, err := s.ListRecentLabels(ctx, 2)
	require.NoError(t, err)
	require.Len(t, labels, 2)
	assert.Equal(t, "c", labels[0].DrugQuery)
	assert.Equal(t, "b", labels[1].DrugQuery)
	assert.Nil(t, labels[0].Sections)
}

func TestDeleteLabelRemovesChunks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	label, _ := createLabel(t, s, "ibuprofen")
	other, _ := createLabel(t, s, "naproxen")
	embedAll(t, s)

	require.NoError(t, s.DeleteLabel(ctx, label.ID))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &models.StoreStats{Labels: 1, Chunks: 3, EmbeddedChunks: 3}, stats)

	v, err := mock.NewEmbedder(testDims).EmbedText(ctx, "aspirin")
	require.NoError(t, err)
	matches, err := s.SearchNearest(ctx, v, 10, nil)
	require.NoError(t, err)
	for _, m := range matches {
		assert.Equal(t, other.ID, m.LabelID)
	}

	assert.ErrorIs(t, s.DeleteLabel(ctx, label.ID), models.ErrNotFound)
}

func TestEmbeddingBackfill(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	createLabel(t, s, "ibuprofen")

	pending, err := s.ChunksWithoutEmbeddings(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Less(t, pending[0].ID, pending[1].ID)

	embedAll(t, s)

	pending, err = s.ChunksWithoutEmbeddings(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	err = s.PutChunkEmbeddings(ctx, []models.ChunkEmbedding{{ChunkID: 1, Embedding: []float32{1}}})
	assert.ErrorIs(t, err, store.ErrEmbeddingMismatch)
}

func TestPutChunkEmbeddingsSkipsDeletedChunks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	label, n := createLabel(t, s, "ibuprofen")

	pending, err := s.ChunksWithoutEmbeddings(ctx, 100)
	require.NoError(t, err)
	require.Len(t, pending, n)

	e := mock.NewEmbedder(testDims)
	var out []models.ChunkEmbedding
	for _, c := range pending {
		v, err := e.EmbedText(ctx, c.Content)
		require.NoError(t, err)
		out = append(out, models.ChunkEmbedding{ChunkID: c.ID, Embedding: v})
	}

	require.NoError(t, s.DeleteLabel(ctx, label.ID))
	require.NoError(t, s.PutChunkEmbeddings(ctx, out))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Chunks)
	assert.Zero(t, stats.EmbeddedChunks)
}

func TestSearchNearest(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := mock.NewEmbedder(testDims)

	v, err := e.EmbedText(ctx, "stomach bleeding")
	require.NoError(t, err)

	t.Run("empty store", func(t *testing.T) {
		matches, err := s.SearchNearest(ctx, v, 5, nil)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	label, _ := createLabel(t, s, "ibuprofen")
	embedAll(t, s)

	t.Run("ordered by distance", func(t *testing.T) {
		matches, err := s.SearchNearest(ctx, v, 10, &label.ID)
		require.NoError(t, err)
		require.Len(t, matches, 3)
		assert.Equal(t, "warnings", matches[0].Section)
		for i := 1; i < len(matches); i++ {
			assert.LessOrEqual(t, matches[i-1].Distance, matches[i].Distance)
		}
	})

	t.Run("limit", func(t *testing.T) {
		matches, err := s.SearchNearest(ctx, v, 1, nil)
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})

	t.Run("other label", func(t *testing.T) {
		other := label.ID + 1
		matches, err := s.SearchNearest(ctx, v, 5, &other)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("width mismatch", func(t *testing.T) {
		_, err := s.SearchNearest(ctx, []float32{1, 0}, 5, nil)
		assert.ErrorIs(t, err, store.ErrEmbeddingMismatch)
	})
}

func TestSearchLexical(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	label, _ := createLabel(t, s, "ibuprofen")

	matches, err := s.SearchLexical(ctx, "aspirin heart attack", 5, &label.ID, 0.6)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "drug_interactions", matches[0].Section)
	assert.InDelta(t, 0.6, matches[0].Distance, 1e-9)

	matches, err = s.SearchLexical(ctx, "xylophone", 5, nil, 0.6)
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = s.SearchLexical(ctx, "   ", 5, nil, 0.6)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestLockEmbeddings(t *testing.T) {
	s := newTestStore(t)

	release, err := s.LockEmbeddings(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.LockEmbeddings(ctx)
	assert.ErrorIs(t, err, models.ErrLockAcquisitionFailed)

	release()
	release()

	release, err = s.LockEmbeddings(context.Background())
	require.NoError(t, err)
	release()
}
