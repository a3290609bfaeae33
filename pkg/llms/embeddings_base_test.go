package llms

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viterin/vek/vek32"

	"github.com/rxevidence/rxevidence/config"
	"github.com/rxevidence/rxevidence/pkg/models"
	"github.com/rxevidence/rxevidence/pkg/store"
)

type fakeEmbeddingsClient struct {
	vectors [][]float32
	err     error
}

func (f *fakeEmbeddingsClient) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors[:min(len(texts), len(f.vectors))], nil
}

func (f *fakeEmbeddingsClient) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors[0], nil
}

func TestNormalize(t *testing.T) {
	v, err := Normalize([]float32{3, 4})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, v, 1e-6)
	assert.InDelta(t, 1.0, vek32.Norm(v), 1e-6)

	_, err = Normalize([]float32{0, 0, 0})
	assert.Error(t, err)
}

func TestNormalizingEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("normalises every vector", func(t *testing.T) {
		client := &fakeEmbeddingsClient{vectors: [][]float32{{2, 0, 0}, {1, 1, 1}}}
		e := NewNormalizingEmbedder(client, 3)

		vectors, err := e.EmbedTexts(ctx, []string{"a", "b"})
		require.NoError(t, err)
		require.Len(t, vectors, 2)
		for _, v := range vectors {
			assert.InDelta(t, 1.0, vek32.Norm(v), 1e-6)
		}

		q, err := e.EmbedText(ctx, "a")
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float32{1, 0, 0}, q, 1e-6)
	})

	t.Run("rejects wrong width", func(t *testing.T) {
		client := &fakeEmbeddingsClient{vectors: [][]float32{{1, 2}}}
		e := NewNormalizingEmbedder(client, 3)

		_, err := e.EmbedText(ctx, "a")
		assert.ErrorIs(t, err, store.ErrEmbeddingMismatch)
	})

	t.Run("rejects short batch", func(t *testing.T) {
		client := &fakeEmbeddingsClient{vectors: [][]float32{{1, 2, 3}}}
		e := NewNormalizingEmbedder(client, 3)

		_, err := e.EmbedTexts(ctx, []string{"a", "b"})
		assert.Error(t, err)
	})

	t.Run("wraps client errors", func(t *testing.T) {
		cause := errors.New("connection refused")
		e := NewNormalizingEmbedder(&fakeEmbeddingsClient{err: cause}, 3)

		_, err := e.EmbedTexts(ctx, []string{"a"})
		assert.ErrorIs(t, err, cause)
		assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
	})

	t.Run("empty input", func(t *testing.T) {
		e := NewNormalizingEmbedder(&fakeEmbeddingsClient{}, 3)
		vectors, err := e.EmbedTexts(ctx, nil)
		assert.NoError(t, err)
		assert.Empty(t, vectors)
	})
}

func TestNewEmbedderConfiguration(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.EmbeddingsConfig
	}{
		{"unknown service", config.EmbeddingsConfig{Service: "word2vec", Dimensions: 384}},
		{"zero dimensions", config.EmbeddingsConfig{Service: "ollama"}},
		{"openai without key", config.EmbeddingsConfig{Service: "openai", Dimensions: 1536}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEmbedder(context.Background(), &config.Config{Embeddings: tt.cfg})
			assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
		})
	}
}
