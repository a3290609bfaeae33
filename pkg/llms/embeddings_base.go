package llms

import (
	"context"
	"fmt"
	"math"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/viterin/vek/vek32"

	"github.com/rxevidence/rxevidence/config"
	"github.com/rxevidence/rxevidence/pkg/models"
	"github.com/rxevidence/rxevidence/pkg/store"
)

// NewEmbedder returns the embedding client for the configured service. Every
// vector it returns is L2-normalised and of the configured width.
func NewEmbedder(ctx context.Context, cfg *config.Config) (models.Embedder, error) {
	if cfg.Embeddings.Dimensions <= 0 {
		return nil, models.NewConfigurationError(
			"embeddings.dimensions must be positive, got %d", cfg.Embeddings.Dimensions,
		)
	}

	var (
		client embeddings.Embedder
		err    error
	)
	switch cfg.Embeddings.Service {
	case "ollama", "":
		client, err = NewOllamaEmbeddingsClient(ctx, cfg)
	case "openai":
		client, err = NewOpenAIEmbeddingsClient(ctx, cfg)
	default:
		return nil, models.NewConfigurationError(
			"invalid embeddings service: %s", cfg.Embeddings.Service,
		)
	}
	if err != nil {
		return nil, err
	}

	return NewNormalizingEmbedder(client, cfg.Embeddings.Dimensions), nil
}

type EmbeddingsClientError struct {
	message       string
	originalError error
}

func (e *EmbeddingsClientError) Error() string {
	return fmt.Sprintf("embeddings error: %s (original error: %v)", e.message, e.originalError)
}

// Unwrap marks embedding failures as upstream errors.
func (e *EmbeddingsClientError) Unwrap() []error {
	return []error{models.ErrUpstreamUnavailable, e.originalError}
}

func NewEmbeddingsClientError(message string, originalError error) *EmbeddingsClientError {
	return &EmbeddingsClientError{message: message, originalError: originalError}
}

var _ models.Embedder = &NormalizingEmbedder{}

// NormalizingEmbedder wraps a langchaingo embedder, normalising each vector to
// unit length and rejecting vectors of the wrong width.
type NormalizingEmbedder struct {
	client     embeddings.Embedder
	dimensions int
}

func NewNormalizingEmbedder(client embeddings.Embedder, dimensions int) *NormalizingEmbedder {
	return &NormalizingEmbedder{client: client, dimensions: dimensions}
}

func (e *NormalizingEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *NormalizingEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	v, err := e.client.EmbedQuery(ctx, text)
	if err != nil {
		return nil, NewEmbeddingsClientError("error embedding query", err)
	}
	return e.prepare(v)
}

func (e *NormalizingEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := e.client.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, NewEmbeddingsClientError("error embedding documents", err)
	}
	if len(vectors) != len(texts) {
		return nil, NewEmbeddingsClientError(
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(vectors)), nil,
		)
	}

	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		if out[i], err = e.prepare(v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *NormalizingEmbedder) prepare(v []float32) ([]float32, error) {
	if len(v) != e.dimensions {
		return nil, store.NewEmbeddingMismatchError(
			fmt.Errorf("expected %d dimensions, got %d", e.dimensions, len(v)),
		)
	}
	return Normalize(v)
}

// Normalize returns v scaled to unit L2 norm. A zero vector cannot be
// normalised and is an error.
func Normalize(v []float32) ([]float32, error) {
	norm := vek32.Norm(v)
	if norm == 0 || math.IsNaN(float64(norm)) {
		return nil, NewEmbeddingsClientError("cannot normalize zero or NaN vector", nil)
	}
	return vek32.DivNumber(v, norm), nil
}
