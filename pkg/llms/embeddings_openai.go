package llms

import (
	"context"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/rxevidence/rxevidence/config"
	"github.com/rxevidence/rxevidence/pkg/models"
)

const EmbeddingsOpenAIAPIKeyNotSetError = "RXEVIDENCE_OPENAI_API_KEY is not set" //nolint:gosec

func NewOpenAIEmbeddingsClient(_ context.Context, cfg *config.Config) (*embeddings.EmbedderImpl, error) {
	if cfg.Embeddings.OpenAIAPIKey == "" {
		return nil, models.NewConfigurationError(EmbeddingsOpenAIAPIKeyNotSetError)
	}

	httpClient := NewRetryableHTTPClient(0, cfg.Embeddings.Timeout, cfg.Tracing.Enabled)
	options := []openai.Option{
		openai.WithHTTPClient(httpClient.StandardClient()),
		openai.WithToken(cfg.Embeddings.OpenAIAPIKey),
		openai.WithEmbeddingModel(cfg.Embeddings.Model),
	}
	if cfg.Embeddings.OpenAIEndpoint != "" {
		options = append(options, openai.WithBaseURL(cfg.Embeddings.OpenAIEndpoint))
	}

	llm, err := openai.New(options...)
	if err != nil {
		return nil, NewEmbeddingsClientError("error creating openai client", err)
	}

	return embeddings.NewEmbedder(llm, embeddings.WithBatchSize(cfg.Embeddings.BatchSize))
}
