package llms

import (
	"context"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/rxevidence/rxevidence/config"
)

func NewOllamaEmbeddingsClient(_ context.Context, cfg *config.Config) (*embeddings.EmbedderImpl, error) {
	httpClient := NewRetryableHTTPClient(0, cfg.Embeddings.Timeout, cfg.Tracing.Enabled)

	llm, err := ollama.New(
		ollama.WithServerURL(cfg.Embeddings.ServerURL),
		ollama.WithModel(cfg.Embeddings.Model),
		ollama.WithHTTPClient(httpClient.StandardClient()),
	)
	if err != nil {
		return nil, NewEmbeddingsClientError("error creating ollama client", err)
	}

	return embeddings.NewEmbedder(llm, embeddings.WithBatchSize(cfg.Embeddings.BatchSize))
}
