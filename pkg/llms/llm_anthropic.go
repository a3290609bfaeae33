package llms

import (
	"context"
	"time"

	"github.com/tmc/langchaingo/llms/anthropic"

	"github.com/rxevidence/rxevidence/config"
	"github.com/rxevidence/rxevidence/pkg/models"
)

const AnthropicAPIKeyNotSetError = "RXEVIDENCE_ANTHROPIC_API_KEY is not set" //nolint:gosec

var _ models.LLM = &AnthropicLLM{}

func NewAnthropicLLM(_ context.Context, cfg *config.Config) (*AnthropicLLM, error) {
	if cfg.LLM.AnthropicAPIKey == "" {
		return nil, models.NewConfigurationError(AnthropicAPIKeyNotSetError)
	}

	httpClient := NewRetryableHTTPClient(cfg.LLM.RetryMax, cfg.LLM.Timeout, cfg.Tracing.Enabled)
	llm, err := anthropic.New(
		anthropic.WithModel(cfg.LLM.Model),
		anthropic.WithToken(cfg.LLM.AnthropicAPIKey),
		anthropic.WithHTTPClient(httpClient.StandardClient()),
	)
	if err != nil {
		return nil, err
	}

	return &AnthropicLLM{client: llm, timeout: cfg.LLM.Timeout}, nil
}

type AnthropicLLM struct {
	client  *anthropic.LLM
	timeout time.Duration
	tokens  tokenCounter
}

func (a *AnthropicLLM) Call(ctx context.Context, system, prompt string) (string, error) {
	return generateWithModel(ctx, a.client, a.timeout, system, prompt)
}

func (a *AnthropicLLM) GetTokenCount(text string) (int, error) {
	return a.tokens.count(text)
}
