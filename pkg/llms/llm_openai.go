package llms

import (
	"context"
	"time"

	"github.com/tmc/langchaingo/llms/openai"

	"github.com/rxevidence/rxevidence/config"
	"github.com/rxevidence/rxevidence/pkg/models"
)

const OpenAIAPIKeyNotSetError = "RXEVIDENCE_OPENAI_API_KEY is not set" //nolint:gosec

var _ models.LLM = &OpenAILLM{}

func NewOpenAILLM(_ context.Context, cfg *config.Config) (*OpenAILLM, error) {
	if cfg.LLM.OpenAIAPIKey == "" {
		return nil, models.NewConfigurationError(OpenAIAPIKeyNotSetError)
	}

	httpClient := NewRetryableHTTPClient(cfg.LLM.RetryMax, cfg.LLM.Timeout, cfg.Tracing.Enabled)
	options := []openai.Option{
		openai.WithHTTPClient(httpClient.StandardClient()),
		openai.WithModel(cfg.LLM.Model),
		openai.WithToken(cfg.LLM.OpenAIAPIKey),
	}
	if cfg.LLM.OpenAIEndpoint != "" {
		options = append(options, openai.WithBaseURL(cfg.LLM.OpenAIEndpoint))
	}

	llm, err := openai.New(options...)
	if err != nil {
		return nil, err
	}

	return &OpenAILLM{llm: llm, timeout: cfg.LLM.Timeout}, nil
}

type OpenAILLM struct {
	llm     *openai.LLM
	timeout time.Duration
	tokens  tokenCounter
}

func (o *OpenAILLM) Call(ctx context.Context, system, prompt string) (string, error) {
	return generateWithModel(ctx, o.llm, o.timeout, system, prompt)
}

// GetTokenCount returns the number of tokens in the text
func (o *OpenAILLM) GetTokenCount(text string) (int, error) {
	return o.tokens.count(text)
}
