package llms

import (
	"context"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/rxevidence/rxevidence/config"
	"github.com/rxevidence/rxevidence/pkg/models"
)

const GeminiAPIKeyNotSetError = "RXEVIDENCE_GOOGLE_API_KEY is not set" //nolint:gosec

var _ models.LLM = &GeminiLLM{}

func NewGeminiLLM(ctx context.Context, cfg *config.Config) (*GeminiLLM, error) {
	if cfg.LLM.GeminiAPIKey == "" {
		return nil, models.NewConfigurationError(GeminiAPIKeyNotSetError)
	}

	httpClient := NewRetryableHTTPClient(cfg.LLM.RetryMax, cfg.LLM.Timeout, cfg.Tracing.Enabled)
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.LLM.GeminiAPIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient.StandardClient(),
	})
	if err != nil {
		return nil, err
	}

	return &GeminiLLM{client: client, model: cfg.LLM.Model, timeout: cfg.LLM.Timeout}, nil
}

type GeminiLLM struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	tokens  tokenCounter
}

func (g *GeminiLLM) Call(ctx context.Context, system, prompt string) (string, error) {
	thisCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var temperature float32 = DefaultTemperature
	resp, err := g.client.Models.GenerateContent(thisCtx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.Text(system)[0],
		Temperature:       &temperature,
	})
	if err != nil {
		return "", NewLLMError("gemini generate content failed", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", NewLLMError("gemini returned no candidates", nil)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}

	return sb.String(), nil
}

func (g *GeminiLLM) GetTokenCount(text string) (int, error) {
	return g.tokens.count(text)
}
