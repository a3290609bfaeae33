package llms

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tmc/langchaingo/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rxevidence/rxevidence/config"
	"github.com/rxevidence/rxevidence/internal"
	"github.com/rxevidence/rxevidence/pkg/models"
)

const DefaultTemperature = 0.0
const InvalidLLMModelError = "llm model is not set or is invalid"

var log = internal.GetLogger()

// NewLLMClient returns the generation client for the configured service.
func NewLLMClient(ctx context.Context, cfg *config.Config) (models.LLM, error) {
	if cfg.LLM.Model == "" {
		return nil, models.NewConfigurationError(InvalidLLMModelError)
	}

	switch cfg.LLM.Service {
	case "gemini", "":
		return NewGeminiLLM(ctx, cfg)
	case "openai":
		return NewOpenAILLM(ctx, cfg)
	case "anthropic":
		return NewAnthropicLLM(ctx, cfg)
	default:
		return nil, models.NewConfigurationError("invalid LLM service: %s", cfg.LLM.Service)
	}
}

type LLMError struct {
	message       string
	originalError error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm error: %s (original error: %v)", e.message, e.originalError)
}

func (e *LLMError) Unwrap() []error {
	return []error{models.ErrGeneration, e.originalError}
}

func NewLLMError(message string, originalError error) *LLMError {
	return &LLMError{message: message, originalError: originalError}
}

// NewRetryableHTTPClient returns an HTTP client that retries transient failures
// up to retryMax times. A retryMax of 0 disables retries.
func NewRetryableHTTPClient(retryMax int, timeout time.Duration, traced bool) *retryablehttp.Client {
	retryableHTTPClient := retryablehttp.NewClient()
	retryableHTTPClient.RetryMax = retryMax
	retryableHTTPClient.HTTPClient.Timeout = timeout
	retryableHTTPClient.Logger = internal.NewLeveledLogrus(log)
	retryableHTTPClient.Backoff = retryablehttp.DefaultBackoff
	retryableHTTPClient.CheckRetry = retryPolicy
	if traced {
		retryableHTTPClient.HTTPClient.Transport = otelhttp.NewTransport(
			retryableHTTPClient.HTTPClient.Transport,
		)
	}

	return retryableHTTPClient
}

// retryPolicy is a retryablehttp.CheckRetry function. It is used to determine
// whether a request should be retried or not.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	// do not retry on context.Canceled or context.DeadlineExceeded
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	// 400s are returned for prompts over the context length
	if resp != nil && resp.StatusCode == http.StatusBadRequest {
		return false, err
	}

	shouldRetry, _ := retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	return shouldRetry, nil
}

// generateWithModel runs a system + human chat completion against a langchaingo model.
func generateWithModel(
	ctx context.Context,
	model llms.Model,
	timeout time.Duration,
	system, prompt string,
) (string, error) {
	if model == nil {
		return "", NewLLMError(InvalidLLMModelError, nil)
	}

	thisCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	resp, err := model.GenerateContent(thisCtx, messages, llms.WithTemperature(DefaultTemperature))
	if err != nil {
		return "", NewLLMError("error while generating content", err)
	}
	if len(resp.Choices) == 0 {
		return "", NewLLMError("no choices returned", nil)
	}

	return resp.Choices[0].Content, nil
}
