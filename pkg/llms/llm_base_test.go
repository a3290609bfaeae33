package llms

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/rxevidence/rxevidence/config"
	"github.com/rxevidence/rxevidence/pkg/models"
)

type fakeModel struct {
	messages []llms.MessageContent
	resp     *llms.ContentResponse
	err      error
}

func (f *fakeModel) GenerateContent(
	_ context.Context,
	messages []llms.MessageContent,
	_ ...llms.CallOption,
) (*llms.ContentResponse, error) {
	f.messages = messages
	return f.resp, f.err
}

func (f *fakeModel) Call(_ context.Context, _ string, _ ...llms.CallOption) (string, error) {
	return "", errors.New("not implemented")
}

func TestGenerateWithModel(t *testing.T) {
	ctx := context.Background()

	t.Run("system and human messages", func(t *testing.T) {
		model := &fakeModel{resp: &llms.ContentResponse{
			Choices: []*llms.ContentChoice{{Content: "answer [1]"}},
		}}

		out, err := generateWithModel(ctx, model, defaultTestTimeout, "be brief", "question")
		require.NoError(t, err)
		assert.Equal(t, "answer [1]", out)
		require.Len(t, model.messages, 2)
		assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
		assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	})

	t.Run("provider failure is a generation error", func(t *testing.T) {
		model := &fakeModel{err: errors.New("quota exceeded")}

		_, err := generateWithModel(ctx, model, defaultTestTimeout, "s", "p")
		assert.ErrorIs(t, err, models.ErrGeneration)
	})

	t.Run("no choices", func(t *testing.T) {
		model := &fakeModel{resp: &llms.ContentResponse{}}

		_, err := generateWithModel(ctx, model, defaultTestTimeout, "s", "p")
		assert.ErrorIs(t, err, models.ErrGeneration)
	})
}

func TestNewLLMClientConfiguration(t *testing.T) {
	tests := []struct {
		name string
		llm  config.LLM
	}{
		{"missing model", config.LLM{Service: "gemini"}},
		{"unknown service", config.LLM{Service: "palm", Model: "x"}},
		{"gemini without key", config.LLM{Service: "gemini", Model: "gemini-2.5-flash"}},
		{"openai without key", config.LLM{Service: "openai", Model: "gpt-4o-mini"}},
		{"anthropic without key", config.LLM{Service: "anthropic", Model: "claude-3-5-haiku-latest"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLLMClient(context.Background(), &config.Config{LLM: tt.llm})
			assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
		})
	}
}

func TestRetryPolicy(t *testing.T) {
	ctx := context.Background()

	retry, err := retryPolicy(ctx, &http.Response{StatusCode: http.StatusBadRequest}, nil)
	assert.False(t, retry)
	assert.NoError(t, err)

	retry, _ = retryPolicy(ctx, &http.Response{StatusCode: http.StatusServiceUnavailable}, nil)
	assert.True(t, retry)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	retry, err = retryPolicy(cancelled, nil, errors.New("boom"))
	assert.False(t, retry)
	assert.ErrorIs(t, err, context.Canceled)
}

const defaultTestTimeout = 5 * time.Second
