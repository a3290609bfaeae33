package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxevidence/rxevidence/config"
	"github.com/rxevidence/rxevidence/internal"
	"github.com/rxevidence/rxevidence/pkg/models"
	"github.com/rxevidence/rxevidence/pkg/store/memory"
)

func init() {
	log = internal.GetLogger()
}

func TestNewLabelStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.Store.Type = StoreTypeMemory

		store, err := newLabelStore(ctx, &cfg)
		require.NoError(t, err)
		assert.IsType(t, &memory.LabelStore{}, store)
		assert.NoError(t, store.Close())
	})

	t.Run("postgres without dsn", func(t *testing.T) {
		cfg := config.Defaults()

		_, err := newLabelStore(ctx, &cfg)
		assert.ErrorIs(t, err, ErrPostgresDSNNotSet)
	})

	t.Run("unsupported", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.Store.Type = "sqlite"

		_, err := newLabelStore(ctx, &cfg)
		assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
	})
}

func TestRedactSecrets(t *testing.T) {
	cfg := config.Defaults()
	cfg.Auth.Secret = "s3cret"
	cfg.LLM.GeminiAPIKey = "key"

	redacted := redactSecrets(cfg)
	assert.Equal(t, "[redacted]", redacted.Auth.Secret)
	assert.Equal(t, "[redacted]", redacted.LLM.GeminiAPIKey)
	assert.Empty(t, redacted.LLM.OpenAIAPIKey)
	// the original is untouched
	assert.Equal(t, "s3cret", cfg.Auth.Secret)
}
