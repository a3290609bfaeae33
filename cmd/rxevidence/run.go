package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oiime/logrusbun"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/rxevidence/rxevidence/config"
	"github.com/rxevidence/rxevidence/pkg/assistant"
	"github.com/rxevidence/rxevidence/pkg/auth"
	"github.com/rxevidence/rxevidence/pkg/ingest"
	"github.com/rxevidence/rxevidence/pkg/llms"
	"github.com/rxevidence/rxevidence/pkg/models"
	"github.com/rxevidence/rxevidence/pkg/observability"
	"github.com/rxevidence/rxevidence/pkg/openfda"
	"github.com/rxevidence/rxevidence/pkg/search"
	"github.com/rxevidence/rxevidence/pkg/server"
	"github.com/rxevidence/rxevidence/pkg/store/memory"
	"github.com/rxevidence/rxevidence/pkg/store/postgres"
)

const (
	StoreTypePostgres = "postgres"
	StoreTypeMemory   = "memory"

	shutdownTimeout = 10 * time.Second
)

var ErrPostgresDSNNotSet = errors.New("store.postgres.dsn must be set")

// run is the entrypoint for the rxevidence server
func run() {
	cfg := loadConfig()

	handleCLIOptions(cfg)

	log.Infof("Starting rxevidence server version %s", config.VersionString)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Tracing)
	if err != nil {
		log.Fatalf("Error configuring tracing: %s", err)
	}

	appState, err := NewAppState(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}

	setupBackfillProcessor(ctx, appState)

	srv, err := server.Create(appState)
	if err != nil {
		log.Fatal(err)
	}

	go func() {
		<-ctx.Done()
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Error shutting down server: %v", err)
		}
	}()

	log.Infof("Listening on: %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}

	if err := appState.LabelStore.Close(); err != nil {
		log.Errorf("Error closing LabelStore connection: %v", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Errorf("Error flushing traces: %v", err)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		log.Fatalf("Error configuring rxevidence: %s", err)
	}
	config.SetLogLevel(cfg)
	return cfg
}

// NewAppState builds every process-wide client from the config and wires them
// together. Callers own the returned LabelStore and must Close it.
func NewAppState(ctx context.Context, cfg *config.Config) (*models.AppState, error) {
	labelStore, err := newLabelStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	embedder, err := llms.NewEmbedder(ctx, cfg)
	if err != nil {
		return nil, errors.Join(err, labelStore.Close())
	}

	llm, err := llms.NewLLMClient(ctx, cfg)
	if err != nil {
		return nil, errors.Join(err, labelStore.Close())
	}

	fetcher, err := openfda.NewClient(cfg)
	if err != nil {
		return nil, errors.Join(err, labelStore.Close())
	}

	retriever, err := search.NewRetriever(labelStore, embedder, cfg.Retrieval)
	if err != nil {
		return nil, errors.Join(err, labelStore.Close())
	}

	orchestrator, err := ingest.NewOrchestrator(labelStore, fetcher, embedder, cfg)
	if err != nil {
		return nil, errors.Join(err, labelStore.Close())
	}

	return &models.AppState{
		LabelStore: labelStore,
		Embedder:   embedder,
		LLM:        llm,
		Fetcher:    fetcher,
		Retriever:  retriever,
		Assistant:  assistant.NewAssistant(llm, retriever, cfg.Assistant),
		Ingestor:   orchestrator,
		Config:     cfg,
	}, nil
}

// handleCLIOptions handles CLI options that don't require the server to run
func handleCLIOptions(cfg *config.Config) {
	if showVersion {
		fmt.Println(config.VersionString)
		os.Exit(0)
	}
	if dumpConfig {
		b, err := json.MarshalIndent(redactSecrets(*cfg), "", "  ")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(string(b))
		os.Exit(0)
	}
	if generateKey {
		token, err := auth.GenerateJWT(cfg)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(token)
		os.Exit(0)
	}
}

func redactSecrets(cfg config.Config) config.Config {
	const redacted = "[redacted]"
	for _, secret := range []*string{
		&cfg.Auth.Secret,
		&cfg.Store.Postgres.DSN,
		&cfg.OpenFDA.APIKey,
		&cfg.Embeddings.OpenAIAPIKey,
		&cfg.LLM.GeminiAPIKey,
		&cfg.LLM.OpenAIAPIKey,
		&cfg.LLM.AnthropicAPIKey,
	} {
		if *secret != "" {
			*secret = redacted
		}
	}
	return cfg
}

// newLabelStore initializes the label store based on the config file / ENV
func newLabelStore(ctx context.Context, cfg *config.Config) (models.LabelStore, error) {
	var (
		labelStore models.LabelStore
		err        error
	)

	switch cfg.Store.Type {
	case StoreTypePostgres:
		if cfg.Store.Postgres.DSN == "" {
			return nil, ErrPostgresDSNNotSet
		}
		db, err := postgres.NewPostgresConn(cfg)
		if err != nil {
			return nil, err
		}
		if cfg.Log.Level == "debug" {
			pgDebugLogging(db)
		}
		labelStore, err = postgres.NewLabelStore(ctx, cfg, db)
		if err != nil {
			return nil, errors.Join(err, db.Close())
		}
	case StoreTypeMemory:
		labelStore, err = memory.NewLabelStore(cfg.Embeddings.Dimensions)
		if err != nil {
			return nil, err
		}
	default:
		return nil, models.NewConfigurationError("store.type (%s) is not supported", cfg.Store.Type)
	}

	log.Info("Using label store: ", cfg.Store.Type)
	return labelStore, nil
}

func pgDebugLogging(db *bun.DB) {
	db.AddQueryHook(logrusbun.NewQueryHook(logrusbun.QueryHookOptions{
		LogSlow:         time.Second,
		Logger:          log,
		QueryLevel:      logrus.DebugLevel,
		ErrorLevel:      logrus.ErrorLevel,
		SlowLevel:       logrus.WarnLevel,
		MessageTemplate: "{{.Operation}}[{{.Duration}}]: {{.Query}}",
		ErrorTemplate:   "{{.Operation}}[{{.Duration}}]: {{.Query}}: {{.Error}}",
	}))
}

// setupBackfillProcessor embeds chunks left without a vector at a regular
// interval until ctx is cancelled. If ingest.backfill_every is 0, this does nothing.
func setupBackfillProcessor(ctx context.Context, appState *models.AppState) {
	interval := appState.Config.Ingest.BackfillEvery
	if interval <= 0 {
		log.Debug("embedding backfill processor disabled")
		return
	}

	log.Infof("Starting embedding backfill processor. Running every %v", interval)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Info("Stopping embedding backfill processor")
				return
			case <-ticker.C:
				n, err := appState.Ingestor.EmbedPending(ctx)
				if err != nil {
					log.Errorf("error backfilling embeddings: %v", err)
					continue
				}
				if n > 0 {
					log.Infof("backfilled %d chunk embeddings", n)
				}
			}
		}
	}()
}
