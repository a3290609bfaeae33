package config

import (
	"errors"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/rxevidence/rxevidence/internal"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// We're bootstrapping so avoid any imports from other packages
var log = logrus.New()

const EnvPrefix = "RXEVIDENCE"

// DefaultSections are the label fields extracted into chunks, in extraction order.
var DefaultSections = []string{
	"adverse_reactions",
	"boxed_warning",
	"contraindications",
	"dosage_and_administration",
	"drug_interactions",
	"precautions",
	"use_in_specific_populations",
	"warnings",
	"warnings_and_cautions",
}

// Defaults returns the configuration used for any value not set in the config file or ENV.
func Defaults() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			MaxRequestSize: 1 << 20,
		},
		Store: StoreConfig{Type: "postgres"},
		OpenFDA: OpenFDAConfig{
			BaseURL:  "https://api.fda.gov",
			Timeout:  30 * time.Second,
			Sections: append([]string(nil), DefaultSections...),
		},
		Chunking: ChunkingConfig{
			Size:    900,
			Overlap: 120,
		},
		Embeddings: EmbeddingsConfig{
			Service:    "ollama",
			Model:      "all-minilm",
			Dimensions: 384,
			ServerURL:  "http://localhost:11434",
			BatchSize:  32,
			Timeout:    60 * time.Second,
		},
		LLM: LLM{
			Service: "gemini",
			Model:   "gemini-2.5-flash",
			Timeout: 60 * time.Second,
		},
		Retrieval: RetrievalConfig{
			DefaultK:                    5,
			MaxK:                        50,
			FallbackDistanceThreshold:   0.45,
			FallbackPlaceholderDistance: 0.60,
		},
		Ingest:  IngestConfig{Pause: 500 * time.Millisecond},
		Tracing: TracingConfig{ServiceName: "rxevidence"},
	}
}

var envKeys = []string{
	"log.level",
	"server.host",
	"server.port",
	"server.max_request_size",
	"auth.required",
	"store.type",
	"openfda.base_url",
	"openfda.timeout",
	"openfda.retry_max",
	"openfda.sections",
	"chunking.size",
	"chunking.overlap",
	"embeddings.service",
	"embeddings.model",
	"embeddings.dimensions",
	"embeddings.server_url",
	"embeddings.batch_size",
	"embeddings.openai_endpoint",
	"embeddings.timeout",
	"llm.service",
	"llm.model",
	"llm.openai_endpoint",
	"llm.timeout",
	"llm.retry_max",
	"retrieval.default_k",
	"retrieval.max_k",
	"retrieval.fallback_distance_threshold",
	"retrieval.fallback_placeholder_distance",
	"assistant.disable_query_rewrite",
	"ingest.pause",
	"ingest.backfill_every",
	"tracing.enabled",
	"tracing.service_name",
	"tracing.endpoint",
}

// LoadConfig loads the config file and ENV variables into a Config struct.
// A missing config.yaml is not an error unless configFile was given explicitly.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
	}

	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only applies to keys viper knows about
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, err
		}
		log.Warn("config.yaml not found, using defaults and environment")
	}

	// Environment variables take precedence over config file
	loadDotEnv()

	secrets := map[string]string{
		"llm.openai_api_key":        EnvPrefix + "_OPENAI_API_KEY",
		"llm.anthropic_api_key":     EnvPrefix + "_ANTHROPIC_API_KEY",
		"llm.gemini_api_key":        EnvPrefix + "_GOOGLE_API_KEY",
		"embeddings.openai_api_key": EnvPrefix + "_OPENAI_API_KEY",
		"openfda.api_key":           EnvPrefix + "_OPENFDA_API_KEY",
		"auth.secret":               EnvPrefix + "_AUTH_SECRET",
		"store.postgres.dsn":        EnvPrefix + "_STORE_POSTGRES_DSN",
	}
	for key, env := range secrets {
		if err := v.BindEnv(key, env); err != nil {
			log.Fatalf("Error binding environment variable: %s", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := ApplyDefaults(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyDefaults fills every zero value in cfg from Defaults.
func ApplyDefaults(cfg *Config) error {
	return mergo.Merge(cfg, Defaults())
}

// loadDotEnv loads environment variables from .env file
func loadDotEnv() {
	err := godotenv.Load()
	if err != nil {
		log.Debug(".env file not found or unable to load")
	}
}

// SetLogLevel sets the log level based on the config file. Defaults to INFO if not set or invalid
func SetLogLevel(cfg *Config) {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	internal.SetLogLevel(level)
	log.Info("Log level set to: ", level)
}
