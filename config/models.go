package config

import "time"

// Config holds the configuration of the application
// Use cmd.NewConfig to create a new instance
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Store      StoreConfig      `mapstructure:"store"`
	OpenFDA    OpenFDAConfig    `mapstructure:"openfda"`
	Chunking   ChunkingConfig   `mapstructure:"chunking"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	LLM        LLM              `mapstructure:"llm"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Assistant  AssistantConfig  `mapstructure:"assistant"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type ServerConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	MaxRequestSize int64  `mapstructure:"max_request_size"`
}

type AuthConfig struct {
	Secret   string `mapstructure:"secret"`
	Required bool   `mapstructure:"required"`
}

type StoreConfig struct {
	// Type is one of "postgres" or "memory".
	Type     string         `mapstructure:"type"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	DSN              string           `mapstructure:"dsn"`
	AvailableIndexes AvailableIndexes `mapstructure:"available_indexes" json:"-"`
}

// AvailableIndexes is populated at boot from the installed pgvector version.
type AvailableIndexes struct {
	HSNW bool `mapstructure:"hnsw"`
}

type OpenFDAConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// APIKey is loaded from ENV not config file.
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	RetryMax int           `mapstructure:"retry_max"`
	// Sections is the ordered list of label fields extracted into chunks.
	Sections []string `mapstructure:"sections"`
}

type ChunkingConfig struct {
	Size    int `mapstructure:"size"`
	Overlap int `mapstructure:"overlap"`
}

type EmbeddingsConfig struct {
	// Service is one of "ollama" or "openai".
	Service    string `mapstructure:"service"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	ServerURL  string `mapstructure:"server_url"`
	BatchSize  int    `mapstructure:"batch_size"`
	// OpenAIAPIKey is loaded from ENV not config file.
	OpenAIAPIKey   string        `mapstructure:"openai_api_key"`
	OpenAIEndpoint string        `mapstructure:"openai_endpoint"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type LLM struct {
	// Service is one of "gemini", "openai" or "anthropic".
	Service string `mapstructure:"service"`
	Model   string `mapstructure:"model"`
	// API keys are loaded from ENV not config file.
	GeminiAPIKey    string        `mapstructure:"gemini_api_key"`
	OpenAIAPIKey    string        `mapstructure:"openai_api_key"`
	AnthropicAPIKey string        `mapstructure:"anthropic_api_key"`
	OpenAIEndpoint  string        `mapstructure:"openai_endpoint"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RetryMax        int           `mapstructure:"retry_max"`
}

type RetrievalConfig struct {
	DefaultK int `mapstructure:"default_k"`
	MaxK     int `mapstructure:"max_k"`
	// FallbackDistanceThreshold is the mean cosine distance above which semantic
	// results are replaced by a full-text search.
	FallbackDistanceThreshold float64 `mapstructure:"fallback_distance_threshold"`
	// FallbackPlaceholderDistance is reported for every full-text match.
	FallbackPlaceholderDistance float64 `mapstructure:"fallback_placeholder_distance"`
}

type AssistantConfig struct {
	// DisableQueryRewrite searches with the question as asked instead of an LLM rewrite.
	DisableQueryRewrite bool `mapstructure:"disable_query_rewrite"`
}

type IngestConfig struct {
	// Pause is the delay between upstream calls during bulk loads.
	Pause time.Duration `mapstructure:"pause"`
	// BackfillEvery runs the embedding backfill periodically while serving. Zero disables it.
	BackfillEvery time.Duration `mapstructure:"backfill_every"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Endpoint    string `mapstructure:"endpoint"`
}
