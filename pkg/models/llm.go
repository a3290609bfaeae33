package models

import "context"

// Embedder maps text to unit-norm vectors of a fixed width.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// LLM runs a single chat completion with a system instruction and a user prompt.
type LLM interface {
	Call(ctx context.Context, system, prompt string) (string, error)
	// GetTokenCount returns the number of tokens in the given text
	GetTokenCount(text string) (int, error)
}

// LabelFetcher retrieves a label from the upstream label API. The returned
// Label has no ID.
type LabelFetcher interface {
	FetchLabel(ctx context.Context, drugName string) (*Label, error)
}
