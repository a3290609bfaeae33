// Package mock provides deterministic test doubles for the embedding and
// generation clients.
package mock

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/rxevidence/rxevidence/pkg/llms"
	"github.com/rxevidence/rxevidence/pkg/models"
)

const DefaultDimensions = 384

var _ models.Embedder = &Embedder{}

// Embedder hashes each word of the text into a bucket of a fixed-width vector
// and normalises the result, so texts sharing words are close in cosine
// distance. EmbedTextsFunc overrides the default behaviour when set.
type Embedder struct {
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	mu         sync.Mutex
	dimensions int
	calls      int
	embedded   int
}

func NewEmbedder(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Embedder{dimensions: dimensions}
}

func (m *Embedder) Dimensions() int {
	return m.dimensions
}

func (m *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (m *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.calls++
	m.embedded += len(texts)
	fn := m.EmbedTextsFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, texts)
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := llms.Normalize(BagOfWords(t, m.dimensions))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// CallCount returns the number of EmbedText/EmbedTexts calls.
func (m *Embedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// EmbeddedCount returns the total number of texts embedded.
func (m *Embedder) EmbeddedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embedded
}

// BagOfWords returns an unnormalised vector with one count per lower-cased
// word, bucketed by FNV hash. Empty text maps to a single fixed bucket so the
// vector is never zero.
func BagOfWords(text string, dimensions int) []float32 {
	v := make([]float32, dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		v[0] = 1
		return v
	}
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(dimensions)]++
	}
	return v
}
