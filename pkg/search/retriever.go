// Package search implements chunk retrieval: cosine nearest neighbour with a
// full-text fallback when the semantic result is weak.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/rxevidence/rxevidence/config"
	"github.com/rxevidence/rxevidence/internal"
	"github.com/rxevidence/rxevidence/pkg/models"
)

var log = internal.GetLogger()

var _ models.Retriever = &Retriever{}

type Retriever struct {
	store    models.LabelStore
	embedder models.Embedder
	cfg      config.RetrievalConfig
}

func NewRetriever(
	store models.LabelStore,
	embedder models.Embedder,
	cfg config.RetrievalConfig,
) (*Retriever, error) {
	if cfg.DefaultK <= 0 {
		return nil, models.NewConfigurationError("retrieval.default_k must be positive")
	}
	if cfg.MaxK < cfg.DefaultK {
		return nil, models.NewConfigurationError("retrieval.max_k must be at least retrieval.default_k")
	}
	if cfg.FallbackDistanceThreshold < 0 || cfg.FallbackDistanceThreshold > 2 {
		return nil, models.NewConfigurationError(
			"retrieval.fallback_distance_threshold must be in [0, 2], got %v",
			cfg.FallbackDistanceThreshold,
		)
	}

	return &Retriever{store: store, embedder: embedder, cfg: cfg}, nil
}

// Search returns up to k chunks for query, optionally restricted to one label.
//
// The query is embedded and the nearest chunks retrieved. When there are none,
// or their mean distance exceeds the fallback threshold, a full-text search
// over the same scope is tried; its rows, if any, replace the semantic result
// and are reported at the placeholder distance. UsedFallback is set whenever the
// semantic result was judged unreliable, whether or not full text found rows.
func (r *Retriever) Search(
	ctx context.Context,
	query string,
	k int,
	labelID *int64,
) (*models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is empty: %w", models.ErrBadRequest)
	}
	k = r.ClampK(k)

	vector, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := r.store.SearchNearest(ctx, vector, k, labelID)
	if err != nil {
		return nil, fmt.Errorf("semantic search failed: %w", err)
	}

	mean := MeanDistance(matches)
	if len(matches) > 0 && mean <= r.cfg.FallbackDistanceThreshold {
		return &models.SearchResult{Matches: matches}, nil
	}

	log.Debugf(
		"semantic search returned %d matches with mean distance %.3f, trying full text",
		len(matches),
		mean,
	)

	lexical, err := r.store.SearchLexical(
		ctx,
		query,
		k,
		labelID,
		r.cfg.FallbackPlaceholderDistance,
	)
	if err != nil {
		return nil, fmt.Errorf("full text search failed: %w", err)
	}
	if len(lexical) > 0 {
		matches = lexical
	}
	if matches == nil {
		matches = []models.Match{}
	}

	return &models.SearchResult{Matches: matches, UsedFallback: true}, nil
}

// ClampK maps k <= 0 to the default and caps it at the maximum.
func (r *Retriever) ClampK(k int) int {
	if k <= 0 {
		return r.cfg.DefaultK
	}
	if k > r.cfg.MaxK {
		return r.cfg.MaxK
	}
	return k
}

// MeanDistance is the arithmetic mean of the match distances, 0 for none.
func MeanDistance(matches []models.Match) float64 {
	if len(matches) == 0 {
		return 0
	}
	var sum float64
	for _, m := range matches {
		sum += m.Distance
	}
	return sum / float64(len(matches))
}
