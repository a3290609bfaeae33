// Package memory is a process-local LabelStore. Rows live in maps and vectors in
// a chromem-go collection. Nothing survives a restart.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/philippgille/chromem-go"

	"github.com/rxevidence/rxevidence/internal"
	"github.com/rxevidence/rxevidence/pkg/models"
	"github.com/rxevidence/rxevidence/pkg/store"
)

var log = internal.GetLogger()

const (
	collectionName = "label_chunks"
	labelIDKey     = "label_id"
)

type chunkKey struct {
	labelID    int64
	section    string
	chunkIndex int
}

// Force compiler to validate that LabelStore implements the LabelStore interface.
var _ models.LabelStore = &LabelStore{}

type LabelStore struct {
	mu         sync.RWMutex
	dimensions int

	labels      map[int64]*models.Label
	chunks      map[int64]*models.Chunk
	chunkKeys   map[chunkKey]int64
	embedded    map[int64]bool
	lastLabelID int64
	lastChunkID int64

	vectors *chromem.Collection
	// embedLock is a one-slot semaphore so that LockEmbeddings can honour ctx.
	embedLock chan struct{}
}

// NewLabelStore returns an empty store for vectors of the given width.
func NewLabelStore(dimensions int) (*LabelStore, error) {
	if dimensions <= 0 {
		return nil, models.NewConfigurationError("embedding dimensions must be positive, got %d", dimensions)
	}

	db := chromem.NewDB()
	// every document is added with its embedding, so the collection never embeds
	c, err := db.GetOrCreateCollection(collectionName, nil, noEmbed)
	if err != nil {
		return nil, store.NewStorageError("failed to create collection", err)
	}

	return &LabelStore{
		dimensions: dimensions,
		labels:     make(map[int64]*models.Label),
		chunks:     make(map[int64]*models.Chunk),
		chunkKeys:  make(map[chunkKey]int64),
		embedded:   make(map[int64]bool),
		vectors:    c,
		embedLock:  make(chan struct{}, 1),
	}, nil
}

func noEmbed(context.Context, string) ([]float32, error) {
	return nil, errors.New("memory store does not embed text")
}

func (s *LabelStore) CreateLabel(
	ctx context.Context,
	label *models.Label,
	chunks []models.Chunk,
) (int, error) {
	if label == nil {
		return 0, errors.New("label cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastLabelID++
	stored := *label
	stored.ID = s.lastLabelID
	stored.FetchedAt = time.Now().UTC()
	stored.Sections = copySections(label.Sections)
	stored.RawResult = append([]byte(nil), label.RawResult...)
	s.labels[stored.ID] = &stored

	label.ID = stored.ID
	label.FetchedAt = stored.FetchedAt

	return s.putChunks(stored.ID, chunks), nil
}

func (s *LabelStore) PutChunks(
	ctx context.Context,
	labelID int64,
	chunks []models.Chunk,
) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.labels[labelID]; !ok {
		return 0, store.NewStorageError(
			"failed to insert chunks",
			models.NewNotFoundError(fmt.Sprintf("label %d", labelID)),
		)
	}

	return s.putChunks(labelID, chunks), nil
}

// putChunks must be called with mu held.
func (s *LabelStore) putChunks(labelID int64, chunks []models.Chunk) int {
	var inserted int
	now := time.Now().UTC()
	for _, c := range chunks {
		key := chunkKey{labelID: labelID, section: c.Section, chunkIndex: c.ChunkIndex}
		if _, exists := s.chunkKeys[key]; exists {
			continue
		}
		s.lastChunkID++
		stored := models.Chunk{
			ID:          s.lastChunkID,
			LabelID:     labelID,
			Section:     c.Section,
			ChunkIndex:  c.ChunkIndex,
			Content:     c.Content,
			ContentHash: c.ContentHash,
			CreatedAt:   now,
		}
		s.chunks[stored.ID] = &stored
		s.chunkKeys[key] = stored.ID
		inserted++
	}
	return inserted
}

func (s *LabelStore) GetLabel(
	ctx context.Context,
	labelID int64,
	includeRaw bool,
) (*models.Label, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.labels[labelID]
	if !ok {
		return nil, models.NewNotFoundError(fmt.Sprintf("label %d", labelID))
	}

	label := *l
	label.Sections = copySections(l.Sections)
	if includeRaw {
		label.RawResult = append([]byte(nil), l.RawResult...)
	} else {
		label.RawResult = nil
	}
	return &label, nil
}

func (s *LabelStore) ListRecentLabels(ctx context.Context, limit int) ([]models.Label, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	labels := make([]models.Label, 0, len(s.labels))
	for _, l := range s.labels {
		label := *l
		label.Sections = nil
		label.RawResult = nil
		labels = append(labels, label)
	}

	sort.Slice(labels, func(i, j int) bool {
		if !labels[i].FetchedAt.Equal(labels[j].FetchedAt) {
			return labels[i].FetchedAt.After(labels[j].FetchedAt)
		}
		return labels[i].ID > labels[j].ID
	})

	if limit >= 0 && len(labels) > limit {
		labels = labels[:limit]
	}
	return labels, nil
}

func (s *LabelStore) DeleteLabel(ctx context.Context, labelID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.labels[labelID]; !ok {
		return models.NewNotFoundError(fmt.Sprintf("label %d", labelID))
	}

	var ids []string
	for id, c := range s.chunks {
		if c.LabelID != labelID {
			continue
		}
		if s.embedded[id] {
			ids = append(ids, strconv.FormatInt(id, 10))
		}
		delete(s.chunkKeys, chunkKey{labelID: labelID, section: c.Section, chunkIndex: c.ChunkIndex})
		delete(s.embedded, id)
		delete(s.chunks, id)
	}
	delete(s.labels, labelID)

	if len(ids) > 0 {
		if err := s.vectors.Delete(ctx, nil, nil, ids...); err != nil {
			return store.NewStorageError("failed to delete chunk vectors", err)
		}
	}

	return nil
}

func (s *LabelStore) GetChunk(ctx context.Context, chunkID int64) (*models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chunks[chunkID]
	if !ok {
		return nil, models.NewNotFoundError(fmt.Sprintf("chunk %d", chunkID))
	}
	chunk := *c
	return &chunk, nil
}

func (s *LabelStore) ChunksWithoutEmbeddings(
	ctx context.Context,
	limit int,
) ([]models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chunks []models.Chunk
	for id, c := range s.chunks {
		if !s.embedded[id] {
			chunks = append(chunks, *c)
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ID < chunks[j].ID })

	if limit >= 0 && len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks, nil
}

func (s *LabelStore) PutChunkEmbeddings(
	ctx context.Context,
	embeddings []models.ChunkEmbedding,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make([]chromem.Document, 0, len(embeddings))
	for _, e := range embeddings {
		if len(e.Embedding) != s.dimensions {
			return store.NewEmbeddingMismatchError(
				fmt.Errorf(
					"chunk %d: got %d dimensions, store has %d",
					e.ChunkID,
					len(e.Embedding),
					s.dimensions,
				),
			)
		}
		c, ok := s.chunks[e.ChunkID]
		if !ok {
			// deleted with its label since it was read
			continue
		}
		docs = append(docs, chromem.Document{
			ID:        strconv.FormatInt(c.ID, 10),
			Content:   c.Content,
			Metadata:  map[string]string{labelIDKey: strconv.FormatInt(c.LabelID, 10)},
			Embedding: append([]float32(nil), e.Embedding...),
		})
	}

	for _, doc := range docs {
		if err := s.vectors.AddDocument(ctx, doc); err != nil {
			return store.NewStorageError("failed to add chunk vector", err)
		}
		id, _ := strconv.ParseInt(doc.ID, 10, 64)
		s.embedded[id] = true
	}

	return nil
}

func (s *LabelStore) SearchNearest(
	ctx context.Context,
	vector []float32,
	k int,
	labelID *int64,
) ([]models.Match, error) {
	if len(vector) != s.dimensions {
		return nil, store.NewEmbeddingMismatchError(
			fmt.Errorf("query has %d dimensions, store has %d", len(vector), s.dimensions),
		)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.vectors.Count()
	if k <= 0 || count == 0 {
		return []models.Match{}, nil
	}

	opts := chromem.QueryOptions{
		QueryEmbedding: vector,
		NResults:       min(k, count),
	}
	if labelID != nil {
		opts.Where = map[string]string{labelIDKey: strconv.FormatInt(*labelID, 10)}
	}

	results, err := s.vectors.QueryWithOptions(ctx, opts)
	if err != nil {
		return nil, store.NewStorageError("failed to query chunk vectors", err)
	}

	matches := make([]models.Match, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			return nil, store.NewStorageError("invalid chunk vector id", err)
		}
		c, ok := s.chunks[id]
		if !ok {
			log.Warnf("chunk vector %d has no chunk row", id)
			continue
		}
		matches = append(matches, toMatch(c, 1-float64(r.Similarity)))
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ID < matches[j].ID
	})

	return matches, nil
}

// SearchLexical matches chunks containing every query term, case-insensitively.
// Matches are ranked by total term occurrences, then by chunk id.
func (s *LabelStore) SearchLexical(
	ctx context.Context,
	query string,
	k int,
	labelID *int64,
	distance float64,
) ([]models.Match, error) {
	terms := tokenize(query)
	if k <= 0 || len(terms) == 0 {
		return []models.Match{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type ranked struct {
		chunk *models.Chunk
		score int
	}
	var hits []ranked
	for _, c := range s.chunks {
		if labelID != nil && c.LabelID != *labelID {
			continue
		}
		counts := make(map[string]int)
		for _, w := range tokenize(c.Content) {
			counts[w]++
		}
		score := 0
		for _, t := range terms {
			if counts[t] == 0 {
				score = 0
				break
			}
			score += counts[t]
		}
		if score > 0 {
			hits = append(hits, ranked{chunk: c, score: score})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].chunk.ID < hits[j].chunk.ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	matches := make([]models.Match, len(hits))
	for i, h := range hits {
		matches[i] = toMatch(h.chunk, distance)
	}
	return matches, nil
}

func (s *LabelStore) LockEmbeddings(ctx context.Context) (func(), error) {
	select {
	case s.embedLock <- struct{}{}:
	case <-ctx.Done():
		return nil, models.NewAdvisoryLockError(ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-s.embedLock })
	}, nil
}

func (s *LabelStore) Stats(ctx context.Context) (*models.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &models.StoreStats{
		Labels:         len(s.labels),
		Chunks:         len(s.chunks),
		EmbeddedChunks: len(s.embedded),
	}, nil
}

func (s *LabelStore) Close() error {
	return nil
}

func toMatch(c *models.Chunk, distance float64) models.Match {
	return models.Match{
		ID:         c.ID,
		LabelID:    c.LabelID,
		Section:    c.Section,
		ChunkIndex: c.ChunkIndex,
		Content:    c.Content,
		Distance:   distance,
	}
}

func copySections(sections map[string]string) map[string]string {
	if sections == nil {
		return nil
	}
	out := make(map[string]string, len(sections))
	for k, v := range sections {
		out[k] = v
	}
	return out
}

// stopWords are dropped from lexical queries and content.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "can": true, "do": true, "does": true, "for": true,
	"i": true, "if": true, "in": true, "is": true, "it": true, "of": true,
	"on": true, "or": true, "the": true, "to": true, "what": true, "with": true,
}

func tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := words[:0]
	for _, w := range words {
		if !stopWords[w] {
			out = append(out, w)
		}
	}
	return out
}
