// Package ingest loads labels into the store: fetch, persist, chunk and embed.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rxevidence/rxevidence/config"
	"github.com/rxevidence/rxevidence/internal"
	"github.com/rxevidence/rxevidence/pkg/chunker"
	"github.com/rxevidence/rxevidence/pkg/models"
	"github.com/rxevidence/rxevidence/pkg/openfda"
)

var log = internal.GetLogger()

const defaultBatchSize = 32

var _ models.Ingestor = &Orchestrator{}

type Orchestrator struct {
	store     models.LabelStore
	fetcher   models.LabelFetcher
	embedder  models.Embedder
	sections  []string
	chunking  config.ChunkingConfig
	batchSize int
	pause     time.Duration
}

func NewOrchestrator(
	store models.LabelStore,
	fetcher models.LabelFetcher,
	embedder models.Embedder,
	cfg *config.Config,
) (*Orchestrator, error) {
	// fail at boot rather than on the first ingest
	if _, err := chunker.Split("", cfg.Chunking.Size, cfg.Chunking.Overlap); err != nil {
		return nil, err
	}
	if len(cfg.OpenFDA.Sections) == 0 {
		return nil, models.NewConfigurationError("openfda.sections is empty")
	}

	batchSize := cfg.Embeddings.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &Orchestrator{
		store:     store,
		fetcher:   fetcher,
		embedder:  embedder,
		sections:  cfg.OpenFDA.Sections,
		chunking:  cfg.Chunking,
		batchSize: batchSize,
		pause:     cfg.Ingest.Pause,
	}, nil
}

// FetchAndIngest fetches the label for drugName, stores it with its chunks in
// one transaction and embeds every pending chunk. If embedding fails the label
// is deleted again before the error is returned. When another backfill holds
// the embedding lock the label is kept and EmbeddedCount is zero.
func (o *Orchestrator) FetchAndIngest(
	ctx context.Context,
	drugName string,
) (*models.IngestSummary, error) {
	label, err := o.fetcher.FetchLabel(ctx, drugName)
	if err != nil {
		return nil, err
	}

	summary, err := o.persist(ctx, label)
	if err != nil {
		return nil, err
	}

	embedded, err := o.EmbedPending(ctx)
	if errors.Is(err, models.ErrLockAcquisitionFailed) {
		// the running backfill embeds this label's chunks too
		log.Infof("embedding backfill busy, label %d left for the running backfill", label.ID)
		return summary, nil
	}
	if err != nil {
		// the request context may be done; the cleanup must still run
		if delErr := o.store.DeleteLabel(context.WithoutCancel(ctx), label.ID); delErr != nil {
			log.Errorf("failed to delete label %d after embedding failure: %v", label.ID, delErr)
			return nil, errors.Join(err, delErr)
		}
		log.Warnf("deleted label %d after embedding failure", label.ID)
		return nil, err
	}
	summary.EmbeddedCount = embedded

	return summary, nil
}

// persist chunks the label and stores it with its chunks in one transaction.
func (o *Orchestrator) persist(
	ctx context.Context,
	label *models.Label,
) (*models.IngestSummary, error) {
	chunks, err := chunker.SplitSections(
		label.Sections,
		o.sections,
		o.chunking.Size,
		o.chunking.Overlap,
	)
	if err != nil {
		return nil, err
	}

	n, err := o.store.CreateLabel(ctx, label, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to store label: %w", err)
	}

	log.Infof("stored label %d for %q with %d chunks", label.ID, label.DrugQuery, n)

	return &models.IngestSummary{
		LabelID:       label.ID,
		Drug:          label.DrugQuery,
		BrandName:     label.BrandName,
		GenericName:   label.GenericName,
		SectionsFound: openfda.SectionsFound(label, o.sections),
		ChunkCount:    n,
	}, nil
}

// EmbedPending embeds every chunk without an embedding, in batches, and
// returns the number embedded. Backfills are serialised across processes.
func (o *Orchestrator) EmbedPending(ctx context.Context) (int, error) {
	release, err := o.store.LockEmbeddings(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to lock embedding backfill: %w", err)
	}
	defer release()

	var total int
	for {
		chunks, err := o.store.ChunksWithoutEmbeddings(ctx, o.batchSize)
		if err != nil {
			return total, err
		}
		if len(chunks) == 0 {
			break
		}

		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}

		vectors, err := o.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return total, fmt.Errorf("failed to embed chunks: %w", err)
		}
		if len(vectors) != len(chunks) {
			return total, fmt.Errorf(
				"embedder returned %d vectors for %d chunks",
				len(vectors),
				len(chunks),
			)
		}

		embeddings := make([]models.ChunkEmbedding, len(chunks))
		for i, c := range chunks {
			embeddings[i] = models.ChunkEmbedding{ChunkID: c.ID, Embedding: vectors[i]}
		}
		if err := o.store.PutChunkEmbeddings(ctx, embeddings); err != nil {
			return total, fmt.Errorf("failed to store embeddings: %w", err)
		}

		total += len(chunks)
		log.Debugf("embedded %d chunks", total)
	}

	return total, nil
}
