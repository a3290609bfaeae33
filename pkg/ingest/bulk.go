package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/rxevidence/rxevidence/pkg/models"
)

type BulkReport struct {
	Ingested []models.IngestSummary `json:"ingested"`
	// Skipped maps a drug name to the reason it was not loaded.
	Skipped  map[string]string `json:"skipped"`
	Embedded int               `json:"embedded"`
}

// IngestMany loads each drug in turn, pausing between upstream calls, then
// embeds all pending chunks once. Drugs that are not found, that the upstream
// fails for, or whose label has none of the configured sections are skipped.
// Storage errors abort the run.
func (o *Orchestrator) IngestMany(ctx context.Context, drugs []string) (*BulkReport, error) {
	report := &BulkReport{Skipped: make(map[string]string)}

	for i, drug := range drugs {
		if i > 0 {
			if err := sleep(ctx, o.pause); err != nil {
				return report, err
			}
		}

		label, err := o.fetcher.FetchLabel(ctx, drug)
		switch {
		case errors.Is(err, models.ErrLabelNotFound):
			log.Infof("skipping %s: not found", drug)
			report.Skipped[drug] = "not found"
			continue
		case errors.Is(err, models.ErrUpstreamUnavailable), errors.Is(err, models.ErrBadRequest):
			log.Warnf("skipping %s: %v", drug, err)
			report.Skipped[drug] = err.Error()
			continue
		case err != nil:
			return report, err
		}

		if len(label.Sections) == 0 {
			log.Infof("skipping %s: no sections", drug)
			report.Skipped[drug] = "no sections"
			continue
		}

		summary, err := o.persist(ctx, label)
		if err != nil {
			return report, err
		}
		report.Ingested = append(report.Ingested, *summary)
	}

	embedded, err := o.EmbedPending(ctx)
	report.Embedded = embedded
	if err != nil {
		return report, err
	}

	return report, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
