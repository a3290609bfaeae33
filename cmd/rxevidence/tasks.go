package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rxevidence/rxevidence/pkg/evaluation"
	"github.com/rxevidence/rxevidence/pkg/ingest"
	"github.com/rxevidence/rxevidence/pkg/models"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [drugs...]",
	Short: "Fetch, store and embed the labels for the given drugs",
	Long: "Fetch, store and embed the labels for the given drugs. With no arguments the " +
		"drugs of the built-in evaluation dataset are loaded.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAppState(func(ctx context.Context, appState *models.AppState) error {
			drugs := args
			if len(drugs) == 0 {
				ds, err := evaluation.LoadDataset()
				if err != nil {
					return err
				}
				drugs = ds.Drugs
			}

			orchestrator, err := ingest.NewOrchestrator(
				appState.LabelStore,
				appState.Fetcher,
				appState.Embedder,
				appState.Config,
			)
			if err != nil {
				return err
			}

			report, err := orchestrator.IngestMany(ctx, drugs)
			if report != nil {
				printBulkReport(report)
			}
			return err
		})
	},
}

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Embed every stored chunk that has no embedding",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAppState(func(ctx context.Context, appState *models.AppState) error {
			n, err := appState.Ingestor.EmbedPending(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Embedded %s chunks\n", humanize.Comma(int64(n)))
			return nil
		})
	},
}

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Run the retrieval benchmark against the saved labels",
	RunE: func(cmd *cobra.Command, args []string) error {
		k, _ := cmd.Flags().GetInt("k")
		asJSON, _ := cmd.Flags().GetBool("json")

		return withAppState(func(ctx context.Context, appState *models.AppState) error {
			ds, err := evaluation.LoadDataset()
			if err != nil {
				return err
			}
			if k <= 0 {
				k = appState.Config.Retrieval.DefaultK
			}

			report, err := evaluation.Run(ctx, appState.Retriever, ds.Flatten(), k)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printEvalReport(report, k)
			return nil
		})
	},
}

// withAppState loads config, builds the app state and runs fn with a context
// cancelled on SIGINT or SIGTERM.
func withAppState(fn func(ctx context.Context, appState *models.AppState) error) error {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appState, err := NewAppState(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := appState.LabelStore.Close(); err != nil {
			log.Errorf("Error closing LabelStore connection: %v", err)
		}
	}()

	return fn(ctx, appState)
}

func printBulkReport(report *ingest.BulkReport) {
	chunks := 0
	for _, s := range report.Ingested {
		chunks += s.ChunkCount
		fmt.Printf("  %-24s label %-6d %d sections, %d chunks\n",
			s.Drug, s.LabelID, len(s.SectionsFound), s.ChunkCount)
	}

	skipped := make([]string, 0, len(report.Skipped))
	for drug := range report.Skipped {
		skipped = append(skipped, drug)
	}
	sort.Strings(skipped)
	for _, drug := range skipped {
		fmt.Printf("  %-24s skipped: %s\n", drug, report.Skipped[drug])
	}

	fmt.Printf("Ingested %s labels (%s chunks), skipped %s, embedded %s chunks\n",
		humanize.Comma(int64(len(report.Ingested))),
		humanize.Comma(int64(chunks)),
		humanize.Comma(int64(len(report.Skipped))),
		humanize.Comma(int64(report.Embedded)),
	)
}

func printEvalReport(report *evaluation.Report, k int) {
	for _, r := range report.Results {
		if r.Passed {
			continue
		}
		reason := fmt.Sprintf("%d good matches", r.GoodMatches)
		if r.Error != "" {
			reason = r.Error
		}
		fmt.Printf("  MISS %-20s %s (%s)\n", r.Drug, r.Question, reason)
	}

	fmt.Printf("Queries:   %s (k=%d)\n", humanize.Comma(int64(report.Total)), k)
	fmt.Printf("Coverage:  %s%% (%s passed)\n",
		humanize.FtoaWithDigits(report.Coverage*100, 1),
		humanize.Comma(int64(report.Passed)),
	)
	fmt.Printf("Fallback:  %s queries\n", humanize.Comma(int64(report.FallbackCount)))
	fmt.Printf("Latency:   avg %v, p95 %v\n", report.AvgLatency, report.P95Latency)
}
