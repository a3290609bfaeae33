// Package evaluation benchmarks retrieval quality and latency over a fixed
// question set.
package evaluation

import (
	"context"
	"sort"
	"time"

	"github.com/rxevidence/rxevidence/internal"
	"github.com/rxevidence/rxevidence/pkg/models"
)

var log = internal.GetLogger()

const (
	// GoodDistance is the distance below which a match counts as relevant.
	GoodDistance = 0.65
	// MinGoodMatches is the number of relevant matches a query needs to pass.
	MinGoodMatches = 2
)

type Result struct {
	Query
	Passed       bool          `json:"passed"`
	GoodMatches  int           `json:"good_matches"`
	UsedFallback bool          `json:"used_fallback"`
	Latency      time.Duration `json:"latency"`
	Error        string        `json:"error,omitempty"`
}

type Report struct {
	Total         int           `json:"total"`
	Passed        int           `json:"passed"`
	Coverage      float64       `json:"coverage"`
	FallbackCount int           `json:"fallback_count"`
	AvgLatency    time.Duration `json:"avg_latency"`
	P95Latency    time.Duration `json:"p95_latency"`
	Results       []Result      `json:"results"`
}

// Run searches every query with k results and scores it. A failed search
// counts as a miss; only context cancellation stops the run.
func Run(
	ctx context.Context,
	retriever models.Retriever,
	queries []Query,
	k int,
) (*Report, error) {
	report := &Report{Results: make([]Result, 0, len(queries))}

	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		sr, err := retriever.Search(ctx, q.Question, k, nil)
		r := Result{Query: q, Latency: time.Since(start)}

		if err != nil {
			r.Error = err.Error()
			log.Warnf("[%03d] error for %s: %v", i+1, q.Drug, err)
		} else {
			r.UsedFallback = sr.UsedFallback
			r.GoodMatches = countGood(sr.Matches)
			r.Passed = r.GoodMatches >= MinGoodMatches
			log.Debugf("[%03d] passed=%t fallback=%t %s: %s", i+1, r.Passed, r.UsedFallback, q.Drug, q.Question)
		}

		report.Results = append(report.Results, r)
	}

	report.summarize()

	return report, nil
}

func countGood(matches []models.Match) int {
	var n int
	for _, m := range matches {
		if m.Distance < GoodDistance {
			n++
		}
	}
	return n
}

func (r *Report) summarize() {
	r.Total = len(r.Results)
	if r.Total == 0 {
		return
	}

	latencies := make([]time.Duration, r.Total)
	var sum time.Duration
	for i, res := range r.Results {
		if res.Passed {
			r.Passed++
		}
		if res.UsedFallback {
			r.FallbackCount++
		}
		latencies[i] = res.Latency
		sum += res.Latency
	}

	r.Coverage = float64(r.Passed) / float64(r.Total) * 100
	r.AvgLatency = sum / time.Duration(r.Total)
	r.P95Latency = Percentile(latencies, 0.95)
}

// Percentile returns the element at index floor(len*p) of the sorted latencies.
func Percentile(latencies []time.Duration, p float64) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
