package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikirank/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/metrics"
)

// FailurePolicy decides what a failed term fetch does to the query.
type FailurePolicy string

const (
	// FailureAbort fails the whole query on the first term error.
	FailureAbort FailurePolicy = config.FailureAbort
	// FailureSkip drops the failing term and ranks with the rest.
	FailureSkip FailurePolicy = config.FailureSkip
)

// TermScorer is the per-term BM25 computation the aggregator schedules.
type TermScorer interface {
	Score(ctx context.Context, term string, totalDocs int64, avgDocLength float64) (map[int64]float64, error)
}

// AggregatorConfig selects the scheduling mode.
type AggregatorConfig struct {
	Parallel      bool
	MaxWorkers    int
	FailurePolicy FailurePolicy
}

// ScoreAggregator sums per-term BM25 scores over the distinct query terms.
// In parallel mode terms are scored on a bounded pool; only the calling
// goroutine writes to the accumulator.
type ScoreAggregator struct {
	scorer  TermScorer
	cfg     AggregatorConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewScoreAggregator validates cfg and returns an aggregator. m may be nil.
func NewScoreAggregator(scorer TermScorer, cfg AggregatorConfig, m *metrics.Metrics) (*ScoreAggregator, error) {
	if scorer == nil {
		return nil, apperrors.Invalidf("score aggregator requires a term scorer")
	}
	if cfg.MaxWorkers <= 0 {
		return nil, apperrors.Invalidf("maxWorkers must be > 0, got %d", cfg.MaxWorkers)
	}
	switch cfg.FailurePolicy {
	case "":
		cfg.FailurePolicy = FailureAbort
	case FailureAbort, FailureSkip:
	default:
		return nil, apperrors.Invalidf("unknown failure policy %q", cfg.FailurePolicy)
	}
	return &ScoreAggregator{
		scorer:  scorer,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "score-aggregator"),
	}, nil
}

type termResult struct {
	term   string
	scores map[int64]float64
	err    error
}

// Aggregate returns docID → summed BM25 score over the distinct terms.
func (a *ScoreAggregator) Aggregate(ctx context.Context, terms []string, totalDocs int64, avgDocLength float64) (map[int64]float64, error) {
	distinct := dedupTerms(terms)
	if len(distinct) == 0 {
		return map[int64]float64{}, nil
	}
	if a.cfg.Parallel {
		return a.aggregateParallel(ctx, distinct, totalDocs, avgDocLength)
	}
	return a.aggregateSequential(ctx, distinct, totalDocs, avgDocLength)
}

func (a *ScoreAggregator) aggregateSequential(ctx context.Context, terms []string, totalDocs int64, avgDocLength float64) (map[int64]float64, error) {
	acc := make(map[int64]float64)
	for _, term := range terms {
		scores, err := a.scoreTerm(ctx, term, totalDocs, avgDocLength)
		if err != nil {
			if !a.skippable(ctx) {
				return nil, err
			}
			a.recordSkip(ctx, term, err)
			continue
		}
		merge(acc, scores)
	}
	return acc, nil
}

func (a *ScoreAggregator) aggregateParallel(ctx context.Context, terms []string, totalDocs int64, avgDocLength float64) (map[int64]float64, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(a.cfg.MaxWorkers, len(terms)))

	// Buffered to the term count so no worker ever waits on the merge.
	results := make(chan termResult, len(terms))
	var waitErr error
	go func() {
		defer close(results)
		for _, term := range terms {
			term := term
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				scores, err := a.scoreTerm(gctx, term, totalDocs, avgDocLength)
				if err != nil && !a.skippable(gctx) {
					return err
				}
				results <- termResult{term: term, scores: scores, err: err}
				return nil
			})
		}
		waitErr = g.Wait()
	}()

	acc := make(map[int64]float64)
	for r := range results {
		if r.err != nil {
			a.recordSkip(ctx, r.term, r.err)
			continue
		}
		merge(acc, r.scores)
	}
	if waitErr != nil {
		return nil, waitErr
	}
	return acc, nil
}

func (a *ScoreAggregator) scoreTerm(ctx context.Context, term string, totalDocs int64, avgDocLength float64) (map[int64]float64, error) {
	start := time.Now()
	scores, err := a.scorer.Score(ctx, term, totalDocs, avgDocLength)
	if a.metrics != nil {
		a.metrics.TermFetchDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("scoring term %q: %w", term, err)
	}
	return scores, nil
}

// skippable reports whether a term failure may be dropped under the
// configured policy. A cancelled or expired query is never skipped.
func (a *ScoreAggregator) skippable(ctx context.Context) bool {
	return a.cfg.FailurePolicy == FailureSkip && ctx.Err() == nil
}

func (a *ScoreAggregator) recordSkip(ctx context.Context, term string, err error) {
	logger.FromContext(ctx).Warn("skipping query term",
		"component", "score-aggregator",
		"term", term,
		"error", err,
	)
	if a.metrics != nil {
		a.metrics.TermsSkippedTotal.Inc()
	}
}

func merge(acc, partial map[int64]float64) {
	for docID, score := range partial {
		acc[docID] += score
	}
}

// dedupTerms keeps the first occurrence of each term.
func dedupTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
