// Package executor runs a query through the ranking pipeline: tokenize,
// aggregate BM25 over the distinct terms, blend with PageRank and select the
// titled top results.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/store"
	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikirank/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/tracing"
)

// SearchResult is the outcome of one query.
type SearchResult struct {
	Query     string          `json:"query"`
	Terms     []string        `json:"terms"`
	TotalHits int             `json:"total_hits"`
	Results   []ranker.Result `json:"results"`
	TookMs    float64         `json:"took_ms"`
}

// Executor is the search pipeline. It holds only the read-only stores and
// immutable settings, so one Executor serves any number of concurrent
// queries.
type Executor struct {
	tokenizer  *tokenizer.Tokenizer
	meta       store.MetaStore
	aggregator *ScoreAggregator
	blender    *ranker.RankBlender
	selector   *ranker.ResultSelector
	cfg        config.RankingConfig
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New wires a pipeline over index and meta. cfg is validated here so a bad
// setting fails at startup. m may be nil.
func New(tok *tokenizer.Tokenizer, index store.IndexStore, meta store.MetaStore, cfg config.RankingConfig, m *metrics.Metrics) (*Executor, error) {
	if tok == nil {
		return nil, apperrors.Invalidf("executor requires a tokenizer")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	scorer, err := ranker.NewTermScorer(index, meta, cfg.K1, cfg.B)
	if err != nil {
		return nil, err
	}
	aggregator, err := NewScoreAggregator(scorer, AggregatorConfig{
		Parallel:      cfg.Parallel,
		MaxWorkers:    cfg.MaxWorkers,
		FailurePolicy: FailurePolicy(cfg.FailurePolicy),
	}, m)
	if err != nil {
		return nil, err
	}
	return &Executor{
		tokenizer:  tok,
		meta:       meta,
		aggregator: aggregator,
		blender:    ranker.NewRankBlender(meta),
		selector:   ranker.NewResultSelector(meta),
		cfg:        cfg,
		metrics:    m,
		logger:     slog.Default().With("component", "query-executor"),
	}, nil
}

// Search returns at most MaxResults titled documents for query.
func (e *Executor) Search(ctx context.Context, query string) ([]ranker.Result, error) {
	res, err := e.Execute(ctx, query, e.cfg.MaxResults)
	if err != nil {
		return nil, err
	}
	return res.Results, nil
}

// MaxResults is the configured cap on results per query.
func (e *Executor) MaxResults() int {
	return e.cfg.MaxResults
}

// Execute runs the pipeline and returns at most limit results. A limit
// outside (0, MaxResults] is clamped to MaxResults.
func (e *Executor) Execute(ctx context.Context, query string, limit int) (*SearchResult, error) {
	start := time.Now()
	if limit <= 0 || limit > e.cfg.MaxResults {
		limit = e.cfg.MaxResults
	}
	ctx, span := tracing.StartTrace(ctx, "search", logger.RequestID(ctx))
	res, candidates, err := e.run(ctx, query, limit)
	span.End(err)
	span.Log(ctx, e.logger)
	if err != nil {
		e.observe("error", 0, 0)
		return nil, err
	}
	res.TookMs = float64(time.Since(start).Microseconds()) / 1000
	outcome := "hit"
	if len(res.Results) == 0 {
		outcome = "zero_result"
	}
	e.observe(outcome, candidates, len(res.Results))

	logger.FromContext(ctx).Info("query executed",
		"component", "query-executor",
		"query", query,
		"terms", res.Terms,
		"candidates", candidates,
		"results", len(res.Results),
		"parallel", e.cfg.Parallel,
		"took_ms", res.TookMs,
	)
	return res, nil
}

func (e *Executor) run(ctx context.Context, query string, limit int) (*SearchResult, int, error) {
	res := &SearchResult{Query: query, Terms: []string{}, Results: []ranker.Result{}}
	if strings.TrimSpace(query) == "" {
		return res, 0, nil
	}

	_, tokSpan := tracing.Start(ctx, "tokenize")
	terms := e.tokenizer.Tokenize(query)
	tokSpan.Set("terms", len(terms))
	tokSpan.End(nil)
	if len(terms) == 0 {
		return res, 0, nil
	}
	res.Terms = dedupTerms(terms)

	totalDocs, err := e.meta.DocumentCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("reading document count: %w", err)
	}
	avgDocLength, err := e.meta.AverageDocumentLength(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("reading average document length: %w", err)
	}

	aggCtx, aggSpan := tracing.Start(ctx, "aggregate")
	bm25, err := e.aggregator.Aggregate(aggCtx, res.Terms, totalDocs, avgDocLength)
	aggSpan.Set("candidates", len(bm25))
	aggSpan.End(err)
	if err != nil {
		return nil, 0, err
	}
	if len(bm25) == 0 {
		return res, 0, nil
	}
	res.TotalHits = len(bm25)

	blendCtx, blendSpan := tracing.Start(ctx, "blend")
	ranked, err := e.blender.Blend(blendCtx, bm25, e.cfg.Alpha)
	blendSpan.End(err)
	if err != nil {
		return nil, 0, fmt.Errorf("blending scores: %w", err)
	}

	selCtx, selSpan := tracing.Start(ctx, "select")
	results, err := e.selector.Select(selCtx, ranked, limit)
	selSpan.End(err)
	if err != nil {
		return nil, 0, fmt.Errorf("selecting results: %w", err)
	}
	res.Results = results
	return res, len(bm25), nil
}

func (e *Executor) observe(outcome string, candidates, results int) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	if outcome == "error" {
		return
	}
	e.metrics.CandidateSetSize.Observe(float64(candidates))
	e.metrics.SearchResultsCount.Observe(float64(results))
}
