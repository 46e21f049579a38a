package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/store"
	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikirank/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/metrics"
)

// randomCorpus builds a deterministic corpus of docs documents over vocab
// terms.
func randomCorpus(seed uint64, docs, vocab int) (*store.MemoryIndex, *store.MemoryMeta, []string) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	terms := make([]string, vocab)
	for i := range terms {
		terms[i] = fmt.Sprintf("term%03d", i)
	}
	postings := make(map[string][]store.Posting)
	lengths := make(map[int64]int, docs)
	pagerank := make(map[int64]float64, docs)
	titles := make(map[int64]string, docs)
	for d := 1; d <= docs; d++ {
		id := int64(d)
		length := 0
		for _, term := range terms {
			if rng.IntN(4) != 0 {
				continue
			}
			tf := 1 + rng.IntN(6)
			postings[term] = append(postings[term], store.Posting{DocID: id, Frequency: tf})
			length += tf
		}
		lengths[id] = length + rng.IntN(20)
		pagerank[id] = rng.Float64()
		titles[id] = fmt.Sprintf("Document %d", d)
	}
	meta := store.NewMemoryMeta(store.Metadata{
		Titles:   titles,
		Lengths:  lengths,
		PageRank: pagerank,
	})
	return store.NewMemoryIndex(postings), meta, terms
}

func newTestAggregator(t testing.TB, index store.IndexStore, meta store.MetaStore, cfg AggregatorConfig, m *metrics.Metrics) *ScoreAggregator {
	t.Helper()
	scorer, err := ranker.NewTermScorer(index, meta, ranker.DefaultK1, ranker.DefaultB)
	require.NoError(t, err)
	agg, err := NewScoreAggregator(scorer, cfg, m)
	require.NoError(t, err)
	return agg
}

func TestParallelMatchesSequential(t *testing.T) {
	index, meta, terms := randomCorpus(42, 300, 40)
	stats := meta.Stats()
	query := append(terms[:12:12], terms[3], terms[7], "missing")

	seq := newTestAggregator(t, index, meta, AggregatorConfig{MaxWorkers: 5}, nil)
	par := newTestAggregator(t, index, meta, AggregatorConfig{Parallel: true, MaxWorkers: 5}, nil)

	want, err := seq.Aggregate(context.Background(), query, stats.DocumentCount, stats.AverageDocumentLength)
	require.NoError(t, err)
	require.NotEmpty(t, want)

	for i := 0; i < 20; i++ {
		got, err := par.Aggregate(context.Background(), query, stats.DocumentCount, stats.AverageDocumentLength)
		require.NoError(t, err)
		require.Len(t, got, len(want))
		for docID, score := range want {
			require.Contains(t, got, docID)
			assert.InDelta(t, score, got[docID], 1e-9)
		}
	}
}

func TestAggregateKeysAreCandidateSet(t *testing.T) {
	index, meta, terms := randomCorpus(7, 120, 10)
	stats := meta.Stats()
	query := terms[:4]

	want := make(map[int64]struct{})
	for _, term := range query {
		postings, err := index.ReadPostingList(context.Background(), term)
		require.NoError(t, err)
		for _, p := range postings {
			want[p.DocID] = struct{}{}
		}
	}

	for _, parallel := range []bool{false, true} {
		agg := newTestAggregator(t, index, meta, AggregatorConfig{Parallel: parallel, MaxWorkers: 3}, nil)
		got, err := agg.Aggregate(context.Background(), query, stats.DocumentCount, stats.AverageDocumentLength)
		require.NoError(t, err)
		assert.Len(t, got, len(want), "parallel=%v", parallel)
		for docID := range got {
			assert.Contains(t, want, docID)
		}
	}
}

func TestAggregateDuplicateTermsCollapse(t *testing.T) {
	index, meta, _ := randomCorpus(1, 50, 5)
	stats := meta.Stats()
	for _, parallel := range []bool{false, true} {
		agg := newTestAggregator(t, index, meta, AggregatorConfig{Parallel: parallel, MaxWorkers: 4}, nil)
		once, err := agg.Aggregate(context.Background(), []string{"term001"}, stats.DocumentCount, stats.AverageDocumentLength)
		require.NoError(t, err)
		twice, err := agg.Aggregate(context.Background(), []string{"term001", "term001", "term001"}, stats.DocumentCount, stats.AverageDocumentLength)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	}
}

func TestAggregateEmptyAndUnseen(t *testing.T) {
	index, meta, _ := randomCorpus(1, 20, 5)
	agg := newTestAggregator(t, index, meta, AggregatorConfig{Parallel: true, MaxWorkers: 2}, nil)

	got, err := agg.Aggregate(context.Background(), nil, 20, 10)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = agg.Aggregate(context.Background(), []string{"nothing", "nowhere"}, 20, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// concurrencyScorer records the peak number of concurrent Score calls.
type concurrencyScorer struct {
	active atomic.Int32
	peak   atomic.Int32
	calls  atomic.Int32
}

func (c *concurrencyScorer) Score(ctx context.Context, term string, _ int64, _ float64) (map[int64]float64, error) {
	c.calls.Add(1)
	n := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return map[int64]float64{int64(len(term)): 1}, nil
}

func TestParallelPoolIsBounded(t *testing.T) {
	tests := []struct {
		name       string
		maxWorkers int
		terms      int
		wantPeak   int32
	}{
		{"more terms than workers", 3, 12, 3},
		{"fewer terms than workers", 8, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scorer := &concurrencyScorer{}
			agg, err := NewScoreAggregator(scorer, AggregatorConfig{Parallel: true, MaxWorkers: tt.maxWorkers}, nil)
			require.NoError(t, err)
			terms := make([]string, tt.terms)
			for i := range terms {
				terms[i] = fmt.Sprintf("t%d", i)
			}
			_, err = agg.Aggregate(context.Background(), terms, 10, 1)
			require.NoError(t, err)
			assert.Equal(t, int32(tt.terms), scorer.calls.Load())
			assert.LessOrEqual(t, scorer.peak.Load(), tt.wantPeak)
		})
	}
}

// flakyScorer fails for one term and delegates the rest.
type flakyScorer struct {
	inner   TermScorer
	failOn  string
	failErr error
}

func (f *flakyScorer) Score(ctx context.Context, term string, n int64, avgdl float64) (map[int64]float64, error) {
	if term == f.failOn {
		return nil, f.failErr
	}
	return f.inner.Score(ctx, term, n, avgdl)
}

func TestFailurePolicies(t *testing.T) {
	index, meta, _ := randomCorpus(3, 80, 6)
	stats := meta.Stats()
	base, err := ranker.NewTermScorer(index, meta, ranker.DefaultK1, ranker.DefaultB)
	require.NoError(t, err)
	scorer := &flakyScorer{
		inner:   base,
		failOn:  "term002",
		failErr: apperrors.Unavailable("postings:term002", errors.New("connection reset")),
	}
	query := []string{"term000", "term001", "term002", "term003"}

	for _, parallel := range []bool{false, true} {
		t.Run(fmt.Sprintf("abort parallel=%v", parallel), func(t *testing.T) {
			agg, err := NewScoreAggregator(scorer, AggregatorConfig{Parallel: parallel, MaxWorkers: 2}, nil)
			require.NoError(t, err)
			_, err = agg.Aggregate(context.Background(), query, stats.DocumentCount, stats.AverageDocumentLength)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
			assert.Contains(t, err.Error(), "term002")
		})

		t.Run(fmt.Sprintf("skip parallel=%v", parallel), func(t *testing.T) {
			m := metrics.NewWithRegistry(prometheus.NewRegistry())
			agg, err := NewScoreAggregator(scorer, AggregatorConfig{Parallel: parallel, MaxWorkers: 2, FailurePolicy: FailureSkip}, m)
			require.NoError(t, err)
			got, err := agg.Aggregate(context.Background(), query, stats.DocumentCount, stats.AverageDocumentLength)
			require.NoError(t, err)

			healthy := newTestAggregator(t, index, meta, AggregatorConfig{MaxWorkers: 1}, nil)
			want, err := healthy.Aggregate(context.Background(), []string{"term000", "term001", "term003"}, stats.DocumentCount, stats.AverageDocumentLength)
			require.NoError(t, err)
			require.Len(t, got, len(want))
			for docID, score := range want {
				assert.InDelta(t, score, got[docID], 1e-9)
			}
			assert.Equal(t, 1.0, testutil.ToFloat64(m.TermsSkippedTotal))
		})
	}
}

func TestSkipPolicyDoesNotSwallowCancellation(t *testing.T) {
	index, meta, _ := randomCorpus(3, 20, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	scorer := &flakyScorer{inner: mustScorer(t, index, meta), failOn: "term000", failErr: context.Canceled}
	for _, parallel := range []bool{false, true} {
		agg, err := NewScoreAggregator(scorer, AggregatorConfig{Parallel: parallel, MaxWorkers: 2, FailurePolicy: FailureSkip}, nil)
		require.NoError(t, err)
		_, err = agg.Aggregate(ctx, []string{"term000", "term001"}, 20, 5)
		assert.ErrorIs(t, err, context.Canceled, "parallel=%v", parallel)
	}
}

func mustScorer(t *testing.T, index store.IndexStore, meta store.MetaStore) TermScorer {
	t.Helper()
	s, err := ranker.NewTermScorer(index, meta, ranker.DefaultK1, ranker.DefaultB)
	require.NoError(t, err)
	return s
}

func TestNewScoreAggregatorValidation(t *testing.T) {
	scorer := &concurrencyScorer{}
	_, err := NewScoreAggregator(scorer, AggregatorConfig{MaxWorkers: 0}, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
	_, err = NewScoreAggregator(scorer, AggregatorConfig{MaxWorkers: 1, FailurePolicy: "retry"}, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
	_, err = NewScoreAggregator(nil, AggregatorConfig{MaxWorkers: 1}, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
}

func catExecutor(t *testing.T, mutate func(*config.RankingConfig)) *Executor {
	t.Helper()
	index := store.NewMemoryIndex(map[string][]store.Posting{
		"cat": {{DocID: 1, Frequency: 2}, {DocID: 2, Frequency: 1}},
	})
	meta := store.NewMemoryMeta(store.Metadata{
		Titles:   map[int64]string{1: "Cat", 2: "Kitten"},
		Lengths:  map[int64]int{1: 8, 2: 12, 3: 5},
		PageRank: map[int64]float64{1: 0.1, 2: 0.9},
		Corpus:   &store.CorpusStats{DocumentCount: 3, AverageDocumentLength: 10},
	})
	cfg := config.Default().Ranking
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := New(tokenizer.Default(), index, meta, cfg, nil)
	require.NoError(t, err)
	return e
}

func TestSearchCatScenario(t *testing.T) {
	e := catExecutor(t, func(c *config.RankingConfig) { c.Alpha = 0 })
	results, err := e.Search(context.Background(), "cat")
	require.NoError(t, err)
	assert.Equal(t, []ranker.Result{{DocID: 1, Title: "Cat"}, {DocID: 2, Title: "Kitten"}}, results)

	e = catExecutor(t, func(c *config.RankingConfig) { c.Alpha = 0.5 })
	results, err = e.Search(context.Background(), "Cat cat CAT")
	require.NoError(t, err)
	assert.Equal(t, []ranker.Result{{DocID: 1, Title: "Cat"}, {DocID: 2, Title: "Kitten"}}, results)

	e = catExecutor(t, func(c *config.RankingConfig) { c.Alpha = 1 })
	results, err = e.Search(context.Background(), "cat")
	require.NoError(t, err)
	assert.Equal(t, int64(2), results[0].DocID)
}

func TestSearchEmptyQueries(t *testing.T) {
	e := catExecutor(t, nil)
	for _, q := range []string{"", "   \t\n", "the and of", "zebra", "!!"} {
		results, err := e.Search(context.Background(), q)
		require.NoError(t, err, q)
		assert.NotNil(t, results, q)
		assert.Empty(t, results, q)
	}
}

func TestSearchRespectsMaxResults(t *testing.T) {
	index, meta, terms := randomCorpus(11, 200, 20)
	cfg := config.Default().Ranking
	cfg.MaxResults = 7
	e, err := New(tokenizer.Default(), index, meta, cfg, nil)
	require.NoError(t, err)

	query := fmt.Sprintf("%s %s %s", terms[0], terms[1], terms[2])
	results, err := e.Search(context.Background(), query)
	require.NoError(t, err)
	assert.Len(t, results, 7)

	res, err := e.Execute(context.Background(), query, 3)
	require.NoError(t, err)
	assert.Len(t, res.Results, 3)
	assert.Greater(t, res.TotalHits, 7)

	res, err = e.Execute(context.Background(), query, 1000)
	require.NoError(t, err)
	assert.Len(t, res.Results, 7)
}

func TestSearchIsIdempotentSequential(t *testing.T) {
	index, meta, terms := randomCorpus(5, 150, 15)
	cfg := config.Default().Ranking
	cfg.Parallel = false
	e, err := New(tokenizer.Default(), index, meta, cfg, nil)
	require.NoError(t, err)

	query := terms[2] + " " + terms[4] + " " + terms[9]
	first, err := e.Search(context.Background(), query)
	require.NoError(t, err)
	second, err := e.Search(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSearchConcurrentQueries(t *testing.T) {
	index, meta, terms := randomCorpus(9, 100, 10)
	e, err := New(tokenizer.Default(), index, meta, config.Default().Ranking, nil)
	require.NoError(t, err)

	want, err := e.Search(context.Background(), terms[1]+" "+terms[2])
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := e.Search(context.Background(), terms[1]+" "+terms[2])
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

func TestSearchMetrics(t *testing.T) {
	index, meta, terms := randomCorpus(2, 40, 5)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	e, err := New(tokenizer.Default(), index, meta, config.Default().Ranking, m)
	require.NoError(t, err)

	_, err = e.Search(context.Background(), terms[0])
	require.NoError(t, err)
	_, err = e.Search(context.Background(), "zebra")
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("zero_result")))
}

func TestNewRejectsInvalidRanking(t *testing.T) {
	index, meta, _ := randomCorpus(2, 10, 3)
	for name, mutate := range map[string]func(*config.RankingConfig){
		"alpha above one": func(r *config.RankingConfig) { r.Alpha = 1.5 },
		"NaN alpha":       func(r *config.RankingConfig) { r.Alpha = math.NaN() },
		"NaN b":           func(r *config.RankingConfig) { r.B = math.NaN() },
		"NaN k1":          func(r *config.RankingConfig) { r.K1 = math.NaN() },
	} {
		cfg := config.Default().Ranking
		mutate(&cfg)
		_, err := New(tokenizer.Default(), index, meta, cfg, nil)
		assert.ErrorIs(t, err, apperrors.ErrInvalidConfig, name)
	}
}
