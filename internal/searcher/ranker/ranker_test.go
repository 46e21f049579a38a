package ranker

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikirank/pkg/errors"
)

// catCorpus is the three-document corpus used throughout: N=3, avgdl=10 and
// "cat" appearing in documents 1 and 2.
func catCorpus() (*store.MemoryIndex, *store.MemoryMeta) {
	index := store.NewMemoryIndex(map[string][]store.Posting{
		"cat": {{DocID: 1, Frequency: 2}, {DocID: 2, Frequency: 1}},
		"dog": {{DocID: 3, Frequency: 1}},
	})
	meta := store.NewMemoryMeta(store.Metadata{
		Titles:   map[int64]string{1: "Cat", 2: "Kitten"},
		Lengths:  map[int64]int{1: 8, 2: 12, 3: 5},
		PageRank: map[int64]float64{1: 0.1, 2: 0.9},
		Corpus:   &store.CorpusStats{DocumentCount: 3, AverageDocumentLength: 10},
	})
	return index, meta
}

type failingIndex struct{ err error }

func (f failingIndex) DocumentFrequency(context.Context, string) (int, error) { return 0, f.err }
func (f failingIndex) ReadPostingList(context.Context, string) ([]store.Posting, error) {
	return nil, f.err
}

// recordingMeta notes which documents had their PageRank looked up.
type recordingMeta struct {
	*store.MemoryMeta
	mu     sync.Mutex
	lookup map[int64]int
}

func (r *recordingMeta) PageRank(ctx context.Context, docID int64) (float64, error) {
	r.mu.Lock()
	r.lookup[docID]++
	r.mu.Unlock()
	return r.MemoryMeta.PageRank(ctx, docID)
}

func TestComputeIDF(t *testing.T) {
	assert.InDelta(t, math.Log(1.6), computeIDF(3, 2), 1e-12)
	assert.Less(t, computeIDF(10, 9), math.Log(1.2))
	assert.Greater(t, computeIDF(1000, 1), computeIDF(1000, 100))
}

func TestComputeTFNorm(t *testing.T) {
	tests := []struct {
		name                 string
		tf, dl, avgdl, k1, b float64
		want                 float64
	}{
		{"average length", 1, 10, 10, 1.2, 0.75, 2.2 / 2.2},
		{"unknown avgdl uses norm 1", 2, 50, 0, 1.2, 0.75, 2 * 2.2 / 3.2},
		{"zero denominator", 0, 10, 10, 0, 0.75, 0},
		{"b zero ignores length", 1, 100, 10, 1.2, 0, 2.2 / 2.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, computeTFNorm(tt.tf, tt.dl, tt.avgdl, tt.k1, tt.b), 1e-12)
		})
	}
}

func TestTermScorerCatScenario(t *testing.T) {
	index, meta := catCorpus()
	scorer, err := NewTermScorer(index, meta, DefaultK1, DefaultB)
	require.NoError(t, err)

	scores, err := scorer.Score(context.Background(), "cat", 3, 10)
	require.NoError(t, err)
	require.Len(t, scores, 2)

	idf := math.Log(1.6)
	assert.InDelta(t, idf*2*2.2/3.02, scores[1], 1e-12)
	assert.InDelta(t, idf*1*2.2/2.38, scores[2], 1e-12)
	assert.InDelta(t, 0.685, scores[1], 1e-3)
	assert.InDelta(t, 0.434, scores[2], 1e-3)
}

func TestTermScorerUnseenTerm(t *testing.T) {
	index, meta := catCorpus()
	scorer, err := NewTermScorer(index, meta, DefaultK1, DefaultB)
	require.NoError(t, err)

	scores, err := scorer.Score(context.Background(), "unicorn", 3, 10)
	require.NoError(t, err)
	assert.NotNil(t, scores)
	assert.Empty(t, scores)
}

func TestTermScorerSkipsDocumentsWithoutLength(t *testing.T) {
	index := store.NewMemoryIndex(map[string][]store.Posting{
		"cat": {{DocID: 1, Frequency: 1}, {DocID: 7, Frequency: 4}},
	})
	meta := store.NewMemoryMeta(store.Metadata{Lengths: map[int64]int{1: 10, 7: 0}})
	scorer, err := NewTermScorer(index, meta, DefaultK1, DefaultB)
	require.NoError(t, err)

	scores, err := scorer.Score(context.Background(), "cat", 2, 10)
	require.NoError(t, err)
	assert.Contains(t, scores, int64(1))
	assert.NotContains(t, scores, int64(7))
}

func TestTermScorerAccumulatesRepeatedPostings(t *testing.T) {
	index := store.NewMemoryIndex(map[string][]store.Posting{
		"cat": {{DocID: 1, Frequency: 1}, {DocID: 1, Frequency: 1}},
	})
	meta := store.NewMemoryMeta(store.Metadata{Lengths: map[int64]int{1: 10}})
	scorer, err := NewTermScorer(index, meta, DefaultK1, DefaultB)
	require.NoError(t, err)

	scores, err := scorer.Score(context.Background(), "cat", 10, 10)
	require.NoError(t, err)
	assert.InDelta(t, 2*computeIDF(10, 2)*computeTFNorm(1, 10, 10, DefaultK1, DefaultB), scores[1], 1e-12)
}

func TestTermScorerStoreFailure(t *testing.T) {
	_, meta := catCorpus()
	boom := apperrors.Unavailable("df:cat", errors.New("connection refused"))
	scorer, err := NewTermScorer(failingIndex{err: boom}, meta, DefaultK1, DefaultB)
	require.NoError(t, err)

	_, err = scorer.Score(context.Background(), "cat", 3, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTermFetch)
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
}

func TestNewTermScorerValidation(t *testing.T) {
	index, meta := catCorpus()
	tests := []struct {
		name  string
		k1, b float64
	}{
		{"negative k1", -0.1, 0.75},
		{"negative b", 1.2, -0.1},
		{"b above one", 1.2, 1.5},
		{"NaN k1", math.NaN(), 0.75},
		{"infinite k1", math.Inf(1), 0.75},
		{"NaN b", 1.2, math.NaN()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTermScorer(index, meta, tt.k1, tt.b)
			assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
		})
	}
	_, err := NewTermScorer(nil, meta, DefaultK1, DefaultB)
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
}

func docIDs(ranked []ScoredDoc) []int64 {
	ids := make([]int64, len(ranked))
	for i, d := range ranked {
		ids[i] = d.DocID
	}
	return ids
}

func TestBlendCatScenario(t *testing.T) {
	index, meta := catCorpus()
	scorer, err := NewTermScorer(index, meta, DefaultK1, DefaultB)
	require.NoError(t, err)
	bm25, err := scorer.Score(context.Background(), "cat", 3, 10)
	require.NoError(t, err)

	blender := NewRankBlender(meta)

	ranked, err := blender.Blend(context.Background(), bm25, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, docIDs(ranked))

	ranked, err = blender.Blend(context.Background(), bm25, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []ScoredDoc{{DocID: 1, Score: 0.5}, {DocID: 2, Score: 0.5}}, ranked)

	ranked, err = blender.Blend(context.Background(), bm25, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, docIDs(ranked))
}

func TestBlendAlphaExtremes(t *testing.T) {
	bm25 := map[int64]float64{10: 3.0, 20: 1.0, 30: 2.0, 40: 0.5}
	meta := store.NewMemoryMeta(store.Metadata{
		PageRank: map[int64]float64{10: 0.2, 20: 0.8, 30: 0.1, 40: 0.5},
	})
	blender := NewRankBlender(meta)

	ranked, err := blender.Blend(context.Background(), bm25, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 30, 20, 40}, docIDs(ranked))

	ranked, err = blender.Blend(context.Background(), bm25, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{20, 40, 10, 30}, docIDs(ranked))
}

func TestBlendDegenerateBM25FallsBackToPageRank(t *testing.T) {
	bm25 := map[int64]float64{1: 0.7, 2: 0.7, 3: 0.7}
	meta := store.NewMemoryMeta(store.Metadata{
		PageRank: map[int64]float64{1: 0.0, 2: 1.0, 3: 0.5},
	})
	alpha := 0.3

	ranked, err := NewRankBlender(meta).Blend(context.Background(), bm25, alpha)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 1}, docIDs(ranked))
	assert.InDelta(t, alpha*1.0, ranked[0].Score, 1e-12)
	assert.InDelta(t, alpha*0.5, ranked[1].Score, 1e-12)
	assert.InDelta(t, 0.0, ranked[2].Score, 1e-12)
}

func TestBlendAllDegenerateTiesByDocID(t *testing.T) {
	bm25 := map[int64]float64{9: 1, 3: 1, 5: 1}
	ranked, err := NewRankBlender(store.NewMemoryMeta(store.Metadata{})).Blend(context.Background(), bm25, 0.15)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 5, 9}, docIDs(ranked))
	for _, d := range ranked {
		assert.Zero(t, d.Score)
	}
}

func TestBlendFetchesPageRankOnlyForCandidates(t *testing.T) {
	_, base := catCorpus()
	meta := &recordingMeta{MemoryMeta: base, lookup: make(map[int64]int)}
	_, err := NewRankBlender(meta).Blend(context.Background(), map[int64]float64{1: 0.4, 2: 0.2}, 0.5)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{1: 1, 2: 1}, meta.lookup)
}

func TestBlendEmptyAndInvalidAlpha(t *testing.T) {
	_, meta := catCorpus()
	blender := NewRankBlender(meta)

	ranked, err := blender.Blend(context.Background(), nil, 0.5)
	require.NoError(t, err)
	assert.Empty(t, ranked)

	for _, alpha := range []float64{1.5, -0.1, math.NaN()} {
		_, err = blender.Blend(context.Background(), map[int64]float64{1: 1}, alpha)
		assert.ErrorIs(t, err, apperrors.ErrInvalidConfig, "alpha=%v", alpha)
	}
}

func TestSelect(t *testing.T) {
	_, meta := catCorpus()
	selector := NewResultSelector(meta)
	ranked := []ScoredDoc{{DocID: 2, Score: 0.9}, {DocID: 1, Score: 0.5}, {DocID: 3, Score: 0.1}}

	results, err := selector.Select(context.Background(), ranked, 2)
	require.NoError(t, err)
	assert.Equal(t, []Result{{DocID: 2, Title: "Kitten"}, {DocID: 1, Title: "Cat"}}, results)

	results, err = selector.Select(context.Background(), ranked, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, Result{DocID: 3, Title: ""}, results[2])

	_, err = selector.Select(context.Background(), ranked, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
}
