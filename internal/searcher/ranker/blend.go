package ranker

import (
	"context"
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikirank/pkg/errors"
)

// RankBlender merges BM25 scores with PageRank. Both signals are min-max
// normalized over the candidate set before being mixed by alpha.
type RankBlender struct {
	meta store.MetaStore
}

func NewRankBlender(meta store.MetaStore) *RankBlender {
	return &RankBlender{meta: meta}
}

// Blend ranks the candidates in bm25 by (1-alpha)*bm25 + alpha*pagerank,
// highest first. Equal scores are ordered by ascending document id.
func (r *RankBlender) Blend(ctx context.Context, bm25 map[int64]float64, alpha float64) ([]ScoredDoc, error) {
	if !(alpha >= 0 && alpha <= 1) {
		return nil, apperrors.Invalidf("alpha must be within [0,1], got %v", alpha)
	}
	if len(bm25) == 0 {
		return []ScoredDoc{}, nil
	}

	pagerank := make(map[int64]float64, len(bm25))
	for docID := range bm25 {
		pr, err := r.meta.PageRank(ctx, docID)
		if err != nil {
			return nil, fmt.Errorf("pagerank of document %d: %w", docID, err)
		}
		pagerank[docID] = pr
	}

	bm25Norm := minMaxNormalize(bm25)
	prNorm := minMaxNormalize(pagerank)

	ranked := make([]ScoredDoc, 0, len(bm25))
	for docID := range bm25 {
		ranked = append(ranked, ScoredDoc{
			DocID: docID,
			Score: (1-alpha)*bm25Norm[docID] + alpha*prNorm[docID],
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].DocID < ranked[j].DocID
	})
	return ranked, nil
}

// minMaxNormalize maps values onto [0,1]. When every value is equal the signal
// carries no information and all entries become 0.
func minMaxNormalize(values map[int64]float64) map[int64]float64 {
	out := make(map[int64]float64, len(values))
	first := true
	var lo, hi float64
	for _, v := range values {
		if first {
			lo, hi = v, v
			first = false
			continue
		}
		lo = min(lo, v)
		hi = max(hi, v)
	}
	span := hi - lo
	for docID, v := range values {
		if span == 0 {
			out[docID] = 0
			continue
		}
		out[docID] = (v - lo) / span
	}
	return out
}
