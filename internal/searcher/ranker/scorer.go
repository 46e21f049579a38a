package ranker

import (
	"context"
	"fmt"
	"math"

	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikirank/pkg/errors"
)

// TermScorer computes one term's BM25 contribution to every document in its
// posting list. It holds no mutable state and is safe for concurrent use.
type TermScorer struct {
	index store.IndexStore
	meta  store.MetaStore
	k1    float64
	b     float64
}

func NewTermScorer(index store.IndexStore, meta store.MetaStore, k1, b float64) (*TermScorer, error) {
	if index == nil || meta == nil {
		return nil, apperrors.Invalidf("term scorer requires an index store and a meta store")
	}
	if !(k1 >= 0) || math.IsInf(k1, 1) {
		return nil, apperrors.Invalidf("k1 must be a finite number >= 0, got %v", k1)
	}
	if !(b >= 0 && b <= 1) {
		return nil, apperrors.Invalidf("b must be within [0,1], got %v", b)
	}
	return &TermScorer{index: index, meta: meta, k1: k1, b: b}, nil
}

// Score returns docID → BM25 contribution of term. An unseen term yields an
// empty map. Postings whose document has no known length are skipped.
func (s *TermScorer) Score(ctx context.Context, term string, totalDocs int64, avgDocLength float64) (map[int64]float64, error) {
	scores := make(map[int64]float64)
	df, err := s.index.DocumentFrequency(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("%w: document frequency of %q: %w", apperrors.ErrTermFetch, term, err)
	}
	if df <= 0 {
		return scores, nil
	}
	postings, err := s.index.ReadPostingList(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("%w: posting list of %q: %w", apperrors.ErrTermFetch, term, err)
	}

	idf := computeIDF(totalDocs, df)
	for _, posting := range postings {
		docLength, err := s.meta.Length(ctx, posting.DocID)
		if err != nil {
			return nil, fmt.Errorf("%w: length of document %d: %w", apperrors.ErrTermFetch, posting.DocID, err)
		}
		if docLength <= 0 {
			continue
		}
		tfNorm := computeTFNorm(float64(posting.Frequency), float64(docLength), avgDocLength, s.k1, s.b)
		scores[posting.DocID] += idf * tfNorm
	}
	return scores, nil
}
