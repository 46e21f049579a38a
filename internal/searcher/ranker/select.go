package ranker

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikirank/pkg/errors"
)

// ResultSelector keeps the top of a ranking and attaches titles.
type ResultSelector struct {
	meta store.MetaStore
}

func NewResultSelector(meta store.MetaStore) *ResultSelector {
	return &ResultSelector{meta: meta}
}

// Select returns the first maxResults entries of ranked with their titles. A
// document without a title gets an empty one.
func (s *ResultSelector) Select(ctx context.Context, ranked []ScoredDoc, maxResults int) ([]Result, error) {
	if maxResults <= 0 {
		return nil, apperrors.Invalidf("maxResults must be > 0, got %d", maxResults)
	}
	if len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}
	results := make([]Result, 0, len(ranked))
	for _, doc := range ranked {
		title, err := s.meta.Title(ctx, doc.DocID)
		if err != nil {
			return nil, fmt.Errorf("title of document %d: %w", doc.DocID, err)
		}
		results = append(results, Result{DocID: doc.DocID, Title: title})
	}
	return results, nil
}
