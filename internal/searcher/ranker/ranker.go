// Package ranker scores documents with BM25, blends the scores with PageRank
// and cuts the blended ranking down to titled results.
package ranker

import "math"

// Default BM25 parameters.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// ScoredDoc is a candidate document with its blended score.
type ScoredDoc struct {
	DocID int64   `json:"doc_id"`
	Score float64 `json:"score"`
}

// Result is one entry of the final ranking.
type Result struct {
	DocID int64  `json:"doc_id"`
	Title string `json:"title"`
}

// computeIDF is the BM25 inverse document frequency. It goes negative for
// terms present in more than half the corpus and is deliberately not clamped.
func computeIDF(totalDocs int64, docFreq int) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(1 + numerator/denominator)
}

// computeTFNorm is the saturated term-frequency component of BM25. An unknown
// average length disables length normalization.
func computeTFNorm(termFreq, docLength, avgDocLength, k1, b float64) float64 {
	norm := 1.0
	if avgDocLength > 0 {
		norm = (1 - b) + b*(docLength/avgDocLength)
	}
	denominator := termFreq + k1*norm
	if denominator == 0 {
		denominator = 1
	}
	return termFreq * (k1 + 1) / denominator
}
