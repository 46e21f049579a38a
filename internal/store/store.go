// Package store defines the read-only contracts the ranking core consumes and
// the adapters that satisfy them: in-memory maps, a JSON metadata file,
// PostgreSQL, Redis, and the caching and resilience decorators layered on top.
//
// Every implementation must be safe for concurrent use by many queries and by
// many workers within one query. None of them are mutated by the searcher.
package store

import "context"

// Posting is one (document, term frequency) entry of a term's posting list.
type Posting struct {
	DocID     int64 `json:"d"`
	Frequency int   `json:"f"`
}

// IndexStore looks up document frequencies and posting lists.
type IndexStore interface {
	// DocumentFrequency returns the number of documents containing term, or
	// 0 if the term was never indexed.
	DocumentFrequency(ctx context.Context, term string) (int, error)
	// ReadPostingList returns the postings for term in no particular order.
	ReadPostingList(ctx context.Context, term string) ([]Posting, error)
}

// MetaStore exposes per-document metadata and corpus statistics.
type MetaStore interface {
	Title(ctx context.Context, docID int64) (string, error)
	Length(ctx context.Context, docID int64) (int, error)
	PageRank(ctx context.Context, docID int64) (float64, error)
	DocumentCount(ctx context.Context) (int64, error)
	AverageDocumentLength(ctx context.Context) (float64, error)
}

// CorpusStats are the corpus-wide statistics BM25 needs.
type CorpusStats struct {
	DocumentCount         int64   `json:"N"`
	AverageDocumentLength float64 `json:"avgdl"`
}
