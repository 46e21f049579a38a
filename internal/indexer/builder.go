// Package indexer builds the artifacts the searcher reads: a segment file of
// posting lists and a metadata file of titles, lengths and PageRank scores.
// It is an offline batch step; the searcher never writes to either.
package indexer

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/store"
	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/tokenizer"
)

// Document is one corpus record. PageRank and PageViews are optional.
type Document struct {
	DocID     int64    `json:"doc_id"`
	Title     string   `json:"title"`
	Text      string   `json:"text"`
	PageRank  *float64 `json:"pagerank,omitempty"`
	PageViews *int64   `json:"pageviews,omitempty"`
}

// Builder accumulates documents into an inverted index. It is not safe for
// concurrent use.
type Builder struct {
	tok         *tokenizer.Tokenizer
	postings    map[string]map[int64]int
	md          store.Metadata
	totalTokens int64
	logger      *slog.Logger
}

func NewBuilder(tok *tokenizer.Tokenizer) *Builder {
	return &Builder{
		tok:      tok,
		postings: make(map[string]map[int64]int),
		md: store.Metadata{
			Titles:    make(map[int64]string),
			Lengths:   make(map[int64]int),
			PageRank:  make(map[int64]float64),
			PageViews: make(map[int64]int64),
		},
		logger: slog.Default().With("component", "index-builder"),
	}
}

// Add indexes doc. The title is indexed together with the text, and the
// document length is the token count of both. Adding the same DocID twice is
// an error.
func (b *Builder) Add(doc Document) error {
	if doc.DocID < 0 {
		return fmt.Errorf("document %d: negative doc_id", doc.DocID)
	}
	if _, dup := b.md.Lengths[doc.DocID]; dup {
		return fmt.Errorf("document %d: duplicate doc_id", doc.DocID)
	}
	tokens := b.tok.Tokenize(doc.Title + " " + doc.Text)
	for _, term := range tokens {
		docs, ok := b.postings[term]
		if !ok {
			docs = make(map[int64]int)
			b.postings[term] = docs
		}
		docs[doc.DocID]++
	}

	b.md.Lengths[doc.DocID] = len(tokens)
	b.totalTokens += int64(len(tokens))
	if doc.Title != "" {
		b.md.Titles[doc.DocID] = doc.Title
	}
	if doc.PageRank != nil {
		b.md.PageRank[doc.DocID] = *doc.PageRank
	}
	if doc.PageViews != nil {
		b.md.PageViews[doc.DocID] = *doc.PageViews
	}
	b.logger.Debug("document indexed", "doc_id", doc.DocID, "tokens", len(tokens))
	return nil
}

// Documents returns the number of documents added so far.
func (b *Builder) Documents() int {
	return len(b.md.Lengths)
}

// Postings returns every term's posting list ordered by DocID.
func (b *Builder) Postings() map[string][]store.Posting {
	out := make(map[string][]store.Posting, len(b.postings))
	for term, docs := range b.postings {
		list := make([]store.Posting, 0, len(docs))
		for docID, tf := range docs {
			list = append(list, store.Posting{DocID: docID, Frequency: tf})
		}
		sort.Slice(list, func(i, j int) bool { return list[i].DocID < list[j].DocID })
		out[term] = list
	}
	return out
}

// Metadata returns the per-document metadata together with the corpus
// statistics N and avgdl.
func (b *Builder) Metadata() store.Metadata {
	md := b.md
	stats := store.CorpusStats{DocumentCount: int64(len(md.Lengths))}
	if stats.DocumentCount > 0 {
		stats.AverageDocumentLength = float64(b.totalTokens) / float64(stats.DocumentCount)
	}
	md.Corpus = &stats
	return md
}
