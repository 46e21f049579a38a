package store

import (
	"context"
	"maps"
)

// MemoryIndex is an IndexStore over in-memory posting lists.
type MemoryIndex struct {
	postings map[string][]Posting
	df       map[string]int
}

// NewMemoryIndex copies postings into a new MemoryIndex. The document
// frequency of each term is the length of its posting list.
func NewMemoryIndex(postings map[string][]Posting) *MemoryIndex {
	m := &MemoryIndex{
		postings: make(map[string][]Posting, len(postings)),
		df:       make(map[string]int, len(postings)),
	}
	for term, list := range postings {
		cp := make([]Posting, len(list))
		copy(cp, list)
		m.postings[term] = cp
		m.df[term] = len(cp)
	}
	return m
}

func (m *MemoryIndex) DocumentFrequency(_ context.Context, term string) (int, error) {
	return m.df[term], nil
}

func (m *MemoryIndex) ReadPostingList(_ context.Context, term string) ([]Posting, error) {
	list := m.postings[term]
	if list == nil {
		return nil, nil
	}
	cp := make([]Posting, len(list))
	copy(cp, list)
	return cp, nil
}

// Terms returns the number of indexed terms.
func (m *MemoryIndex) Terms() int {
	return len(m.postings)
}

// Metadata is the raw per-document data behind a MemoryMeta. Corpus is
// optional; when nil the statistics are derived from Lengths.
type Metadata struct {
	Titles    map[int64]string  `json:"titles"`
	Lengths   map[int64]int     `json:"lengths"`
	PageRank  map[int64]float64 `json:"pagerank,omitempty"`
	PageViews map[int64]int64   `json:"pageviews,omitempty"`
	Corpus    *CorpusStats      `json:"corpus,omitempty"`
}

// MemoryMeta is a MetaStore over in-memory maps.
type MemoryMeta struct {
	titles    map[int64]string
	lengths   map[int64]int
	pagerank  map[int64]float64
	pageviews map[int64]int64
	stats     CorpusStats
}

// NewMemoryMeta builds a MemoryMeta from md. Corpus statistics that md does
// not carry fall back to the number of known lengths (N) and their mean
// (avgdl).
func NewMemoryMeta(md Metadata) *MemoryMeta {
	m := &MemoryMeta{
		titles:    cloneOrEmpty(md.Titles),
		lengths:   cloneOrEmpty(md.Lengths),
		pagerank:  cloneOrEmpty(md.PageRank),
		pageviews: cloneOrEmpty(md.PageViews),
	}
	var total int64
	for _, l := range m.lengths {
		total += int64(l)
	}
	m.stats.DocumentCount = int64(len(m.lengths))
	if len(m.lengths) > 0 {
		m.stats.AverageDocumentLength = float64(total) / float64(len(m.lengths))
	}
	if md.Corpus != nil {
		if md.Corpus.DocumentCount > 0 {
			m.stats.DocumentCount = md.Corpus.DocumentCount
		}
		if md.Corpus.AverageDocumentLength > 0 {
			m.stats.AverageDocumentLength = md.Corpus.AverageDocumentLength
		}
	}
	return m
}

func cloneOrEmpty[K comparable, V any](src map[K]V) map[K]V {
	if src == nil {
		return make(map[K]V)
	}
	return maps.Clone(src)
}

func (m *MemoryMeta) Title(_ context.Context, docID int64) (string, error) {
	return m.titles[docID], nil
}

func (m *MemoryMeta) Length(_ context.Context, docID int64) (int, error) {
	return m.lengths[docID], nil
}

func (m *MemoryMeta) PageRank(_ context.Context, docID int64) (float64, error) {
	return m.pagerank[docID], nil
}

// PageViews returns the recorded page views of docID, or 0.
func (m *MemoryMeta) PageViews(_ context.Context, docID int64) (int64, error) {
	return m.pageviews[docID], nil
}

func (m *MemoryMeta) DocumentCount(_ context.Context) (int64, error) {
	return m.stats.DocumentCount, nil
}

func (m *MemoryMeta) AverageDocumentLength(_ context.Context) (float64, error) {
	return m.stats.AverageDocumentLength, nil
}

// Stats returns the corpus statistics in effect.
func (m *MemoryMeta) Stats() CorpusStats {
	return m.stats
}
