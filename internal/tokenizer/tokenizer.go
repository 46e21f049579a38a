// Package tokenizer turns free text into index terms. The same Tokenizer value
// must be used when building an index and when querying it: the indexer tool
// and the searcher both construct it from DefaultStopWords, so term matching
// never depends on two copies of the table staying in sync.
package tokenizer

import (
	"regexp"
	"strings"
)

// wordPattern matches 3 to 25 word characters, optionally joined by a single
// apostrophe or hyphen, with a leading '#' or '@' allowed. A word character is
// a letter, a number or '_'. Combining marks end a word, so decomposed text
// splits at the accent.
var wordPattern = regexp.MustCompile(`[#@\pL\pN_](?:['\-]?[\pL\pN_]){2,24}`)

// StopWords is an immutable set of terms dropped during tokenisation.
type StopWords struct {
	set map[string]struct{}
}

// NewStopWords builds a StopWords set. Words are lower-cased.
func NewStopWords(lists ...[]string) StopWords {
	set := make(map[string]struct{})
	for _, list := range lists {
		for _, w := range list {
			set[strings.ToLower(w)] = struct{}{}
		}
	}
	return StopWords{set: set}
}

// Contains reports whether term is a stop word.
func (s StopWords) Contains(term string) bool {
	_, ok := s.set[term]
	return ok
}

// Len returns the number of stop words.
func (s StopWords) Len() int {
	return len(s.set)
}

// Tokenizer lower-cases text, extracts word matches and removes stop words.
// It is safe for concurrent use.
type Tokenizer struct {
	stopWords StopWords
}

// New creates a Tokenizer with the given stop words.
func New(stopWords StopWords) *Tokenizer {
	return &Tokenizer{stopWords: stopWords}
}

// Default returns a Tokenizer using DefaultStopWords.
func Default() *Tokenizer {
	return New(DefaultStopWords)
}

// Tokenize returns the ordered terms of text. Duplicates are kept.
func (t *Tokenizer) Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	matches := wordPattern.FindAllString(strings.ToLower(text), -1)
	terms := make([]string, 0, len(matches))
	for _, m := range matches {
		if t.stopWords.Contains(m) {
			continue
		}
		terms = append(terms, m)
	}
	return terms
}
