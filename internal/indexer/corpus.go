package indexer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const maxLineBytes = 16 << 20

// ReadCorpus decodes newline-delimited JSON documents from r and hands each
// to fn. Blank lines are skipped. Errors carry the 1-based line number.
func ReadCorpus(r io.Reader, fn func(Document) error) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line, n := 0, 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var doc Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return n, fmt.Errorf("corpus line %d: %w", line, err)
		}
		if err := fn(doc); err != nil {
			return n, fmt.Errorf("corpus line %d: %w", line, err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("reading corpus: %w", err)
	}
	return n, nil
}
