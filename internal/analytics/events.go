// Package analytics records what the searcher did: every query becomes a
// SearchEvent that is batched to Kafka and folded into in-process stats, and
// index-update notifications from Kafka invalidate cached results.
package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
	EventError      EventType = "error"
	EventIndexSwap  EventType = "index_updated"
)

type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Terms     []string  `json:"terms"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs float64   `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// IndexUpdatedEvent announces that a new segment or metadata set was
// published. The indexer emits it after a successful build.
type IndexUpdatedEvent struct {
	Type      EventType `json:"type"`
	Segment   string    `json:"segment"`
	Documents int       `json:"documents"`
	Terms     int       `json:"terms"`
	Timestamp time.Time `json:"timestamp"`
}
