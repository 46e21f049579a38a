// Package handler serves the search HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikirank/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/middleware"
)

type SearchExecutor interface {
	Execute(ctx context.Context, query string, limit int) (*executor.SearchResult, error)
	MaxResults() int
}

// Options holds the optional collaborators of a Handler. Nil fields are
// disabled.
type Options struct {
	Cache        *cache.QueryCache
	Collector    *analytics.Collector
	Stats        *analytics.Aggregator
	Metrics      *metrics.Metrics
	DefaultLimit int
}

type Handler struct {
	executor     SearchExecutor
	cache        *cache.QueryCache
	collector    *analytics.Collector
	stats        *analytics.Aggregator
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

func New(exec SearchExecutor, opts Options) *Handler {
	maxResults := exec.MaxResults()
	defaultLimit := opts.DefaultLimit
	if defaultLimit <= 0 || defaultLimit > maxResults {
		defaultLimit = maxResults
	}
	return &Handler{
		executor:     exec,
		cache:        opts.Cache,
		collector:    opts.Collector,
		stats:        opts.Stats,
		metrics:      opts.Metrics,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Routes registers the search endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// Search handles GET /api/v1/search?q=...&limit=N. A blank query returns an
// empty result list.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	query := r.URL.Query().Get("q")

	limit, err := h.parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	if strings.TrimSpace(query) == "" {
		h.writeJSON(w, http.StatusOK, &executor.SearchResult{Query: query, Terms: []string{}, Results: []ranker.Result{}})
		return
	}

	result, cacheStatus, err := h.rank(ctx, query, limit)
	latency := time.Since(start)
	if h.metrics != nil {
		h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
	}
	log := logger.FromContext(ctx)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("search failed", "query", query, "status", status, "error", err)
		h.track(ctx, analytics.SearchEvent{Type: analytics.EventError, Query: query}, latency)
		h.writeError(w, status, searchErrorMessage(status))
		return
	}

	cacheHit := cacheStatus == "hit"
	log.Info("search served",
		"query", query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache", cacheStatus,
		"latency_ms", latency.Milliseconds(),
	)
	ev := analytics.SearchEvent{
		Type:      analytics.EventSearch,
		Query:     query,
		Terms:     result.Terms,
		TotalHits: result.TotalHits,
		Returned:  len(result.Results),
		CacheHit:  cacheHit,
	}
	if ev.Returned == 0 {
		ev.Type = analytics.EventZeroResult
	}
	h.track(ctx, ev, latency)
	h.writeJSON(w, http.StatusOK, result)
}

// parseLimit returns the default for an empty value and clamps to
// maxResults. Anything but a positive integer is rejected.
func (h *Handler) parseLimit(raw string) (int, error) {
	if raw == "" {
		return h.defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperrors.Inputf("limit must be a positive integer, got %q", raw)
	}
	return min(n, h.maxResults), nil
}

// rank runs the query through the cache when one is configured. The returned
// status labels the latency metric: hit, miss or disabled.
func (h *Handler) rank(ctx context.Context, query string, limit int) (*executor.SearchResult, string, error) {
	if h.cache == nil {
		res, err := h.executor.Execute(ctx, query, limit)
		return res, "disabled", err
	}
	res, hit, err := h.cache.GetOrCompute(ctx, query, limit, func(ctx context.Context) (*executor.SearchResult, error) {
		return h.executor.Execute(ctx, query, limit)
	})
	if hit {
		return res, "hit", err
	}
	return res, "miss", err
}

func (h *Handler) track(ctx context.Context, event analytics.SearchEvent, latency time.Duration) {
	event.LatencyMs = float64(latency.Microseconds()) / 1000
	event.Timestamp = time.Now().UTC()
	event.RequestID = middleware.GetRequestID(ctx)
	if h.stats != nil {
		h.stats.Record(event)
	}
	if h.collector != nil {
		h.collector.Track(event)
	}
}

func searchErrorMessage(status int) string {
	switch status {
	case http.StatusServiceUnavailable:
		return "index temporarily unavailable"
	case http.StatusGatewayTimeout:
		return "search timed out"
	case http.StatusBadRequest:
		return "invalid search request"
	default:
		return "search failed"
	}
}

type cacheStats struct {
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Total   int64  `json:"total"`
	HitRate string `json:"hit_rate"`
}

func (h *Handler) CacheStats(w http.ResponseWriter, _ *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	st := cacheStats{}
	st.Hits, st.Misses = h.cache.Stats()
	st.Total = st.Hits + st.Misses
	rate := 0.0
	if st.Total > 0 {
		rate = 100 * float64(st.Hits) / float64(st.Total)
	}
	st.HitRate = fmt.Sprintf("%.1f%%", rate)
	h.writeJSON(w, http.StatusOK, st)
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
