// Package cache stores search results in Redis. Keys are derived from the
// sorted distinct query terms, the result limit and the ranking parameters,
// so queries that tokenize to the same term set share one entry.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/wikirank/pkg/redis"
)

const keyNamespace = "search:"

// Backend is the subset of the Redis client the cache uses.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	client    Backend
	tokenizer *tokenizer.Tokenizer
	prefix    string
	ttl       time.Duration
	params    string
	group     singleflight.Group
	metrics   *metrics.Metrics
	logger    *slog.Logger
	hits      atomic.Int64
	misses    atomic.Int64
}

// New creates a QueryCache. ranking is folded into every key so a restart
// with different parameters never serves stale rankings. m may be nil.
func New(client Backend, tok *tokenizer.Tokenizer, cfg config.RedisConfig, ranking config.RankingConfig, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		client:    client,
		tokenizer: tok,
		prefix:    cfg.KeyPrefix + keyNamespace,
		ttl:       cfg.CacheTTL,
		params: fmt.Sprintf("k1=%g|b=%g|alpha=%g|policy=%s",
			ranking.K1, ranking.B, ranking.Alpha, ranking.FailurePolicy),
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached result for query at limit. Backend and decoding
// errors are logged and count as a miss.
func (c *QueryCache) Get(ctx context.Context, query string, limit int) (*executor.SearchResult, bool) {
	return c.lookup(ctx, c.buildKey(query, limit))
}

// Set stores result under the key for query at limit. Failures are logged
// only; the cache is never on the correctness path.
func (c *QueryCache) Set(ctx context.Context, query string, limit int, result *executor.SearchResult) {
	c.store(ctx, c.buildKey(query, limit), result)
}

// GetOrCompute returns the cached result for query or computes and stores
// it. Concurrent misses for the same key share one computation. The bool
// reports a cache hit.
//
// computeFn gets a context that carries ctx's values but not its
// cancellation: another caller may be waiting on the same result. A caller
// whose ctx ends stops waiting and gets ctx.Err().
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	query string,
	limit int,
	computeFn func(ctx context.Context) (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	key := c.buildKey(query, limit)
	if res, ok := c.lookup(ctx, key); ok {
		return res, true, nil
	}
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		res, err := computeFn(shared)
		if err == nil {
			c.store(shared, key, res)
		}
		return res, err
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, false, r.Err
		}
		return r.Val.(*executor.SearchResult), false, nil
	}
}

func (c *QueryCache) lookup(ctx context.Context, key string) (*executor.SearchResult, bool) {
	data, err := c.client.Get(ctx, key)
	if err == nil {
		var res executor.SearchResult
		if err = json.Unmarshal([]byte(data), &res); err == nil {
			c.hits.Add(1)
			if c.metrics != nil {
				c.metrics.CacheHitsTotal.Inc()
			}
			return &res, true
		}
	}
	if !pkgredis.IsNilError(err) {
		c.logger.Warn("cache read failed", "key", key, "error", err)
	}
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
	return nil, false
}

func (c *QueryCache) store(ctx context.Context, key string, res *executor.SearchResult) {
	data, err := json.Marshal(res)
	if err == nil {
		err = c.client.Set(ctx, key, data, c.ttl)
	}
	if err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// Invalidate deletes every cached search result.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, c.prefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) buildKey(query string, limit int) string {
	raw := fmt.Sprintf("%s|limit=%d|%s", c.normalizeQuery(query), limit, c.params)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", c.prefix, hash[:16])
}

// normalizeQuery reduces query to its sorted distinct terms. Term order and
// repetition do not change the ranking, so they must not change the key.
func (c *QueryCache) normalizeQuery(query string) string {
	terms := c.tokenizer.Tokenize(query)
	slices.Sort(terms)
	return strings.Join(slices.Compact(terms), ",")
}
