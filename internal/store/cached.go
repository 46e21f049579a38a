package store

import (
	"context"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultPostingCacheSize is the number of terms CachedIndex keeps when the
// configured size is not positive.
const DefaultPostingCacheSize = 4096

type cachedTerm struct {
	df       int
	postings []Posting
}

// CachedIndex wraps an IndexStore with an LRU of per-term document
// frequencies and posting lists. Concurrent misses for the same term share
// one fetch. Posting slices returned by CachedIndex are shared between
// callers and must not be modified.
type CachedIndex struct {
	inner  IndexStore
	cache  *lru.Cache[string, cachedTerm]
	group  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedIndex creates a CachedIndex holding up to size terms.
func NewCachedIndex(inner IndexStore, size int) *CachedIndex {
	if size <= 0 {
		size = DefaultPostingCacheSize
	}
	cache, _ := lru.New[string, cachedTerm](size)
	return &CachedIndex{
		inner: inner,
		cache: cache,
	}
}

func (c *CachedIndex) DocumentFrequency(ctx context.Context, term string) (int, error) {
	entry, err := c.load(ctx, term)
	if err != nil {
		return 0, err
	}
	return entry.df, nil
}

func (c *CachedIndex) ReadPostingList(ctx context.Context, term string) ([]Posting, error) {
	entry, err := c.load(ctx, term)
	if err != nil {
		return nil, err
	}
	return entry.postings, nil
}

// load fetches df and postings together: the scorer always asks for both, and
// an unseen term (df 0) is cached without reading its posting list.
//
// The shared fetch is detached from the caller's cancellation, since other
// queries may be waiting on it. Each caller still stops waiting when its own
// ctx ends.
func (c *CachedIndex) load(ctx context.Context, term string) (cachedTerm, error) {
	if entry, ok := c.cache.Get(term); ok {
		c.hits.Add(1)
		return entry, nil
	}
	c.misses.Add(1)
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(term, func() (any, error) {
		if entry, ok := c.cache.Get(term); ok {
			return entry, nil
		}
		df, err := c.inner.DocumentFrequency(fetchCtx, term)
		if err != nil {
			return cachedTerm{}, err
		}
		entry := cachedTerm{df: df}
		if df > 0 {
			entry.postings, err = c.inner.ReadPostingList(fetchCtx, term)
			if err != nil {
				return cachedTerm{}, err
			}
		}
		c.cache.Add(term, entry)
		return entry, nil
	})
	select {
	case <-ctx.Done():
		return cachedTerm{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return cachedTerm{}, res.Err
		}
		return res.Val.(cachedTerm), nil
	}
}

// Stats returns cache hit and miss counts.
func (c *CachedIndex) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Purge drops every cached term.
func (c *CachedIndex) Purge() {
	c.cache.Purge()
}
