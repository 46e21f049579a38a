package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/metrics"
)

type memoryBackend struct {
	mu     sync.Mutex
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *memoryBackend) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memoryBackend) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	default:
		return errors.New("unsupported value type")
	}
	m.ttls[key] = ttl
	return nil
}

func (m *memoryBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func newTestCache(backend Backend, mutate func(*config.RankingConfig)) *QueryCache {
	cfg := config.Default()
	ranking := cfg.Ranking
	if mutate != nil {
		mutate(&ranking)
	}
	return New(backend, tokenizer.Default(), cfg.Redis, ranking, nil)
}

func sampleResult(query string) *executor.SearchResult {
	return &executor.SearchResult{
		Query:     query,
		Terms:     []string{"cat"},
		TotalHits: 2,
		Results:   []ranker.Result{{DocID: 1, Title: "Cat"}, {DocID: 2, Title: "Kitten"}},
	}
}

func TestKeyIgnoresTermOrderCaseAndRepetition(t *testing.T) {
	c := newTestCache(newMemoryBackend(), nil)
	base := c.buildKey("black cat", 10)
	assert.Equal(t, base, c.buildKey("Cat BLACK", 10))
	assert.Equal(t, base, c.buildKey("cat black cat the", 10))
	assert.NotEqual(t, base, c.buildKey("black cat", 20))
	assert.NotEqual(t, base, c.buildKey("black dog", 10))
	assert.Contains(t, base, "wikirank:search:")
}

func TestKeyDependsOnRankingParameters(t *testing.T) {
	backend := newMemoryBackend()
	a := newTestCache(backend, nil)
	b := newTestCache(backend, func(r *config.RankingConfig) { r.Alpha = 0.9 })
	assert.NotEqual(t, a.buildKey("cat", 10), b.buildKey("cat", 10))
}

func TestGetSetRoundTrip(t *testing.T) {
	backend := newMemoryBackend()
	c := newTestCache(backend, nil)
	ctx := context.Background()

	_, ok := c.Get(ctx, "cat", 10)
	assert.False(t, ok)

	c.Set(ctx, "cat", 10, sampleResult("cat"))
	got, ok := c.Get(ctx, "CAT", 10)
	require.True(t, ok)
	assert.Equal(t, sampleResult("cat"), got)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
	for _, ttl := range backend.ttls {
		assert.Equal(t, config.Default().Redis.CacheTTL, ttl)
	}
}

func TestGetOrComputeSharesConcurrentMisses(t *testing.T) {
	c := newTestCache(newMemoryBackend(), nil)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (*executor.SearchResult, error) {
		calls.Add(1)
		<-release
		return sampleResult("cat"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, _, err := c.GetOrCompute(context.Background(), "cat", 10, compute)
			assert.NoError(t, err)
			assert.Equal(t, 2, got.TotalHits)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))

	before := calls.Load()
	_, hit, err := c.GetOrCompute(context.Background(), "cat", 10, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, before, calls.Load())
}

func TestGetOrComputeDoesNotCacheErrors(t *testing.T) {
	backend := newMemoryBackend()
	c := newTestCache(backend, nil)
	boom := errors.New("store down")
	_, _, err := c.GetOrCompute(context.Background(), "cat", 10, func(context.Context) (*executor.SearchResult, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, backend.data)
}

func TestGetOrComputeSurvivesFirstCallerCancel(t *testing.T) {
	backend := newMemoryBackend()
	c := newTestCache(backend, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	compute := func(ctx context.Context) (*executor.SearchResult, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return sampleResult("cat"), nil
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := c.GetOrCompute(firstCtx, "cat", 10, compute)
		firstErr <- err
	}()
	<-started

	type outcome struct {
		res *executor.SearchResult
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, _, err := c.GetOrCompute(context.Background(), "cat", 10, func(context.Context) (*executor.SearchResult, error) {
			return nil, errors.New("second caller should join the running computation")
		})
		second <- outcome{res, err}
	}()

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, 2, got.res.TotalHits)

	_, hit, err := c.GetOrCompute(context.Background(), "cat", 10, compute)
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestBackendErrorIsAMiss(t *testing.T) {
	backend := newMemoryBackend()
	backend.getErr = errors.New("connection refused")
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	cfg := config.Default()
	c := New(backend, tokenizer.Default(), cfg.Redis, cfg.Ranking, m)

	_, ok := c.Get(context.Background(), "cat", 10)
	assert.False(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))
}

func TestInvalidateOnlyTouchesSearchKeys(t *testing.T) {
	backend := newMemoryBackend()
	backend.data["wikirank:df"] = "{}"
	c := newTestCache(backend, nil)
	c.Set(context.Background(), "cat", 10, sampleResult("cat"))
	c.Set(context.Background(), "dog", 10, sampleResult("dog"))

	require.NoError(t, c.Invalidate(context.Background()))
	assert.Equal(t, map[string]string{"wikirank:df": "{}"}, backend.data)
}
