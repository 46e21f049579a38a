package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/segment"
	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/store"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/wikirank/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/resilience"
)

// indexStores is the assembled index read path and what must be closed or
// purged alongside it.
type indexStores struct {
	index   store.IndexStore
	cached  *store.CachedIndex
	closers []func() error
}

func (s *indexStores) Close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			slog.Error("closing index store", "error", err)
		}
	}
}

// openIndex builds the configured IndexStore: a local segment, or Redis
// behind retries and a circuit breaker; either wrapped in the posting LRU.
func openIndex(cfg *config.Config, redisClient *pkgredis.Client, m *metrics.Metrics, checker *health.Checker) (*indexStores, error) {
	stores := &indexStores{}
	switch cfg.Index.Backend {
	case config.BackendSegment:
		reader, err := segment.OpenReader(cfg.Index.SegmentPath)
		if err != nil {
			return nil, fmt.Errorf("opening segment: %w", err)
		}
		stores.closers = append(stores.closers, reader.Close)
		stores.index = reader
		checker.Register("index", func(ctx context.Context) health.ComponentHealth {
			return health.ComponentHealth{
				Status:  health.StatusUp,
				Message: fmt.Sprintf("%d terms, %d documents", reader.Terms(), reader.DocCount()),
			}
		})
		slog.Info("segment index opened",
			"path", cfg.Index.SegmentPath,
			"terms", reader.Terms(),
			"documents", reader.DocCount(),
		)
	case config.BackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("redis index backend selected but redis is unavailable")
		}
		rc := cfg.Resilience
		resilient := store.NewResilientIndex("redis-index", store.NewRedisIndex(redisClient, cfg.Redis.KeyPrefix), store.ResilientOptions{
			Retry: resilience.RetryConfig{
				MaxAttempts:  rc.MaxAttempts,
				InitialDelay: rc.InitialDelay,
				MaxDelay:     rc.MaxDelay,
			},
			Breaker: resilience.CircuitBreakerConfig{
				FailureThreshold: rc.BreakerThreshold,
				ResetTimeout:     rc.BreakerResetTimeout,
				OnStateChange: func(name string, state resilience.State) {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
				},
			},
			FetchTimeout: rc.FetchTimeout,
		})
		stores.index = resilient
		checker.Register("index", health.BreakerCheck(resilient.BreakerState))
		slog.Info("redis index enabled", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.KeyPrefix)
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}

	if cfg.Index.PostingCacheSize >= 0 {
		stores.cached = store.NewCachedIndex(stores.index, cfg.Index.PostingCacheSize)
		stores.index = stores.cached
		slog.Info("posting cache enabled", "size", cfg.Index.PostingCacheSize)
	}
	return stores, nil
}

// loadMeta loads document metadata from the metadata file or PostgreSQL.
// The returned close function releases the database pool, if any.
func loadMeta(ctx context.Context, cfg *config.Config, checker *health.Checker) (*store.MemoryMeta, func() error, error) {
	switch cfg.Index.MetaBackend {
	case config.BackendFile:
		meta, err := store.LoadMetaFile(cfg.Index.MetaPath)
		if err != nil {
			return nil, nil, err
		}
		stats := meta.Stats()
		slog.Info("metadata loaded", "path", cfg.Index.MetaPath, "N", stats.DocumentCount, "avgdl", stats.AverageDocumentLength)
		return meta, func() error { return nil }, nil
	case config.BackendPostgres:
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		meta, err := store.NewPostgresMetaLoader(db).Load(ctx)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("loading metadata from postgres: %w", err)
		}
		checker.Register("postgres", health.PingCheck(db.Ping))
		return meta, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown meta backend %q", cfg.Index.MetaBackend)
	}
}
