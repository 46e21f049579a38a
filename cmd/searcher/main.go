package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/wikirank/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"index_backend", cfg.Index.Backend,
		"meta_backend", cfg.Index.MetaBackend,
		"alpha", cfg.Ranking.Alpha,
		"parallel", cfg.Ranking.Parallel,
		"max_workers", cfg.Ranking.MaxWorkers,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	checker := health.NewChecker()

	var redisClient *pkgredis.Client
	if cfg.Index.Backend == config.BackendRedis || cfg.Search.CacheEnabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable", "addr", cfg.Redis.Addr, "error", err)
		} else {
			defer redisClient.Close()
			checker.Register("redis", health.PingCheck(redisClient.Ping))
		}
	}

	stores, err := openIndex(cfg, redisClient, m, checker)
	if err != nil {
		slog.Error("failed to open index", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	meta, closeMeta, err := loadMeta(ctx, cfg, checker)
	if err != nil {
		slog.Error("failed to load metadata", "error", err)
		os.Exit(1)
	}
	defer closeMeta()

	tok := tokenizer.Default()
	exec, err := executor.New(tok, stores.index, meta, cfg.Ranking, m)
	if err != nil {
		slog.Error("failed to build search pipeline", "error", err)
		os.Exit(1)
	}

	var queryCache *cache.QueryCache
	if cfg.Search.CacheEnabled && redisClient != nil {
		queryCache = cache.New(redisClient, tok, cfg.Redis, cfg.Ranking, m)
		slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	stats := analytics.NewAggregator()
	var invalidateTargets []analytics.InvalidateFunc
	if queryCache != nil {
		invalidateTargets = append(invalidateTargets, queryCache.Invalidate)
	}
	if stores.cached != nil {
		cached := stores.cached
		invalidateTargets = append(invalidateTargets, func(context.Context) error {
			cached.Purge()
			return nil
		})
	}
	invalidator := analytics.NewInvalidator(stats, m, invalidateTargets...)

	var collector *analytics.Collector
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer, 10000, 100, 5*time.Second, m)
		collector.Start(ctx)
		defer collector.Close()

		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexUpdated, invalidator.HandleIndexUpdated())
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("index update consumer error", "error", err)
			}
		}()
		slog.Info("kafka enabled",
			"search_events", cfg.Kafka.Topics.SearchEvents,
			"index_updated", cfg.Kafka.Topics.IndexUpdated,
		)
	}

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}

	h := handler.New(exec, handler.Options{
		Cache:        queryCache,
		Collector:    collector,
		Stats:        stats,
		Metrics:      m,
		DefaultLimit: cfg.Search.DefaultLimit,
	})
	analyticsH := analytics.NewHandler(stats)

	mux := http.NewServeMux()
	h.Routes(mux)
	mux.HandleFunc("GET /api/v1/analytics/stats", analyticsH.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: middleware.Chain(mux,
			middleware.RequestID,
			middleware.Metrics(m),
			middleware.Timeout(cfg.Server.WriteTimeout),
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout + time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
