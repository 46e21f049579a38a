package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/wikirank/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	corpusPath := flag.String("corpus", "data/corpus.jsonl", "newline-delimited JSON documents")
	toRedis := flag.Bool("redis", false, "also publish posting lists to redis")
	toPostgres := flag.Bool("postgres", false, "also write document metadata to postgres")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer", "corpus", *corpusPath, "segment", cfg.Index.SegmentPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f, err := os.Open(*corpusPath)
	if err != nil {
		slog.Error("failed to open corpus", "error", err)
		os.Exit(1)
	}
	defer f.Close()

	start := time.Now()
	builder := indexer.NewBuilder(tokenizer.Default())
	n, err := indexer.ReadCorpus(f, builder.Add)
	if err != nil {
		slog.Error("failed to read corpus", "error", err)
		os.Exit(1)
	}
	slog.Info("corpus indexed", "documents", n, "duration", time.Since(start))

	out := indexer.Output{
		SegmentPath: cfg.Index.SegmentPath,
		MetaPath:    cfg.Index.MetaPath,
		RedisPrefix: cfg.Redis.KeyPrefix,
	}
	if *toRedis {
		client, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		out.Redis = client
	}
	if *toPostgres {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		out.Postgres = db
	}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexUpdated)
		defer producer.Close()
		out.Announcer = producer
	}

	if err := builder.Publish(ctx, out); err != nil {
		slog.Error("failed to publish index", "error", err)
		os.Exit(1)
	}
	slog.Info("indexer finished", "documents", builder.Documents(), "duration", time.Since(start))
}
