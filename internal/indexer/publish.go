package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/segment"
	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/store"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/postgres"
)

// Announcer publishes one event. *kafka.Producer satisfies it.
type Announcer interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Output says where a build goes. Empty fields and nil sinks are skipped.
type Output struct {
	SegmentPath string
	MetaPath    string
	Postgres    *postgres.Client
	Redis       store.RedisWriter
	RedisPrefix string
	Announcer   Announcer
}

// Publish writes the builder's index to every configured output and then
// announces it. The announcement goes out only if every write succeeded.
func (b *Builder) Publish(ctx context.Context, out Output) error {
	postings := b.Postings()
	if len(postings) == 0 {
		return fmt.Errorf("nothing to publish: corpus produced no terms")
	}
	if out.SegmentPath != "" {
		if err := segment.Write(out.SegmentPath, segment.FromPostings(postings)); err != nil {
			return fmt.Errorf("writing segment: %w", err)
		}
		slog.Info("segment written", "path", out.SegmentPath, "terms", len(postings))
	}
	if out.MetaPath != "" {
		if err := store.WriteMetaFile(out.MetaPath, b.Metadata()); err != nil {
			return err
		}
		slog.Info("metadata written", "path", out.MetaPath, "documents", b.Documents())
	}
	if out.Postgres != nil {
		if err := store.WritePostgresMeta(ctx, out.Postgres, b.Metadata()); err != nil {
			return fmt.Errorf("writing metadata to postgres: %w", err)
		}
		slog.Info("metadata written to postgres", "documents", b.Documents())
	}
	if out.Redis != nil {
		if err := store.PublishToRedis(ctx, out.Redis, out.RedisPrefix, postings); err != nil {
			return fmt.Errorf("publishing to redis: %w", err)
		}
		slog.Info("index published to redis", "prefix", out.RedisPrefix, "terms", len(postings))
	}
	if out.Announcer != nil {
		event := analytics.IndexUpdatedEvent{
			Type:      analytics.EventIndexSwap,
			Segment:   out.SegmentPath,
			Documents: b.Documents(),
			Terms:     len(postings),
			Timestamp: time.Now().UTC(),
		}
		if err := out.Announcer.Publish(ctx, kafka.Event{Key: "index", Value: event}); err != nil {
			return fmt.Errorf("announcing index update: %w", err)
		}
	}
	return nil
}
