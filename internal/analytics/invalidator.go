package analytics

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/metrics"
)

// InvalidateFunc drops some cached state derived from the index.
type InvalidateFunc func(ctx context.Context) error

// Invalidator reacts to index-update notifications by clearing every
// registered cache.
type Invalidator struct {
	targets    []InvalidateFunc
	aggregator *Aggregator
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewInvalidator creates an Invalidator. aggregator and m may be nil.
func NewInvalidator(aggregator *Aggregator, m *metrics.Metrics, targets ...InvalidateFunc) *Invalidator {
	return &Invalidator{
		targets:    targets,
		aggregator: aggregator,
		metrics:    m,
		logger:     slog.Default().With("component", "cache-invalidator"),
	}
}

// Invalidate runs every target and joins their errors.
func (inv *Invalidator) Invalidate(ctx context.Context) error {
	var errs []error
	for _, fn := range inv.targets {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if inv.metrics != nil {
		inv.metrics.CacheInvalidations.Inc()
	}
	if inv.aggregator != nil {
		inv.aggregator.RecordIndexUpdate()
	}
	return errors.Join(errs...)
}

// HandleIndexUpdated is the Kafka handler for the index-updated topic. A
// message that cannot be decoded is logged and acknowledged so it does not
// block the partition.
func (inv *Invalidator) HandleIndexUpdated() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[IndexUpdatedEvent](value)
		if err != nil {
			inv.logger.Error("failed to decode index update", "error", err)
			return nil
		}
		inv.logger.Info("index updated, invalidating caches",
			"segment", event.Segment,
			"documents", event.Documents,
			"terms", event.Terms,
		)
		return inv.Invalidate(ctx)
	}
}
