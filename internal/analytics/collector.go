package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/wikirank/pkg/metrics"
)

// Publisher writes a batch of events. *kafka.Producer satisfies it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers search events and publishes them in batches, either when
// batchSize events are pending or every flushInterval. Track never blocks the
// search path: when the buffer is full the event is dropped.
type Collector struct {
	publisher     Publisher
	eventCh       chan SearchEvent
	batchSize     int
	flushInterval time.Duration
	metrics       *metrics.Metrics
	logger        *slog.Logger
	done          chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewCollector creates a Collector. m may be nil.
func NewCollector(publisher Publisher, bufferSize, batchSize int, flushInterval time.Duration, m *metrics.Metrics) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		eventCh:       make(chan SearchEvent, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		metrics:       m,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the publishing loop. It returns immediately; the loop exits
// when ctx is cancelled or Close is called, after a final flush.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()

		batch := make([]SearchEvent, 0, c.batchSize)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					c.finalFlush(batch)
					return
				}
				batch = append(batch, event)
				if len(batch) >= c.batchSize {
					batch = c.flush(ctx, batch)
				}
			case <-ticker.C:
				batch = c.flush(ctx, batch)
			case <-ctx.Done():
				batch = c.drain(batch)
				c.finalFlush(batch)
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

// Track enqueues event for publishing.
func (c *Collector) Track(event SearchEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.count("dropped", 1)
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events, flushes what is buffered and waits for the
// loop to exit. Start must have been called.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) drain(batch []SearchEvent) []SearchEvent {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return batch
			}
			batch = append(batch, event)
		default:
			return batch
		}
	}
}

func (c *Collector) finalFlush(batch []SearchEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.flush(ctx, batch)
}

// flush publishes batch and returns an empty slice to reuse. A failed batch
// is dropped; search analytics are best effort.
func (c *Collector) flush(ctx context.Context, batch []SearchEvent) []SearchEvent {
	if len(batch) == 0 {
		return batch
	}
	events := make([]kafka.Event, 0, len(batch))
	for _, e := range batch {
		events = append(events, kafka.Event{Key: e.Query, Value: e})
	}
	if err := c.publisher.PublishBatch(ctx, events); err != nil {
		c.count("failed", len(batch))
		c.logger.Error("batch flush failed", "batch_size", len(batch), "error", err)
	} else {
		c.count("published", len(batch))
		c.logger.Debug("batch flushed", "events", len(batch))
	}
	return batch[:0]
}

func (c *Collector) count(status string, n int) {
	if c.metrics != nil {
		c.metrics.SearchEventsTotal.WithLabelValues(status).Add(float64(n))
	}
}
