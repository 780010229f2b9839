package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bm25-retrieval/pkg/metrics"
)

// Publisher writes a batch of events to the event stream. *kafka.Producer
// satisfies it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

var _ Publisher = (*kafka.Producer)(nil)

// Collector buffers query events and publishes them in batches from a
// single background goroutine. Record never blocks: when the buffer is
// full the event is dropped and counted.
type Collector struct {
	publisher     Publisher
	eventCh       chan QueryEvent
	batchSize     int
	flushInterval time.Duration
	metrics       *metrics.Metrics
	logger        *slog.Logger
	done          chan struct{}
}

func NewCollector(publisher Publisher, bufferSize int, m *metrics.Metrics) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		publisher:     publisher,
		eventCh:       make(chan QueryEvent, bufferSize),
		batchSize:     100,
		flushInterval: time.Second,
		metrics:       m,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the publish loop. It runs until Close is called or ctx is
// cancelled; either way buffered events are flushed first.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()
		batch := make([]kafka.Event, 0, c.batchSize)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					c.flush(context.Background(), batch)
					return
				}
				batch = append(batch, toKafka(event))
				if len(batch) >= c.batchSize {
					c.flush(ctx, batch)
					batch = batch[:0]
				}
			case <-ticker.C:
				c.flush(ctx, batch)
				batch = batch[:0]
			case <-ctx.Done():
				batch = c.drain(batch)
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				c.flush(flushCtx, batch)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

func (c *Collector) Record(event QueryEvent) {
	select {
	case c.eventCh <- event:
	default:
		c.metrics.EventDropped()
		c.logger.Warn("analytics event dropped (buffer full)", "query_id", event.QueryID)
	}
}

// Close stops accepting events and waits for the final flush. Record must
// not be called after Close.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

func (c *Collector) drain(batch []kafka.Event) []kafka.Event {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return batch
			}
			batch = append(batch, toKafka(event))
		default:
			return batch
		}
	}
}

func (c *Collector) flush(ctx context.Context, batch []kafka.Event) {
	if len(batch) == 0 {
		return
	}
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("failed to publish analytics events", "count", len(batch), "error", err)
	}
}

func toKafka(event QueryEvent) kafka.Event {
	return kafka.Event{Key: event.QueryID, Value: event}
}
