package outbox

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/settleflow/settleflow/internal/domain/event"
	"github.com/settleflow/settleflow/internal/metrics"
)

// Event is a domain event staged for publication.
type Event struct {
	Topic    string
	Envelope event.Envelope
}

// Outbox buffers domain events produced during a handler invocation and
// publishes them only after the originating transaction has committed.
// If the transaction rolls back the buffer is discarded without a
// flush, so consumers never observe an event for a state change that
// was not durably persisted. Delivery is at-least-once: a crash between
// commit and flush drops the batch, a crash after flush may repeat it,
// so consumers must be idempotent per event key.
type Outbox struct {
	publisher event.Publisher
	logger    zerolog.Logger

	mu     sync.Mutex
	buffer []Event
}

// New creates an outbox bound to one handler invocation.
func New(publisher event.Publisher, logger zerolog.Logger) *Outbox {
	return &Outbox{
		publisher: publisher,
		logger:    logger.With().Str("service", "outbox").Logger(),
	}
}

// Buffer stages an event. Nothing reaches the broker until Flush.
func (o *Outbox) Buffer(topic string, env event.Envelope) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buffer = append(o.buffer, Event{Topic: topic, Envelope: env})
}

// Len reports the number of staged events.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.buffer)
}

// Discard drops the buffer. Called when the enclosing transaction
// rolled back.
func (o *Outbox) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buffer = nil
}

// Flush publishes every staged event in order and clears the buffer.
// Must be called only after the enclosing transaction committed.
func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	staged := o.buffer
	o.buffer = nil
	o.mu.Unlock()

	for _, e := range staged {
		if err := o.publisher.Publish(ctx, e.Topic, e.Envelope); err != nil {
			o.logger.Error().Err(err).
				Str("topic", e.Topic).
				Str("key", e.Envelope.Key).
				Msg("failed to publish buffered event")
			return err
		}
		metrics.OutboxPublished.Inc()
	}
	return nil
}
