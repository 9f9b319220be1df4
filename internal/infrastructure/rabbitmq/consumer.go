package rabbitmq

import (
	"context"
	"fmt"

	"github.com/cloudresty/go-rabbitmq"
	"github.com/rs/zerolog"

	"github.com/settleflow/settleflow/internal/domain/event"
)

// Handler processes one decoded envelope. A returned error nacks the
// delivery for redelivery.
type Handler func(ctx context.Context, env event.Envelope) error

// Consumer subscribes queues bound to topics and feeds envelopes to
// handlers.
type Consumer struct {
	consumer *rabbitmq.Consumer
	logger   zerolog.Logger
}

// NewConsumer creates a consumer with per-message dispatch: prefetch
// one so a slow handler does not starve other workers of the queue.
func NewConsumer(client *rabbitmq.Client, logger zerolog.Logger) (*Consumer, error) {
	c, err := client.NewConsumer(
		rabbitmq.WithPrefetchCount(1),
		rabbitmq.WithConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	return &Consumer{
		consumer: c,
		logger:   logger.With().Str("service", "rabbitmq-consumer").Logger(),
	}, nil
}

// Consume blocks reading queue until ctx is done, decoding each
// delivery into an envelope for handle.
func (c *Consumer) Consume(ctx context.Context, queue string, handle Handler) error {
	return c.consumer.Consume(ctx, queue, func(ctx context.Context, delivery *rabbitmq.Delivery) error {
		env := event.Envelope{
			Key:   headerString(delivery, headerKey),
			Value: delivery.Body,
		}
		env.Headers.RequestID = headerString(delivery, headerRequestID)

		if err := handle(ctx, env); err != nil {
			c.logger.Error().Err(err).Str("queue", queue).Msg("handler failed, requeueing delivery")
			return err
		}
		return nil
	})
}

// Close releases the underlying channel.
func (c *Consumer) Close() error {
	return c.consumer.Close()
}

func headerString(delivery *rabbitmq.Delivery, name string) string {
	if delivery.Headers == nil {
		return ""
	}
	if v, ok := delivery.Headers[name].(string); ok {
		return v
	}
	return ""
}
