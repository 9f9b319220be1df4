// Package rabbitmq adapts the broker client to the event publisher and
// consumer contracts. Topics map to routing keys on one topic exchange;
// the envelope key travels as a message header so consumers can route
// per business identifier.
package rabbitmq

import (
	"context"
	"fmt"

	"github.com/cloudresty/go-rabbitmq"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/settleflow/settleflow/internal/domain/event"
)

const (
	headerKey       = "key"
	headerRequestID = "request_id"
)

// Publisher implements event.Publisher over one exchange.
type Publisher struct {
	publisher *rabbitmq.Publisher
	logger    zerolog.Logger
}

// NewPublisher creates a persistent publisher bound to exchange.
func NewPublisher(client *rabbitmq.Client, exchange string, logger zerolog.Logger) (*Publisher, error) {
	pub, err := client.NewPublisher(
		rabbitmq.WithDefaultExchange(exchange),
		rabbitmq.WithPersistent(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}
	return &Publisher{
		publisher: pub,
		logger:    logger.With().Str("service", "rabbitmq-publisher").Logger(),
	}, nil
}

func (p *Publisher) Publish(ctx context.Context, topic string, env event.Envelope) error {
	message := rabbitmq.NewMessage(env.Value).
		WithContentType(rabbitmq.ContentTypeJSON).
		WithMessageID(uuid.NewString()).
		WithType(topic).
		WithHeader(headerKey, env.Key).
		WithHeader(headerRequestID, env.Headers.RequestID)

	if err := p.publisher.Publish(ctx, "", topic, message); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	p.logger.Debug().Str("topic", topic).Str("key", env.Key).Msg("published event")
	return nil
}

// Close releases the underlying channel.
func (p *Publisher) Close() error {
	return p.publisher.Close()
}
