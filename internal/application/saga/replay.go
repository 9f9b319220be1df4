package saga

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/settleflow/settleflow/internal/domain/event"
)

// Replayer re-publishes dead-lettered events onto the dispatch topic.
// Replay is always explicit, triggered by an operator or a retry-topic
// consumer; there is no automatic backoff loop against a possibly
// permanently-failing gateway.
type Replayer struct {
	domain    string
	entity    string
	publisher event.Publisher
	logger    zerolog.Logger
}

// NewReplayer creates a replayer for one topic namespace.
func NewReplayer(domain, entity string, publisher event.Publisher, logger zerolog.Logger) *Replayer {
	return &Replayer{
		domain:    domain,
		entity:    entity,
		publisher: publisher,
		logger:    logger.With().Str("service", "saga-replay").Logger(),
	}
}

// Replay pushes one dead-lettered envelope back through the gateway
// step.
func (r *Replayer) Replay(ctx context.Context, env event.Envelope) error {
	r.logger.Info().
		Str("key", env.Key).
		Str("request_id", env.Headers.RequestID).
		Msg("replaying dead-lettered event")
	return r.publisher.Publish(ctx, event.HubTopic(r.domain, r.entity, StepDispatch), env)
}
