package saga

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/settleflow/settleflow/internal/application/outbox"
	"github.com/settleflow/settleflow/internal/domain/event"
	"github.com/settleflow/settleflow/internal/domain/ledger"
	"github.com/settleflow/settleflow/internal/domain/operation"
	"github.com/settleflow/settleflow/internal/domain/storage"
	"github.com/settleflow/settleflow/internal/metrics"
)

// Hub step names. Hub topics are internal to the worker fleet.
const (
	StepDispatch   = "dispatch"
	StepCompensate = "compensate"
	StepDeadLetter = "deadletter"
)

// Config binds a handler to one operation kind and its topic namespace.
type Config struct {
	Kind   operation.Kind
	Domain string
	Entity string
	// SuccessState is where a successful dispatch moves the entity.
	SuccessState operation.State
	// SuccessEvent names the public event for that transition.
	SuccessEvent string
	// RevertedState is the compensation terminal state.
	RevertedState operation.State
}

// Handler drives the saga step for one operation kind: it routes each
// triggering event through the external gateway and emits forward,
// dead-lettered, or compensating events. Dead-lettered events are not
// retried here; replay is an explicit operation.
type Handler struct {
	cfg       Config
	store     storage.Store
	gateway   Gateway
	publisher event.Publisher
	reversal  ledger.ReversalGateway
	logger    zerolog.Logger
}

// NewHandler creates a saga step handler.
func NewHandler(
	cfg Config,
	store storage.Store,
	gateway Gateway,
	publisher event.Publisher,
	reversal ledger.ReversalGateway,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     store,
		gateway:   gateway,
		publisher: publisher,
		reversal:  reversal,
		logger: logger.With().
			Str("service", "saga").
			Str("kind", string(cfg.Kind)).
			Logger(),
	}
}

// Payload is the operation event body.
type Payload struct {
	OperationID uuid.UUID          `json:"operationId"`
	Failed      *operation.Failure `json:"failed,omitempty"`
}

// HandleReceived is the entry point for a triggering event. It only
// re-publishes onto the internal dispatch topic, decoupling ingestion
// from the slower, fallible gateway call and making the gateway step
// independently replayable.
func (h *Handler) HandleReceived(ctx context.Context, env event.Envelope) error {
	return h.publisher.Publish(ctx, h.hubTopic(StepDispatch), env)
}

// HandleDispatch invokes the gateway for the target entity and routes
// the tagged result. The gateway call happens before the transaction so
// rail latency never holds relational locks.
func (h *Handler) HandleDispatch(ctx context.Context, env event.Envelope) error {
	p, err := decodePayload(env)
	if err != nil {
		// Malformed payload: rejected permanently, no retry.
		h.logger.Error().Err(err).Str("key", env.Key).Msg("invalid dispatch payload")
		return nil
	}

	entity, err := h.store.Operations().GetByID(ctx, p.OperationID)
	if err != nil {
		return err
	}
	if entity == nil {
		h.logger.Error().Str("operation_id", p.OperationID.String()).Msg("operation not found")
		return nil
	}
	if !operation.MachineFor(entity.Kind).CanTransition(entity.State, h.cfg.SuccessState) {
		// Duplicate or out-of-order delivery; the state machine already
		// moved on.
		h.logger.Info().
			Str("operation_id", entity.ID.String()).
			Str("state", string(entity.State)).
			Msg("skip dispatch for non-transitionable entity")
		return nil
	}

	res := h.gateway.Dispatch(ctx, entity)
	metrics.SagaOutcomes.WithLabelValues(string(h.cfg.Kind), res.Outcome.String()).Inc()

	switch res.Outcome {
	case OutcomeOK:
		return h.completeDispatch(ctx, env, p, res)
	case OutcomeRetryable:
		metrics.DeadLettered.WithLabelValues(string(h.cfg.Kind)).Inc()
		h.logger.Warn().Err(res.Err).
			Str("operation_id", p.OperationID.String()).
			Msg("gateway infrastructure failure, dead-lettering event")
		// Forward the original event unchanged; the entity keeps its
		// prior state until an explicit replay.
		return h.publisher.Publish(ctx, h.hubTopic(StepDeadLetter), env)
	case OutcomeRejected:
		value, err := attachFailure(env.Value, *res.Failure)
		if err != nil {
			return err
		}
		compensating := event.Envelope{Key: env.Key, Headers: env.Headers, Value: value}
		return h.publisher.Publish(ctx, h.hubTopic(StepCompensate), compensating)
	default:
		return fmt.Errorf("unknown dispatch outcome: %d", res.Outcome)
	}
}

func (h *Handler) completeDispatch(ctx context.Context, env event.Envelope, p Payload, res Result) error {
	ob := outbox.New(h.publisher, h.logger)
	err := h.store.InTx(ctx, func(ctx context.Context, tx storage.Store) error {
		e, err := tx.Operations().GetByID(ctx, p.OperationID)
		if err != nil {
			return err
		}
		if e == nil {
			return fmt.Errorf("operation vanished: %s", p.OperationID)
		}
		if !e.Apply(h.cfg.SuccessState) {
			return nil
		}
		if err := tx.Operations().Update(ctx, e); err != nil {
			return err
		}
		ob.Buffer(h.topic(h.cfg.SuccessEvent), event.Envelope{
			Key:     env.Key,
			Headers: env.Headers,
			Value:   env.Value,
		})
		for _, derived := range res.Derived {
			ob.Buffer(derived.Topic, derived.Envelope)
		}
		return nil
	})
	if err != nil {
		ob.Discard()
		return err
	}
	return ob.Flush(ctx)
}

// HandleCompensation consumes a compensating event: it moves the entity
// to its reverted state and, when a ledger entry was already created
// for the operation, issues exactly one reversal against the ledger
// service. Guarded transitions make duplicate deliveries no-ops.
func (h *Handler) HandleCompensation(ctx context.Context, env event.Envelope) error {
	p, err := decodePayload(env)
	if err != nil {
		h.logger.Error().Err(err).Str("key", env.Key).Msg("invalid compensation payload")
		return nil
	}
	if p.Failed == nil {
		h.logger.Error().Str("key", env.Key).Msg("compensation event without failure reason")
		return nil
	}

	ob := outbox.New(h.publisher, h.logger)
	err = h.store.InTx(ctx, func(ctx context.Context, tx storage.Store) error {
		e, err := tx.Operations().GetByID(ctx, p.OperationID)
		if err != nil {
			return err
		}
		if e == nil {
			return fmt.Errorf("operation vanished: %s", p.OperationID)
		}
		if !e.ApplyFailed(h.cfg.RevertedState, *p.Failed) {
			return nil
		}
		if err := tx.Operations().Update(ctx, e); err != nil {
			return err
		}

		entry, err := tx.Ledger().GetByOperationID(ctx, e.ID)
		if err != nil {
			return err
		}
		if entry != nil && entry.ReversedAt == nil {
			// The reversal must commit or roll back with the state
			// transition: a replayed event finds the entity already
			// reverted and never reaches this point again.
			if err := h.reversal.Reverse(ctx, e.ID); err != nil {
				return err
			}
			if err := tx.Ledger().MarkReversed(ctx, entry.ID, e.UpdatedAt); err != nil {
				return err
			}
		}

		ob.Buffer(h.topic("reverted"), env)
		return nil
	})
	if err != nil {
		ob.Discard()
		return err
	}
	return ob.Flush(ctx)
}

func (h *Handler) topic(name string) string {
	return event.Topic(h.cfg.Domain, h.cfg.Entity, name)
}

func (h *Handler) hubTopic(step string) string {
	return event.HubTopic(h.cfg.Domain, h.cfg.Entity, step)
}

func decodePayload(env event.Envelope) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(env.Value, &p); err != nil {
		return Payload{}, err
	}
	if p.OperationID == uuid.Nil {
		return Payload{}, fmt.Errorf("missing operationId")
	}
	return p, nil
}

// attachFailure merges the translated failure into the original payload
// without dropping fields the originating service set.
func attachFailure(value json.RawMessage, failure operation.Failure) (json.RawMessage, error) {
	var body map[string]any
	if err := json.Unmarshal(value, &body); err != nil {
		return nil, err
	}
	body["failed"] = failure
	return json.Marshal(body)
}
