package operations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/settleflow/settleflow/internal/application/outbox"
	"github.com/settleflow/settleflow/internal/domain/event"
	"github.com/settleflow/settleflow/internal/domain/ledger"
	"github.com/settleflow/settleflow/internal/domain/operation"
	"github.com/settleflow/settleflow/internal/domain/storage"
)

var (
	ErrOperationNotFound = errors.New("operation not found")
	ErrInvalidRequest    = errors.New("invalid request")
)

// entityName maps an operation kind to its topic segment.
func entityName(kind operation.Kind) string {
	return strings.ToLower(string(kind))
}

func payloadFor(e *operation.Entity) json.RawMessage {
	value, _ := json.Marshal(operationPayload{
		OperationID: e.ID,
		AmountCents: e.AmountCents,
		EndToEndID:  e.EndToEndID,
		Failed:      e.Failed,
	})
	return value
}

type operationPayload struct {
	OperationID uuid.UUID          `json:"operationId"`
	AmountCents int64              `json:"amountCents"`
	EndToEndID  string             `json:"endToEndId"`
	Failed      *operation.Failure `json:"failed,omitempty"`
}

// CreateOperation opens a new operation in PENDING and announces it.
// Creation is idempotent per end-to-end id: a duplicate request returns
// the existing entity without a second pending event.
type CreateOperation struct {
	store     storage.Store
	publisher event.Publisher
	domain    string
	logger    zerolog.Logger
}

func NewCreateOperation(store storage.Store, publisher event.Publisher, domain string, logger zerolog.Logger) *CreateOperation {
	return &CreateOperation{
		store:     store,
		publisher: publisher,
		domain:    domain,
		logger:    logger.With().Str("service", "operations-create").Logger(),
	}
}

type CreateRequest struct {
	Kind        operation.Kind
	AmountCents int64
	EndToEndID  string
	RequestID   string
}

func (uc *CreateOperation) Execute(ctx context.Context, req CreateRequest) (*operation.Entity, error) {
	if req.EndToEndID == "" {
		return nil, fmt.Errorf("%w: endToEndId is required", ErrInvalidRequest)
	}
	if req.AmountCents < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidRequest)
	}

	ob := outbox.New(uc.publisher, uc.logger)
	var created *operation.Entity
	err := uc.store.InTx(ctx, func(ctx context.Context, tx storage.Store) error {
		existing, err := tx.Operations().GetByEndToEndID(ctx, req.EndToEndID)
		if err != nil {
			return err
		}
		if existing != nil {
			created = existing
			return nil
		}

		e := operation.New(req.Kind, req.AmountCents, req.EndToEndID, req.RequestID)
		if err := tx.Operations().Create(ctx, e); err != nil {
			return err
		}
		ob.Buffer(event.Topic(uc.domain, entityName(req.Kind), "pending"), event.Envelope{
			Key:     e.EndToEndID,
			Headers: event.Headers{RequestID: req.RequestID},
			Value:   payloadFor(e),
		})
		created = e
		return nil
	})
	if err != nil {
		ob.Discard()
		return nil, err
	}
	if err := ob.Flush(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

// CompleteOperation settles an operation: a guarded transition to
// COMPLETED, exactly one ledger credit, and a completed event. A
// duplicate delivery for an already-completed entity is a no-op.
type CompleteOperation struct {
	store     storage.Store
	publisher event.Publisher
	domain    string
	logger    zerolog.Logger
}

func NewCompleteOperation(store storage.Store, publisher event.Publisher, domain string, logger zerolog.Logger) *CompleteOperation {
	return &CompleteOperation{
		store:     store,
		publisher: publisher,
		domain:    domain,
		logger:    logger.With().Str("service", "operations-complete").Logger(),
	}
}

type CompleteRequest struct {
	OperationID uuid.UUID
	RequestID   string
}

type CompleteResponse struct {
	Entity  *operation.Entity
	Changed bool
}

func (uc *CompleteOperation) Execute(ctx context.Context, req CompleteRequest) (CompleteResponse, error) {
	ob := outbox.New(uc.publisher, uc.logger)
	var resp CompleteResponse
	err := uc.store.InTx(ctx, func(ctx context.Context, tx storage.Store) error {
		e, err := tx.Operations().GetByID(ctx, req.OperationID)
		if err != nil {
			return err
		}
		if e == nil {
			return fmt.Errorf("%w: %s", ErrOperationNotFound, req.OperationID)
		}
		if !e.Apply(operation.StateCompleted) {
			resp = CompleteResponse{Entity: e, Changed: false}
			return nil
		}
		if err := tx.Operations().Update(ctx, e); err != nil {
			return err
		}

		entry, err := tx.Ledger().GetByOperationID(ctx, e.ID)
		if err != nil {
			return err
		}
		if entry == nil {
			if err := tx.Ledger().Create(ctx, &ledger.Entry{
				ID:          uuid.New(),
				OperationID: e.ID,
				Direction:   ledger.DirectionCredit,
				AmountCents: e.AmountCents,
				CreatedAt:   time.Now().UTC(),
			}); err != nil {
				return err
			}
		}

		ob.Buffer(event.Topic(uc.domain, entityName(e.Kind), "completed"), event.Envelope{
			Key:     e.EndToEndID,
			Headers: event.Headers{RequestID: req.RequestID},
			Value:   payloadFor(e),
		})
		resp = CompleteResponse{Entity: e, Changed: true}
		return nil
	})
	if err != nil {
		ob.Discard()
		return CompleteResponse{}, err
	}
	if err := ob.Flush(ctx); err != nil {
		return CompleteResponse{}, err
	}
	if !resp.Changed {
		uc.logger.Info().
			Str("operation_id", req.OperationID.String()).
			Str("state", string(resp.Entity.State)).
			Msg("duplicate completed delivery ignored")
	}
	return resp, nil
}
