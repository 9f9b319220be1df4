package ledger

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_ledger.go -package=mocks . Repository,ReversalGateway

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Direction of a ledger movement.
type Direction string

const (
	DirectionDebit  Direction = "DEBIT"
	DirectionCredit Direction = "CREDIT"
)

// Entry is a ledger movement created for an operation. Amounts are
// integer minor units.
type Entry struct {
	ID          uuid.UUID  `json:"id"`
	OperationID uuid.UUID  `json:"operationId"`
	Direction   Direction  `json:"direction"`
	AmountCents int64      `json:"amountCents"`
	ReversedAt  *time.Time `json:"reversedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Repository defines ledger entry persistence.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	GetByOperationID(ctx context.Context, operationID uuid.UUID) (*Entry, error)
	MarkReversed(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ReversalGateway issues a compensating reversal against the ledger
// service when money already moved for a failed operation.
type ReversalGateway interface {
	Reverse(ctx context.Context, operationID uuid.UUID) error
}
