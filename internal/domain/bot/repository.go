package bot

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines bot definition persistence.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Definition, error)
	List(ctx context.Context) ([]*Definition, error)
	ListByStatus(ctx context.Context, status Status) ([]*Definition, error)
	Update(ctx context.Context, d *Definition) error
}

// OrderRepository defines hedge-cycle persistence.
type OrderRepository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	ListByBotAndState(ctx context.Context, botID uuid.UUID, state OrderState) ([]*Order, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Order, error)
	Update(ctx context.Context, o *Order) error
}
