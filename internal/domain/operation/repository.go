package operation

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines operation persistence.
type Repository interface {
	Create(ctx context.Context, e *Entity) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entity, error)
	GetByEndToEndID(ctx context.Context, endToEndID string) (*Entity, error)
	Update(ctx context.Context, e *Entity) error
}
