package storage

import (
	"context"

	"github.com/settleflow/settleflow/internal/domain/bot"
	"github.com/settleflow/settleflow/internal/domain/ledger"
	"github.com/settleflow/settleflow/internal/domain/operation"
)

// Store bundles the repositories a handler mutates. InTx runs fn with a
// Store bound to a single database transaction: fn returning an error
// rolls everything back. Each handler invocation owns exactly one
// short-lived transaction scoped to the entities it touches.
type Store interface {
	Operations() operation.Repository
	Bots() bot.Repository
	Orders() bot.OrderRepository
	Ledger() ledger.Repository
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
