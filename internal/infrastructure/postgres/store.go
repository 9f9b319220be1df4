package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/settleflow/settleflow/internal/domain/bot"
	"github.com/settleflow/settleflow/internal/domain/ledger"
	"github.com/settleflow/settleflow/internal/domain/operation"
	"github.com/settleflow/settleflow/internal/domain/storage"
)

// Querier is the query surface shared by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements storage.Store over postgres. A Store created from
// the pool issues autocommit statements; InTx binds a child Store to a
// single transaction.
type Store struct {
	pool *pgxpool.Pool
	q    Querier
}

// NewStore creates a pool-backed store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool}
}

func (s *Store) Operations() operation.Repository { return &OperationRepository{q: s.q} }
func (s *Store) Bots() bot.Repository             { return &BotRepository{q: s.q} }
func (s *Store) Orders() bot.OrderRepository      { return &OrderRepository{q: s.q} }
func (s *Store) Ledger() ledger.Repository        { return &LedgerRepository{q: s.q} }

// InTx runs fn inside one transaction. Nested calls reuse the
// surrounding transaction instead of opening a second one.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Store) error) error {
	if _, ok := s.q.(pgx.Tx); ok {
		return fn(ctx, s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &Store{pool: s.pool, q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
