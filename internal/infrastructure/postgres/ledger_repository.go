package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/settleflow/settleflow/internal/domain/ledger"
)

// LedgerRepository implements ledger.Repository.
type LedgerRepository struct {
	q Querier
}

func (r *LedgerRepository) Create(ctx context.Context, e *ledger.Entry) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO ledger_entries (id, operation_id, direction, amount_cents, reversed_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, e.ID, e.OperationID, e.Direction, e.AmountCents, e.ReversedAt, e.CreatedAt)
	return err
}

func (r *LedgerRepository) GetByOperationID(ctx context.Context, operationID uuid.UUID) (*ledger.Entry, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, operation_id, direction, amount_cents, reversed_at, created_at
		FROM ledger_entries WHERE operation_id=$1
	`, operationID)
	var e ledger.Entry
	if err := row.Scan(&e.ID, &e.OperationID, &e.Direction, &e.AmountCents, &e.ReversedAt, &e.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (r *LedgerRepository) MarkReversed(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.q.Exec(ctx, `
		UPDATE ledger_entries SET reversed_at=$1 WHERE id=$2 AND reversed_at IS NULL
	`, at, id)
	return err
}
