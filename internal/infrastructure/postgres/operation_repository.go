package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/settleflow/settleflow/internal/domain/operation"
)

// OperationRepository implements operation.Repository.
type OperationRepository struct {
	q Querier
}

func (r *OperationRepository) Create(ctx context.Context, e *operation.Entity) error {
	failed, err := marshalFailure(e.Failed)
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO operations (id, kind, state, failed, amount_cents, end_to_end_id, external_id, request_id, created_at, updated_at, deleted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, e.ID, e.Kind, e.State, failed, e.AmountCents, e.EndToEndID, e.ExternalID, e.RequestID, e.CreatedAt, e.UpdatedAt, e.DeletedAt)
	return err
}

func (r *OperationRepository) GetByID(ctx context.Context, id uuid.UUID) (*operation.Entity, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, kind, state, failed, amount_cents, end_to_end_id, external_id, request_id, created_at, updated_at, deleted_at
		FROM operations WHERE id=$1 AND deleted_at IS NULL
	`, id)
	return scanOperation(row)
}

func (r *OperationRepository) GetByEndToEndID(ctx context.Context, endToEndID string) (*operation.Entity, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, kind, state, failed, amount_cents, end_to_end_id, external_id, request_id, created_at, updated_at, deleted_at
		FROM operations WHERE end_to_end_id=$1 AND deleted_at IS NULL
	`, endToEndID)
	return scanOperation(row)
}

func (r *OperationRepository) Update(ctx context.Context, e *operation.Entity) error {
	failed, err := marshalFailure(e.Failed)
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx, `
		UPDATE operations SET state=$1, failed=$2, external_id=$3, updated_at=$4, deleted_at=$5
		WHERE id=$6
	`, e.State, failed, e.ExternalID, e.UpdatedAt, e.DeletedAt, e.ID)
	return err
}

func scanOperation(row pgx.Row) (*operation.Entity, error) {
	var e operation.Entity
	var failed []byte
	if err := row.Scan(&e.ID, &e.Kind, &e.State, &failed, &e.AmountCents, &e.EndToEndID, &e.ExternalID, &e.RequestID, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if len(failed) > 0 {
		var f operation.Failure
		if err := json.Unmarshal(failed, &f); err != nil {
			return nil, err
		}
		e.Failed = &f
	}
	return &e, nil
}

func marshalFailure(f *operation.Failure) ([]byte, error) {
	if f == nil {
		return nil, nil
	}
	return json.Marshal(f)
}
