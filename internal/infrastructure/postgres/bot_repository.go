package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/settleflow/settleflow/internal/domain/bot"
	"github.com/settleflow/settleflow/internal/domain/operation"
)

// BotRepository implements bot.Repository.
type BotRepository struct {
	q Querier
}

const botColumns = "id, name, status, control, balance_cents, step, spread, sell_venue_ref, buy_venue_ref, failed, created_at, updated_at, deleted_at"

func (r *BotRepository) GetByID(ctx context.Context, id uuid.UUID) (*bot.Definition, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+botColumns+` FROM bots WHERE id=$1 AND deleted_at IS NULL
	`, id)
	return scanBot(row)
}

func (r *BotRepository) List(ctx context.Context) ([]*bot.Definition, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+botColumns+` FROM bots WHERE deleted_at IS NULL ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBots(rows)
}

func (r *BotRepository) ListByStatus(ctx context.Context, status bot.Status) ([]*bot.Definition, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+botColumns+` FROM bots WHERE status=$1 AND deleted_at IS NULL ORDER BY name
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBots(rows)
}

func (r *BotRepository) Update(ctx context.Context, d *bot.Definition) error {
	failed, err := marshalFailure(d.Failed)
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx, `
		UPDATE bots SET status=$1, control=$2, balance_cents=$3, step=$4, spread=$5, sell_venue_ref=$6, buy_venue_ref=$7, failed=$8, updated_at=$9, deleted_at=$10
		WHERE id=$11
	`, d.Status, d.Control, d.BalanceCents, d.Step, d.Spread, d.SellVenueRef, d.BuyVenueRef, failed, d.UpdatedAt, d.DeletedAt, d.ID)
	return err
}

func scanBot(row pgx.Row) (*bot.Definition, error) {
	var d bot.Definition
	var failed []byte
	if err := row.Scan(&d.ID, &d.Name, &d.Status, &d.Control, &d.BalanceCents, &d.Step, &d.Spread, &d.SellVenueRef, &d.BuyVenueRef, &failed, &d.CreatedAt, &d.UpdatedAt, &d.DeletedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := unmarshalBotFailure(failed, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func collectBots(rows pgx.Rows) ([]*bot.Definition, error) {
	var out []*bot.Definition
	for rows.Next() {
		var d bot.Definition
		var failed []byte
		if err := rows.Scan(&d.ID, &d.Name, &d.Status, &d.Control, &d.BalanceCents, &d.Step, &d.Spread, &d.SellVenueRef, &d.BuyVenueRef, &failed, &d.CreatedAt, &d.UpdatedAt, &d.DeletedAt); err != nil {
			return nil, err
		}
		if err := unmarshalBotFailure(failed, &d); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func unmarshalBotFailure(data []byte, d *bot.Definition) error {
	if len(data) == 0 {
		return nil
	}
	var f operation.Failure
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	d.Failed = &f
	return nil
}

// OrderRepository implements bot.OrderRepository.
type OrderRepository struct {
	q Querier
}

const orderColumns = "id, bot_id, state, sell_leg, buy_leg, failed, created_at, updated_at"

func (r *OrderRepository) Create(ctx context.Context, o *bot.Order) error {
	sell, buy, failed, err := marshalOrderFields(o)
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO bot_orders (id, bot_id, state, sell_leg, buy_leg, failed, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, o.ID, o.BotID, o.State, sell, buy, failed, o.CreatedAt, o.UpdatedAt)
	return err
}

func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*bot.Order, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM bot_orders WHERE id=$1
	`, id)
	o, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *OrderRepository) ListByBotAndState(ctx context.Context, botID uuid.UUID, state bot.OrderState) ([]*bot.Order, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+orderColumns+` FROM bot_orders WHERE bot_id=$1 AND state=$2 ORDER BY created_at
	`, botID, state)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (r *OrderRepository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*bot.Order, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+orderColumns+` FROM bot_orders WHERE state=$1 AND created_at < $2 ORDER BY created_at LIMIT $3
	`, bot.OrderPending, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (r *OrderRepository) Update(ctx context.Context, o *bot.Order) error {
	sell, buy, failed, err := marshalOrderFields(o)
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx, `
		UPDATE bot_orders SET state=$1, sell_leg=$2, buy_leg=$3, failed=$4, updated_at=$5
		WHERE id=$6
	`, o.State, sell, buy, failed, o.UpdatedAt, o.ID)
	return err
}

func marshalOrderFields(o *bot.Order) (sell, buy, failed []byte, err error) {
	sell, err = json.Marshal(o.SellLeg)
	if err != nil {
		return nil, nil, nil, err
	}
	if o.BuyLeg != nil {
		buy, err = json.Marshal(o.BuyLeg)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	failed, err = marshalFailure(o.Failed)
	if err != nil {
		return nil, nil, nil, err
	}
	return sell, buy, failed, nil
}

func scanOrder(row pgx.Row) (*bot.Order, error) {
	var o bot.Order
	var sell, buy, failed []byte
	if err := row.Scan(&o.ID, &o.BotID, &o.State, &sell, &buy, &failed, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := unmarshalOrderFields(sell, buy, failed, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]*bot.Order, error) {
	var out []*bot.Order
	for rows.Next() {
		var o bot.Order
		var sell, buy, failed []byte
		if err := rows.Scan(&o.ID, &o.BotID, &o.State, &sell, &buy, &failed, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		if err := unmarshalOrderFields(sell, buy, failed, &o); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

func unmarshalOrderFields(sell, buy, failed []byte, o *bot.Order) error {
	if err := json.Unmarshal(sell, &o.SellLeg); err != nil {
		return err
	}
	if len(buy) > 0 {
		var leg bot.Leg
		if err := json.Unmarshal(buy, &leg); err != nil {
			return err
		}
		o.BuyLeg = &leg
	}
	if len(failed) > 0 {
		if err := json.Unmarshal(failed, &o.Failed); err != nil {
			return err
		}
	}
	return nil
}
