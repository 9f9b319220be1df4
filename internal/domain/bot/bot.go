package bot

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/settleflow/settleflow/internal/domain/operation"
)

// Status represents the observed machine state of a bot.
type Status string

const (
	StatusStopped  Status = "STOPPED"
	StatusRunning  Status = "RUNNING"
	StatusStopping Status = "STOPPING"
	StatusError    Status = "ERROR"
)

// Control is the desired state set by configuration or an operator.
type Control string

const (
	ControlStart   Control = "START"
	ControlStop    Control = "STOP"
	ControlStandBy Control = "STAND_BY"
)

// Definition is an OTC trading bot as persisted.
type Definition struct {
	ID           uuid.UUID          `json:"id"`
	Name         string             `json:"name"`
	Status       Status             `json:"status"`
	Control      Control            `json:"control"`
	BalanceCents int64              `json:"balanceCents"`
	Step         decimal.Decimal    `json:"step"`
	Spread       decimal.Decimal    `json:"spread"`
	SellVenueRef string             `json:"sellVenueRef"`
	BuyVenueRef  string             `json:"buyVenueRef"`
	Failed       *operation.Failure `json:"failed,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
	DeletedAt    *time.Time         `json:"deletedAt,omitempty"`
}

// ShouldStart reports whether the reconciler must bring the bot up.
func (d *Definition) ShouldStart() bool {
	return d.Control == ControlStart && d.Status == StatusStopped
}

// ShouldStop reports whether the reconciler must bring the bot down.
func (d *Definition) ShouldStop() bool {
	return d.Control == ControlStop && d.Status == StatusRunning
}

// ShouldKill reports whether boot-time recovery must force the bot to
// STOPPED. Evaluated regardless of Control: a RUNNING row at process
// start belongs to a crashed prior instance.
func (d *Definition) ShouldKill() bool {
	return d.Status == StatusRunning
}

// MarkError records a trading-step failure. The bot is taken out of
// rotation until an operator re-arms it.
func (d *Definition) MarkError(failure operation.Failure) {
	d.Status = StatusError
	d.Control = ControlStop
	if d.Failed == nil {
		d.Failed = &failure
	}
	d.UpdatedAt = time.Now().UTC()
}

// OrderState represents the state of one hedge cycle.
type OrderState string

const (
	OrderPending OrderState = "PENDING"
	OrderFilled  OrderState = "FILLED"
	OrderSold    OrderState = "SOLD"
	OrderError   OrderState = "ERROR"
)

// Leg is one side of a hedge cycle at a venue.
type Leg struct {
	VenueRef    string          `json:"venueRef"`
	VenueOrder  string          `json:"venueOrder"`
	Price       decimal.Decimal `json:"price"`
	AmountCents int64           `json:"amountCents"`
}

// Order is one hedge cycle: the sell leg is placed first, the buy leg
// settles second, and SOLD requires both legs reconciled.
type Order struct {
	ID        uuid.UUID          `json:"id"`
	BotID     uuid.UUID          `json:"botId"`
	State     OrderState         `json:"state"`
	SellLeg   Leg                `json:"sellLeg"`
	BuyLeg    *Leg               `json:"buyLeg,omitempty"`
	Failed    *operation.Failure `json:"failed,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// NewOrder opens a hedge cycle with its sell leg.
func NewOrder(botID uuid.UUID, sell Leg) *Order {
	now := time.Now().UTC()
	return &Order{
		ID:        uuid.New(),
		BotID:     botID,
		State:     OrderPending,
		SellLeg:   sell,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

var orderTransitions = map[OrderState][]OrderState{
	OrderPending: {OrderFilled, OrderError},
	OrderFilled:  {OrderSold, OrderError},
}

// CanTransitionTo validates an order state transition.
func (o *Order) CanTransitionTo(target OrderState) bool {
	for _, s := range orderTransitions[o.State] {
		if s == target {
			return true
		}
	}
	return false
}

// Fill marks the sell leg as filled.
func (o *Order) Fill() bool {
	if !o.CanTransitionTo(OrderFilled) {
		return false
	}
	o.State = OrderFilled
	o.UpdatedAt = time.Now().UTC()
	return true
}

// Settle records the buy leg and closes the cycle.
func (o *Order) Settle(buy Leg) bool {
	if !o.CanTransitionTo(OrderSold) {
		return false
	}
	o.State = OrderSold
	o.BuyLeg = &buy
	o.UpdatedAt = time.Now().UTC()
	return true
}

// MarkError fails the cycle with a reason.
func (o *Order) MarkError(failure operation.Failure) bool {
	if !o.CanTransitionTo(OrderError) {
		return false
	}
	o.State = OrderError
	if o.Failed == nil {
		o.Failed = &failure
	}
	o.UpdatedAt = time.Now().UTC()
	return true
}
