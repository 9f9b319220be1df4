package botrun

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/settleflow/settleflow/internal/domain/bot"
	"github.com/settleflow/settleflow/internal/domain/storage"
)

// Venue is the exchange gateway for one trading leg.
type Venue interface {
	PlaceSell(ctx context.Context, req QuoteRequest) (bot.Leg, error)
	PlaceBuy(ctx context.Context, req QuoteRequest) (bot.Leg, error)
	OrderFilled(ctx context.Context, venueRef, venueOrder string) (bool, error)
}

// Pricer supplies a reference price for a venue. The actual
// market-making algorithm is pluggable; this package only needs a
// number to quote around.
type Pricer interface {
	MidPrice(ctx context.Context, venueRef string) (decimal.Decimal, error)
}

// QuoteRequest is one leg order to place at a venue.
type QuoteRequest struct {
	VenueRef    string
	Price       decimal.Decimal
	AmountCents int64
}

// Strategy runs one trading step for a bot inside the caller's
// transaction.
type Strategy interface {
	Step(ctx context.Context, tx storage.Store, d bot.Definition) error
}

// HedgeStrategy drives one hedge cycle per bot: a sell leg placed on
// the sell venue, then a buy leg on the buy venue once the sell fills.
type HedgeStrategy struct {
	venue  Venue
	pricer Pricer
}

// NewHedgeStrategy creates the default hedge strategy.
func NewHedgeStrategy(venue Venue, pricer Pricer) *HedgeStrategy {
	return &HedgeStrategy{venue: venue, pricer: pricer}
}

var oneHundred = decimal.NewFromInt(100)

// Step advances every open cycle and opens a new one when the bot is
// idle and funded.
func (s *HedgeStrategy) Step(ctx context.Context, tx storage.Store, d bot.Definition) error {
	pending, err := tx.Orders().ListByBotAndState(ctx, d.ID, bot.OrderPending)
	if err != nil {
		return err
	}
	for _, o := range pending {
		filled, err := s.venue.OrderFilled(ctx, o.SellLeg.VenueRef, o.SellLeg.VenueOrder)
		if err != nil {
			return err
		}
		if !filled {
			continue
		}
		if o.Fill() {
			if err := tx.Orders().Update(ctx, o); err != nil {
				return err
			}
		}
	}

	filled, err := tx.Orders().ListByBotAndState(ctx, d.ID, bot.OrderFilled)
	if err != nil {
		return err
	}
	for _, o := range filled {
		buyPrice := o.SellLeg.Price.Mul(decimal.NewFromInt(1).Sub(d.Spread))
		leg, err := s.venue.PlaceBuy(ctx, QuoteRequest{
			VenueRef:    d.BuyVenueRef,
			Price:       buyPrice,
			AmountCents: o.SellLeg.AmountCents,
		})
		if err != nil {
			return err
		}
		if o.Settle(leg) {
			if err := tx.Orders().Update(ctx, o); err != nil {
				return err
			}
		}
	}

	if len(pending)+len(filled) > 0 || d.BalanceCents <= 0 {
		return nil
	}

	mid, err := s.pricer.MidPrice(ctx, d.SellVenueRef)
	if err != nil {
		return err
	}
	sellPrice := mid.Mul(decimal.NewFromInt(1).Add(d.Spread))
	amountCents := d.Step.Mul(oneHundred).IntPart()
	if amountCents > d.BalanceCents {
		amountCents = d.BalanceCents
	}
	leg, err := s.venue.PlaceSell(ctx, QuoteRequest{
		VenueRef:    d.SellVenueRef,
		Price:       sellPrice,
		AmountCents: amountCents,
	})
	if err != nil {
		return err
	}
	return tx.Orders().Create(ctx, bot.NewOrder(d.ID, leg))
}
