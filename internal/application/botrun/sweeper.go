package botrun

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/settleflow/settleflow/internal/domain/operation"
	"github.com/settleflow/settleflow/internal/domain/storage"
)

const sweepBatchSize = 100

// Sweeper fails hedge cycles whose sell leg never filled within the
// timeout. Without it a venue that silently drops an order would pin
// the bot's balance forever.
type Sweeper struct {
	store   storage.Store
	timeout time.Duration
	logger  zerolog.Logger
}

// NewSweeper creates a pending-order sweeper.
func NewSweeper(store storage.Store, timeout time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:   store,
		timeout: timeout,
		logger:  logger.With().Str("service", "order-sweeper").Logger(),
	}
}

// Sweep fails every PENDING order older than the timeout, one
// transaction per pass.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.timeout)
	return s.store.InTx(ctx, func(ctx context.Context, tx storage.Store) error {
		stale, err := tx.Orders().ListPendingBefore(ctx, cutoff, sweepBatchSize)
		if err != nil {
			return err
		}
		for _, o := range stale {
			if !o.MarkError(operation.Failure{Code: "ORDER_TIMEOUT", Message: "sell leg not filled within timeout"}) {
				continue
			}
			if err := tx.Orders().Update(ctx, o); err != nil {
				return err
			}
			s.logger.Warn().
				Str("order", o.ID.String()).
				Str("bot", o.BotID.String()).
				Msg("pending order timed out")
		}
		return nil
	})
}
