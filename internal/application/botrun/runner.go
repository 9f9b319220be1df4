package botrun

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/settleflow/settleflow/internal/domain/bot"
	"github.com/settleflow/settleflow/internal/domain/operation"
	"github.com/settleflow/settleflow/internal/domain/storage"
	"github.com/settleflow/settleflow/internal/metrics"
)

// Runner executes one trading step per timer tick with at most one
// step in flight per bot.
type Runner struct {
	store    storage.Store
	strategy Strategy
	logger   zerolog.Logger
}

// NewRunner creates a step runner.
func NewRunner(store storage.Store, strategy Strategy, logger zerolog.Logger) *Runner {
	return &Runner{
		store:    store,
		strategy: strategy,
		logger:   logger.With().Str("service", "bot-runner").Logger(),
	}
}

// Step runs one strategy step for the tracked bot. A tick that lands
// while the previous step is still running is dropped, not queued. A
// strategy error takes the bot out of rotation: the failure is recorded
// on the definition and persisted, and the reconciler tears the timer
// down on its next pass.
func (r *Runner) Step(ctx context.Context, t *Tracked) {
	d := t.Definition()
	if d.Status != bot.StatusRunning {
		return
	}

	done, ok := t.beginStep()
	if !ok {
		metrics.BotStepsSkipped.WithLabelValues(d.Name).Inc()
		r.logger.Debug().Str("bot", d.Name).Msg("step already in flight, skipping tick")
		return
	}
	defer t.endStep(done)

	err := r.store.InTx(ctx, func(ctx context.Context, tx storage.Store) error {
		return r.strategy.Step(ctx, tx, d)
	})
	if err == nil {
		return
	}

	metrics.BotStepErrors.WithLabelValues(d.Name).Inc()
	r.logger.Error().Err(err).Str("bot", d.Name).Msg("trading step failed")

	failure := operation.Failure{Code: "STEP_FAILED", Message: err.Error()}
	t.update(func(cur *bot.Definition) {
		cur.MarkError(failure)
		d = *cur
	})
	if err := r.store.Bots().Update(ctx, &d); err != nil {
		r.logger.Error().Err(err).Str("bot", d.Name).Msg("failed to persist bot error state")
	}
}
