package botrun

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/settleflow/settleflow/internal/domain/bot"
	"github.com/settleflow/settleflow/internal/domain/storage"
)

// Leaser guards a job with a cache-backed exclusive lease. Satisfied by
// *lease.Locker.
type Leaser interface {
	WithLease(ctx context.Context, key string, ttl, renewInterval time.Duration, fn func(ctx context.Context)) (bool, error)
}

// Timers owns the per-bot step jobs. Satisfied by
// *scheduler.Scheduler.
type Timers interface {
	Schedule(ctx context.Context, key string, interval time.Duration, fn func(context.Context))
	Cancel(key string)
}

// LeaseConfig holds the exclusive-lease settings for the bot
// coordinator jobs.
type LeaseConfig struct {
	Key           string
	TTL           time.Duration
	RenewInterval time.Duration
}

// Reconciler converges the set of running bot timers toward the stored
// desired state. One worker instance owns the whole bot fleet at a
// time; every pass runs under the fleet lease so a second instance
// skips its tick instead of double-driving the same bots.
type Reconciler struct {
	store        storage.Store
	registry     *Registry
	runner       *Runner
	timers       Timers
	leaser       Leaser
	lease        LeaseConfig
	stepInterval time.Duration
	logger       zerolog.Logger
}

// NewReconciler creates the fleet reconciler.
func NewReconciler(
	store storage.Store,
	registry *Registry,
	runner *Runner,
	timers Timers,
	leaser Leaser,
	lease LeaseConfig,
	stepInterval time.Duration,
	logger zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		store:        store,
		registry:     registry,
		runner:       runner,
		timers:       timers,
		leaser:       leaser,
		lease:        lease,
		stepInterval: stepInterval,
		logger:       logger.With().Str("service", "bot-reconciler").Logger(),
	}
}

func timerKey(name string) string {
	return "bot:" + name
}

// Run executes one reconciliation pass under the fleet lease. When the
// lease is held by another instance the pass is skipped.
func (r *Reconciler) Run(ctx context.Context) error {
	ran, err := r.leaser.WithLease(ctx, r.lease.Key, r.lease.TTL, r.lease.RenewInterval, r.reconcile)
	if err != nil {
		return err
	}
	if !ran {
		r.logger.Debug().Msg("fleet lease held elsewhere, skipping pass")
	}
	return nil
}

func (r *Reconciler) reconcile(ctx context.Context) {
	defs, err := r.store.Bots().List(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list bots")
		return
	}
	r.registry.Merge(defs)

	var wg conc.WaitGroup
	for _, t := range r.registry.All() {
		t := t
		wg.Go(func() {
			r.converge(ctx, t)
		})
	}
	wg.Wait()
}

func (r *Reconciler) converge(ctx context.Context, t *Tracked) {
	d := t.Definition()
	switch {
	case d.ShouldStop():
		r.stop(ctx, t)
	case d.ShouldStart():
		r.start(ctx, t)
	case d.Status == bot.StatusError:
		// The runner already persisted the failure; just make sure the
		// timer is gone.
		r.timers.Cancel(timerKey(d.Name))
	}
}

// stop tears a bot down in order: mark STOPPING so ticks become no-ops,
// cancel the timer, drain the in-flight step, then persist STOPPED.
func (r *Reconciler) stop(ctx context.Context, t *Tracked) {
	t.SetStatus(bot.StatusStopping)
	d := t.Definition()
	if err := r.store.Bots().Update(ctx, &d); err != nil {
		r.logger.Error().Err(err).Str("bot", d.Name).Msg("failed to persist STOPPING")
	}

	r.timers.Cancel(timerKey(d.Name))
	t.AwaitStep()

	t.SetStatus(bot.StatusStopped)
	d = t.Definition()
	if err := r.store.Bots().Update(ctx, &d); err != nil {
		r.logger.Error().Err(err).Str("bot", d.Name).Msg("failed to persist STOPPED")
		return
	}
	r.logger.Info().Str("bot", d.Name).Msg("bot stopped")
}

func (r *Reconciler) start(ctx context.Context, t *Tracked) {
	t.SetStatus(bot.StatusRunning)
	d := t.Definition()
	if err := r.store.Bots().Update(ctx, &d); err != nil {
		r.logger.Error().Err(err).Str("bot", d.Name).Msg("failed to persist RUNNING")
		t.SetStatus(bot.StatusStopped)
		return
	}

	r.timers.Schedule(ctx, timerKey(d.Name), r.stepInterval, func(ctx context.Context) {
		r.runner.Step(ctx, t)
	})
	r.logger.Info().Str("bot", d.Name).Msg("bot started")
}

// KillRunning forces every bot still marked RUNNING back to STOPPED.
// Run once at boot, under the fleet lease: a RUNNING row at process
// start belongs to a crashed prior instance, and its timer no longer
// exists anywhere.
func (r *Reconciler) KillRunning(ctx context.Context) error {
	ran, err := r.leaser.WithLease(ctx, r.lease.Key, r.lease.TTL, r.lease.RenewInterval, func(ctx context.Context) {
		defs, err := r.store.Bots().ListByStatus(ctx, bot.StatusRunning)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to list running bots")
			return
		}
		for _, d := range defs {
			if !d.ShouldKill() {
				continue
			}
			d.Status = bot.StatusStopped
			d.UpdatedAt = time.Now().UTC()
			if err := r.store.Bots().Update(ctx, d); err != nil {
				r.logger.Error().Err(err).Str("bot", d.Name).Msg("failed to force-stop bot")
				continue
			}
			r.logger.Warn().Str("bot", d.Name).Msg("forced stale RUNNING bot to STOPPED")
		}
	})
	if err != nil {
		return err
	}
	if !ran {
		r.logger.Info().Msg("fleet lease held elsewhere, skipping boot recovery")
	}
	return nil
}
