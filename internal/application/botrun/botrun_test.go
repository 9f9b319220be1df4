package botrun

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/settleflow/settleflow/internal/domain/bot"
	"github.com/settleflow/settleflow/internal/domain/storage"
	"github.com/settleflow/settleflow/internal/domain/storage/storagetest"
)

type fakeLeaser struct {
	held bool
}

func (f *fakeLeaser) WithLease(ctx context.Context, key string, ttl, renew time.Duration, fn func(ctx context.Context)) (bool, error) {
	if f.held {
		return false, nil
	}
	fn(ctx)
	return true, nil
}

type fakeTimers struct {
	mu        sync.Mutex
	scheduled map[string]func(context.Context)
	cancelled []string
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{scheduled: make(map[string]func(context.Context))}
}

func (f *fakeTimers) Schedule(_ context.Context, key string, _ time.Duration, fn func(context.Context)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled[key] = fn
}

func (f *fakeTimers) Cancel(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.scheduled, key)
	f.cancelled = append(f.cancelled, key)
}

func (f *fakeTimers) job(key string) func(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scheduled[key]
}

type stubStrategy struct {
	err   error
	calls int32
}

func (s *stubStrategy) Step(context.Context, storage.Store, bot.Definition) error {
	atomic.AddInt32(&s.calls, 1)
	return s.err
}

func seedBot(status bot.Status, control bot.Control) *bot.Definition {
	now := time.Now().UTC()
	return &bot.Definition{
		ID:           uuid.New(),
		Name:         "alpha",
		Status:       status,
		Control:      control,
		BalanceCents: 100_000,
		Step:         decimal.NewFromInt(50),
		Spread:       decimal.NewFromFloat(0.01),
		SellVenueRef: "venue-a",
		BuyVenueRef:  "venue-b",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func newReconciler(store *storagetest.Store, strategy Strategy, timers Timers, leaser Leaser) (*Reconciler, *Registry) {
	logger := zerolog.Nop()
	registry := NewRegistry()
	runner := NewRunner(store, strategy, logger)
	rec := NewReconciler(store, registry, runner, timers, leaser, LeaseConfig{
		Key:           "bots",
		TTL:           10 * time.Second,
		RenewInterval: 3 * time.Second,
	}, 100*time.Millisecond, logger)
	return rec, registry
}

func TestReconcilerStartsBot(t *testing.T) {
	store := storagetest.New()
	d := seedBot(bot.StatusStopped, bot.ControlStart)
	store.PutBot(d)

	strategy := &stubStrategy{}
	timers := newFakeTimers()
	rec, _ := newReconciler(store, strategy, timers, &fakeLeaser{})

	require.NoError(t, rec.Run(context.Background()))

	assert.Equal(t, bot.StatusRunning, store.Bot(d.ID).Status)
	job := timers.job("bot:alpha")
	require.NotNil(t, job)

	job(context.Background())
	assert.Equal(t, int32(1), atomic.LoadInt32(&strategy.calls))
}

func TestReconcilerStopsBotAfterDrainingStep(t *testing.T) {
	store := storagetest.New()
	d := seedBot(bot.StatusRunning, bot.ControlStop)
	store.PutBot(d)

	timers := newFakeTimers()
	rec, registry := newReconciler(store, &stubStrategy{}, timers, &fakeLeaser{})

	registry.Merge([]*bot.Definition{d})
	tracked := registry.Get("alpha")
	done, ok := tracked.beginStep()
	require.True(t, ok)

	var drained atomic.Bool
	go func() {
		time.Sleep(30 * time.Millisecond)
		drained.Store(true)
		tracked.endStep(done)
	}()

	require.NoError(t, rec.Run(context.Background()))

	assert.True(t, drained.Load(), "stop must wait for the in-flight step")
	assert.Equal(t, bot.StatusStopped, store.Bot(d.ID).Status)
	assert.Contains(t, timers.cancelled, "bot:alpha")
}

func TestReconcilerSkipsWhenLeaseHeldElsewhere(t *testing.T) {
	store := storagetest.New()
	d := seedBot(bot.StatusStopped, bot.ControlStart)
	store.PutBot(d)

	timers := newFakeTimers()
	rec, _ := newReconciler(store, &stubStrategy{}, timers, &fakeLeaser{held: true})

	require.NoError(t, rec.Run(context.Background()))

	assert.Equal(t, bot.StatusStopped, store.Bot(d.ID).Status)
	assert.Nil(t, timers.job("bot:alpha"))
}

func TestReconcilerStandByLeavesBotAlone(t *testing.T) {
	store := storagetest.New()
	d := seedBot(bot.StatusStopped, bot.ControlStandBy)
	store.PutBot(d)

	timers := newFakeTimers()
	rec, _ := newReconciler(store, &stubStrategy{}, timers, &fakeLeaser{})

	require.NoError(t, rec.Run(context.Background()))

	assert.Equal(t, bot.StatusStopped, store.Bot(d.ID).Status)
	assert.Nil(t, timers.job("bot:alpha"))
}

func TestRunnerSkipsOverlappingTick(t *testing.T) {
	store := storagetest.New()
	d := seedBot(bot.StatusRunning, bot.ControlStart)
	store.PutBot(d)

	strategy := &stubStrategy{}
	runner := NewRunner(store, strategy, zerolog.Nop())

	registry := NewRegistry()
	registry.Merge([]*bot.Definition{d})
	tracked := registry.Get("alpha")

	done, ok := tracked.beginStep()
	require.True(t, ok)
	defer tracked.endStep(done)

	runner.Step(context.Background(), tracked)
	assert.Equal(t, int32(0), atomic.LoadInt32(&strategy.calls))
}

func TestRunnerStepErrorTakesBotOutOfRotation(t *testing.T) {
	store := storagetest.New()
	d := seedBot(bot.StatusRunning, bot.ControlStart)
	store.PutBot(d)

	runner := NewRunner(store, &stubStrategy{err: errors.New("venue unreachable")}, zerolog.Nop())

	registry := NewRegistry()
	registry.Merge([]*bot.Definition{d})
	runner.Step(context.Background(), registry.Get("alpha"))

	got := store.Bot(d.ID)
	assert.Equal(t, bot.StatusError, got.Status)
	assert.Equal(t, bot.ControlStop, got.Control)
	require.NotNil(t, got.Failed)
	assert.Equal(t, "STEP_FAILED", got.Failed.Code)
}

func TestRunnerIgnoresNonRunningBot(t *testing.T) {
	store := storagetest.New()
	d := seedBot(bot.StatusStopping, bot.ControlStop)
	store.PutBot(d)

	strategy := &stubStrategy{}
	runner := NewRunner(store, strategy, zerolog.Nop())

	registry := NewRegistry()
	registry.Merge([]*bot.Definition{d})
	runner.Step(context.Background(), registry.Get("alpha"))

	assert.Equal(t, int32(0), atomic.LoadInt32(&strategy.calls))
}

func TestKillRunningForcesStaleBotsToStopped(t *testing.T) {
	store := storagetest.New()
	running := seedBot(bot.StatusRunning, bot.ControlStart)
	stopped := seedBot(bot.StatusStopped, bot.ControlStop)
	stopped.Name = "beta"
	store.PutBot(running)
	store.PutBot(stopped)

	rec, _ := newReconciler(store, &stubStrategy{}, newFakeTimers(), &fakeLeaser{})

	require.NoError(t, rec.KillRunning(context.Background()))

	assert.Equal(t, bot.StatusStopped, store.Bot(running.ID).Status)
	assert.Equal(t, bot.StatusStopped, store.Bot(stopped.ID).Status)
}
