package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler owns the periodic jobs of one worker process. Each job is a
// goroutine driven by a ticker; cancelling the parent context stops
// every job. Schedule with an existing key replaces that job.
type Scheduler struct {
	logger zerolog.Logger

	mu   sync.Mutex
	jobs map[string]context.CancelFunc
	wg   sync.WaitGroup
}

// New creates an empty scheduler.
func New(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		logger: logger.With().Str("service", "scheduler").Logger(),
		jobs:   make(map[string]context.CancelFunc),
	}
}

// Schedule registers fn to run every interval until Cancel(key) or ctx
// is done. The first run happens after one interval, not immediately.
func (s *Scheduler) Schedule(ctx context.Context, key string, interval time.Duration, fn func(context.Context)) {
	jobCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if prev, ok := s.jobs[key]; ok {
		prev()
	}
	s.jobs[key] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-jobCtx.Done():
				return
			case <-ticker.C:
				s.run(jobCtx, key, fn)
			}
		}
	}()
}

// Cancel stops the job registered under key. It does not wait for an
// in-flight run; callers that need that track their own handle.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.jobs[key]; ok {
		cancel()
		delete(s.jobs, key)
	}
}

// Shutdown cancels every job and waits for in-flight runs to return.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	for key, cancel := range s.jobs {
		cancel()
		delete(s.jobs, key)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, key string, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("job", key).Msg("scheduled job panicked")
		}
	}()
	fn(ctx)
}
