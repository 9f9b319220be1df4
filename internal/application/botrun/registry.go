package botrun

import (
	"sync"

	"github.com/settleflow/settleflow/internal/domain/bot"
)

// Tracked is one bot owned by the scheduler, pairing its persisted
// definition with the in-flight step handle. The handle is only set and
// cleared by the bot's own timer callback; the reconciler only waits on
// it.
type Tracked struct {
	mu       sync.Mutex
	def      bot.Definition
	inFlight chan struct{}
}

// Definition returns a copy of the tracked definition.
func (t *Tracked) Definition() bot.Definition {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.def
}

// SetStatus updates the tracked status.
func (t *Tracked) SetStatus(status bot.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.def.Status = status
}

func (t *Tracked) update(fn func(d *bot.Definition)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.def)
}

// beginStep claims the in-flight handle. It returns false when a step
// is already running, making the tick a no-op.
func (t *Tracked) beginStep() (chan struct{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inFlight != nil {
		return nil, false
	}
	done := make(chan struct{})
	t.inFlight = done
	return done, true
}

func (t *Tracked) endStep(done chan struct{}) {
	t.mu.Lock()
	t.inFlight = nil
	t.mu.Unlock()
	close(done)
}

// AwaitStep blocks until no step is in flight.
func (t *Tracked) AwaitStep() {
	t.mu.Lock()
	done := t.inFlight
	t.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Registry is the explicit per-process map of tracked bots, keyed by
// bot name and owned by the reconciler.
type Registry struct {
	mu   sync.Mutex
	bots map[string]*Tracked
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{bots: make(map[string]*Tracked)}
}

// Merge refreshes the registry from storage. Already-tracked bots keep
// their in-flight handle and take the stored definition; new bots are
// added with no handle.
func (r *Registry) Merge(defs []*bot.Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range defs {
		if t, ok := r.bots[d.Name]; ok {
			t.update(func(cur *bot.Definition) {
				*cur = *d
			})
			continue
		}
		r.bots[d.Name] = &Tracked{def: *d}
	}
}

// Get returns the tracked bot by name, or nil.
func (r *Registry) Get(name string) *Tracked {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bots[name]
}

// All returns every tracked bot.
func (r *Registry) All() []*Tracked {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Tracked, 0, len(r.bots))
	for _, t := range r.bots {
		out = append(out, t)
	}
	return out
}
