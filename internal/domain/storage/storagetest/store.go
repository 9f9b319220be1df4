// Package storagetest provides an in-memory Store with transactional
// semantics for handler tests: InTx runs fn against a copy of the data
// and commits only when fn returns nil.
package storagetest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/settleflow/settleflow/internal/domain/bot"
	"github.com/settleflow/settleflow/internal/domain/ledger"
	"github.com/settleflow/settleflow/internal/domain/operation"
	"github.com/settleflow/settleflow/internal/domain/storage"
)

type data struct {
	ops     map[uuid.UUID]*operation.Entity
	bots    map[uuid.UUID]*bot.Definition
	orders  map[uuid.UUID]*bot.Order
	entries map[uuid.UUID]*ledger.Entry
}

func newData() *data {
	return &data{
		ops:     make(map[uuid.UUID]*operation.Entity),
		bots:    make(map[uuid.UUID]*bot.Definition),
		orders:  make(map[uuid.UUID]*bot.Order),
		entries: make(map[uuid.UUID]*ledger.Entry),
	}
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.ops {
		e := *v
		c.ops[k] = &e
	}
	for k, v := range d.bots {
		b := *v
		c.bots[k] = &b
	}
	for k, v := range d.orders {
		o := *v
		c.orders[k] = &o
	}
	for k, v := range d.entries {
		e := *v
		c.entries[k] = &e
	}
	return c
}

// Store is an in-memory storage.Store.
type Store struct {
	mu sync.Mutex
	d  *data

	// UpdateErr, when set, is returned by every repository mutation;
	// use it to force a transaction rollback.
	UpdateErr error
}

// New creates an empty store.
func New() *Store {
	return &Store{d: newData()}
}

// Seed helpers.

func (s *Store) PutOperation(e *operation.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.d.ops[e.ID] = &cp
}

func (s *Store) PutBot(b *bot.Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.d.bots[b.ID] = &cp
}

func (s *Store) PutOrder(o *bot.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.d.orders[o.ID] = &cp
}

func (s *Store) PutEntry(e *ledger.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.d.entries[e.ID] = &cp
}

// Inspection helpers.

func (s *Store) Operation(id uuid.UUID) *operation.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.d.ops[id]; ok {
		cp := *e
		return &cp
	}
	return nil
}

func (s *Store) Bot(id uuid.UUID) *bot.Definition {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.d.bots[id]; ok {
		cp := *b
		return &cp
	}
	return nil
}

func (s *Store) Order(id uuid.UUID) *bot.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.d.orders[id]; ok {
		cp := *o
		return &cp
	}
	return nil
}

func (s *Store) Entry(id uuid.UUID) *ledger.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.d.entries[id]; ok {
		cp := *e
		return &cp
	}
	return nil
}

// storage.Store implementation.

func (s *Store) Operations() operation.Repository { return opRepo{s} }
func (s *Store) Bots() bot.Repository             { return botRepo{s} }
func (s *Store) Orders() bot.OrderRepository      { return orderRepo{s} }
func (s *Store) Ledger() ledger.Repository        { return ledgerRepo{s} }

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Store) error) error {
	s.mu.Lock()
	snapshot := s.d.clone()
	s.mu.Unlock()

	tx := &Store{d: snapshot, UpdateErr: s.UpdateErr}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	s.d = tx.d
	s.mu.Unlock()
	return nil
}

type opRepo struct{ s *Store }

func (r opRepo) Create(_ context.Context, e *operation.Entity) error {
	if r.s.UpdateErr != nil {
		return r.s.UpdateErr
	}
	r.s.PutOperation(e)
	return nil
}

func (r opRepo) GetByID(_ context.Context, id uuid.UUID) (*operation.Entity, error) {
	return r.s.Operation(id), nil
}

func (r opRepo) GetByEndToEndID(_ context.Context, endToEndID string) (*operation.Entity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.d.ops {
		if e.EndToEndID == endToEndID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (r opRepo) Update(_ context.Context, e *operation.Entity) error {
	if r.s.UpdateErr != nil {
		return r.s.UpdateErr
	}
	r.s.PutOperation(e)
	return nil
}

type botRepo struct{ s *Store }

func (r botRepo) GetByID(_ context.Context, id uuid.UUID) (*bot.Definition, error) {
	return r.s.Bot(id), nil
}

func (r botRepo) List(_ context.Context) ([]*bot.Definition, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*bot.Definition, 0, len(r.s.d.bots))
	for _, b := range r.s.d.bots {
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

func (r botRepo) ListByStatus(_ context.Context, status bot.Status) ([]*bot.Definition, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*bot.Definition
	for _, b := range r.s.d.bots {
		if b.Status == status {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r botRepo) Update(_ context.Context, d *bot.Definition) error {
	if r.s.UpdateErr != nil {
		return r.s.UpdateErr
	}
	r.s.PutBot(d)
	return nil
}

type orderRepo struct{ s *Store }

func (r orderRepo) Create(_ context.Context, o *bot.Order) error {
	if r.s.UpdateErr != nil {
		return r.s.UpdateErr
	}
	r.s.PutOrder(o)
	return nil
}

func (r orderRepo) GetByID(_ context.Context, id uuid.UUID) (*bot.Order, error) {
	return r.s.Order(id), nil
}

func (r orderRepo) ListByBotAndState(_ context.Context, botID uuid.UUID, state bot.OrderState) ([]*bot.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*bot.Order
	for _, o := range r.s.d.orders {
		if o.BotID == botID && o.State == state {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r orderRepo) ListPendingBefore(_ context.Context, cutoff time.Time, limit int) ([]*bot.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*bot.Order
	for _, o := range r.s.d.orders {
		if o.State == bot.OrderPending && o.CreatedAt.Before(cutoff) {
			cp := *o
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r orderRepo) Update(_ context.Context, o *bot.Order) error {
	if r.s.UpdateErr != nil {
		return r.s.UpdateErr
	}
	r.s.PutOrder(o)
	return nil
}

type ledgerRepo struct{ s *Store }

func (r ledgerRepo) Create(_ context.Context, e *ledger.Entry) error {
	if r.s.UpdateErr != nil {
		return r.s.UpdateErr
	}
	r.s.PutEntry(e)
	return nil
}

func (r ledgerRepo) GetByOperationID(_ context.Context, operationID uuid.UUID) (*ledger.Entry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.d.entries {
		if e.OperationID == operationID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (r ledgerRepo) MarkReversed(_ context.Context, id uuid.UUID, at time.Time) error {
	if r.s.UpdateErr != nil {
		return r.s.UpdateErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if e, ok := r.s.d.entries[id]; ok {
		e.ReversedAt = &at
	}
	return nil
}
