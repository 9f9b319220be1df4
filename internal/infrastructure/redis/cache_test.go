package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/settleflow/settleflow/internal/domain/operation"
	"github.com/settleflow/settleflow/internal/domain/storage"
	"github.com/settleflow/settleflow/internal/domain/storage/storagetest"
)

// fakeRedis implements Client over an in-memory map. TTLs are not
// simulated; expiry behavior belongs to the real server.
type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string

	// failErr, when set, is returned by every call.
	failErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string)}
}

func (f *fakeRedis) Get(_ context.Context, key string) *goredis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return goredis.NewStringResult("", f.failErr)
	}
	val, ok := f.values[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(val, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *goredis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return goredis.NewStatusResult("", f.failErr)
	}
	f.values[key] = string(value.([]byte))
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *goredis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return goredis.NewIntResult(0, f.failErr)
	}
	for _, key := range keys {
		delete(f.values, key)
	}
	return goredis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeRedis) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.values[key]
	return ok
}

func newCachedStore(inner *storagetest.Store, client Client) *Store {
	return NewStore(inner, client, "settleflow:operation", 30*time.Second, zerolog.Nop())
}

func TestReadThroughPopulatesBothBusinessKeys(t *testing.T) {
	inner := storagetest.New()
	e := operation.New(operation.KindPayment, 1_000, "E2E-1", "req-1")
	inner.PutOperation(e)

	client := newFakeRedis()
	store := newCachedStore(inner, client)

	got, err := store.Operations().GetByID(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got == nil || got.ID != e.ID {
		t.Fatalf("GetByID = %+v, want entity %s", got, e.ID)
	}
	if !client.has("settleflow:operation:" + e.ID.String()) {
		t.Error("entity not cached under its id")
	}
	if !client.has("settleflow:operation:E2E-1") {
		t.Error("entity not cached under its end-to-end id")
	}
}

func TestCacheHitServesStaleEntityWithinTTL(t *testing.T) {
	inner := storagetest.New()
	e := operation.New(operation.KindPayment, 1_000, "E2E-1", "req-1")
	inner.PutOperation(e)

	store := newCachedStore(inner, newFakeRedis())
	if _, err := store.Operations().GetByID(context.Background(), e.ID); err != nil {
		t.Fatalf("priming read error: %v", err)
	}

	moved := *e
	moved.Apply(operation.StateWaiting)
	inner.PutOperation(&moved)

	got, err := store.Operations().GetByID(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.State != operation.StatePending {
		t.Errorf("state = %s, want cached PENDING", got.State)
	}
}

func TestUpdateInvalidatesCache(t *testing.T) {
	inner := storagetest.New()
	e := operation.New(operation.KindPayment, 1_000, "E2E-1", "req-1")
	inner.PutOperation(e)

	store := newCachedStore(inner, newFakeRedis())
	repo := store.Operations()
	if _, err := repo.GetByID(context.Background(), e.ID); err != nil {
		t.Fatalf("priming read error: %v", err)
	}

	moved := *e
	moved.Apply(operation.StateWaiting)
	if err := repo.Update(context.Background(), &moved); err != nil {
		t.Fatalf("Update error: %v", err)
	}

	got, err := repo.GetByID(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.State != operation.StateWaiting {
		t.Errorf("state = %s, want WAITING after invalidation", got.State)
	}
}

func TestCacheFailureFallsThroughToStorage(t *testing.T) {
	inner := storagetest.New()
	e := operation.New(operation.KindPayment, 1_000, "E2E-1", "req-1")
	inner.PutOperation(e)

	client := newFakeRedis()
	client.failErr = errors.New("connection refused")
	store := newCachedStore(inner, client)

	got, err := store.Operations().GetByEndToEndID(context.Background(), "E2E-1")
	if err != nil {
		t.Fatalf("GetByEndToEndID error: %v", err)
	}
	if got == nil || got.ID != e.ID {
		t.Fatalf("GetByEndToEndID = %+v, want entity %s", got, e.ID)
	}
}

func TestTransactionsBypassCache(t *testing.T) {
	inner := storagetest.New()
	e := operation.New(operation.KindPayment, 1_000, "E2E-1", "req-1")
	inner.PutOperation(e)

	store := newCachedStore(inner, newFakeRedis())
	if _, err := store.Operations().GetByID(context.Background(), e.ID); err != nil {
		t.Fatalf("priming read error: %v", err)
	}

	moved := *e
	moved.Apply(operation.StateWaiting)
	inner.PutOperation(&moved)

	err := store.InTx(context.Background(), func(ctx context.Context, tx storage.Store) error {
		got, err := tx.Operations().GetByID(ctx, e.ID)
		if err != nil {
			return err
		}
		if got.State != operation.StateWaiting {
			t.Errorf("tx state = %s, want fresh WAITING", got.State)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx error: %v", err)
	}
}
