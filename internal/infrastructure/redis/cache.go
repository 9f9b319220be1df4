// Package redis provides a short-lived read-through cache for in-flight
// operation entities. Keys follow the <prefix>:<businessKey> convention
// shared with the lease locker; values are the JSON entity with a small
// TTL, so a stale read is bounded by the TTL rather than by explicit
// cross-process invalidation.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/settleflow/settleflow/internal/domain/bot"
	"github.com/settleflow/settleflow/internal/domain/ledger"
	"github.com/settleflow/settleflow/internal/domain/operation"
	"github.com/settleflow/settleflow/internal/domain/storage"
	"github.com/settleflow/settleflow/internal/metrics"
)

// Client is the subset of the redis client the cache uses. Satisfied by
// *goredis.Client.
type Client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

// Store wraps a storage.Store so operation reads go through the cache.
// Transactions bypass the cache entirely: a handler inside InTx must
// see its own uncommitted writes.
type Store struct {
	inner storage.Store
	ops   *operationCache
}

// NewStore creates the caching store.
func NewStore(inner storage.Store, client Client, prefix string, ttl time.Duration, logger zerolog.Logger) *Store {
	return &Store{
		inner: inner,
		ops: &operationCache{
			client: client,
			prefix: prefix,
			ttl:    ttl,
			logger: logger.With().Str("service", "operation-cache").Logger(),
		},
	}
}

func (s *Store) Operations() operation.Repository {
	return cachedRepository{inner: s.inner.Operations(), cache: s.ops}
}

func (s *Store) Bots() bot.Repository        { return s.inner.Bots() }
func (s *Store) Orders() bot.OrderRepository { return s.inner.Orders() }
func (s *Store) Ledger() ledger.Repository   { return s.inner.Ledger() }

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Store) error) error {
	return s.inner.InTx(ctx, fn)
}

type operationCache struct {
	client Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

func (c *operationCache) key(businessKey string) string {
	return c.prefix + ":" + businessKey
}

// lookup returns the cached entity, or nil on a miss. Cache failures
// degrade to a miss; the caller always has storage underneath.
func (c *operationCache) lookup(ctx context.Context, businessKey string) *operation.Entity {
	data, err := c.client.Get(ctx, c.key(businessKey)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.logger.Warn().Err(err).Str("key", businessKey).Msg("cache read failed")
		}
		metrics.CacheMisses.Inc()
		return nil
	}
	var e operation.Entity
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.Warn().Err(err).Str("key", businessKey).Msg("cache entry corrupt, dropping")
		c.invalidate(ctx, businessKey)
		metrics.CacheMisses.Inc()
		return nil
	}
	metrics.CacheHits.Inc()
	return &e
}

// store writes the entity under both business keys, best effort.
func (c *operationCache) store(ctx context.Context, e *operation.Entity) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	for _, businessKey := range []string{e.ID.String(), e.EndToEndID} {
		if err := c.client.Set(ctx, c.key(businessKey), data, c.ttl).Err(); err != nil {
			c.logger.Warn().Err(err).Str("key", businessKey).Msg("cache write failed")
		}
	}
}

func (c *operationCache) invalidate(ctx context.Context, businessKeys ...string) {
	keys := make([]string, 0, len(businessKeys))
	for _, businessKey := range businessKeys {
		keys = append(keys, c.key(businessKey))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("cache invalidation failed")
	}
}

// cachedRepository is a read-through decorator over operation.Repository.
type cachedRepository struct {
	inner operation.Repository
	cache *operationCache
}

func (r cachedRepository) GetByID(ctx context.Context, id uuid.UUID) (*operation.Entity, error) {
	if e := r.cache.lookup(ctx, id.String()); e != nil {
		return e, nil
	}
	e, err := r.inner.GetByID(ctx, id)
	if err != nil || e == nil {
		return e, err
	}
	r.cache.store(ctx, e)
	return e, nil
}

func (r cachedRepository) GetByEndToEndID(ctx context.Context, endToEndID string) (*operation.Entity, error) {
	if e := r.cache.lookup(ctx, endToEndID); e != nil {
		return e, nil
	}
	e, err := r.inner.GetByEndToEndID(ctx, endToEndID)
	if err != nil || e == nil {
		return e, err
	}
	r.cache.store(ctx, e)
	return e, nil
}

func (r cachedRepository) Create(ctx context.Context, e *operation.Entity) error {
	if err := r.inner.Create(ctx, e); err != nil {
		return err
	}
	r.cache.invalidate(ctx, e.ID.String(), e.EndToEndID)
	return nil
}

func (r cachedRepository) Update(ctx context.Context, e *operation.Entity) error {
	if err := r.inner.Update(ctx, e); err != nil {
		return err
	}
	r.cache.invalidate(ctx, e.ID.String(), e.EndToEndID)
	return nil
}
