package lease

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/settleflow/settleflow/internal/metrics"
)

// Client is the subset of the redis client the locker uses. Satisfied
// by *redis.Client.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Handle identifies an acquired lease. The token proves ownership on
// renew and release.
type Handle struct {
	Key   string
	Token string
	TTL   time.Duration
}

// Compare-and-renew / compare-and-delete: only the holder whose token
// is still stored may extend or drop the key.
const (
	renewScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("pexpire", KEYS[1], ARGV[2]) else return 0 end`

	releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
)

// Locker implements a cache-backed exclusive lease. A crashed holder
// never releases explicitly; the key expires after its TTL, which
// bounds the unavailability window for that job.
type Locker struct {
	client Client
	prefix string
	logger zerolog.Logger
}

// NewLocker creates a locker. Keys are stored as <prefix>:<key>.
func NewLocker(client Client, prefix string, logger zerolog.Logger) *Locker {
	return &Locker{
		client: client,
		prefix: prefix,
		logger: logger.With().Str("service", "lease").Logger(),
	}
}

func (l *Locker) cacheKey(key string) string {
	return l.prefix + ":" + key
}

// Acquire attempts a set-if-absent with a fresh holder token. It
// returns a nil handle when another holder is active.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Handle, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.cacheKey(key), token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.LeaseSkipped.WithLabelValues(key).Inc()
		return nil, nil
	}
	metrics.LeaseAcquired.WithLabelValues(key).Inc()
	return &Handle{Key: key, Token: token, TTL: ttl}, nil
}

// Renew extends the TTL if this holder's token still owns the key.
func (l *Locker) Renew(ctx context.Context, h *Handle) (bool, error) {
	res, err := l.client.Eval(ctx, renewScript, []string{l.cacheKey(h.Key)}, h.Token, h.TTL.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// Release deletes the key if still owned by this holder.
func (l *Locker) Release(ctx context.Context, h *Handle) error {
	return l.client.Eval(ctx, releaseScript, []string{l.cacheKey(h.Key)}, h.Token).Err()
}

// WithLease runs fn under an exclusive lease on key. When the lease is
// held elsewhere the call returns (false, nil) without invoking fn:
// the tick is skipped, not queued. While fn runs, a background timer
// renews the lease every renewInterval; renewal near expiry can let
// two holders briefly overlap, so fn must be idempotent.
func (l *Locker) WithLease(ctx context.Context, key string, ttl, renewInterval time.Duration, fn func(ctx context.Context)) (bool, error) {
	h, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return false, err
	}
	if h == nil {
		return false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(renewInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				held, err := l.Renew(ctx, h)
				if err != nil {
					l.logger.Warn().Err(err).Str("key", key).Msg("lease renewal failed")
					continue
				}
				if !held {
					l.logger.Warn().Str("key", key).Msg("lease lost before renewal")
					return
				}
			}
		}
	}()

	defer func() {
		close(stop)
		<-done
		if err := l.Release(ctx, h); err != nil {
			l.logger.Warn().Err(err).Str("key", key).Msg("lease release failed")
		}
	}()

	fn(ctx)
	return true, nil
}
