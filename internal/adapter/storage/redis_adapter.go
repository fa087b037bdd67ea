package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stock-ledger/internal/port"
)

const (
	idempotencyKeyPrefix = "idempotency:"
	lockKeyPrefix        = "lock:"
	idempotencyKeyTTL    = 24 * time.Hour
	postingLockTTL       = 10 * time.Second
	lockRetryInterval    = 50 * time.Millisecond
	lockRetryLimit       = 20
)

type RedisAdapter struct {
	client         *redis.Client
	locker         *redislock.Client
	idempotencyTTL time.Duration
	lockTTL        time.Duration
}

type RedisOption func(*RedisAdapter)

func WithIdempotencyTTL(ttl time.Duration) RedisOption {
	return func(r *RedisAdapter) {
		if ttl > 0 {
			r.idempotencyTTL = ttl
		}
	}
}

func WithLockTTL(ttl time.Duration) RedisOption {
	return func(r *RedisAdapter) {
		if ttl > 0 {
			r.lockTTL = ttl
		}
	}
}

func NewRedisAdapter(client *redis.Client, opts ...RedisOption) *RedisAdapter {
	r := &RedisAdapter{
		client:         client,
		locker:         redislock.New(client),
		idempotencyTTL: idempotencyKeyTTL,
		lockTTL:        postingLockTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, r.idempotencyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ClearIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}

func (r *RedisAdapter) ObtainLock(ctx context.Context, key string) (func(context.Context) error, error) {
	lock, err := r.locker.Obtain(ctx, lockKeyPrefix+key, r.lockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(lockRetryInterval), lockRetryLimit),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, port.ErrLockNotObtained
	}
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) error {
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			return nil
		}
		return err
	}, nil
}
