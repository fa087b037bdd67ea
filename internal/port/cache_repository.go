package port

import (
	"context"
	"errors"
)

var ErrLockNotObtained = errors.New("lock not obtained")

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ClearIdempotency releases a key so a failed request can be retried
	ClearIdempotency(ctx context.Context, key string) error

	// ObtainLock takes a short-lived distributed lock; the returned func releases it
	ObtainLock(ctx context.Context, key string) (func(context.Context) error, error)
}
