package cache

import (
	"context"
	"time"
)

// Cache defines the cache operations the services depend on.
type Cache interface {
	BasicOps
	LockOps

	// Ping verifies the cache connection is alive
	Ping(ctx context.Context) error

	// Close closes the cache connection
	Close() error
}

// BasicOps defines basic key-value operations
type BasicOps interface {
	// Get returns "" with a nil error when the key is missing.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair; ttl 0 means no expiry.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// SetNX sets the value only if the key does not exist.
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	Del(ctx context.Context, keys ...string) error

	Expire(ctx context.Context, key string, ttl time.Duration) error

	Incr(ctx context.Context, key string) (int64, error)
}

// LockOps defines owner-checked distributed locks.
type LockOps interface {
	// TryLock acquires key for ttl. The returned token must be passed to Unlock.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, acquired bool, err error)

	// Unlock releases key only while it is still held by token.
	Unlock(ctx context.Context, key, token string) error
}
