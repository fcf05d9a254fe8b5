// Package cache fronts result storage with a TTL'd byte cache.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss reports a key with no live cache entry.
var ErrMiss = errors.New("cache miss")

// Cache stores encoded results keyed by result key. Entries expire after
// the Put ttl; a ttl of zero or below means no expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
