// Package cache defines the TTL key/value contract shared by the API key
// store and any other short-lived lookups.
package cache

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("cache: key not found")

// Store is a byte-oriented TTL cache. Get returns ErrNotFound for missing or
// expired keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
