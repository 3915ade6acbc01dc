// Package redis implements cache.Store on top of go-redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/adeilh/corekit/cache"
)

var _ cache.Store = (*Store)(nil)

// Store implements cache.Store using a pooled go-redis client.
type Store struct {
	client *goredis.Client
	prefix string
	owned  bool
}

// NewStore builds a Redis-backed cache store that owns its client.
func NewStore(opts Options) *Store {
	cfg := opts.withDefaults()
	return &Store{
		client: goredis.NewClient(cfg.clientOptions()),
		prefix: cfg.KeyPrefix,
		owned:  true,
	}
}

// NewStoreFromClient wraps an existing client. Close leaves the client open.
func NewStoreFromClient(client *goredis.Client, keyPrefix string) *Store {
	return &Store{client: client, prefix: keyPrefix}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	payload, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %q: %w", key, err)
	}
	return payload, nil
}

// Set stores value under key. A ttl of zero or less keeps the key until it
// is deleted.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis: delete %q: %w", key, err)
	}
	return nil
}

// SetMany writes all entries in a single MULTI/EXEC round trip.
func (s *Store) SetMany(ctx context.Context, entries map[string][]byte, ttl time.Duration) error {
	if len(entries) == 0 {
		return nil
	}
	if ttl < 0 {
		ttl = 0
	}
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for k, v := range entries {
			pipe.Set(ctx, s.key(k), v, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: pipeline: %w", err)
	}
	return nil
}

// TTL reports the remaining lifetime of key, or cache.ErrNotFound.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.client.PTTL(ctx, s.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: ttl %q: %w", key, err)
	}
	// go-redis passes the raw -2 (missing) and -1 (no expiry) through.
	switch {
	case d == -2:
		return 0, cache.ErrNotFound
	case d < 0:
		return 0, nil
	}
	return d, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close releases the connection pool if the store created it.
func (s *Store) Close() error {
	if s == nil || !s.owned {
		return nil
	}
	return s.client.Close()
}

// Client exposes the underlying go-redis client.
func (s *Store) Client() *goredis.Client { return s.client }

func (s *Store) key(k string) string { return s.prefix + k }
