// Package apikey generates opaque API keys and tracks them in a cache.Store.
//
// Keys are never stored in clear: the store indexes the SHA-256 of the key,
// so a leaked cache dump cannot be replayed.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/adeilh/corekit/auth"
	"github.com/adeilh/corekit/cache"
)

const (
	DefaultPrefix = "ck_"
	DefaultLength = 32

	// ClaimKey is the token claim carrying an API key for Resolver.
	ClaimKey = "api_key"

	alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var (
	ErrUnknownKey   = errors.New("apikey: unknown or revoked key")
	ErrEmptySubject = errors.New("apikey: subject is required")
)

// Generate returns prefix followed by length random alphanumeric characters.
// A non-positive length falls back to DefaultLength.
func Generate(prefix string, length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}
	buf := make([]byte, length)
	limit := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("apikey: generate: %w", err)
		}
		buf[i] = alphabet[n.Int64()]
	}
	return prefix + string(buf), nil
}

// Store issues, resolves and revokes API keys.
type Store struct {
	cache     cache.Store
	prefix    string
	length    int
	namespace string
}

type Option func(*Store)

// WithKeyPrefix sets the prefix of generated keys.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

func WithKeyLength(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.length = n
		}
	}
}

// WithNamespace sets the cache key namespace, "apikey:" by default.
func WithNamespace(ns string) Option {
	return func(s *Store) {
		if ns != "" {
			s.namespace = ns
		}
	}
}

func NewStore(c cache.Store, opts ...Option) *Store {
	s := &Store{cache: c, prefix: DefaultPrefix, length: DefaultLength, namespace: "apikey:"}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Issue generates a key bound to subject. ttl <= 0 keeps the key until
// Revoke.
func (s *Store) Issue(ctx context.Context, subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", ErrEmptySubject
	}
	key, err := Generate(s.prefix, s.length)
	if err != nil {
		return "", err
	}
	if err := s.cache.Set(ctx, s.cacheKey(key), []byte(subject), ttl); err != nil {
		return "", fmt.Errorf("apikey: store: %w", err)
	}
	return key, nil
}

// Resolve returns the subject bound to key.
func (s *Store) Resolve(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrUnknownKey
	}
	subject, err := s.cache.Get(ctx, s.cacheKey(key))
	if errors.Is(err, cache.ErrNotFound) {
		return "", ErrUnknownKey
	}
	if err != nil {
		return "", fmt.Errorf("apikey: lookup: %w", err)
	}
	return string(subject), nil
}

func (s *Store) Revoke(ctx context.Context, key string) error {
	if err := s.cache.Delete(ctx, s.cacheKey(key)); err != nil {
		return fmt.Errorf("apikey: revoke: %w", err)
	}
	return nil
}

// Resolver maps tokens carrying an "api_key" claim to the key's subject, so
// revoking a key also invalidates tokens minted from it.
func (s *Store) Resolver() auth.IdentityResolver[string] {
	return auth.ResolverFunc[string](func(ctx context.Context, claims auth.Claims) (string, error) {
		key, _ := claims[ClaimKey].(string)
		if key == "" {
			return "", auth.ErrIdentityRejected
		}
		subject, err := s.Resolve(ctx, key)
		switch {
		case errors.Is(err, ErrUnknownKey):
			return "", fmt.Errorf("%w: %w", auth.ErrIdentityRejected, err)
		case err != nil:
			return "", auth.Fatal(err)
		}
		return subject, nil
	})
}

func (s *Store) cacheKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return s.namespace + hex.EncodeToString(sum[:])
}
