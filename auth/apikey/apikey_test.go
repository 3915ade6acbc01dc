package apikey

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/adeilh/corekit/auth"
	"github.com/adeilh/corekit/cache/redis"
)

func newStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mini := miniredis.RunT(t)
	backend := redis.NewStore(redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = backend.Close() })
	return NewStore(backend, opts...), mini
}

func TestGenerate(t *testing.T) {
	key, err := Generate("", 0)
	require.NoError(t, err)
	require.Len(t, key, DefaultLength)

	key, err = Generate("pulse_", 12)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(key, "pulse_"))
	require.Len(t, key, len("pulse_")+12)
	for _, r := range strings.TrimPrefix(key, "pulse_") {
		require.Contains(t, alphabet, string(r))
	}

	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		k, err := Generate(DefaultPrefix, DefaultLength)
		require.NoError(t, err)
		_, dup := seen[k]
		require.False(t, dup, "duplicate key %q", k)
		seen[k] = struct{}{}
	}
}

func TestStoreIssueResolveRevoke(t *testing.T) {
	store, mini := newStore(t)
	ctx := context.Background()

	key, err := store.Issue(ctx, "user-42", 0)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(key, DefaultPrefix))

	for _, k := range mini.Keys() {
		require.NotContains(t, k, key, "raw key leaked into the cache")
	}

	subject, err := store.Resolve(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "user-42", subject)

	require.NoError(t, store.Revoke(ctx, key))
	_, err = store.Resolve(ctx, key)
	require.ErrorIs(t, err, ErrUnknownKey)
}

func TestStoreExpiringKey(t *testing.T) {
	store, mini := newStore(t, WithKeyPrefix("tmp_"), WithKeyLength(8), WithNamespace("keys:"))
	ctx := context.Background()

	key, err := store.Issue(ctx, "svc", time.Minute)
	require.NoError(t, err)
	require.Len(t, key, len("tmp_")+8)
	require.Len(t, mini.Keys(), 1)
	require.True(t, strings.HasPrefix(mini.Keys()[0], "keys:"))

	mini.FastForward(2 * time.Minute)
	_, err = store.Resolve(ctx, key)
	require.ErrorIs(t, err, ErrUnknownKey)
}

func TestStoreIssueRequiresSubject(t *testing.T) {
	store, _ := newStore(t)
	_, err := store.Issue(context.Background(), "", 0)
	require.ErrorIs(t, err, ErrEmptySubject)
}

func TestResolverWithManager(t *testing.T) {
	store, mini := newStore(t)
	ctx := context.Background()

	mgr, err := auth.NewManager[string](auth.Config{Secret: "s3cr3t"}, store.Resolver(),
		auth.WithHasher(auth.NewBcryptHasher(auth.WithBcryptCost(4))))
	require.NoError(t, err)

	key, err := store.Issue(ctx, "svc-billing", 0)
	require.NoError(t, err)
	token, err := mgr.IssueToken(auth.Claims{ClaimKey: key}, time.Minute)
	require.NoError(t, err)

	subject, err := mgr.VerifyToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "svc-billing", subject)

	require.NoError(t, store.Revoke(ctx, key))
	_, err = mgr.VerifyToken(ctx, token)
	require.ErrorIs(t, err, auth.ErrUnauthorized)
	require.False(t, auth.IsFatal(err))

	noKey, err := mgr.IssueToken(auth.Claims{"sub": "x"}, time.Minute)
	require.NoError(t, err)
	_, err = mgr.VerifyToken(ctx, noKey)
	require.ErrorIs(t, err, auth.ErrIdentityRejected)

	mini.Close()
	_, err = mgr.VerifyToken(ctx, token)
	require.True(t, auth.IsFatal(err), "store outage must be fatal, got %v", err)
}
