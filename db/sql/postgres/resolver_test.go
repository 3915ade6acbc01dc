package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/adeilh/corekit/auth"
)

type stubUsers struct {
	users map[string]User
	err   error
}

func (s stubUsers) GetUserByID(_ context.Context, id string) (User, error) {
	if s.err != nil {
		return User{}, s.err
	}
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func TestUserResolver(t *testing.T) {
	users := stubUsers{users: map[string]User{
		"active":   {ID: "active", Enabled: true},
		"disabled": {ID: "disabled", Enabled: false},
	}}
	resolver := NewUserResolver(users)

	tests := []struct {
		name    string
		claims  auth.Claims
		wantID  string
		wantErr error
	}{
		{name: "active", claims: auth.Claims{"sub": "active"}, wantID: "active"},
		{name: "disabled", claims: auth.Claims{"sub": "disabled"}, wantErr: auth.ErrIdentityRejected},
		{name: "unknown", claims: auth.Claims{"sub": "ghost"}, wantErr: auth.ErrIdentityRejected},
		{name: "missing sub", claims: auth.Claims{}, wantErr: auth.ErrIdentityRejected},
		{name: "non-string sub", claims: auth.Claims{"sub": 42}, wantErr: auth.ErrIdentityRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := resolver.Resolve(context.Background(), tt.claims)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
			}
			if user.ID != tt.wantID {
				t.Fatalf("Resolve() id = %q, want %q", user.ID, tt.wantID)
			}
			if err != nil && auth.IsFatal(err) {
				t.Fatalf("rejection must not be fatal: %v", err)
			}
		})
	}
}

func TestUserResolverStoreFailureIsFatal(t *testing.T) {
	dbErr := errors.New("connection refused")
	resolver := NewUserResolver(stubUsers{err: dbErr})

	_, err := resolver.Resolve(context.Background(), auth.Claims{"sub": "x"})
	if !auth.IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if !errors.Is(err, dbErr) {
		t.Fatalf("fatal error must wrap the cause, got %v", err)
	}
	if errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("store failure must not look like a rejection")
	}
}
