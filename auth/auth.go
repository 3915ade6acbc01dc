// Package auth issues and verifies bearer tokens, hashes passwords, and
// resolves verified claims to an application identity through a pluggable
// IdentityResolver.
//
// A Manager is built once at startup:
//
//	mgr, err := auth.NewManager[User](cfg, repoResolver)
//	token, err := mgr.IssueToken(auth.Claims{"sub": user.ID}, 0)
//	user, err := mgr.VerifyToken(ctx, token)
//
// Request-handling layers consume Requirement(true) or Requirement(false)
// (or the Middleware built on top of them) as a per-request guard.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUnauthorized is the single request-time authentication failure.
	// Bad signatures, algorithm mismatches, malformed and expired tokens all
	// collapse into it.
	ErrUnauthorized = errors.New("auth: invalid or expired token")

	// ErrIdentityRejected is returned by resolvers when verified claims do not
	// map to a usable identity (deleted user, revoked key). It matches
	// ErrUnauthorized under errors.Is.
	ErrIdentityRejected = fmt.Errorf("%w: identity rejected", ErrUnauthorized)

	// ErrResolverNotBound signals a startup-ordering bug: verification was
	// attempted before any IdentityResolver was bound.
	ErrResolverNotBound = errors.New("auth: identity resolver not bound")

	// ErrResolverAlreadyBound is returned when Bind is called a second time.
	ErrResolverAlreadyBound = errors.New("auth: identity resolver already bound")

	ErrInvalidConfig = errors.New("auth: invalid configuration")
)

// Claims is the mapping signed inside a token. After issuance it always
// carries "exp".
type Claims = jwt.MapClaims

// IdentityResolver maps verified claims to an application identity.
// Implementations return ErrIdentityRejected (or any error wrapping
// ErrUnauthorized) when the claims no longer describe a valid identity, and
// Fatal(err) for infrastructure failures that must reach monitoring.
type IdentityResolver[T any] interface {
	Resolve(ctx context.Context, claims Claims) (T, error)
}

// ResolverFunc adapts a function to IdentityResolver.
type ResolverFunc[T any] func(ctx context.Context, claims Claims) (T, error)

func (f ResolverFunc[T]) Resolve(ctx context.Context, claims Claims) (T, error) {
	return f(ctx, claims)
}

type fatalError struct{ err error }

func (e *fatalError) Error() string { return "auth: fatal: " + e.err.Error() }

func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks a resolver error as an infrastructure fault. Fatal errors are
// propagated unchanged in both required and optional mode.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	var fe *fatalError
	if errors.As(err, &fe) {
		return err
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err must not be converted into an anonymous
// request. Configuration errors are fatal too.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrResolverNotBound) {
		return true
	}
	var fe *fatalError
	return errors.As(err, &fe)
}

// OutcomeKind enumerates the results of an authentication attempt.
type OutcomeKind int

const (
	OutcomeAuthenticated OutcomeKind = iota
	OutcomeAnonymous
	OutcomeAuthError
	OutcomeConfigError
	// OutcomeFatalError carries a resolver infrastructure failure.
	OutcomeFatalError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeAnonymous:
		return "anonymous"
	case OutcomeAuthError:
		return "auth_error"
	case OutcomeConfigError:
		return "config_error"
	case OutcomeFatalError:
		return "fatal_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the result of Authenticate. Identity is only meaningful when
// Kind is OutcomeAuthenticated; Err is set for the error kinds.
type Outcome[T any] struct {
	Kind     OutcomeKind
	Identity T
	Err      error
}

// Dependency is the per-request guard returned by Requirement. It yields the
// identity and true, the zero value and false for anonymous callers, or an
// error.
type Dependency[T any] func(ctx context.Context, token string) (T, bool, error)
