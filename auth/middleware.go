package auth

import (
	"context"
	"errors"
	"net/http"
)

// Middleware guards net/http handlers with a Manager's Requirement.
type Middleware[T any] struct {
	guard        Dependency[T]
	extractor    TokenExtractor
	skipper      MiddlewareSkipper
	errorHandler MiddlewareErrorHandler
}

type identityContextKey struct{}

func NewMiddleware[T any](m *Manager[T], opts ...MiddlewareOption) (*Middleware[T], error) {
	if m == nil {
		return nil, errors.New("auth: middleware requires a manager")
	}
	cfg := newMiddlewareConfig(opts...)
	return &Middleware[T]{
		guard:        m.Requirement(cfg.required),
		extractor:    cfg.extractor,
		skipper:      cfg.skipper,
		errorHandler: cfg.errorHandler,
	}, nil
}

func (m *Middleware[T]) Handler(next http.Handler) http.Handler {
	if m == nil {
		panic("auth: middleware is nil")
	}
	if next == nil {
		next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipper(r) {
			next.ServeHTTP(w, r)
			return
		}

		identity, ok, err := m.Authenticate(r)
		if err != nil {
			m.errorHandler(w, r, err)
			return
		}
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// Authenticate extracts the token from r and runs the guard. A request with
// no token is passed to the guard as an empty token; a malformed token
// source is passed through as-is so the guard rejects it as invalid.
func (m *Middleware[T]) Authenticate(r *http.Request) (T, bool, error) {
	raw, err := m.extractor(r)
	switch {
	case err == nil:
	case errors.Is(err, ErrTokenNotFound):
		raw = ""
	default:
		raw = invalidTokenMarker
	}
	return m.guard(r.Context(), raw)
}

// invalidTokenMarker is a non-empty value that never parses as a token, so
// an unreadable token source is treated like a bad token rather than like
// an absent one.
const invalidTokenMarker = "invalid"

// WithIdentity stores identity in ctx.
func WithIdentity[T any](ctx context.Context, identity T) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the identity stored by the middleware.
func IdentityFromContext[T any](ctx context.Context) (T, bool) {
	if ctx == nil {
		var zero T
		return zero, false
	}
	identity, ok := ctx.Value(identityContextKey{}).(T)
	return identity, ok
}
