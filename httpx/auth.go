package httpx

import (
	"slices"

	"github.com/adeilh/corekit/auth"
)

const identityKey = "httpx.identity"

// RequireAuth rejects requests without a valid bearer token. Failures are
// returned to the error handler: 401 for auth errors, 500 for configuration
// and resolver faults. It panics when m is nil.
func RequireAuth[T any](m *auth.Manager[T], opts ...auth.MiddlewareOption) MiddlewareFunc {
	return authGuard(m, true, opts...)
}

// OptionalAuth lets anonymous requests through and attaches the identity
// when a valid token is present.
func OptionalAuth[T any](m *auth.Manager[T], opts ...auth.MiddlewareOption) MiddlewareFunc {
	return authGuard(m, false, opts...)
}

// Identity returns the identity attached by RequireAuth or OptionalAuth.
func Identity[T any](c Context) (T, bool) {
	identity, ok := c.Get(identityKey).(T)
	return identity, ok
}

func authGuard[T any](m *auth.Manager[T], required bool, opts ...auth.MiddlewareOption) MiddlewareFunc {
	mw, err := auth.NewMiddleware(m, append(slices.Clip(opts), auth.WithRequired(required))...)
	if err != nil {
		panic(err)
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(c Context) error {
			identity, ok, err := mw.Authenticate(c.Request())
			if err != nil {
				return err
			}
			if ok {
				c.Set(identityKey, identity)
				c.SetRequest(c.Request().WithContext(auth.WithIdentity(c.Request().Context(), identity)))
			}
			return next(c)
		}
	}
}
