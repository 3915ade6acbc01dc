package postgres

import (
	"context"
	"errors"

	"github.com/adeilh/corekit/auth"
)

// UserGetter is the lookup NewUserResolver needs.
type UserGetter interface {
	GetUserByID(ctx context.Context, id string) (User, error)
}

// NewUserResolver maps the "sub" claim of a verified token to an enabled
// User. Missing subjects, unknown users and disabled accounts are rejected;
// any other lookup failure is fatal.
func NewUserResolver(users UserGetter) auth.IdentityResolver[User] {
	return auth.ResolverFunc[User](func(ctx context.Context, claims auth.Claims) (User, error) {
		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			return User{}, auth.ErrIdentityRejected
		}
		user, err := users.GetUserByID(ctx, sub)
		switch {
		case errors.Is(err, ErrUserNotFound):
			return User{}, auth.ErrIdentityRejected
		case err != nil:
			return User{}, auth.Fatal(err)
		case !user.Enabled:
			return User{}, auth.ErrIdentityRejected
		}
		return user, nil
	})
}
