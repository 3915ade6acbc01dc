// Package postgres opens pooled lib/pq connections, applies schema
// statements and stores the users behind the token resolver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

var ErrMissingDSN = errors.New("postgres: DSN is required")

// Connect opens a pool for s. The pool limits from s apply first; opts
// override them but never the DSN built from s.
func Connect(ctx context.Context, s Settings, opts ...Option) (*sql.DB, error) {
	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	all := make([]Option, 0, len(opts)+2)
	all = append(all, WithPool(s.Pool))
	all = append(all, opts...)
	all = append(all, WithDSN(s.DSN()))
	return OpenContext(ctx, all...)
}

// Open connects using the provided options and applies pool settings.
func Open(opts ...Option) (*sql.DB, error) {
	return OpenContext(context.Background(), opts...)
}

// OpenContext opens the pool and pings the server within PingTimeout.
func OpenContext(ctx context.Context, opts ...Option) (*sql.DB, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.DSN == "" {
		return nil, ErrMissingDSN
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	cfg.Pool.configure(db)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return db, nil
}
