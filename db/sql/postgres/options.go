package postgres

import (
	"database/sql"
	"time"
)

// Pool holds database/sql pool limits. Zero fields keep the defaults.
type Pool struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"omitempty,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"omitempty,min=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

func defaultPool() Pool {
	return Pool{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// merge overlays the non-zero fields of p on base.
func (p Pool) merge(base Pool) Pool {
	if p.MaxOpenConns > 0 {
		base.MaxOpenConns = p.MaxOpenConns
	}
	if p.MaxIdleConns > 0 {
		base.MaxIdleConns = p.MaxIdleConns
	}
	if p.ConnMaxLifetime > 0 {
		base.ConnMaxLifetime = p.ConnMaxLifetime
	}
	if p.ConnMaxIdleTime > 0 {
		base.ConnMaxIdleTime = p.ConnMaxIdleTime
	}
	return base
}

func (p Pool) configure(db *sql.DB) {
	db.SetMaxOpenConns(p.MaxOpenConns)
	db.SetMaxIdleConns(p.MaxIdleConns)
	db.SetConnMaxLifetime(p.ConnMaxLifetime)
	db.SetConnMaxIdleTime(p.ConnMaxIdleTime)
}

// Options configures how OpenContext connects.
type Options struct {
	DSN         string
	Pool        Pool
	PingTimeout time.Duration
}

type Option func(*Options)

func defaultOptions() Options {
	return Options{Pool: defaultPool(), PingTimeout: 5 * time.Second}
}

// WithDSN sets the lib/pq connection string.
func WithDSN(dsn string) Option {
	return func(o *Options) {
		if dsn != "" {
			o.DSN = dsn
		}
	}
}

// WithPool overlays the non-zero limits of p.
func WithPool(p Pool) Option {
	return func(o *Options) { o.Pool = p.merge(o.Pool) }
}

func WithMaxOpenConns(n int) Option {
	return WithPool(Pool{MaxOpenConns: n})
}

// WithMaxIdleConns sets the idle pool size; zero disables idle connections.
func WithMaxIdleConns(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.Pool.MaxIdleConns = n
		}
	}
}

func WithConnMaxLifetime(d time.Duration) Option {
	return WithPool(Pool{ConnMaxLifetime: d})
}

func WithConnMaxIdleTime(d time.Duration) Option {
	return WithPool(Pool{ConnMaxIdleTime: d})
}

// WithPingTimeout bounds the connectivity check done by OpenContext.
func WithPingTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.PingTimeout = d
		}
	}
}
