package mongo

import (
	"errors"
	"time"
)

var (
	ErrMissingURL      = errors.New("mongo: database url is required")
	ErrMissingDatabase = errors.New("mongo: database name is required")
)

// Settings selects the deployment and database to use.
type Settings struct {
	DatabaseURL    string        `mapstructure:"database_url" env:"DATABASE_URL"`
	DatabaseName   string        `mapstructure:"database_name" env:"DATABASE_NAME"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

func (s *Settings) ApplyDefaults() {
	if s.ConnectTimeout <= 0 {
		s.ConnectTimeout = 10 * time.Second
	}
}

func (s Settings) validate() error {
	if s.DatabaseURL == "" {
		return ErrMissingURL
	}
	if s.DatabaseName == "" {
		return ErrMissingDatabase
	}
	return nil
}
