package postgres

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

var ErrMissingHost = errors.New("postgres: host is required")

// Settings describes the server and database to connect to.
type Settings struct {
	Host     string `mapstructure:"host" env:"DATABASE_HOST"`
	Port     int    `mapstructure:"port" env:"DATABASE_PORT" validate:"omitempty,min=1,max=65535"`
	User     string `mapstructure:"user" env:"DATABASE_USER"`
	Password string `mapstructure:"password" env:"DATABASE_PASSWORD"`
	Name     string `mapstructure:"name" env:"DATABASE_NAME"`
	// SSLMode is passed through to lib/pq, e.g. "disable" or "require".
	SSLMode string `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	Pool    Pool   `mapstructure:"pool"`
}

func (s *Settings) ApplyDefaults() {
	if s.Port == 0 {
		s.Port = 5432
	}
	if s.SSLMode == "" {
		s.SSLMode = "disable"
	}
}

func (s Settings) Validate() error {
	if s.Host == "" {
		return ErrMissingHost
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("postgres: invalid port %d", s.Port)
	}
	return nil
}

// DSN renders a postgres:// URL. User, password and database name are
// escaped.
func (s Settings) DSN() string {
	port := s.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(s.Host, strconv.Itoa(port)),
		Path:   "/" + s.Name,
	}
	if s.User != "" {
		if s.Password != "" {
			u.User = url.UserPassword(s.User, s.Password)
		} else {
			u.User = url.User(s.User)
		}
	}
	if s.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {s.SSLMode}}.Encode()
	}
	return u.String()
}
