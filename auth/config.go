package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Supported signing algorithms.
const (
	HS256 = "HS256"
	HS384 = "HS384"
	HS512 = "HS512"
)

// DefaultAccessTokenTTL applies when Config.AccessTokenTTL is unset.
const DefaultAccessTokenTTL = 30 * time.Minute

// Config carries the signing secret, algorithm and default token lifetime.
type Config struct {
	Secret         string        `yaml:"secret" mapstructure:"secret"`
	Algorithm      string        `yaml:"algorithm" mapstructure:"algorithm"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl" mapstructure:"access_token_ttl"`
}

// ApplyDefaults fills zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.Algorithm == "" {
		c.Algorithm = HS256
	}
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
}

// Validate checks that the configuration can sign and verify tokens.
func (c *Config) Validate() error {
	if c.Secret == "" {
		return fmt.Errorf("%w: secret is required", ErrInvalidConfig)
	}
	if signingMethod(c.Algorithm) == nil {
		return fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidConfig, c.Algorithm)
	}
	if c.AccessTokenTTL < 0 {
		return fmt.Errorf("%w: negative access token ttl", ErrInvalidConfig)
	}
	return nil
}

func signingMethod(alg string) jwt.SigningMethod {
	switch alg {
	case HS256:
		return jwt.SigningMethodHS256
	case HS384:
		return jwt.SigningMethodHS384
	case HS512:
		return jwt.SigningMethodHS512
	default:
		return nil
	}
}
