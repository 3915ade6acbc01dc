package config

import (
	"strings"
	"time"

	"github.com/adeilh/corekit/auth"
	"github.com/adeilh/corekit/cache/redis"
	"github.com/adeilh/corekit/db/mongo"
	"github.com/adeilh/corekit/db/sql/postgres"
	"github.com/adeilh/corekit/logger"
	"github.com/adeilh/corekit/telemetry"
)

// Settings aggregates every subsystem's configuration for one service.
type Settings struct {
	Core     Core              `mapstructure:"core" yaml:"core"`
	HTTP     HTTP              `mapstructure:"http" yaml:"http"`
	Log      logger.Config     `mapstructure:"log" yaml:"log"`
	Mongo    mongo.Settings    `mapstructure:"mongo" yaml:"mongo"`
	Postgres postgres.Settings `mapstructure:"postgres" yaml:"postgres"`
	Redis    redis.Options     `mapstructure:"redis" yaml:"redis"`
	Discord  Discord           `mapstructure:"discord" yaml:"discord"`
	Email    Email             `mapstructure:"email" yaml:"email"`
	Metrics  telemetry.Config  `mapstructure:"metrics" yaml:"metrics"`
	Media    Media             `mapstructure:"media" yaml:"media"`
}

// Core holds the service identity and token signing settings.
type Core struct {
	Name      string `mapstructure:"name" yaml:"name" env:"NAME" validate:"required"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key" env:"SECRET_KEY" validate:"required"`
	Debug     bool   `mapstructure:"debug" yaml:"debug" env:"DEBUG"`
	// CORSOrigins accepts a list or a comma separated string.
	CORSOrigins              []string `mapstructure:"cors_origins" yaml:"cors_origins" env:"CORS_ORIGINS"`
	Algorithm                string   `mapstructure:"algorithm" yaml:"algorithm" env:"ALGORITHM" validate:"omitempty,oneof=HS256 HS384 HS512"`
	AccessTokenExpireMinutes int      `mapstructure:"access_token_expire_minutes" yaml:"access_token_expire_minutes" env:"ACCESS_TOKEN_EXPIRE_MINUTES" validate:"gte=0"`
}

func (c *Core) ApplyDefaults() {
	if c.Algorithm == "" {
		c.Algorithm = auth.HS256
	}
	if c.AccessTokenExpireMinutes == 0 {
		c.AccessTokenExpireMinutes = int(auth.DefaultAccessTokenTTL / time.Minute)
	}
	c.CORSOrigins = SplitList(c.CORSOrigins...)
}

// AuthConfig converts the signing settings for auth.NewManager.
func (c Core) AuthConfig() auth.Config {
	return auth.Config{
		Secret:         c.SecretKey,
		Algorithm:      c.Algorithm,
		AccessTokenTTL: time.Duration(c.AccessTokenExpireMinutes) * time.Minute,
	}
}

type HTTP struct {
	Address         string        `mapstructure:"address" yaml:"address" env:"HTTP_ADDRESS"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

func (h *HTTP) ApplyDefaults() {
	if h.Address == "" {
		h.Address = ":8000"
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 10 * time.Second
	}
}

// Discord holds webhook URLs for the "log" and "alert" channels.
type Discord struct {
	LogWebhook   string `mapstructure:"log_webhook" yaml:"log_webhook" env:"DISCORD_LOG_WEBHOOK" validate:"omitempty,url"`
	AlertWebhook string `mapstructure:"alert_webhook" yaml:"alert_webhook" env:"DISCORD_ALERT_WEBHOOK" validate:"omitempty,url"`
}

type Email struct {
	ResendAPIKey string `mapstructure:"resend_api_key" yaml:"resend_api_key" env:"RESEND_API_KEY"`
	From         string `mapstructure:"from" yaml:"from" env:"EMAIL_FROM"`
	TemplateDir  string `mapstructure:"template_dir" yaml:"template_dir" env:"EMAIL_TEMPLATE_DIR"`
}

func (e *Email) ApplyDefaults() {
	if e.TemplateDir == "" {
		e.TemplateDir = "assets/mail_templates"
	}
}

// Media locates generated image variants on disk and on the web.
type Media struct {
	Dir     string `mapstructure:"dir" yaml:"dir" env:"MEDIA_DIR"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url" env:"MEDIA_BASE_URL"`
}

func (m *Media) ApplyDefaults() {
	if m.Dir == "" {
		m.Dir = "media"
	}
	if m.BaseURL == "" {
		m.BaseURL = "/media"
	}
}

// LoadSettings is Load for the Settings aggregate.
func LoadSettings(opts ...Option) (Settings, error) {
	var s Settings
	if err := Load(&s, opts...); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// SplitList splits every element on commas, trims whitespace and drops
// empty entries.
func SplitList(values ...string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
