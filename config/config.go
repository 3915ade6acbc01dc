// Package config loads settings structs from an optional YAML file, an
// optional .env file and APP_-prefixed environment variables.
//
// Keys come from mapstructure tags. A field at core.secret_key is read from
// APP_CORE_SECRET_KEY, and an `env:"SECRET_KEY"` tag adds APP_SECRET_KEY as
// an alias. The first variable that is set wins.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const DefaultEnvPrefix = "APP_"

var ErrInvalidTarget = errors.New("config: target must be a non-nil pointer to a struct")

type loadOptions struct {
	configFile string
	envFile    string
	envPrefix  string
	skipValid  bool
}

type Option func(*loadOptions)

// WithConfigFile reads path (YAML, JSON or TOML by extension) as the base
// layer. Unlike the .env file it must exist.
func WithConfigFile(path string) Option {
	return func(o *loadOptions) { o.configFile = path }
}

// WithEnvFile loads path into the process environment before binding.
// Variables already set are not overridden. An empty path disables it.
func WithEnvFile(path string) Option {
	return func(o *loadOptions) { o.envFile = path }
}

// WithEnvPrefix replaces the APP_ prefix.
func WithEnvPrefix(prefix string) Option {
	return func(o *loadOptions) { o.envPrefix = prefix }
}

// WithoutValidation skips struct tag validation after loading.
func WithoutValidation() Option {
	return func(o *loadOptions) { o.skipValid = true }
}

type defaulter interface {
	ApplyDefaults()
}

// Load fills cfg, applies its defaults and validates it.
func Load(cfg any, opts ...Option) error {
	rv := reflect.ValueOf(cfg)
	if !rv.IsValid() || rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return ErrInvalidTarget
	}

	lo := loadOptions{envFile: ".env", envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(&lo)
		}
	}

	if lo.envFile != "" {
		if _, err := os.Stat(lo.envFile); err == nil {
			if err := godotenv.Load(lo.envFile); err != nil {
				return fmt.Errorf("config: load env file %s: %w", lo.envFile, err)
			}
		}
	}

	v := viper.New()
	if lo.configFile != "" {
		v.SetConfigFile(lo.configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("config: read %s: %w", lo.configFile, err)
		}
	}

	if err := bindEnv(v, rv.Elem().Type(), nil, lo.envPrefix); err != nil {
		return err
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("config: unmarshal: %w", err)
	}

	applyDefaults(rv)

	if lo.skipValid {
		return nil
	}
	return Validate(cfg)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks validate struct tags and, when cfg has one, its
// Validate() error method.
func Validate(cfg any) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if v, ok := cfg.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
)

func bindEnv(v *viper.Viper, t reflect.Type, parent []string, prefix string) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		path := append(append([]string(nil), parent...), name)

		ft := f.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && ft != timeType && ft != durationType {
			if err := bindEnv(v, ft, path, prefix); err != nil {
				return err
			}
			continue
		}

		names := []string{prefix + strings.ToUpper(strings.Join(path, "_"))}
		if alias := f.Tag.Get("env"); alias != "" {
			for _, a := range strings.Split(alias, ",") {
				if a = strings.TrimSpace(a); a != "" {
					names = append(names, prefix+a)
				}
			}
		}
		key := strings.Join(path, ".")
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("config: bind %s: %w", key, err)
		}
	}
	return nil
}

// applyDefaults calls ApplyDefaults on rv and on every nested struct field
// that implements it, innermost first.
func applyDefaults(rv reflect.Value) {
	elem := rv
	if elem.Kind() == reflect.Pointer {
		if elem.IsNil() {
			return
		}
		elem = elem.Elem()
	}
	if elem.Kind() == reflect.Struct && elem.Type() != timeType {
		for i := 0; i < elem.NumField(); i++ {
			f := elem.Field(i)
			if !f.CanAddr() || !elem.Type().Field(i).IsExported() {
				continue
			}
			if f.Kind() == reflect.Struct {
				applyDefaults(f.Addr())
			} else if f.Kind() == reflect.Pointer && f.Type().Elem().Kind() == reflect.Struct {
				applyDefaults(f)
			}
		}
	}
	if rv.Kind() == reflect.Pointer && rv.CanInterface() {
		if d, ok := rv.Interface().(defaulter); ok {
			d.ApplyDefaults()
		}
	}
}
