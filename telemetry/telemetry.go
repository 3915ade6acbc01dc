// Package telemetry builds the OpenTelemetry meter provider shared by the
// service's instrumented packages.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Supported exporters.
const (
	ExporterNone       = "none"
	ExporterStdout     = "stdout"
	ExporterPrometheus = "prometheus"
)

type Config struct {
	Exporter string `mapstructure:"exporter" yaml:"exporter" validate:"omitempty,oneof=none stdout prometheus"`
	// Interval is the stdout export period.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	// Path serves the Prometheus scrape endpoint.
	Path string `mapstructure:"path" yaml:"path"`
}

func (c *Config) ApplyDefaults() {
	if c.Exporter == "" {
		c.Exporter = ExporterNone
	}
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.Path == "" {
		c.Path = "/metrics"
	}
}

// Provider owns the meter provider and, for Prometheus, its scrape handler.
type Provider struct {
	mp      *sdkmetric.MeterProvider
	handler http.Handler
}

type Option func(*options)

type options struct {
	writer io.Writer
}

// WithWriter redirects the stdout exporter.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.writer = w
		}
	}
}

func New(cfg Config, opts ...Option) (*Provider, error) {
	cfg.ApplyDefaults()
	o := options{writer: os.Stdout}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	switch cfg.Exporter {
	case ExporterNone:
		return &Provider{}, nil

	case ExporterStdout:
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(o.writer))
		if err != nil {
			return nil, fmt.Errorf("telemetry: stdout exporter: %w", err)
		}
		reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(cfg.Interval))
		return &Provider{mp: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))}, nil

	case ExporterPrometheus:
		reg := prometheus.NewRegistry()
		exp, err := otelprom.New(otelprom.WithRegisterer(reg))
		if err != nil {
			return nil, fmt.Errorf("telemetry: prometheus exporter: %w", err)
		}
		return &Provider{
			mp:      sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp)),
			handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}, nil

	default:
		return nil, fmt.Errorf("telemetry: unknown exporter %q", cfg.Exporter)
	}
}

// Meter returns a named meter, or a no-op meter when exporting is off.
func (p *Provider) Meter(name string) metric.Meter {
	if p == nil || p.mp == nil {
		return noop.NewMeterProvider().Meter(name)
	}
	return p.mp.Meter(name)
}

// Handler serves Prometheus scrapes. It is nil for other exporters.
func (p *Provider) Handler() http.Handler {
	if p == nil {
		return nil
	}
	return p.handler
}

// Shutdown flushes pending exports.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.mp == nil {
		return nil
	}
	if err := p.mp.Shutdown(ctx); err != nil && !errors.Is(err, sdkmetric.ErrReaderShutdown) {
		return fmt.Errorf("telemetry: shutdown: %w", err)
	}
	return nil
}
