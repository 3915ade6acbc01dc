package httpx

import (
	"context"
	"time"

	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// HTTPErrorHandler is a function that handles errors during request processing.
type HTTPErrorHandler func(error, Context)

// LifecycleHook runs once when the server starts or stops.
type LifecycleHook func(context.Context) error

type ServerOptions struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// Middlewares replaces the default recover + request logger stack when
	// non-nil.
	Middlewares []MiddlewareFunc
	Extra       []MiddlewareFunc
	// ErrorHandler overrides NewErrorHandler(Logger, Alerter).
	ErrorHandler HTTPErrorHandler
	Validators   []Validator
	CORS         *middleware.CORSConfig
	OnStartup    LifecycleHook
	OnShutdown   LifecycleHook
	Logger       zerolog.Logger
	Alerter      Alerter
	// PingPath serves a static HTML health page; empty disables it.
	PingPath string
}

type ServerOption func(*ServerOptions)

func defaultServerOptions() ServerOptions {
	return ServerOptions{
		Address:         ":8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		Logger:          zerolog.Nop(),
		PingPath:        "/api/ping",
	}
}

func WithAddress(addr string) ServerOption {
	return func(o *ServerOptions) {
		if addr != "" {
			o.Address = addr
		}
	}
}

func WithTimeouts(read, write time.Duration) ServerOption {
	return func(o *ServerOptions) {
		if read > 0 {
			o.ReadTimeout = read
		}
		if write > 0 {
			o.WriteTimeout = write
		}
	}
}

func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(o *ServerOptions) {
		if d > 0 {
			o.ShutdownTimeout = d
		}
	}
}

// WithMiddlewares replaces the default middleware stack.
func WithMiddlewares(mw ...MiddlewareFunc) ServerOption {
	return func(o *ServerOptions) {
		o.Middlewares = append([]MiddlewareFunc{}, mw...)
	}
}

// AppendMiddlewares appends additional middleware after the base stack.
func AppendMiddlewares(mw ...MiddlewareFunc) ServerOption {
	return func(o *ServerOptions) {
		o.Extra = append(o.Extra, mw...)
	}
}

func WithErrorHandler(handler HTTPErrorHandler) ServerOption {
	return func(o *ServerOptions) {
		if handler != nil {
			o.ErrorHandler = handler
		}
	}
}

// WithValidators installs request-level validators executed before route handlers.
func WithValidators(v ...Validator) ServerOption {
	return func(o *ServerOptions) {
		if len(v) > 0 {
			o.Validators = append([]Validator{}, v...)
		}
	}
}

// WithCORS enables CORS middleware using the provided configuration; if cfg is nil, the default config is used.
func WithCORS(cfg *middleware.CORSConfig) ServerOption {
	return func(o *ServerOptions) {
		if cfg == nil {
			def := middleware.DefaultCORSConfig
			o.CORS = &def
			return
		}
		o.CORS = cfg
	}
}

// WithCORSOrigins enables CORS for origins with credentials allowed.
func WithCORSOrigins(origins ...string) ServerOption {
	return func(o *ServerOptions) {
		o.CORS = CORSForOrigins(origins...)
	}
}

// WithLifecycle registers hooks run before serving and after shutdown.
func WithLifecycle(onStartup, onShutdown LifecycleHook) ServerOption {
	return func(o *ServerOptions) {
		o.OnStartup = onStartup
		o.OnShutdown = onShutdown
	}
}

func WithLogger(l zerolog.Logger) ServerOption {
	return func(o *ServerOptions) { o.Logger = l }
}

// WithAlerter forwards unexpected errors, with their track id, to a.
func WithAlerter(a Alerter) ServerOption {
	return func(o *ServerOptions) { o.Alerter = a }
}

func WithPing(path string) ServerOption {
	return func(o *ServerOptions) { o.PingPath = path }
}

type ClientOptions struct {
	BaseURL string
	Timeout time.Duration
	Headers map[string]string
	// Retries is the number of extra attempts after a transport error, a
	// 429 or a 5xx. Zero disables retrying.
	Retries     int
	RetryWait   time.Duration
	Logger      zerolog.Logger
	RestyConfig func(RestClient)
}

type ClientOption func(*ClientOptions)

func defaultClientOptions() ClientOptions {
	return ClientOptions{
		Timeout:   10 * time.Second,
		Headers:   map[string]string{"Content-Type": "application/json"},
		RetryWait: 200 * time.Millisecond,
		Logger:    zerolog.Nop(),
	}
}

// WithRetries retries failed requests n times, starting at wait and
// backing off up to four times that.
func WithRetries(n int, wait time.Duration) ClientOption {
	return func(o *ClientOptions) {
		if n >= 0 {
			o.Retries = n
		}
		if wait > 0 {
			o.RetryWait = wait
		}
	}
}

// WithClientLogger logs every response at debug level.
func WithClientLogger(l zerolog.Logger) ClientOption {
	return func(o *ClientOptions) { o.Logger = l }
}

func WithBaseURL(url string) ClientOption {
	return func(o *ClientOptions) {
		if url != "" {
			o.BaseURL = url
		}
	}
}

func WithClientTimeout(d time.Duration) ClientOption {
	return func(o *ClientOptions) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

func WithHeaders(headers map[string]string) ClientOption {
	return func(o *ClientOptions) {
		if len(headers) == 0 {
			return
		}
		o.Headers = make(map[string]string, len(headers))
		for k, v := range headers {
			o.Headers[k] = v
		}
	}
}

func WithRestyConfig(fn func(RestClient)) ClientOption {
	return func(o *ClientOptions) {
		o.RestyConfig = fn
	}
}
