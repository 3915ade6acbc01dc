package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Validator runs before route handlers; return an error to stop the pipeline.
type Validator func(Context) error

type Server struct {
	app        *App
	address    string
	srv        *http.Server
	shutdown   time.Duration
	onStartup  LifecycleHook
	onShutdown LifecycleHook
	log        zerolog.Logger
}

type RouteRegistrar func(*App)

const pingPage = "<html><h1>pong</h1></html>"

func NewServer(opts ...ServerOption) *Server {
	cfg := defaultServerOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	a := newApp()
	e := a.e
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = NewErrorHandler(cfg.Logger, cfg.Alerter)
	}
	e.HTTPErrorHandler = func(err error, c Context) { cfg.ErrorHandler(err, c) }
	e.Validator = NewStructValidator()
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	// Processing time wraps everything else so the header covers CORS
	// preflights and error responses too.
	e.Use(ProcessingTime())
	if cfg.CORS != nil {
		e.Use(CORSMiddleware(cfg.CORS))
	}
	base := cfg.Middlewares
	if base == nil {
		base = []MiddlewareFunc{RecoverMiddleware(), RequestLogger(cfg.Logger)}
	}
	for _, mw := range append(base, cfg.Extra...) {
		if mw != nil {
			e.Use(mw)
		}
	}
	if len(cfg.Validators) > 0 {
		e.Use(validatorMiddleware(cfg.Validators...))
	}
	if cfg.PingPath != "" {
		a.GET(cfg.PingPath, func(c Context) error {
			return c.HTML(http.StatusOK, pingPage)
		})
	}

	return &Server{
		app:        a,
		address:    cfg.Address,
		shutdown:   cfg.ShutdownTimeout,
		onStartup:  cfg.OnStartup,
		onShutdown: cfg.OnShutdown,
		log:        cfg.Logger,
	}
}

func (s *Server) RegisterRoutes(reg RouteRegistrar) {
	if reg != nil {
		reg(s.app)
	}
}

func (s *Server) App() *App { return s.app }

func (s *Server) Handler() http.Handler {
	return s.app.e
}

// Start runs the startup hook, serves until ctx is cancelled, then shuts the
// listener down and runs the shutdown hook. A startup hook failure aborts
// before listening.
func (s *Server) Start(ctx context.Context) error {
	if s.onStartup != nil {
		if err := s.onStartup(ctx); err != nil {
			return fmt.Errorf("httpx: startup hook: %w", err)
		}
	}

	s.srv = &http.Server{
		Addr:         s.address,
		Handler:      s.app.e,
		ReadTimeout:  s.app.e.Server.ReadTimeout,
		WriteTimeout: s.app.e.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info().Str("addr", s.address).Msg("http server listening")

	var serveErr error
	select {
	case <-ctx.Done():
		serveErr = ctx.Err()
	case err := <-errCh:
		serveErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()
	shutdownErr := s.srv.Shutdown(shutdownCtx)
	var hookErr error
	if s.onShutdown != nil {
		if err := s.onShutdown(shutdownCtx); err != nil {
			hookErr = fmt.Errorf("httpx: shutdown hook: %w", err)
		}
	}
	s.log.Info().Msg("http server stopped")
	return errors.Join(serveErr, shutdownErr, hookErr)
}

func validatorMiddleware(v ...Validator) MiddlewareFunc {
	copied := append([]Validator(nil), v...)
	return func(next HandlerFunc) HandlerFunc {
		return func(c Context) error {
			for _, validator := range copied {
				if validator == nil {
					continue
				}
				if err := validator(c); err != nil {
					return err
				}
			}
			return next(c)
		}
	}
}
