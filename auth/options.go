package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrTokenNotFound means the request carried no token at all.
	ErrTokenNotFound     = errors.New("auth: token not found")
	ErrTokenInvalidInput = errors.New("auth: invalid token source")
)

type TokenExtractor func(*http.Request) (string, error)

type MiddlewareSkipper func(*http.Request) bool

type MiddlewareErrorHandler func(http.ResponseWriter, *http.Request, error)

type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	required     bool
	extractor    TokenExtractor
	skipper      MiddlewareSkipper
	errorHandler MiddlewareErrorHandler
}

func newMiddlewareConfig(opts ...MiddlewareOption) middlewareConfig {
	cfg := middlewareConfig{
		required:     true,
		extractor:    BearerTokenExtractor(),
		skipper:      defaultSkipper,
		errorHandler: DefaultErrorHandler,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithRequired switches between required (default) and optional mode.
func WithRequired(required bool) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.required = required
	}
}

func WithTokenExtractor(extractor TokenExtractor) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if extractor != nil {
			cfg.extractor = extractor
		}
	}
}

func WithSkipper(skipper MiddlewareSkipper) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if skipper != nil {
			cfg.skipper = skipper
		}
	}
}

func WithErrorHandler(handler MiddlewareErrorHandler) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if handler != nil {
			cfg.errorHandler = handler
		}
	}
}

// BearerTokenExtractor reads "Authorization: Bearer <token>".
func BearerTokenExtractor() TokenExtractor {
	return HeaderTokenExtractor("Authorization", "Bearer")
}

// HeaderTokenExtractor reads header. With a non-empty scheme the value must
// be "<scheme> <token>", the scheme compared case-insensitively; without one
// the whole value is the token.
func HeaderTokenExtractor(header, scheme string) TokenExtractor {
	header = http.CanonicalHeaderKey(strings.TrimSpace(header))
	return func(r *http.Request) (string, error) {
		raw := r.Header.Get(header)
		if raw == "" {
			return "", ErrTokenNotFound
		}
		if scheme != "" {
			prefix, rest, ok := strings.Cut(raw, " ")
			if !ok || !strings.EqualFold(prefix, scheme) {
				return "", ErrTokenInvalidInput
			}
			raw = rest
		}
		return nonEmpty(raw, ErrTokenInvalidInput)
	}
}

func CookieTokenExtractor(name string) TokenExtractor {
	name = strings.TrimSpace(name)
	return func(r *http.Request) (string, error) {
		if name == "" {
			return "", ErrTokenInvalidInput
		}
		cookie, err := r.Cookie(name)
		if errors.Is(err, http.ErrNoCookie) {
			return "", ErrTokenNotFound
		}
		if err != nil {
			return "", err
		}
		return nonEmpty(cookie.Value, ErrTokenInvalidInput)
	}
}

func QueryTokenExtractor(param string) TokenExtractor {
	param = strings.TrimSpace(param)
	return func(r *http.Request) (string, error) {
		if param == "" {
			return "", ErrTokenInvalidInput
		}
		return nonEmpty(r.URL.Query().Get(param), ErrTokenNotFound)
	}
}

func nonEmpty(v string, errEmpty error) (string, error) {
	if v = strings.TrimSpace(v); v == "" {
		return "", errEmpty
	}
	return v, nil
}

// ChainExtractors returns the first token any extractor finds. When none
// does, a malformed source is reported ahead of a missing one so the guard
// rejects the request instead of treating it as anonymous.
func ChainExtractors(extractors ...TokenExtractor) TokenExtractor {
	copied := append([]TokenExtractor(nil), extractors...)
	return func(r *http.Request) (string, error) {
		failure := ErrTokenNotFound
		for _, extractor := range copied {
			if extractor == nil {
				continue
			}
			token, err := extractor(r)
			if err == nil {
				return token, nil
			}
			if errors.Is(failure, ErrTokenNotFound) {
				failure = err
			}
		}
		return "", failure
	}
}

func defaultSkipper(*http.Request) bool { return false }

// DefaultErrorHandler answers 401 for authentication failures and 500 for
// configuration or infrastructure faults.
func DefaultErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, http.StatusText(http.StatusGatewayTimeout), http.StatusGatewayTimeout)
	case IsFatal(err):
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	default:
		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, ErrUnauthorized.Error(), http.StatusUnauthorized)
	}
}
