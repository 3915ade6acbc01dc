package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newMiddlewareFixture(t *testing.T, resolver IdentityResolver[testUser], opts ...MiddlewareOption) (*Manager[testUser], *Middleware[testUser]) {
	t.Helper()
	mgr := newTestManager(t, newFakeClock(t0), resolver)
	mw, err := NewMiddleware(mgr, opts...)
	if err != nil {
		t.Fatalf("NewMiddleware() error = %v", err)
	}
	return mgr, mw
}

func issue(t *testing.T, mgr *Manager[testUser], sub string) string {
	t.Helper()
	token, err := mgr.IssueToken(Claims{"sub": sub}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return token
}

func TestNewMiddlewareRequiresManager(t *testing.T) {
	if _, err := NewMiddleware[testUser](nil); err == nil {
		t.Fatalf("expected error when manager is nil")
	}
}

func TestMiddlewareInjectsIdentity(t *testing.T) {
	mgr, mw := newMiddlewareFixture(t, &subjectResolver{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, mgr, "user-42"))
	res := httptest.NewRecorder()

	var invoked bool
	mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		invoked = true
		user, ok := IdentityFromContext[testUser](r.Context())
		if !ok || user.ID != "user-42" {
			t.Fatalf("identity = %+v, %v", user, ok)
		}
	})).ServeHTTP(res, req)

	if !invoked {
		t.Fatalf("expected next handler to be invoked")
	}
}

func TestMiddlewareRequiredMode(t *testing.T) {
	mgr, mw := newMiddlewareFixture(t, &subjectResolver{})

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid", header: "Bearer " + issue(t, mgr, "u"), wantStatus: http.StatusOK},
		{name: "missing", header: "", wantStatus: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			res := httptest.NewRecorder()
			mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})).ServeHTTP(res, req)

			if res.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", res.Code, tt.wantStatus)
			}
			if res.Code == http.StatusUnauthorized && res.Header().Get("WWW-Authenticate") != "Bearer" {
				t.Fatalf("missing WWW-Authenticate header")
			}
		})
	}
}

func TestMiddlewareOptionalMode(t *testing.T) {
	mgr, mw := newMiddlewareFixture(t, &subjectResolver{}, WithRequired(false))

	tests := []struct {
		name         string
		header       string
		wantIdentity bool
	}{
		{name: "valid", header: "Bearer " + issue(t, mgr, "u"), wantIdentity: true},
		{name: "missing", header: ""},
		{name: "garbage", header: "Bearer nope"},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			res := httptest.NewRecorder()
			var got bool
			mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, got = IdentityFromContext[testUser](r.Context())
				w.WriteHeader(http.StatusOK)
			})).ServeHTTP(res, req)

			if res.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", res.Code)
			}
			if got != tt.wantIdentity {
				t.Fatalf("identity present = %v, want %v", got, tt.wantIdentity)
			}
		})
	}
}

func TestMiddlewareUnboundResolver(t *testing.T) {
	for _, required := range []bool{true, false} {
		_, mw := newMiddlewareFixture(t, nil, WithRequired(required))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		res := httptest.NewRecorder()
		mw.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatalf("handler must not run without a resolver")
		})).ServeHTTP(res, req)

		if res.Code != http.StatusInternalServerError {
			t.Fatalf("required=%v status = %d, want 500", required, res.Code)
		}
	}
}

func TestMiddlewareSkipperShortCircuits(t *testing.T) {
	_, mw := newMiddlewareFixture(t, nil, WithSkipper(func(r *http.Request) bool {
		return r.URL.Path == "/health"
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	res := httptest.NewRecorder()

	var invoked bool
	mw.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		invoked = true
	})).ServeHTTP(res, req)

	if !invoked {
		t.Fatalf("expected handler invocation")
	}
}

func TestMiddlewareCustomErrorHandler(t *testing.T) {
	var received error
	_, mw := newMiddlewareFixture(t, &subjectResolver{}, WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
		received = err
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	res := httptest.NewRecorder()
	mw.Handler(nil).ServeHTTP(res, req)

	if !errors.Is(received, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", received)
	}
	if res.Code != http.StatusTeapot {
		t.Fatalf("expected status 418, got %d", res.Code)
	}
}

func TestMiddlewareCookieExtractor(t *testing.T) {
	mgr, mw := newMiddlewareFixture(t, &subjectResolver{}, WithTokenExtractor(
		ChainExtractors(BearerTokenExtractor(), CookieTokenExtractor("session")),
	))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: issue(t, mgr, "cookie-user")})
	res := httptest.NewRecorder()

	var user testUser
	mw.Handler(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		user, _ = IdentityFromContext[testUser](r.Context())
	})).ServeHTTP(res, req)

	if user.ID != "cookie-user" {
		t.Fatalf("identity = %+v", user)
	}
}

func TestMiddlewareHandlerPanicsOnNilMiddleware(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for nil middleware")
		}
	}()

	var m *Middleware[testUser]
	m.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
}

func TestIdentityFromContextMissing(t *testing.T) {
	if _, ok := IdentityFromContext[testUser](context.Background()); ok {
		t.Fatal("expected no identity")
	}
	ctx := WithIdentity(context.Background(), "not-a-user")
	if _, ok := IdentityFromContext[testUser](ctx); ok {
		t.Fatal("expected type mismatch to report false")
	}
}

func TestBearerTokenExtractor(t *testing.T) {
	extractor := BearerTokenExtractor()

	tests := []struct {
		name      string
		header    string
		wantToken string
		wantErr   error
	}{
		{name: "valid", header: "Bearer abc", wantToken: "abc"},
		{name: "lowercase scheme", header: "bearer abc", wantToken: "abc"},
		{name: "padded token", header: "Bearer   abc  ", wantToken: "abc"},
		{name: "empty header", header: "", wantErr: ErrTokenNotFound},
		{name: "no space", header: "Bearerabc", wantErr: ErrTokenInvalidInput},
		{name: "basic", header: "Basic xyz", wantErr: ErrTokenInvalidInput},
		{name: "empty token", header: "Bearer ", wantErr: ErrTokenInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			token, err := extractor(req)
			if !errors.Is(err, tt.wantErr) || token != tt.wantToken {
				t.Fatalf("extractor() = %q, %v; want %q, %v", token, err, tt.wantToken, tt.wantErr)
			}
		})
	}
}

func TestQueryTokenExtractor(t *testing.T) {
	extractor := QueryTokenExtractor("access_token")

	req := httptest.NewRequest(http.MethodGet, "/?access_token=xyz", nil)
	if token, err := extractor(req); err != nil || token != "xyz" {
		t.Fatalf("extractor() = %q, %v", token, err)
	}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := extractor(req); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("extractor() error = %v, want ErrTokenNotFound", err)
	}
}

func TestDefaultErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "unauthorized", err: ErrUnauthorized, wantStatus: http.StatusUnauthorized},
		{name: "rejected", err: ErrIdentityRejected, wantStatus: http.StatusUnauthorized},
		{name: "not bound", err: ErrResolverNotBound, wantStatus: http.StatusInternalServerError},
		{name: "fatal", err: Fatal(errors.New("db down")), wantStatus: http.StatusInternalServerError},
		{name: "deadline", err: context.DeadlineExceeded, wantStatus: http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			DefaultErrorHandler(w, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestHeaderTokenExtractor(t *testing.T) {
	raw := HeaderTokenExtractor("x-api-token", "")
	schemed := HeaderTokenExtractor("X-Session", "Token")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := raw(req); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("missing header error = %v", err)
	}
	req.Header.Set("X-Api-Token", "  abc ")
	req.Header.Set("X-Session", "token xyz")
	if token, err := raw(req); err != nil || token != "abc" {
		t.Fatalf("raw extractor = %q, %v", token, err)
	}
	if token, err := schemed(req); err != nil || token != "xyz" {
		t.Fatalf("schemed extractor = %q, %v", token, err)
	}
	req.Header.Set("X-Session", "Bearer xyz")
	if _, err := schemed(req); !errors.Is(err, ErrTokenInvalidInput) {
		t.Fatalf("wrong scheme error = %v", err)
	}
}

func TestChainExtractorsPrefersMalformedOverMissing(t *testing.T) {
	chain := ChainExtractors(nil, QueryTokenExtractor("token"), BearerTokenExtractor())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := chain(req); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("nothing supplied error = %v", err)
	}
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if _, err := chain(req); !errors.Is(err, ErrTokenInvalidInput) {
		t.Fatalf("malformed header error = %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/?token=q", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if token, err := chain(req); err != nil || token != "q" {
		t.Fatalf("chain = %q, %v", token, err)
	}
}
