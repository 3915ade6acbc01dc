package httpx

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

// newFixtureServer serves a handful of routes used by the client tests.
func newFixtureServer(t *testing.T, opts ...ServerOption) *TestServer {
	t.Helper()
	server := NewServer(opts...)
	server.RegisterRoutes(func(a *App) {
		a.GET("/hello", func(c Context) error {
			return c.JSON(StatusOK, map[string]string{"message": "hello"})
		})
		a.GET("/inspect", func(c Context) error {
			return c.JSON(StatusOK, map[string]string{
				"method": c.Request().Method,
				"auth":   c.Request().Header.Get("Authorization"),
				"custom": c.Request().Header.Get("X-Custom"),
				"q":      c.QueryParam("q"),
			})
		})
		a.GET("/missing", func(c Context) error {
			return NotFound("THING_NOT_FOUND", "No such thing")
		})
		a.GET("/legacy", func(c Context) error {
			return HTTPError(StatusBadRequest, "bad request")
		})

		api := NewRouter(a, "/api")
		api.GET("/items", func(c Context) error { return c.JSON(StatusOK, []string{"a", "b"}) })

		RegisterRoutes(a,
			Route{Method: "post", Path: "/items", Handler: func(c Context) error {
				var payload map[string]any
				if err := c.Bind(&payload); err != nil {
					return err
				}
				return c.JSON(StatusCreated, payload)
			}},
			Route{Method: http.MethodPut, Path: "/items/:id", Handler: func(c Context) error {
				return c.JSON(StatusOK, map[string]string{"id": c.Param("id"), "method": "PUT"})
			}},
			Route{Method: http.MethodPatch, Path: "/items/:id", Handler: func(c Context) error {
				return c.JSON(StatusOK, map[string]string{"id": c.Param("id"), "method": "PATCH"})
			}},
			Route{Method: http.MethodDelete, Path: "/items/:id", Handler: func(c Context) error {
				return c.NoContent(StatusNoContent)
			}},
			Route{Method: http.MethodGet, Path: "/skipped"},
		)
	})
	ts := NewTestServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestClientVerbs(t *testing.T) {
	ts := newFixtureServer(t)
	client := NewClient(WithBaseURL(ts.BaseURL()))
	ctx := context.Background()

	var hello map[string]string
	if _, err := client.Get(ctx, "/hello", &hello); err != nil || hello["message"] != "hello" {
		t.Fatalf("Get() = %v, %v", hello, err)
	}

	var items []string
	if _, err := client.Get(ctx, "/api/items", &items); err != nil || len(items) != 2 {
		t.Fatalf("Get(/api/items) = %v, %v", items, err)
	}

	var created map[string]string
	resp, err := client.Post(ctx, "/items", map[string]string{"name": "widget"}, &created)
	if err != nil || resp.StatusCode() != StatusCreated || created["name"] != "widget" {
		t.Fatalf("Post() = %v, %v", created, err)
	}

	for name, call := range map[string]func(any) error{
		"PUT": func(out any) error {
			_, err := client.Put(ctx, "/items/7", map[string]string{}, out)
			return err
		},
		"PATCH": func(out any) error {
			_, err := client.Patch(ctx, "/items/7", map[string]string{}, out)
			return err
		},
	} {
		var out map[string]string
		if err := call(&out); err != nil || out["id"] != "7" || out["method"] != name {
			t.Fatalf("%s = %v, %v", name, out, err)
		}
	}

	resp, err = client.Delete(ctx, "/items/7", nil)
	if err != nil || resp.StatusCode() != StatusNoContent {
		t.Fatalf("Delete() status = %v, %v", resp, err)
	}

	if _, err := client.Get(ctx, "/skipped", nil); err == nil {
		t.Fatal("incomplete route was registered")
	}
}

func TestClientResponseErrors(t *testing.T) {
	ts := newFixtureServer(t)
	client := NewClient(WithBaseURL(ts.BaseURL()))

	tests := []struct {
		path       string
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{path: "/missing", wantStatus: StatusNotFound, wantCode: "THING_NOT_FOUND", wantMsg: "No such thing"},
		{path: "/legacy", wantStatus: StatusBadRequest, wantCode: "BAD_REQUEST", wantMsg: "bad request"},
		{path: "/nowhere", wantStatus: StatusNotFound, wantCode: "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := client.Get(context.Background(), tt.path, nil)
			var respErr *ResponseError
			if !errors.As(err, &respErr) || respErr.StatusCode != tt.wantStatus {
				t.Fatalf("error = %v, want ResponseError %d", err, tt.wantStatus)
			}
			if resp == nil {
				t.Fatal("response must accompany a ResponseError")
			}
			body := decodeError(t, resp.Body())
			if body.ErrorCode != tt.wantCode || (tt.wantMsg != "" && body.Message != tt.wantMsg) {
				t.Fatalf("body = %+v", body)
			}
		})
	}
}

func TestClientRequestOptions(t *testing.T) {
	ts := newFixtureServer(t)

	tests := []struct {
		name   string
		client *Client
		opts   []RequestOption
		want   map[string]string
	}{
		{
			name:   "per request",
			client: NewClient(WithBaseURL(ts.BaseURL())),
			opts: []RequestOption{
				WithBearer("token123"),
				WithRequestHeaders(map[string]string{"X-Custom": "yes"}),
				WithQuery(map[string]string{"q": "search"}),
			},
			want: map[string]string{"auth": "Bearer token123", "custom": "yes", "q": "search"},
		},
		{
			name:   "client headers",
			client: NewClient(WithBaseURL(ts.BaseURL()), WithHeaders(map[string]string{"X-Custom": "default"})),
			want:   map[string]string{"custom": "default"},
		},
		{
			name: "resty hook",
			client: NewClient(WithBaseURL(ts.BaseURL()), WithRestyConfig(func(rc RestClient) {
				rc.SetHeader("Authorization", "Bearer hooked")
			})),
			want: map[string]string{"auth": "Bearer hooked"},
		},
		{
			name:   "empty bearer is ignored",
			client: NewClient(WithBaseURL(ts.BaseURL())),
			opts:   []RequestOption{WithBearer(""), nil},
			want:   map[string]string{"auth": ""},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out map[string]string
			if _, err := tt.client.Get(context.Background(), "/inspect", &out, tt.opts...); err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			for k, v := range tt.want {
				if out[k] != v {
					t.Errorf("%s = %q, want %q", k, out[k], v)
				}
			}
		})
	}
}

func TestValidatorMiddleware(t *testing.T) {
	requireHeader := func(c Context) error {
		if c.Request().Header.Get("X-Allow") != "yes" {
			return BadRequest("BLOCKED", "blocked")
		}
		return nil
	}
	ts := newFixtureServer(t, WithValidators(nil, requireHeader))
	client := NewClient(WithBaseURL(ts.BaseURL()))

	_, err := client.Get(context.Background(), "/hello", nil)
	var respErr *ResponseError
	if !errors.As(err, &respErr) || respErr.StatusCode != StatusBadRequest {
		t.Fatalf("blocked request error = %v", err)
	}

	resp, err := client.Get(context.Background(), "/hello", nil, WithRequestHeaders(map[string]string{"X-Allow": "yes"}))
	if err != nil || resp.StatusCode() != StatusOK {
		t.Fatalf("allowed request = %v, %v", resp, err)
	}
}

func TestCORSConfig(t *testing.T) {
	corsCfg := DefaultCORSConfig
	corsCfg.AllowOrigins = []string{"http://example.com"}
	ts := newFixtureServer(t, WithCORS(&corsCfg))

	client := NewClient(WithBaseURL(ts.BaseURL()))
	for origin, want := range map[string]string{
		"http://example.com": "http://example.com",
		"http://evil.test":   "",
	} {
		resp, err := client.Get(context.Background(), "/hello", nil, WithRequestHeaders(map[string]string{"Origin": origin}))
		if err != nil {
			t.Fatalf("request from %s failed: %v", origin, err)
		}
		if got := resp.Header().Get("Access-Control-Allow-Origin"); got != want {
			t.Fatalf("origin %s: allow origin = %q, want %q", origin, got, want)
		}
	}
}

func TestClientRetries(t *testing.T) {
	var calls atomic.Int32
	ts := NewTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(StatusServiceUnavailable)
		case 2:
			w.WriteHeader(StatusTooManyRequests)
		default:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ok":"yes"}`))
		}
	}))
	defer ts.Close()

	var out map[string]string
	client := NewClient(WithBaseURL(ts.BaseURL()), WithRetries(2, time.Millisecond))
	if _, err := client.Get(context.Background(), "/", &out); err != nil || out["ok"] != "yes" {
		t.Fatalf("Get() = %v, %v", out, err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}

	calls.Store(0)
	_, err := NewClient(WithBaseURL(ts.BaseURL())).Get(context.Background(), "/", nil)
	if StatusCode(err) != StatusServiceUnavailable || calls.Load() != 1 {
		t.Fatalf("without retries: status %d after %d calls", StatusCode(err), calls.Load())
	}
	if StatusCode(errors.New("plain")) != 0 {
		t.Fatal("StatusCode(plain error) != 0")
	}
}

func TestNestedRouters(t *testing.T) {
	var hits []string
	tag := func(name string) MiddlewareFunc {
		return func(next HandlerFunc) HandlerFunc {
			return func(c Context) error {
				hits = append(hits, name)
				return next(c)
			}
		}
	}
	ok := func(c Context) error { return c.String(StatusOK, c.Path()) }

	server := NewServer()
	server.RegisterRoutes(func(a *App) {
		v1 := a.Group("/v1", tag("v1"))
		v1.Group("/users", tag("users")).
			GET("", ok).
			Routes(
				Route{Method: "get", Path: "/:id", Handler: ok},
				Route{Method: http.MethodGet, Path: "/broken"},
			)
		var zero Router
		zero.GET("/ignored", ok).Group("/x").Use(tag("never"))
	})

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{path: "/v1/users", wantStatus: StatusOK, wantBody: "/v1/users"},
		{path: "/v1/users/42", wantStatus: StatusOK, wantBody: "/v1/users/:id"},
		{path: "/v1/users/broken", wantStatus: StatusOK, wantBody: "/v1/users/:id"},
		{path: "/ignored", wantStatus: StatusNotFound},
	}
	for _, tt := range tests {
		rec := serve(t, server, http.MethodGet, tt.path, "", nil)
		if rec.Code != tt.wantStatus {
			t.Fatalf("%s status = %d, want %d", tt.path, rec.Code, tt.wantStatus)
		}
		if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
			t.Fatalf("%s body = %q, want %q", tt.path, rec.Body.String(), tt.wantBody)
		}
	}
	if len(hits) != 6 || hits[0] != "v1" || hits[1] != "users" {
		t.Fatalf("middleware hits = %v", hits)
	}
}
