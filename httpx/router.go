package httpx

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// Route is one declarative route definition.
type Route struct {
	Method     string
	Path       string
	Handler    HandlerFunc
	Middleware []MiddlewareFunc
}

func (r Route) complete() bool {
	return r.Handler != nil && r.Path != "" && r.Method != ""
}

// RegisterRoutes adds routes at the application root. Incomplete routes are
// skipped.
func RegisterRoutes(a *App, routes ...Route) {
	if a == nil || a.e == nil {
		return
	}
	for _, r := range routes {
		if r.complete() {
			a.e.Add(strings.ToUpper(r.Method), r.Path, r.Handler, r.Middleware...)
		}
	}
}

// Router registers routes under a shared prefix and middleware stack. The
// zero Router ignores every call.
type Router struct {
	g *echo.Group
}

func NewRouter(a *App, prefix string, mw ...MiddlewareFunc) *Router {
	if a == nil || a.e == nil {
		return &Router{}
	}
	return &Router{g: a.e.Group(prefix, mw...)}
}

// Group nests a router under r's prefix.
func (r *Router) Group(prefix string, mw ...MiddlewareFunc) *Router {
	if r.g == nil {
		return &Router{}
	}
	return &Router{g: r.g.Group(prefix, mw...)}
}

// Use adds middleware to every route registered on r afterwards.
func (r *Router) Use(mw ...MiddlewareFunc) *Router {
	if r.g != nil {
		r.g.Use(mw...)
	}
	return r
}

// Routes adds declarative routes relative to r's prefix.
func (r *Router) Routes(routes ...Route) *Router {
	for _, rt := range routes {
		if rt.complete() {
			r.Handle(strings.ToUpper(rt.Method), rt.Path, rt.Handler, rt.Middleware...)
		}
	}
	return r
}

// Handle adds a route; an empty path targets the group prefix itself.
func (r *Router) Handle(method, path string, h HandlerFunc, mw ...MiddlewareFunc) *Router {
	if r.g != nil && h != nil {
		r.g.Add(method, path, h, mw...)
	}
	return r
}

func (r *Router) GET(path string, h HandlerFunc, mw ...MiddlewareFunc) *Router {
	return r.Handle(echo.GET, path, h, mw...)
}

func (r *Router) POST(path string, h HandlerFunc, mw ...MiddlewareFunc) *Router {
	return r.Handle(echo.POST, path, h, mw...)
}

func (r *Router) PUT(path string, h HandlerFunc, mw ...MiddlewareFunc) *Router {
	return r.Handle(echo.PUT, path, h, mw...)
}

func (r *Router) PATCH(path string, h HandlerFunc, mw ...MiddlewareFunc) *Router {
	return r.Handle(echo.PATCH, path, h, mw...)
}

func (r *Router) DELETE(path string, h HandlerFunc, mw ...MiddlewareFunc) *Router {
	return r.Handle(echo.DELETE, path, h, mw...)
}
