package httpx

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// ProcessTimeHeader carries the handling time in seconds.
const ProcessTimeHeader = "X-Process-Time"

// ProcessingTime stamps every response with the time spent handling it,
// measured up to the moment headers are written.
func ProcessingTime() MiddlewareFunc {
	return func(next HandlerFunc) HandlerFunc {
		return func(c Context) error {
			start := time.Now()
			c.Response().Before(func() {
				elapsed := time.Since(start).Seconds()
				c.Response().Header().Set(ProcessTimeHeader, strconv.FormatFloat(elapsed, 'f', 6, 64))
			})
			return next(c)
		}
	}
}

// RequestLogger logs one line per request through log.
func RequestLogger(log zerolog.Logger) MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogError:     true,
		HandleError:  true,
		LogUserAgent: true,
		LogValuesFunc: func(c Context, v middleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil || v.Status >= 500 {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("client_ip", ClientIP(c.Request())).
				Str("user_agent", v.UserAgent).
				Msg("request")
			return nil
		},
	})
}
