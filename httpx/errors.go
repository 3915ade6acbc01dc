package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/adeilh/corekit/auth"
)

// AppError is an error that knows how it should be rendered to clients.
type AppError struct {
	Status  int
	Code    string
	Message string
	// Details is rendered as the "errors" field when non-nil.
	Details any
	Cause   error
}

func NewAppError(status int, code, message string) *AppError {
	return &AppError{Status: status, Code: code, Message: message}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return e.Code + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

func BadRequest(code, message string) *AppError {
	return NewAppError(http.StatusBadRequest, code, message)
}

func NotFound(code, message string) *AppError {
	return NewAppError(http.StatusNotFound, code, message)
}

func ServiceUnavailable(code, message string) *AppError {
	return NewAppError(http.StatusServiceUnavailable, code, message)
}

func BadGateway(code, message string) *AppError {
	return NewAppError(http.StatusBadGateway, code, message)
}

// Unauthorized is the body every authentication failure is rendered as.
func Unauthorized() *AppError {
	return NewAppError(http.StatusUnauthorized, CodeUnauthorized, "Unauthorized!")
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Message   string `json:"message"`
	ErrorCode string `json:"error_code"`
	Errors    any    `json:"errors,omitempty"`
	TrackID   string `json:"track_id,omitempty"`
}

// FieldError describes one rejected request field.
type FieldError struct {
	Type string   `json:"type"`
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
}

// Alerter receives unexpected errors together with the track id returned to
// the client.
type Alerter interface {
	AlertError(ctx context.Context, err error, trackID string)
}

// NewErrorHandler maps handler errors to JSON bodies. Unexpected errors get a
// track id, are logged and forwarded to alerter when one is set.
func NewErrorHandler(log zerolog.Logger, alerter Alerter) HTTPErrorHandler {
	return func(err error, c Context) {
		if c.Response().Committed {
			return
		}
		status, body := classify(err)
		if status >= http.StatusInternalServerError {
			if body.ErrorCode == CodeInternal {
				body.TrackID = uuid.NewString()
			}
			log.Error().Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Str("track_id", body.TrackID).
				Int("status", status).
				Msg("request failed")
			if alerter != nil && body.TrackID != "" {
				alerter.AlertError(c.Request().Context(), err, body.TrackID)
			}
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			log.Warn().Err(writeErr).Msg("failed to write error response")
		}
	}
}

func classify(err error) (int, ErrorBody) {
	var (
		appErr    *AppError
		fieldErrs validator.ValidationErrors
		bindErr   *echo.BindingError
		httpErr   *echo.HTTPError
	)
	switch {
	case errors.As(err, &appErr):
		return appErr.Status, ErrorBody{Message: appErr.Message, ErrorCode: appErr.Code, Errors: appErr.Details}
	case errors.As(err, &fieldErrs):
		return http.StatusUnprocessableEntity, validationBody(fieldErrorsFrom(fieldErrs))
	case errors.As(err, &bindErr):
		return http.StatusUnprocessableEntity, validationBody([]FieldError{{
			Type: "binding",
			Loc:  []string{bindErr.Field},
			Msg:  fmt.Sprint(bindErr.Message),
		}})
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorBody{Message: "Request timed out", ErrorCode: CodeTimeout}
	case auth.IsFatal(err):
		return http.StatusInternalServerError, internalBody()
	case errors.Is(err, auth.ErrUnauthorized):
		u := Unauthorized()
		return u.Status, ErrorBody{Message: u.Message, ErrorCode: u.Code}
	case errors.As(err, &httpErr):
		if httpErr.Code == http.StatusUnauthorized {
			u := Unauthorized()
			return u.Status, ErrorBody{Message: u.Message, ErrorCode: u.Code}
		}
		if httpErr.Code >= http.StatusInternalServerError {
			return httpErr.Code, internalBody()
		}
		return httpErr.Code, ErrorBody{Message: fmt.Sprint(httpErr.Message), ErrorCode: statusCode(httpErr.Code)}
	default:
		return http.StatusInternalServerError, internalBody()
	}
}

func internalBody() ErrorBody {
	return ErrorBody{Message: "Error Processing Request", ErrorCode: CodeInternal}
}

func validationBody(fields []FieldError) ErrorBody {
	return ErrorBody{
		Message:   "Invalid Request, Please check your request",
		ErrorCode: CodeRequestValidation,
		Errors:    fields,
	}
}

// statusCode turns 404 into "NOT_FOUND".
func statusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return fmt.Sprintf("HTTP_%d", status)
	}
	return strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(text, "-", "_"), " ", "_"))
}
