package httpx

import "net/http"

const (
	StatusOK                  = http.StatusOK                  // Successful request
	StatusCreated             = http.StatusCreated             // Resource created
	StatusNoContent           = http.StatusNoContent           // Successful with no body
	StatusBadRequest          = http.StatusBadRequest          // Validation or malformed input
	StatusUnauthorized        = http.StatusUnauthorized        // Missing or invalid authentication
	StatusForbidden           = http.StatusForbidden           // Authenticated but lacks permission
	StatusNotFound            = http.StatusNotFound            // Resource not found
	StatusConflict            = http.StatusConflict            // Uniqueness or version conflict
	StatusUnprocessableEntity = http.StatusUnprocessableEntity // Request body failed validation
	StatusTooManyRequests     = http.StatusTooManyRequests     // Rate limiting or quotas
	StatusInternalError       = http.StatusInternalServerError // Unexpected server error
	StatusBadGateway          = http.StatusBadGateway          // Upstream answered with garbage
	StatusServiceUnavailable  = http.StatusServiceUnavailable  // Dependency unreachable
	StatusGatewayTimeout      = http.StatusGatewayTimeout      // Deadline hit while waiting
)

// Error codes carried in the "error_code" field of error bodies.
const (
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeRequestValidation = "REQUEST_VALIDATION_ERROR"
	CodeInternal          = "INTERNAL_SERVER_ERROR"
	CodeTimeout           = "TIMEOUT"
)
