// Package errors provides the standardized API error taxonomy used across
// the control plane: a stable code string, a message, an HTTP status, and
// optional structured details.
package errors

import (
	"fmt"
	"net/http"
)

// APIError represents a standardized API error response.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Details    any    `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// WithDetails returns a copy of the error with additional details.
func (e *APIError) WithDetails(details any) *APIError {
	return &APIError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Details:    details,
	}
}

// WithMessage returns a copy of the error with a custom message.
func (e *APIError) WithMessage(message string) *APIError {
	return &APIError{
		Code:       e.Code,
		Message:    message,
		StatusCode: e.StatusCode,
		Details:    e.Details,
	}
}

// Standard error definitions, organized by the taxonomy kinds: AuthFailure,
// ValidationFailure, NotFound, Conflict, Backpressure, UpstreamFailure,
// DataIntegrity.
var (
	// ErrUnauthorized covers missing, malformed, or invalid bearer tokens.
	ErrUnauthorized = &APIError{
		Code:       "unauthorized",
		Message:    "authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	// ErrTokenRevoked is returned when a device bearer token's token_revoked_at
	// is set. Per the AuthFailure kind, no body detail beyond the code.
	ErrTokenRevoked = &APIError{
		Code:       "token_revoked",
		Message:    "device token has been revoked",
		StatusCode: http.StatusGone,
	}

	// ErrForbidden is returned when the caller lacks permission for an action.
	ErrForbidden = &APIError{
		Code:       "forbidden",
		Message:    "you don't have permission to perform this action",
		StatusCode: http.StatusForbidden,
	}

	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = &APIError{
		Code:       "not_found",
		Message:    "resource not found",
		StatusCode: http.StatusNotFound,
	}

	// ErrBadRequest is returned when the request is malformed.
	ErrBadRequest = &APIError{
		Code:       "bad_request",
		Message:    "invalid request",
		StatusCode: http.StatusBadRequest,
	}

	// ErrPayloadTooLarge is returned when a request body exceeds the
	// per-endpoint size limit, before JSON parsing is attempted.
	ErrPayloadTooLarge = &APIError{
		Code:       "payload_too_large",
		Message:    "request body exceeds the maximum allowed size",
		StatusCode: http.StatusRequestEntityTooLarge,
	}

	// ErrRateLimited is returned when a per-IP rate limit is exceeded.
	ErrRateLimited = &APIError{
		Code:       "rate_limited",
		Message:    "too many requests, try again later",
		StatusCode: http.StatusTooManyRequests,
	}

	// ErrBackpressure is returned when the database pool is saturated and the
	// request is shed rather than queued; callers retry with jitter.
	ErrBackpressure = &APIError{
		Code:       "backpressure",
		Message:    "service is under load, retry with backoff",
		StatusCode: http.StatusServiceUnavailable,
	}

	// ErrInternal is returned for unexpected server errors.
	ErrInternal = &APIError{
		Code:       "internal_error",
		Message:    "an internal error occurred",
		StatusCode: http.StatusInternalServerError,
	}

	// ErrConflict is returned for terminal-state or uniqueness conflicts.
	ErrConflict = &APIError{
		Code:       "conflict",
		Message:    "resource already in a terminal state",
		StatusCode: http.StatusConflict,
	}

	// ErrServiceUnavailable is returned when a dependent upstream collaborator
	// (push provider, webhook, artifact store) is unreachable or erroring on
	// the critical path of the caller's request.
	ErrServiceUnavailable = &APIError{
		Code:       "service_unavailable",
		Message:    "upstream collaborator temporarily unavailable",
		StatusCode: http.StatusServiceUnavailable,
	}
)

// NewValidationError creates a validation error for a specific field.
func NewValidationError(field, message string) *APIError {
	return &APIError{
		Code:       "validation_error",
		Message:    fmt.Sprintf("validation failed: %s", message),
		StatusCode: http.StatusUnprocessableEntity,
		Details: map[string]string{
			"field": field,
			"error": message,
		},
	}
}

// NewValidationErrors creates a validation error carrying a field-level list,
// per the ValidationFailure kind's 422 contract (no stringified exceptions).
func NewValidationErrors(fields map[string]string) *APIError {
	return &APIError{
		Code:       "validation_error",
		Message:    "one or more fields failed validation",
		StatusCode: http.StatusUnprocessableEntity,
		Details:    fields,
	}
}

// NewNotFoundError creates a not found error for a specific resource type.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "not_found",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

// NewConflictError creates a conflict error with a custom message.
func NewConflictError(message string) *APIError {
	return &APIError{
		Code:       "conflict",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewInternalError creates an internal error with a custom message. Reserve
// for cases where the message itself carries no sensitive detail; prefer
// ErrInternal plus server-side logging otherwise.
func NewInternalError(message string) *APIError {
	return &APIError{
		Code:       "internal_error",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// NewUpstreamError wraps a failure from an external collaborator (push
// provider, chat webhook, artifact store) with the latency and status
// observed, per the UpstreamFailure kind.
func NewUpstreamError(collaborator string, status int) *APIError {
	return &APIError{
		Code:       "upstream_failure",
		Message:    fmt.Sprintf("%s did not accept the request", collaborator),
		StatusCode: http.StatusBadGateway,
		Details: map[string]any{
			"collaborator":    collaborator,
			"upstream_status": status,
		},
	}
}

// IsAPIError checks if an error is an APIError.
func IsAPIError(err error) bool {
	_, ok := err.(*APIError)
	return ok
}

// AsAPIError converts an error to an APIError if possible.
// Returns ErrInternal if the error is not an APIError.
func AsAPIError(err error) *APIError {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr
	}
	return ErrInternal
}
