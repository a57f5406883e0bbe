// Package errors defines the service's error sentinels and the AppError type
// that carries an HTTP status and a stable error code.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels. Wrap them with %w so callers can test with errors.Is.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrAlreadyExists  = errors.New("resource already exists")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrUnprocessable  = errors.New("unprocessable")
	ErrRateLimited    = errors.New("rate limited")
	ErrServiceUnavail = errors.New("service unavailable")
	ErrInternal       = errors.New("internal error")
)

type classification struct {
	sentinel error
	status   int
	code     string
}

// classifications is checked in order; the first sentinel matched wins.
var classifications = []classification{
	{ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{ErrAlreadyExists, http.StatusConflict, "ALREADY_EXISTS"},
	{ErrConflict, http.StatusConflict, "CONFLICT"},
	{ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
	{ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
	{ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{ErrUnprocessable, http.StatusUnprocessableEntity, "UNPROCESSABLE"},
	{ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
	{ErrServiceUnavail, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
}

// AppError is an error with a client-facing code and message.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newAppError(sentinel error, message string) *AppError {
	for _, c := range classifications {
		if c.sentinel == sentinel {
			return &AppError{Code: c.code, Message: message, Status: c.status, Err: sentinel}
		}
	}
	return &AppError{Code: "INTERNAL_ERROR", Message: message, Status: http.StatusInternalServerError, Err: sentinel}
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return newAppError(ErrNotFound, fmt.Sprintf("%s %s not found", resource, id))
}

// AlreadyExists creates a 409 error.
func AlreadyExists(resource, field, value string) *AppError {
	return newAppError(ErrAlreadyExists, fmt.Sprintf("%s with %s %q already exists", resource, field, value))
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return newAppError(ErrInvalidInput, message)
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return newAppError(ErrUnauthorized, message)
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return newAppError(ErrForbidden, message)
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return newAppError(ErrConflict, message)
}

// Unprocessable creates a 422 error.
func Unprocessable(message string) *AppError {
	return newAppError(ErrUnprocessable, message)
}

// TooManyRequests creates a 429 error.
func TooManyRequests(message string) *AppError {
	return newAppError(ErrRateLimited, message)
}

// Unavailable creates a 503 error.
func Unavailable(message string) *AppError {
	return newAppError(ErrServiceUnavail, message)
}

// Internal creates a 500 error that hides err from clients.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// Classify returns the HTTP status and error code for err. An *AppError in
// the chain wins; otherwise the first matching sentinel decides, and anything
// else is a 500.
func Classify(err error) (int, string) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status, appErr.Code
	}
	for _, c := range classifications {
		if errors.Is(err, c.sentinel) {
			return c.status, c.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// HTTPStatus returns the HTTP status code for err.
func HTTPStatus(err error) int {
	status, _ := Classify(err)
	return status
}
