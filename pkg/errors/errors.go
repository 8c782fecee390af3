// Package errors holds the sentinel errors shared by providers, the search
// engine and the transports, and maps them to HTTP statuses and stable
// machine-readable codes for API responses.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrTrackNotFound       = errors.New("track not found")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrInvalidInput        = errors.New("invalid input")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInternal            = errors.New("internal error")
	ErrTimeout             = errors.New("operation timed out")
)

type kind struct {
	sentinel error
	status   int
	code     string
	retry    bool
}

// kinds is checked in order; the first sentinel in an error's chain wins.
var kinds = []kind{
	{ErrTrackNotFound, http.StatusNotFound, "track_not_found", false},
	{ErrInvalidInput, http.StatusBadRequest, "invalid_input", false},
	{ErrRateLimited, http.StatusTooManyRequests, "rate_limited", false},
	{ErrUnauthorized, http.StatusUnauthorized, "unauthorized", false},
	{ErrProviderUnavailable, http.StatusBadGateway, "provider_unavailable", true},
	{ErrTimeout, http.StatusServiceUnavailable, "timeout", true},
	{ErrInternal, http.StatusInternalServerError, "internal", true},
}

func lookup(err error) (kind, bool) {
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k, true
		}
	}
	return kind{}, false
}

// AppError pins a sentinel to an explicit status and a user-facing message.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return New(sentinel, statusCode, fmt.Sprintf(format, args...))
}

// Retryable reports whether a failed provider call is worth repeating.
// Bad input, rejected credentials, throttling and missing tracks are not;
// unclassified errors (network resets) are.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if k, ok := lookup(err); ok {
		return k.retry
	}
	return true
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}
	if k, ok := lookup(err); ok {
		return k.status
	}
	return http.StatusInternalServerError
}

// Code returns the machine-readable code for err, "internal" when no
// sentinel is wrapped.
func Code(err error) string {
	if k, ok := lookup(err); ok {
		return k.code
	}
	return "internal"
}
