package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrTrackNotFound, http.StatusNotFound},
		{fmt.Errorf("resolving: %w", ErrTrackNotFound), http.StatusNotFound},
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrRateLimited, http.StatusTooManyRequests},
		{ErrUnauthorized, http.StatusUnauthorized},
		{ErrProviderUnavailable, http.StatusBadGateway},
		{ErrTimeout, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
		{New(ErrInvalidInput, http.StatusUnprocessableEntity, "bad source"), http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatusCode(tt.err), tt.err.Error())
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrTrackNotFound, http.StatusNotFound, "no file for %s", "sc:1")
	assert.ErrorIs(t, err, ErrTrackNotFound)
	assert.Equal(t, "track not found: no file for sc:1", err.Error())
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(fmt.Errorf("search: %w", ErrUnauthorized)))
	assert.False(t, Retryable(ErrInvalidInput))
	assert.True(t, Retryable(ErrProviderUnavailable))
	assert.True(t, Retryable(errors.New("connection reset")))
}

func TestCode(t *testing.T) {
	assert.Equal(t, "track_not_found", Code(fmt.Errorf("piped: %w", ErrTrackNotFound)))
	assert.Equal(t, "provider_unavailable", Code(fmt.Errorf("%w: %w", ErrProviderUnavailable, errors.New("circuit open"))))
	assert.Equal(t, "rate_limited", Code(New(ErrRateLimited, http.StatusTooManyRequests, "slow down")))
	assert.Equal(t, "internal", Code(errors.New("boom")))
}

func TestTimeoutIsRetryable(t *testing.T) {
	assert.True(t, Retryable(fmt.Errorf("%w: deadline", ErrTimeout)))
	assert.False(t, Retryable(fmt.Errorf("sc: %w", ErrRateLimited)))
}
