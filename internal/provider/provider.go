// Package provider defines the contract every upstream music source
// implements, plus a decorator that adds timeouts, a circuit breaker,
// bounded concurrency and metrics around any Provider.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/track"
	apperrors "github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/errors"
)

// Provider searches one upstream catalogue and resolves playable URLs.
type Provider interface {
	Source() track.Source
	Search(ctx context.Context, query string) ([]track.Candidate, error)
	// Resolve returns a direct audio URL. locator is the provider-specific
	// hint stored on the candidate and may be empty.
	Resolve(ctx context.Context, externalID, locator string) (string, error)
}

// DefaultHTTPClient is shared by providers that are not given one.
var DefaultHTTPClient = &http.Client{
	Timeout: 10 * time.Second,
	Transport: &http.Transport{
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
	},
}

// StatusError maps an unexpected upstream HTTP status to a sentinel.
func StatusError(name string, resp *http.Response) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: status %d: %w", name, resp.StatusCode, apperrors.ErrUnauthorized)
	case http.StatusNotFound:
		return fmt.Errorf("%s: status %d: %w", name, resp.StatusCode, apperrors.ErrTrackNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s: status %d: %w", name, resp.StatusCode, apperrors.ErrRateLimited)
	}
	return fmt.Errorf("%s: status %d: %w", name, resp.StatusCode, apperrors.ErrProviderUnavailable)
}

// CountsAsOutage reports whether err should trip a provider's breaker.
// Missing tracks, rejected keys (refreshed separately) and caller
// cancellation say nothing about upstream health.
func CountsAsOutage(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, apperrors.ErrTrackNotFound),
		errors.Is(err, apperrors.ErrInvalidInput),
		errors.Is(err, apperrors.ErrUnauthorized),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}
