package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout runs fn under a deadline. fn keeps running in the background
// if it ignores its context, but the caller is released when the deadline
// passes. A zero timeout runs fn inline.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	_, err := WithTimeoutValue(ctx, timeout, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// WithTimeoutValue is WithTimeout for functions that produce a value.
// Errors distinguish the caller going away from the deadline firing.
func WithTimeoutValue[T any](ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeoutCause(ctx, timeout, errDeadline)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		if context.Cause(ctx) == errDeadline {
			return zero, fmt.Errorf("%s: %w after %v", name, context.DeadlineExceeded, timeout)
		}
		return zero, fmt.Errorf("%s: caller gave up: %w", name, ctx.Err())
	}
}

var errDeadline = fmt.Errorf("resilience deadline: %w", context.DeadlineExceeded)
