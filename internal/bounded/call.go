// Package bounded runs slow external calls against a deadline.
package bounded

import (
	"context"
	"fmt"
	"time"
)

// Call runs fn with a context cancelled after timeout and returns when fn
// finishes or the deadline passes, whichever is first. A result arriving
// after the deadline is discarded. A panic in fn is returned as an error.
// A non-positive timeout only inherits ctx's own deadline.
func Call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		value T
		err   error
	}
	resultChan := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultChan <- outcome{err: fmt.Errorf("panic in bounded call: %v", r)}
			}
		}()
		v, err := fn(ctx)
		resultChan <- outcome{value: v, err: err}
	}()

	select {
	case o := <-resultChan:
		return o.value, o.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("bounded call: %w", ctx.Err())
	}
}
