package util

import (
	"context"
	"errors"
	"time"
)

// RetryErrWithContextIf calls fn up to maxTries times while it fails with an
// error that retryable accepts. Context cancellation and non-retryable errors
// are returned immediately. Attempts are spaced by a short linear backoff.
func RetryErrWithContextIf(
	ctx context.Context,
	maxTries int,
	retryable func(error) bool,
	fn func(context.Context) error,
) error {
	if maxTries <= 0 {
		maxTries = 1
	}

	var lastErr error
	for i := 0; i < maxTries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
		if i < maxTries-1 {
			if err := sleep(ctx, time.Duration(i+1)*25*time.Millisecond); err != nil {
				return err
			}
		}
	}
	return lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
