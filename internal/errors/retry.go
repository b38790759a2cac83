package errors

import (
	"context"
)

// RetryOnce runs fn, and if it fails with an error for which isRecoverable
// returns true, runs recover once and retries fn exactly one more time.
//
// This is the map-size-doubling contract from the index's storage
// design: MapFull is recovered locally by growing the backing store and
// retrying the failing write transaction exactly once; if the retry
// also fails the error is re-surfaced to the caller. Unlike a generic
// backoff retry loop, there is no delay and no further attempt — the
// retry budget is exactly one, bounded per call to RetryOnce.
func RetryOnce(ctx context.Context, fn func() error, isRecoverable func(error) bool, recover func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := fn()
	if err == nil || !isRecoverable(err) {
		return err
	}

	if recErr := recover(); recErr != nil {
		return recErr
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return fn()
}
