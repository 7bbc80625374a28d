// Package retry re-runs operations that failed with a transient store error.
//
// Only failures classified as retryable (store_unavailable, timeout, or the
// sentinel.ErrUnavailable fact) are retried; everything else is returned on
// the first attempt. Callers must only wrap reads and idempotent writes.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	dErrors "saferide/pkg/domain-errors"
	"saferide/pkg/platform/sentinel"
)

// Policy bounds how many times and how quickly an operation is retried.
type Policy struct {
	// Attempts is the total number of tries including the first. Values < 1 mean 1.
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy retries three times within roughly half a second.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:        3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     400 * time.Millisecond,
	}
}

// NotifyFunc observes each failed attempt that will be retried.
type NotifyFunc func(err error, wait time.Duration)

// Do runs fn until it succeeds, fails permanently, attempts run out, or ctx ends.
// A failure observed after ctx ended is returned as-is without retrying.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error, notify NotifyFunc) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0
	eb.Reset()

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)

	op := func() error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var onRetry backoff.Notify
	if notify != nil {
		onRetry = backoff.Notify(notify)
	}
	return backoff.RetryNotify(op, b, onRetry)
}

// Retryable reports whether err is a transient infrastructure failure.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if dErrors.IsRetryable(err) {
		return true
	}
	return errors.Is(err, sentinel.ErrUnavailable)
}
