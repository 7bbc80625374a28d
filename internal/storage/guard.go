// Package storage bounds every persistence call with a timeout and turns
// transport-level failures into the store_unavailable code.
package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	dErrors "saferide/pkg/domain-errors"
	"saferide/pkg/platform/retry"
	"saferide/pkg/platform/sentinel"
)

// DefaultTimeout bounds a single store round-trip.
const DefaultTimeout = 3 * time.Second

// Guard wraps store calls. The zero value uses DefaultTimeout and a single attempt.
type Guard struct {
	Timeout time.Duration
	Retry   retry.Policy
	Logger  *slog.Logger
	// OnRetry is called once per retried attempt, labelled with the operation name.
	OnRetry func(op string)
}

// NewGuard builds a Guard with the given timeout and retry policy.
func NewGuard(timeout time.Duration, policy retry.Policy, logger *slog.Logger) Guard {
	return Guard{Timeout: timeout, Retry: policy, Logger: logger}
}

// Once runs fn a single time under the store timeout. Use for writes whose
// commit status cannot be known after a failure.
func (g Guard) Once(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return g.classify(ctx, op, g.attempt(ctx, fn))
}

// Retrying runs fn under the store timeout, retrying transient failures. Use
// for reads and idempotent writes only.
func (g Guard) Retrying(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := retry.Do(ctx, g.Retry, func(ctx context.Context) error {
		return g.classify(ctx, op, g.attempt(ctx, fn))
	}, func(err error, wait time.Duration) {
		if g.Logger != nil {
			g.Logger.WarnContext(ctx, "retrying store operation",
				"op", op,
				"wait", wait,
				"error", err,
			)
		}
		if g.OnRetry != nil {
			g.OnRetry(op)
		}
	})
	return err
}

func (g Guard) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx)
}

// classify maps a timed-out or unreachable store to store_unavailable. A
// cancelled caller context is reported as a timeout instead so it is not retried
// past the caller's own deadline.
func (g Guard) classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if _, coded := dErrors.From(err); coded {
		return err
	}
	if ctx.Err() != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, op+": request cancelled")
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sentinel.ErrUnavailable) {
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, op+": store unavailable")
	}
	return err
}
