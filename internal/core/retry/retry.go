// Package retry runs failure-prone calls under a Policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"github.com/vietddude/quotation/internal/core/metrics"
)

// ErrRetriesExhausted is wrapped around the last failure once a policy's
// attempt budget is spent.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Do executes op under policy p. It returns the first successful result,
// the first fatal failure as-is, or the last retryable failure wrapped with
// ErrRetriesExhausted. Cancelling ctx aborts between or during waits.
func Do[T any](ctx context.Context, name string, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var (
		result  T
		attempt int
		lastErr error
		fatal   bool
	)

	classify := p.Classify
	if classify == nil {
		classify = DefaultClassifier
	}

	backoff := observe(name, &attempt, &lastErr, p.schedule())

	err := goretry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		v, err := op(ctx)
		if err == nil {
			result = v
			return nil
		}

		lastErr = err
		if classify(err) == ActionFatal || ctx.Err() != nil {
			fatal = true
			return err
		}
		return goretry.RetryableError(err)
	})

	switch {
	case err == nil:
		return result, nil
	case ctx.Err() != nil:
		if lastErr != nil {
			return result, fmt.Errorf("%s aborted after %d attempt(s): %w (last error: %v)", name, attempt, ctx.Err(), lastErr)
		}
		return result, fmt.Errorf("%s aborted before first attempt: %w", name, ctx.Err())
	case fatal:
		return result, err
	default:
		metrics.RetriesExhausted.WithLabelValues(name).Inc()
		slog.Warn("Retries exhausted", "operation", name, "attempts", attempt, "error", lastErr)
		return result, fmt.Errorf("%w: %s failed after %d attempts: %w", ErrRetriesExhausted, name, attempt, lastErr)
	}
}

// Run is Do for operations without a result.
func Run(ctx context.Context, name string, p Policy, op func(ctx context.Context) error) error {
	_, err := Do(ctx, name, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// observe logs and counts every scheduled retry.
func observe(name string, attempt *int, lastErr *error, next goretry.Backoff) goretry.Backoff {
	return goretry.BackoffFunc(func() (time.Duration, bool) {
		delay, stop := next.Next()
		if stop {
			return 0, true
		}
		metrics.RetryAttempts.WithLabelValues(name).Inc()
		slog.Warn("Attempt failed, retrying",
			"operation", name,
			"attempt", *attempt,
			"delay", delay,
			"error", *lastErr,
		)
		return delay, false
	})
}
