package reliability

import (
	"context"
	"time"
)

// Operation is a caller-supplied asynchronous operation executed under a
// retry policy. It must honor ctx cancellation.
type Operation[T any] func(ctx context.Context) (T, error)

// RetryObserver is notified about each retry attempt for observability.
type RetryObserver func(attempt int, delay time.Duration, err error)

// ExecuteOptions configures a single Execute call.
type ExecuteOptions struct {
	// Op names the operation in errors and observer reports.
	Op string
	// OnRetry, when set, is invoked before each retry wait with the
	// upcoming attempt number, the computed delay, and the error that
	// triggered the retry.
	OnRetry RetryObserver
}

// ExecuteOption configures Execute.
type ExecuteOption func(*ExecuteOptions)

// WithOperationName names the operation for error reporting.
func WithOperationName(name string) ExecuteOption {
	return func(o *ExecuteOptions) {
		o.Op = name
	}
}

// WithRetryObserver reports each retry attempt.
func WithRetryObserver(fn RetryObserver) ExecuteOption {
	return func(o *ExecuteOptions) {
		o.OnRetry = fn
	}
}

// Execute runs op under policy, retrying transient failures with backoff.
//
// Semantics:
//   - first-attempt success returns immediately with no retry reported
//   - context cancellation, observed before an attempt or during the
//     inter-attempt wait, aborts the loop and returns ctx's error
//   - a non-retryable failure is returned as-is after a single attempt
//   - exhausting the policy's attempts wraps the last error in *RetryError,
//     distinguishing exhaustion from a single permanent failure
func Execute[T any](ctx context.Context, policy RetryPolicy, op Operation[T], options ...ExecuteOption) (T, error) {
	opts := ExecuteOptions{Op: "operation"}
	for _, o := range options {
		o(&opts)
	}

	var zero T
	var lastErr error
	start := time.Now()

	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			// The operation failed because the caller gave up; no
			// further attempts.
			return zero, ctx.Err()
		}

		lastErr = err

		shouldRetry, delay := policy.ShouldRetry(attempt, err)
		if !shouldRetry {
			if attempt >= policy.MaxRetries() && isRetryableError(err) {
				// Attempts exhausted on a transient error.
				return zero, &RetryError{
					Op:          opts.Op,
					Attempts:    attempt + 1,
					MaxAttempts: policy.MaxRetries(),
					LastError:   lastErr,
					Duration:    time.Since(start),
				}
			}
			return zero, lastErr
		}

		if opts.OnRetry != nil {
			opts.OnRetry(attempt+1, delay, err)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// WithCircuitBreaker decorates op with breaker protection. Composed with
// Execute this gives per-attempt breaker checks: once the breaker opens,
// the next attempt short-circuits with a *CircuitBreakerError and the
// retry loop stops.
func WithCircuitBreaker[T any](cb *CircuitBreaker, op Operation[T]) Operation[T] {
	return func(ctx context.Context) (T, error) {
		var result T
		err := cb.Execute(ctx, func() error {
			var opErr error
			result, opErr = op(ctx)
			return opErr
		})
		if err != nil {
			var zero T
			return zero, err
		}
		return result, nil
	}
}
