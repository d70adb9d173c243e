// Package reliability provides the resilience layer for priomq consumers.
//
// This package implements common reliability patterns:
//   - Circuit Breaker: prevents cascading calls to a failing downstream dependency
//   - Retry Policies: configurable retry strategies (exponential backoff, linear, fixed)
//   - Retry Executor: generic wrapper executing an operation under a retry policy
//
// Key features:
//   - Thread-safe implementations suitable for concurrent use
//   - Configurable thresholds and timeouts
//   - Error classification via the contracts.ErrorKind table (transient vs permanent)
//   - Decorator composition: the retry executor's operation may itself be a
//     circuit-breaker-guarded call, giving per-attempt breaker checks
//
// Example usage:
//
//	cb := NewCircuitBreaker(
//	    WithFailureThreshold(5),
//	    WithOpenTimeout(30 * time.Second),
//	)
//
//	policy := NewExponentialBackoff(100*time.Millisecond, 10*time.Second, 2.0, 3)
//	result, err := Execute(ctx, policy, WithCircuitBreaker(cb, fetchRemote))
package reliability
