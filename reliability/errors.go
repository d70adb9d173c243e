package reliability

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/priomq/priomq-go/contracts"
)

var (
	// Circuit breaker errors
	ErrCircuitOpen          = errors.New("circuit breaker: circuit is open")
	ErrCircuitHalfOpenLimit = errors.New("circuit breaker: half-open request limit reached")
	ErrUnknownState         = errors.New("circuit breaker: unknown state")
	ErrExecutionAborted     = errors.New("circuit breaker: execution aborted")

	// Retry errors
	ErrMaxRetriesExceeded = errors.New("retry: maximum attempts exceeded")
	ErrNonRetryable       = errors.New("retry: error is not retryable")
)

// CircuitBreakerError represents a circuit breaker error with context
type CircuitBreakerError struct {
	State            State
	Op               string
	Failures         int
	FailureThreshold int
	LastFailure      time.Time
	NextRetry        time.Time
}

func (e *CircuitBreakerError) Error() string {
	switch e.State {
	case StateOpen:
		retryIn := time.Until(e.NextRetry).Round(time.Second)
		return fmt.Sprintf("circuit breaker open: %s blocked (failures=%d/%d, retry in %v)",
			e.Op, e.Failures, e.FailureThreshold, retryIn)
	case StateHalfOpen:
		return fmt.Sprintf("circuit breaker half-open: %s limited", e.Op)
	default:
		return fmt.Sprintf("circuit breaker error: %s in state %v", e.Op, e.State)
	}
}

// Kind returns the classification for a short-circuited call.
func (e *CircuitBreakerError) Kind() contracts.ErrorKind {
	return contracts.ErrorKindCircuitOpen
}

// IsRetryable reports false: a short-circuited call is surfaced to the
// caller rather than hammered by the retry executor while the breaker
// cools down.
func (e *CircuitBreakerError) IsRetryable() bool {
	return false
}

// RetryError reports retry exhaustion, distinct from a single
// non-retryable failure.
type RetryError struct {
	Op          string
	Attempts    int
	MaxAttempts int
	LastError   error
	Duration    time.Duration
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("retry failed: %s after %d/%d attempts over %v: %v",
		e.Op, e.Attempts, e.MaxAttempts, e.Duration.Round(time.Millisecond), e.LastError)
}

func (e *RetryError) Unwrap() error {
	return e.LastError
}

// Kind returns the classification for an exhausted retry loop.
func (e *RetryError) Kind() contracts.ErrorKind {
	return contracts.ErrorKindRetryExhausted
}

// IsRetryable reports false: exhaustion is final for this execution.
func (e *RetryError) IsRetryable() bool {
	return false
}

// IsCircuitOpen reports whether err is a short-circuit from an open or
// probe-limited breaker.
func IsCircuitOpen(err error) bool {
	var cbErr *CircuitBreakerError
	return errors.As(err, &cbErr)
}

// IsRetryExhausted reports whether err carries retry exhaustion.
func IsRetryExhausted(err error) bool {
	var rErr *RetryError
	return errors.As(err, &rErr)
}

// ErrorMetrics tracks error metrics
type ErrorMetrics struct {
	mu              sync.RWMutex
	totalErrors     int64
	retryableErrors int64
	fatalErrors     int64
	lastErrorTime   time.Time
	errorsByKind    map[contracts.ErrorKind]int64
}

// NewErrorMetrics creates a new error metrics tracker
func NewErrorMetrics() *ErrorMetrics {
	return &ErrorMetrics{
		errorsByKind: make(map[contracts.ErrorKind]int64),
	}
}

// RecordError records an error in metrics
func (m *ErrorMetrics) RecordError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kind := contracts.Classify(err)

	m.totalErrors++
	m.lastErrorTime = time.Now()
	m.errorsByKind[kind]++

	if kind.Retryable() {
		m.retryableErrors++
	} else {
		m.fatalErrors++
	}
}

// GetSnapshot returns a snapshot of current metrics
func (m *ErrorMetrics) GetSnapshot() ErrorMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	kindsCopy := make(map[contracts.ErrorKind]int64)
	for k, v := range m.errorsByKind {
		kindsCopy[k] = v
	}

	return ErrorMetricsSnapshot{
		TotalErrors:     m.totalErrors,
		RetryableErrors: m.retryableErrors,
		FatalErrors:     m.fatalErrors,
		LastErrorTime:   m.lastErrorTime,
		ErrorsByKind:    kindsCopy,
		Timestamp:       time.Now(),
	}
}

// ErrorMetricsSnapshot represents a point-in-time snapshot of error metrics
type ErrorMetricsSnapshot struct {
	TotalErrors     int64
	RetryableErrors int64
	FatalErrors     int64
	LastErrorTime   time.Time
	ErrorsByKind    map[contracts.ErrorKind]int64
	Timestamp       time.Time
}
