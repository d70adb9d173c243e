package contracts

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for the retry and circuit breaker layers.
type ErrorKind int

const (
	ErrorKindUnknown ErrorKind = iota

	// Transient kinds, retried by the retry executor.
	ErrorKindNetwork
	ErrorKindTimeout
	ErrorKindServiceUnavailable
	ErrorKindThrottled

	// Permanent kinds, surfaced immediately and never retried.
	ErrorKindAuthentication
	ErrorKindAuthorization
	ErrorKindInvalidInput
	ErrorKindValidation
	ErrorKindNotFound

	// Queue and resilience kinds.
	ErrorKindQueueFull
	ErrorKindDisposed
	ErrorKindExpired
	ErrorKindRetryExhausted
	ErrorKindCircuitOpen
	ErrorKindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNetwork:
		return "network"
	case ErrorKindTimeout:
		return "timeout"
	case ErrorKindServiceUnavailable:
		return "service-unavailable"
	case ErrorKindThrottled:
		return "throttled"
	case ErrorKindAuthentication:
		return "authentication"
	case ErrorKindAuthorization:
		return "authorization"
	case ErrorKindInvalidInput:
		return "invalid-input"
	case ErrorKindValidation:
		return "validation"
	case ErrorKindNotFound:
		return "not-found"
	case ErrorKindQueueFull:
		return "queue-full"
	case ErrorKindDisposed:
		return "disposed"
	case ErrorKindExpired:
		return "expired"
	case ErrorKindRetryExhausted:
		return "retry-exhausted"
	case ErrorKindCircuitOpen:
		return "circuit-open"
	case ErrorKindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Retryable is the fixed classification table: transient kinds are
// retryable, everything else is not.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindNetwork, ErrorKindTimeout, ErrorKindServiceUnavailable, ErrorKindThrottled:
		return true
	default:
		return false
	}
}

// OperationError is a classified failure returned by queue operations and
// caller-supplied operations executed under the retry executor.
type OperationError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewOperationError creates a classified error.
func NewOperationError(kind ErrorKind, message string) *OperationError {
	return &OperationError{Kind: kind, Message: message}
}

// WrapOperationError classifies an underlying error.
func WrapOperationError(kind ErrorKind, message string, err error) *OperationError {
	return &OperationError{Kind: kind, Message: message, Err: err}
}

func (e *OperationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the error kind is transient. This satisfies
// the retryable probe used by the retry policies.
func (e *OperationError) IsRetryable() bool {
	return e.Kind.Retryable()
}

// Classify maps an error to its ErrorKind. Context cancellation and
// deadline expiry map to Cancelled and Timeout; unclassified errors map
// to Unknown.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrorKindUnknown
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	if errors.Is(err, context.Canceled) {
		return ErrorKindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}
	return ErrorKindUnknown
}
