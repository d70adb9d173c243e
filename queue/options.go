package queue

import (
	"log/slog"
	"time"

	"github.com/priomq/priomq-go/reliability"
)

// Defaults for queue construction.
const (
	DefaultCapacity      = 1000
	DefaultTTL           = time.Hour
	DefaultSweepInterval = 60 * time.Second
)

// Option configures a PriorityMessageQueue.
type Option func(*PriorityMessageQueue)

// WithCapacity sets the maximum number of tracked entries.
func WithCapacity(capacity int) Option {
	return func(q *PriorityMessageQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithDefaultTTL sets the expiration applied to entries enqueued without
// an explicit time-to-live.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(q *PriorityMessageQueue) {
		if ttl > 0 {
			q.defaultTTL = ttl
		}
	}
}

// WithSweepInterval sets how often the expiration sweeper runs.
func WithSweepInterval(interval time.Duration) Option {
	return func(q *PriorityMessageQueue) {
		if interval > 0 {
			q.sweepInterval = interval
		}
	}
}

// WithRetryPolicy sets the policy governing MarkFailed re-queueing:
// its MaxRetries bounds retryCount and its NextDelay computes NextRetryAt.
func WithRetryPolicy(policy reliability.RetryPolicy) Option {
	return func(q *PriorityMessageQueue) {
		if policy != nil {
			q.policy = policy
		}
	}
}

// WithListener sets the notification listener.
func WithListener(listener Listener) Option {
	return func(q *PriorityMessageQueue) {
		if listener != nil {
			q.listener = listener
		}
	}
}

// WithQueueLogger sets the logger used for sweeper and listener faults.
func WithQueueLogger(logger *slog.Logger) Option {
	return func(q *PriorityMessageQueue) {
		if logger != nil {
			q.logger = logger
		}
	}
}
