// Package priomq wires the priority message queue together with the retry
// executor and per-dependency circuit breakers.
//
// A Client owns one PriorityMessageQueue, a default retry policy, and a
// lazily populated registry of named circuit breakers. Producers call
// Enqueue; consumers either drive Dequeue/MarkCompleted/MarkFailed by hand
// or hand a Handler to Run, which polls the queue and reports outcomes back
// to the lifecycle tracker.
package priomq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/priomq/priomq-go/config"
	"github.com/priomq/priomq-go/contracts"
	"github.com/priomq/priomq-go/queue"
	"github.com/priomq/priomq-go/reliability"
)

// Client provides the main entry point for priomq-go
type Client struct {
	queue        *queue.PriorityMessageQueue
	policy       reliability.RetryPolicy
	logger       *slog.Logger
	pollInterval time.Duration
	errorMetrics *reliability.ErrorMetrics

	breakerOptions []reliability.CircuitBreakerOption
	breakersMu     sync.Mutex
	breakers       map[string]*reliability.CircuitBreaker
}

type clientConfig struct {
	logger         *slog.Logger
	policy         reliability.RetryPolicy
	pollInterval   time.Duration
	queueOptions   []queue.Option
	breakerOptions []reliability.CircuitBreakerOption
}

// ClientOption configures the client
type ClientOption func(*clientConfig)

// WithLogger sets the structured logger used across the client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithDefaultLogger uses slog.Default().
func WithDefaultLogger() ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = slog.Default()
	}
}

// WithRetryPolicy sets the policy used by the retry executor and the
// queue's re-queue scheduling.
func WithRetryPolicy(policy reliability.RetryPolicy) ClientOption {
	return func(cfg *clientConfig) {
		if policy != nil {
			cfg.policy = policy
		}
	}
}

// WithPollInterval sets how long Run sleeps between polls of an empty queue.
func WithPollInterval(interval time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		if interval > 0 {
			cfg.pollInterval = interval
		}
	}
}

// WithQueueOptions forwards options to the underlying queue.
func WithQueueOptions(options ...queue.Option) ClientOption {
	return func(cfg *clientConfig) {
		cfg.queueOptions = append(cfg.queueOptions, options...)
	}
}

// WithBreakerOptions sets the options applied to every circuit breaker the
// client creates.
func WithBreakerOptions(options ...reliability.CircuitBreakerOption) ClientOption {
	return func(cfg *clientConfig) {
		cfg.breakerOptions = append(cfg.breakerOptions, options...)
	}
}

// NewClient creates a client with default settings.
func NewClient(options ...ClientOption) *Client {
	cfg := &clientConfig{
		logger:       slog.Default(),
		policy:       reliability.NewExponentialBackoff(time.Second, 30*time.Second, 2.0, 3),
		pollInterval: 100 * time.Millisecond,
	}

	for _, opt := range options {
		opt(cfg)
	}

	queueOptions := append([]queue.Option{
		queue.WithRetryPolicy(cfg.policy),
		queue.WithQueueLogger(cfg.logger),
		queue.WithListener(queue.NewLoggingListener(cfg.logger)),
	}, cfg.queueOptions...)

	return &Client{
		queue:          queue.New(queueOptions...),
		policy:         cfg.policy,
		logger:         cfg.logger,
		pollInterval:   cfg.pollInterval,
		errorMetrics:   reliability.NewErrorMetrics(),
		breakerOptions: cfg.breakerOptions,
		breakers:       make(map[string]*reliability.CircuitBreaker),
	}
}

// NewClientFromConfig creates a client from a loaded configuration.
// Options are applied after the configuration, so they win on conflict.
func NewClientFromConfig(cfg *config.Config, options ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	policy := policyFromConfig(cfg.Retry)

	base := []ClientOption{
		WithRetryPolicy(policy),
		WithPollInterval(cfg.Queue.PollInterval.Std()),
		WithQueueOptions(
			queue.WithCapacity(cfg.Queue.Capacity),
			queue.WithDefaultTTL(cfg.Queue.DefaultTTL.Std()),
			queue.WithSweepInterval(cfg.Queue.SweepInterval.Std()),
		),
		WithBreakerOptions(
			reliability.WithFailureThreshold(cfg.Breaker.FailureThreshold),
			reliability.WithOpenTimeout(cfg.Breaker.OpenTimeout.Std()),
			reliability.WithSuccessThreshold(cfg.Breaker.SuccessThreshold),
			reliability.WithHalfOpenRequests(cfg.Breaker.HalfOpenRequests),
		),
	}

	return NewClient(append(base, options...)...), nil
}

func policyFromConfig(rc config.RetryConfig) reliability.RetryPolicy {
	switch rc.Strategy {
	case config.BackoffLinear:
		policy := reliability.NewLinearBackoff(rc.InitialInterval.Std(), rc.MaxAttempts)
		policy.Jitter = rc.Jitter
		return policy
	case config.BackoffFixed:
		return reliability.NewFixedDelay(rc.InitialInterval.Std(), rc.MaxAttempts)
	default:
		policy := reliability.NewExponentialBackoff(rc.InitialInterval.Std(), rc.MaxInterval.Std(), rc.Multiplier, rc.MaxAttempts)
		policy.Jitter = rc.Jitter
		return policy
	}
}

// Enqueue adds msg to the queue at the given priority and returns the
// queue-assigned entry id.
func (c *Client) Enqueue(msg contracts.Message, priority contracts.Priority) (string, error) {
	return c.queue.Enqueue(msg, priority)
}

// EnqueueWithTTL enqueues msg with a per-entry time-to-live.
func (c *Client) EnqueueWithTTL(msg contracts.Message, priority contracts.Priority, ttl time.Duration) (string, error) {
	return c.queue.EnqueueWithTTL(msg, priority, ttl)
}

// Dequeue polls the queue for the next ready entry. See
// PriorityMessageQueue.Dequeue for the empty and cancellation semantics.
func (c *Client) Dequeue(ctx context.Context) (*contracts.QueueEntry, error) {
	return c.queue.Dequeue(ctx)
}

// MarkCompleted finalizes the entry identified by id.
func (c *Client) MarkCompleted(id string) bool {
	return c.queue.MarkCompleted(id)
}

// MarkFailed records a failed processing attempt for the entry.
func (c *Client) MarkFailed(id string, kind contracts.ErrorKind, message string) bool {
	return c.queue.MarkFailed(id, kind, message)
}

// GetStatus returns the entry's lifecycle status.
func (c *Client) GetStatus(id string) contracts.Status {
	return c.queue.GetStatus(id)
}

// GetStatistics returns a queue statistics snapshot.
func (c *Client) GetStatistics() queue.QueueStatistics {
	return c.queue.GetStatistics()
}

// GetPending returns a snapshot of all tracked entries.
func (c *Client) GetPending() []*contracts.QueueEntry {
	return c.queue.GetPending()
}

// Queue exposes the underlying queue for advanced composition.
func (c *Client) Queue() *queue.PriorityMessageQueue {
	return c.queue
}

// RetryPolicy returns the client's default retry policy.
func (c *Client) RetryPolicy() reliability.RetryPolicy {
	return c.policy
}

// Breaker returns the circuit breaker guarding the named dependency,
// creating it on first use.
func (c *Client) Breaker(dependency string) *reliability.CircuitBreaker {
	c.breakersMu.Lock()
	defer c.breakersMu.Unlock()

	if cb, ok := c.breakers[dependency]; ok {
		return cb
	}
	options := append([]reliability.CircuitBreakerOption{reliability.WithName(dependency)}, c.breakerOptions...)
	cb := reliability.NewCircuitBreaker(options...)
	c.breakers[dependency] = cb
	return cb
}

// ErrorMetricsSnapshot returns a snapshot of the failures observed by Run
// and ExecuteWithRetry.
func (c *Client) ErrorMetricsSnapshot() reliability.ErrorMetricsSnapshot {
	return c.errorMetrics.GetSnapshot()
}

// Close shuts the queue down. Entries still tracked are dropped.
func (c *Client) Close() error {
	return c.queue.Close()
}

// ExecuteWithRetry runs op under the client's retry policy, guarded by the
// dependency's circuit breaker. Each attempt re-checks the breaker, so a
// breaker tripped mid-loop surfaces a CircuitOpen failure instead of
// invoking op again.
func ExecuteWithRetry[T any](ctx context.Context, c *Client, dependency string, op reliability.Operation[T]) (T, error) {
	guarded := reliability.WithCircuitBreaker(c.Breaker(dependency), op)

	result, err := reliability.Execute(ctx, c.policy, guarded,
		reliability.WithOperationName(dependency),
		reliability.WithRetryObserver(func(attempt int, delay time.Duration, attemptErr error) {
			c.logger.Debug("retrying operation",
				"dependency", dependency,
				"attempt", attempt,
				"delay", delay,
				"error", attemptErr,
			)
		}),
	)
	if err != nil {
		c.errorMetrics.RecordError(err)
	}
	return result, err
}
