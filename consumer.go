package priomq

import (
	"context"
	"fmt"
	"time"

	"github.com/priomq/priomq-go/contracts"
	"github.com/priomq/priomq-go/reliability"
)

// Handler processes a dequeued entry. Returning nil marks the entry
// completed; returning an error marks it failed with its classified kind,
// which may re-queue it for another delivery depending on the retry policy.
type Handler func(ctx context.Context, entry *contracts.QueueEntry) error

// Run polls the queue and feeds entries to handler until ctx is done.
// Each entry is executed under the client's retry policy, guarded by the
// circuit breaker named after the entry's message type, so transient
// handler failures are retried in place before the entry is marked failed.
//
// A cancellation observed mid-execution leaves the entry in Processing:
// the caller still owns it and may re-drive it after restart.
func (c *Client) Run(ctx context.Context, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("run: handler must not be nil")
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		entry, err := c.Dequeue(ctx)
		if err != nil {
			return err
		}
		if entry == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
			continue
		}

		c.process(ctx, entry, handler)
	}
}

// process executes one entry and reports the outcome to the lifecycle
// tracker.
func (c *Client) process(ctx context.Context, entry *contracts.QueueEntry, handler Handler) {
	dependency := "consumer"
	if entry.Message != nil && entry.Message.GetType() != "" {
		dependency = entry.Message.GetType()
	}

	_, err := ExecuteWithRetry(ctx, c, dependency, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, handler(ctx, entry)
	})
	if err == nil {
		c.MarkCompleted(entry.ID)
		return
	}

	if ctx.Err() != nil {
		// The consumer is shutting down, not the operation failing. The
		// entry stays in its last stable status for the caller to re-drive.
		c.logger.Info("processing cancelled", "entryId", entry.ID)
		return
	}

	kind := contracts.Classify(err)
	if reliability.IsRetryExhausted(err) {
		kind = contracts.ErrorKindRetryExhausted
	}
	c.MarkFailed(entry.ID, kind, err.Error())
	c.logger.Warn("entry processing failed",
		"entryId", entry.ID,
		"kind", kind.String(),
		"error", err,
	)
}
