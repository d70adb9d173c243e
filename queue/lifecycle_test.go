package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priomq/priomq-go/contracts"
	"github.com/priomq/priomq-go/reliability"
)

func TestMarkCompleted(t *testing.T) {
	t.Run("completes a processing entry", func(t *testing.T) {
		q := New()
		defer q.Close()

		id, _ := q.Enqueue(testMessage("work"), contracts.PriorityNormal)
		_, err := q.Dequeue(context.Background())
		require.NoError(t, err)

		assert.True(t, q.MarkCompleted(id))
		assert.Equal(t, contracts.StatusUnknown, q.GetStatus(id))
		assert.Equal(t, 0, q.Len())
	})

	t.Run("second call is a no-op", func(t *testing.T) {
		q := New()
		defer q.Close()

		id, _ := q.Enqueue(testMessage("work"), contracts.PriorityNormal)
		q.Dequeue(context.Background())

		assert.True(t, q.MarkCompleted(id))
		assert.False(t, q.MarkCompleted(id))
	})

	t.Run("unknown id returns false", func(t *testing.T) {
		q := New()
		defer q.Close()

		assert.False(t, q.MarkCompleted("no-such-id"))
	})

	t.Run("completes a queued entry directly", func(t *testing.T) {
		q := New()
		defer q.Close()

		id, _ := q.Enqueue(testMessage("work"), contracts.PriorityHigh)

		assert.True(t, q.MarkCompleted(id))
		assert.Equal(t, 0, q.Len())

		// The lane no longer yields it
		entry, err := q.Dequeue(context.Background())
		assert.NoError(t, err)
		assert.Nil(t, entry)
	})
}

func TestMarkFailed(t *testing.T) {
	t.Run("retryable failure requeues with retry metadata", func(t *testing.T) {
		q := New(WithRetryPolicy(reliability.NewFixedDelay(time.Minute, 3)))
		defer q.Close()

		id, _ := q.Enqueue(testMessage("work"), contracts.PriorityNormal)
		q.Dequeue(context.Background())

		assert.True(t, q.MarkFailed(id, contracts.ErrorKindNetwork, "connection reset"))
		assert.Equal(t, contracts.StatusQueued, q.GetStatus(id))

		entry, err := q.Dequeue(context.Background())
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, id, entry.ID)
		assert.Equal(t, 1, entry.RetryCount)
		assert.Equal(t, "connection reset", entry.LastError)
		assert.NotNil(t, entry.LastRetryAt)
		require.NotNil(t, entry.NextRetryAt)
		assert.True(t, entry.NextRetryAt.After(time.Now()))
	})

	t.Run("requeued entry goes to the tail of its lane", func(t *testing.T) {
		q := New(WithRetryPolicy(reliability.NewFixedDelay(time.Minute, 3)))
		defer q.Close()

		first, _ := q.Enqueue(testMessage("first"), contracts.PriorityNormal)
		second, _ := q.Enqueue(testMessage("second"), contracts.PriorityNormal)

		entry, _ := q.Dequeue(context.Background())
		require.Equal(t, first, entry.ID)
		q.MarkFailed(first, contracts.ErrorKindTimeout, "slow")

		entry, _ = q.Dequeue(context.Background())
		assert.Equal(t, second, entry.ID)
		entry, _ = q.Dequeue(context.Background())
		assert.Equal(t, first, entry.ID)
	})

	t.Run("failure report on a queued entry keeps a single lane slot", func(t *testing.T) {
		q := New(WithRetryPolicy(reliability.NewFixedDelay(time.Minute, 3)))
		defer q.Close()

		id, _ := q.Enqueue(testMessage("work"), contracts.PriorityNormal)

		assert.True(t, q.MarkFailed(id, contracts.ErrorKindNetwork, "connection reset"))
		assert.Equal(t, contracts.StatusQueued, q.GetStatus(id))

		entry, err := q.Dequeue(context.Background())
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, id, entry.ID)
		assert.Equal(t, 1, entry.RetryCount)
		require.NotNil(t, entry.NextRetryAt)

		// The id must not be handed out a second time.
		entry, err = q.Dequeue(context.Background())
		require.NoError(t, err)
		assert.Nil(t, entry)
		assert.True(t, q.MarkCompleted(id))
		assert.Equal(t, 0, q.Len())
	})

	t.Run("permanent error is terminal after one attempt", func(t *testing.T) {
		listener := &captureListener{}
		q := New(WithListener(listener), WithRetryPolicy(reliability.NewFixedDelay(time.Minute, 3)))
		defer q.Close()

		id, _ := q.Enqueue(testMessage("work"), contracts.PriorityNormal)
		q.Dequeue(context.Background())

		assert.True(t, q.MarkFailed(id, contracts.ErrorKindValidation, "schema mismatch"))
		assert.Equal(t, contracts.StatusUnknown, q.GetStatus(id))

		require.Len(t, listener.retryExceeded, 1)
		assert.Equal(t, id, listener.retryExceeded[0].ID)
		assert.Equal(t, contracts.StatusFailed, listener.retryExceeded[0].Status)
		assert.Equal(t, int64(1), q.GetStatistics().TotalFailed)
	})

	t.Run("retry budget exhaustion is terminal", func(t *testing.T) {
		listener := &captureListener{}
		q := New(WithListener(listener), WithRetryPolicy(reliability.NewFixedDelay(time.Millisecond, 2)))
		defer q.Close()

		id, _ := q.Enqueue(testMessage("work"), contracts.PriorityNormal)

		// attempt 1 and 2 requeue, attempt 3 hits the budget
		q.Dequeue(context.Background())
		assert.True(t, q.MarkFailed(id, contracts.ErrorKindNetwork, "attempt 1"))
		assert.Equal(t, contracts.StatusQueued, q.GetStatus(id))

		q.Dequeue(context.Background())
		assert.True(t, q.MarkFailed(id, contracts.ErrorKindNetwork, "attempt 2"))
		assert.Equal(t, contracts.StatusUnknown, q.GetStatus(id))

		require.Len(t, listener.retryExceeded, 1)
		assert.Equal(t, 2, listener.retryExceeded[0].RetryCount)
		assert.Nil(t, listener.retryExceeded[0].NextRetryAt)
	})

	t.Run("unknown id returns false", func(t *testing.T) {
		q := New()
		defer q.Close()

		assert.False(t, q.MarkFailed("no-such-id", contracts.ErrorKindNetwork, "oops"))
	})
}

func TestGetStatus(t *testing.T) {
	q := New()
	defer q.Close()

	assert.Equal(t, contracts.StatusUnknown, q.GetStatus("missing"))

	id, _ := q.Enqueue(testMessage("work"), contracts.PriorityNormal)
	assert.Equal(t, contracts.StatusQueued, q.GetStatus(id))

	q.Dequeue(context.Background())
	assert.Equal(t, contracts.StatusProcessing, q.GetStatus(id))
}

func TestGetStatistics(t *testing.T) {
	t.Run("empty queue", func(t *testing.T) {
		q := New()
		defer q.Close()

		stats := q.GetStatistics()
		assert.Equal(t, 0, stats.Tracked)
		assert.Equal(t, 0, stats.Queued)
		assert.Equal(t, 0, stats.Processing)
		assert.Nil(t, stats.OldestEnqueuedAt)
		assert.Nil(t, stats.NewestEnqueuedAt)
	})

	t.Run("tracks states, priorities and totals", func(t *testing.T) {
		q := New(WithRetryPolicy(reliability.NewFixedDelay(time.Minute, 1)))
		defer q.Close()

		a, _ := q.Enqueue(testMessage("a"), contracts.PriorityCritical)
		q.Enqueue(testMessage("b"), contracts.PriorityNormal)
		q.Enqueue(testMessage("c"), contracts.PriorityNormal)
		d, _ := q.Enqueue(testMessage("d"), contracts.PriorityLow)

		q.Dequeue(context.Background()) // a → processing
		q.MarkCompleted(a)

		q.Dequeue(context.Background()) // b → processing

		q.MarkFailed(d, contracts.ErrorKindValidation, "bad") // terminal

		stats := q.GetStatistics()
		assert.Equal(t, 2, stats.Tracked)
		assert.Equal(t, 1, stats.Queued)
		assert.Equal(t, 1, stats.Processing)
		assert.Equal(t, 2, stats.ByPriority[contracts.PriorityNormal])
		assert.Equal(t, int64(4), stats.TotalEnqueued)
		assert.Equal(t, int64(1), stats.TotalCompleted)
		assert.Equal(t, int64(1), stats.TotalFailed)
		require.NotNil(t, stats.OldestEnqueuedAt)
		require.NotNil(t, stats.NewestEnqueuedAt)
		assert.False(t, stats.OldestEnqueuedAt.After(*stats.NewestEnqueuedAt))
	})
}
