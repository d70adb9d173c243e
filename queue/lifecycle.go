package queue

import (
	"time"

	"github.com/priomq/priomq-go/contracts"
)

// MarkCompleted finalizes the entry and removes it from tracking.
// Returns false, as an idempotent no-op, when the id is unknown or the
// entry already reached a terminal state.
func (q *PriorityMessageQueue) MarkCompleted(id string) bool {
	q.mu.Lock()
	entry, ok := q.entries[id]
	if !ok || entry.Status.Terminal() {
		q.mu.Unlock()
		return false
	}

	if entry.Status == contracts.StatusQueued {
		q.removeFromLane(entry)
	}

	now := time.Now().UTC()
	entry.Status = contracts.StatusCompleted
	entry.CompletedAt = &now
	delete(q.entries, id)
	q.completedTotal++
	q.mu.Unlock()
	return true
}

// MarkFailed records a failed processing attempt for the entry.
//
// When kind is retryable and the retry budget is not exhausted, the entry
// goes back to Queued at the tail of its priority lane with NextRetryAt
// computed from the queue's retry policy. Otherwise the entry reaches
// terminal Failed, is removed from tracking, and a RetryExceeded
// notification fires.
//
// Returns false when the id is unknown or the entry is already terminal.
func (q *PriorityMessageQueue) MarkFailed(id string, kind contracts.ErrorKind, message string) bool {
	q.mu.Lock()
	entry, ok := q.entries[id]
	if !ok || entry.Status.Terminal() {
		q.mu.Unlock()
		return false
	}

	now := time.Now().UTC()
	entry.RetryCount++
	entry.LastRetryAt = &now
	entry.LastError = message

	if kind.Retryable() && entry.RetryCount < q.policy.MaxRetries() {
		next := now.Add(q.policy.NextDelay(entry.RetryCount))
		entry.NextRetryAt = &next
		if entry.Status == contracts.StatusProcessing {
			// A Queued entry already sits in its lane; appending again
			// would hand out the same id twice.
			entry.Status = contracts.StatusQueued
			entry.DequeuedAt = nil
			q.lanes[entry.Priority] = append(q.lanes[entry.Priority], entry)
		}
		q.mu.Unlock()
		return true
	}

	if entry.Status == contracts.StatusQueued {
		q.removeFromLane(entry)
	}
	entry.Status = contracts.StatusFailed
	entry.NextRetryAt = nil
	delete(q.entries, id)
	q.failedTotal++
	snapshot := entry.Clone()
	q.mu.Unlock()

	q.notify(func(l Listener) { l.OnRetryExceeded(snapshot) })
	return true
}

// GetStatus returns the entry's lifecycle status, or StatusUnknown when
// the id is not tracked. It never returns an error.
func (q *PriorityMessageQueue) GetStatus(id string) contracts.Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.entries[id]
	if !ok {
		return contracts.StatusUnknown
	}
	return entry.Status
}
