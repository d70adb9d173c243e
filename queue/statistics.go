package queue

import (
	"time"

	"github.com/priomq/priomq-go/contracts"
)

// QueueStatistics is a derived, read-only aggregate recomputed on demand.
// Queued/Processing and the per-priority counts reflect currently tracked
// entries; the Total* counters are cumulative over the queue's lifetime.
type QueueStatistics struct {
	Tracked    int `json:"tracked"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`

	ByPriority map[contracts.Priority]int `json:"byPriority"`

	TotalEnqueued  int64 `json:"totalEnqueued"`
	TotalCompleted int64 `json:"totalCompleted"`
	TotalFailed    int64 `json:"totalFailed"`
	TotalExpired   int64 `json:"totalExpired"`

	OldestEnqueuedAt *time.Time `json:"oldestEnqueuedAt,omitempty"`
	NewestEnqueuedAt *time.Time `json:"newestEnqueuedAt,omitempty"`
}

// GetStatistics computes a statistics snapshot.
func (q *PriorityMessageQueue) GetStatistics() QueueStatistics {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := QueueStatistics{
		Tracked:        len(q.entries),
		ByPriority:     make(map[contracts.Priority]int, contracts.NumPriorities),
		TotalEnqueued:  q.enqueuedTotal,
		TotalCompleted: q.completedTotal,
		TotalFailed:    q.failedTotal,
		TotalExpired:   q.expiredTotal,
	}

	for _, entry := range q.entries {
		stats.ByPriority[entry.Priority]++

		switch entry.Status {
		case contracts.StatusQueued:
			stats.Queued++
		case contracts.StatusProcessing:
			stats.Processing++
		}

		enqueuedAt := entry.EnqueuedAt
		if stats.OldestEnqueuedAt == nil || enqueuedAt.Before(*stats.OldestEnqueuedAt) {
			t := enqueuedAt
			stats.OldestEnqueuedAt = &t
		}
		if stats.NewestEnqueuedAt == nil || enqueuedAt.After(*stats.NewestEnqueuedAt) {
			t := enqueuedAt
			stats.NewestEnqueuedAt = &t
		}
	}

	return stats
}
