package contracts

import (
	"time"

	"github.com/google/uuid"
)

// Priority orders queue entries. Higher values are dequeued first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// NumPriorities is the number of priority classes.
const NumPriorities = 4

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Valid reports whether p is one of the defined priority classes.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// Status represents the lifecycle state of a queue entry.
type Status int

const (
	StatusQueued Status = iota
	StatusProcessing
	StatusCompleted
	StatusFailed
	StatusExpired
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final state. Entries in a terminal state
// are removed from active tracking.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

// ValidTransition reports whether the transition from → to is a legal
// state change for a queue entry.
//
// State diagram:
//
//	QUEUED ──► PROCESSING ──► COMPLETED
//	  │ ▲          │
//	  │ └──────────┤ (failed, retryable)
//	  ▼            ▼
//	EXPIRED      FAILED (retries exhausted or permanent error)
func ValidTransition(from, to Status) bool {
	switch from {
	case StatusQueued:
		return to == StatusProcessing || to == StatusExpired
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed || to == StatusQueued
	default:
		// Terminal states never transition.
		return false
	}
}

// QueueEntry is a tracked work item. It is created on enqueue and carries
// the payload message plus all lifecycle and retry bookkeeping.
type QueueEntry struct {
	ID          string            `json:"id"`
	Priority    Priority          `json:"priority"`
	Status      Status            `json:"status"`
	Message     Message           `json:"-"`
	EnqueuedAt  time.Time         `json:"enqueuedAt"`
	DequeuedAt  *time.Time        `json:"dequeuedAt,omitempty"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	ExpiresAt   time.Time         `json:"expiresAt"`
	LastRetryAt *time.Time        `json:"lastRetryAt,omitempty"`
	NextRetryAt *time.Time        `json:"nextRetryAt,omitempty"`
	RetryCount  int               `json:"retryCount"`
	LastError   string            `json:"lastError,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewQueueEntry creates a queued entry wrapping msg. The entry id is
// generated here and is the handle for all lifecycle operations; it is
// distinct from the message's own id. ttl must be positive so that
// ExpiresAt > EnqueuedAt holds.
func NewQueueEntry(msg Message, priority Priority, ttl time.Duration) *QueueEntry {
	now := time.Now().UTC()
	var metadata map[string]string
	if msg != nil {
		metadata = msg.GetMetadata()
	}
	return &QueueEntry{
		ID:         uuid.New().String(),
		Priority:   priority,
		Status:     StatusQueued,
		Message:    msg,
		EnqueuedAt: now,
		ExpiresAt:  now.Add(ttl),
		Metadata:   metadata,
	}
}

// Expired reports whether the entry's expiration deadline has passed at t.
func (e *QueueEntry) Expired(t time.Time) bool {
	return !e.ExpiresAt.After(t)
}

// Clone returns a shallow copy safe to hand to callers while the original
// remains under the queue's lock.
func (e *QueueEntry) Clone() *QueueEntry {
	c := *e
	return &c
}
