package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/priomq/priomq-go/contracts"
	"github.com/priomq/priomq-go/reliability"
)

// Sentinel failures for queue operations. Both carry a classified
// contracts.ErrorKind so callers can branch with errors.Is or Classify.
var (
	// ErrQueueFull is returned by Enqueue when the queue is at capacity.
	ErrQueueFull = contracts.NewOperationError(contracts.ErrorKindQueueFull, "queue is at capacity")
	// ErrQueueDisposed is returned by operations on a closed queue.
	ErrQueueDisposed = contracts.NewOperationError(contracts.ErrorKindDisposed, "queue has been closed")
	// ErrInvalidPriority is returned by Enqueue for out-of-range priorities.
	ErrInvalidPriority = contracts.NewOperationError(contracts.ErrorKindInvalidInput, "invalid priority")
)

// PriorityMessageQueue is a thread-safe priority queue of QueueEntry
// records, indexed by id for O(1) status lookup.
//
// Architecture:
//   - "lanes" holds one FIFO slice per priority class; Dequeue drains the
//     highest non-empty lane first, so ordering is strict priority with
//     FIFO tie-break.
//   - "entries" maps entry id → *QueueEntry for lifecycle operations.
//   - A background sweeper goroutine evicts expired queued entries on a
//     fixed interval; its lifecycle is tied to the queue (Close stops it).
//
// A single mutex serializes every mutation so the lanes and the id index
// can never disagree about which entries exist.
type PriorityMessageQueue struct {
	mu       sync.Mutex
	lanes    [contracts.NumPriorities][]*contracts.QueueEntry
	entries  map[string]*contracts.QueueEntry
	disposed bool

	capacity      int
	defaultTTL    time.Duration
	sweepInterval time.Duration
	policy        reliability.RetryPolicy
	listener      Listener
	logger        *slog.Logger

	// Cumulative counters survive entry removal so statistics can report
	// terminal outcomes after the entries are gone.
	enqueuedTotal  int64
	completedTotal int64
	failedTotal    int64
	expiredTotal   int64

	sweeperDone chan struct{}
	sweeperWG   sync.WaitGroup
}

// New creates a queue with the given options and starts its expiration
// sweeper. Call Close when the queue is no longer needed.
func New(options ...Option) *PriorityMessageQueue {
	q := &PriorityMessageQueue{
		entries:       make(map[string]*contracts.QueueEntry),
		capacity:      DefaultCapacity,
		defaultTTL:    DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		policy:        reliability.NewExponentialBackoff(time.Second, 30*time.Second, 2.0, 3),
		listener:      NopListener{},
		logger:        slog.Default(),
		sweeperDone:   make(chan struct{}),
	}

	for _, opt := range options {
		opt(q)
	}

	q.startSweeper()
	return q
}

// Enqueue creates a QueueEntry for msg at the given priority and returns
// its id. Returns ErrQueueFull at capacity and ErrQueueDisposed after
// Close; neither panics.
func (q *PriorityMessageQueue) Enqueue(msg contracts.Message, priority contracts.Priority) (string, error) {
	return q.EnqueueWithTTL(msg, priority, q.defaultTTL)
}

// EnqueueWithTTL enqueues msg with a per-entry time-to-live overriding the
// queue default. A non-positive ttl falls back to the queue default.
func (q *PriorityMessageQueue) EnqueueWithTTL(msg contracts.Message, priority contracts.Priority, ttl time.Duration) (string, error) {
	if !priority.Valid() {
		return "", ErrInvalidPriority
	}
	if ttl <= 0 {
		ttl = q.defaultTTL
	}

	q.mu.Lock()
	if q.disposed {
		q.mu.Unlock()
		return "", ErrQueueDisposed
	}
	if len(q.entries) >= q.capacity {
		q.mu.Unlock()
		return "", ErrQueueFull
	}

	entry := contracts.NewQueueEntry(msg, priority, ttl)
	q.entries[entry.ID] = entry
	q.lanes[priority] = append(q.lanes[priority], entry)
	q.enqueuedTotal++
	snapshot := entry.Clone()
	q.mu.Unlock()

	q.notify(func(l Listener) { l.OnEnqueued(snapshot) })
	return entry.ID, nil
}

// Dequeue returns the highest-priority, earliest-enqueued non-expired
// entry, transitioned to Processing, or (nil, nil) when no ready entry
// exists. Expired entries encountered during selection are evicted with
// one Expired notification each; the skip loop is bounded by the queue
// size. A cancelled context returns (nil, nil) and leaves the queue
// untouched.
func (q *PriorityMessageQueue) Dequeue(ctx context.Context) (*contracts.QueueEntry, error) {
	if ctx.Err() != nil {
		return nil, nil
	}

	q.mu.Lock()
	if q.disposed {
		q.mu.Unlock()
		return nil, ErrQueueDisposed
	}

	now := time.Now().UTC()
	var evicted []*contracts.QueueEntry
	var selected *contracts.QueueEntry

	// Drain lanes high to low. Every expired pop removes an entry, so
	// this terminates after at most len(entries) iterations even when
	// the whole queue is stale.
	for p := contracts.PriorityCritical; p >= contracts.PriorityLow && selected == nil; p-- {
		for len(q.lanes[p]) > 0 {
			entry := q.lanes[p][0]
			q.lanes[p] = q.lanes[p][1:]

			if entry.Expired(now) {
				entry.Status = contracts.StatusExpired
				delete(q.entries, entry.ID)
				q.expiredTotal++
				evicted = append(evicted, entry.Clone())
				continue
			}

			entry.Status = contracts.StatusProcessing
			dequeuedAt := now
			entry.DequeuedAt = &dequeuedAt
			selected = entry.Clone()
			break
		}
	}
	q.mu.Unlock()

	for _, e := range evicted {
		expired := e
		q.notify(func(l Listener) { l.OnExpired(expired) })
	}
	if selected != nil {
		q.notify(func(l Listener) { l.OnDequeued(selected) })
	}
	return selected, nil
}

// Clear atomically empties the lanes and the id index. Cumulative
// statistics counters are preserved.
func (q *PriorityMessageQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for p := range q.lanes {
		q.lanes[p] = nil
	}
	q.entries = make(map[string]*contracts.QueueEntry)
}

// GetPending returns a snapshot of every tracked entry without mutating
// queue state.
func (q *PriorityMessageQueue) GetPending() []*contracts.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := make([]*contracts.QueueEntry, 0, len(q.entries))
	for _, entry := range q.entries {
		pending = append(pending, entry.Clone())
	}
	return pending
}

// Len returns the number of tracked entries (queued plus processing).
func (q *PriorityMessageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Close stops the sweeper and marks the queue disposed. Subsequent
// Enqueue and Dequeue calls return ErrQueueDisposed. Close is idempotent.
func (q *PriorityMessageQueue) Close() error {
	q.mu.Lock()
	if q.disposed {
		q.mu.Unlock()
		return nil
	}
	q.disposed = true
	q.mu.Unlock()

	close(q.sweeperDone)
	q.sweeperWG.Wait()
	return nil
}

// removeFromLane removes entry from its priority lane, if present.
// Callers must hold q.mu. Entries in Processing state are not in any lane.
func (q *PriorityMessageQueue) removeFromLane(entry *contracts.QueueEntry) {
	lane := q.lanes[entry.Priority]
	for i, e := range lane {
		if e.ID == entry.ID {
			q.lanes[entry.Priority] = append(lane[:i], lane[i+1:]...)
			return
		}
	}
}

// notify delivers an event to the listener, recovering panics so a
// misbehaving collaborator can never corrupt queue state or kill the
// sweeper schedule.
func (q *PriorityMessageQueue) notify(fn func(Listener)) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queue listener panicked", "panic", r)
		}
	}()
	fn(q.listener)
}
