package queue

import (
	"time"

	"github.com/priomq/priomq-go/contracts"
)

// startSweeper launches the background expiration sweeper. Its lifecycle
// is owned by the queue: Close stops it and waits for it to exit.
func (q *PriorityMessageQueue) startSweeper() {
	q.sweeperWG.Add(1)
	go q.sweeperLoop()
}

func (q *PriorityMessageQueue) sweeperLoop() {
	defer q.sweeperWG.Done()
	ticker := time.NewTicker(q.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.sweeperDone:
			return
		case <-ticker.C:
			q.sweepTick()
		}
	}
}

// sweepTick evicts queued entries whose expiration deadline has passed and
// fires one Expired notification per eviction. A panic inside a tick is
// recovered and logged so the periodic schedule never terminates.
func (q *PriorityMessageQueue) sweepTick() {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("expiration sweep failed", "panic", r)
		}
	}()

	evicted := q.evictExpired(time.Now().UTC())
	for _, e := range evicted {
		expired := e
		q.notify(func(l Listener) { l.OnExpired(expired) })
	}

	if len(evicted) > 0 {
		q.logger.Debug("expiration sweep evicted entries", "count", len(evicted))
	}
}

// evictExpired removes expired queued entries from both structures and
// returns snapshots for notification. Entries in Processing state are
// left alone; their fate belongs to the consumer holding them.
func (q *PriorityMessageQueue) evictExpired(now time.Time) []*contracts.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var evicted []*contracts.QueueEntry
	for id, entry := range q.entries {
		if entry.Status != contracts.StatusQueued || !entry.Expired(now) {
			continue
		}
		entry.Status = contracts.StatusExpired
		q.removeFromLane(entry)
		delete(q.entries, id)
		q.expiredTotal++
		evicted = append(evicted, entry.Clone())
	}
	return evicted
}
