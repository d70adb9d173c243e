package queue

import (
	"log/slog"

	"github.com/priomq/priomq-go/contracts"
)

// Listener receives queue lifecycle notifications. Implementations are
// invoked synchronously after the queue releases its lock, so they must
// not call back into the queue's mutating operations and should return
// quickly.
type Listener interface {
	OnEnqueued(entry *contracts.QueueEntry)
	OnDequeued(entry *contracts.QueueEntry)
	OnExpired(entry *contracts.QueueEntry)
	OnRetryExceeded(entry *contracts.QueueEntry)
}

// NopListener discards all notifications.
type NopListener struct{}

func (NopListener) OnEnqueued(*contracts.QueueEntry)      {}
func (NopListener) OnDequeued(*contracts.QueueEntry)      {}
func (NopListener) OnExpired(*contracts.QueueEntry)       {}
func (NopListener) OnRetryExceeded(*contracts.QueueEntry) {}

// LoggingListener reports queue events through a structured logger.
type LoggingListener struct {
	logger *slog.Logger
}

// NewLoggingListener creates a listener logging to logger, or
// slog.Default() when nil.
func NewLoggingListener(logger *slog.Logger) *LoggingListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingListener{logger: logger}
}

func (l *LoggingListener) OnEnqueued(entry *contracts.QueueEntry) {
	l.logger.Debug("entry enqueued",
		"entryId", entry.ID,
		"priority", entry.Priority.String(),
		"expiresAt", entry.ExpiresAt,
	)
}

func (l *LoggingListener) OnDequeued(entry *contracts.QueueEntry) {
	l.logger.Debug("entry dequeued",
		"entryId", entry.ID,
		"priority", entry.Priority.String(),
		"retryCount", entry.RetryCount,
	)
}

func (l *LoggingListener) OnExpired(entry *contracts.QueueEntry) {
	l.logger.Warn("entry expired before processing",
		"entryId", entry.ID,
		"priority", entry.Priority.String(),
		"enqueuedAt", entry.EnqueuedAt,
	)
}

func (l *LoggingListener) OnRetryExceeded(entry *contracts.QueueEntry) {
	l.logger.Warn("entry failed terminally",
		"entryId", entry.ID,
		"retryCount", entry.RetryCount,
		"lastError", entry.LastError,
	)
}

// multiListener fans out notifications to several listeners in order.
type multiListener []Listener

// MultiListener combines listeners into one. Nil listeners are skipped.
func MultiListener(listeners ...Listener) Listener {
	var ml multiListener
	for _, l := range listeners {
		if l != nil {
			ml = append(ml, l)
		}
	}
	return ml
}

func (ml multiListener) OnEnqueued(entry *contracts.QueueEntry) {
	for _, l := range ml {
		l.OnEnqueued(entry)
	}
}

func (ml multiListener) OnDequeued(entry *contracts.QueueEntry) {
	for _, l := range ml {
		l.OnDequeued(entry)
	}
}

func (ml multiListener) OnExpired(entry *contracts.QueueEntry) {
	for _, l := range ml {
		l.OnExpired(entry)
	}
}

func (ml multiListener) OnRetryExceeded(entry *contracts.QueueEntry) {
	for _, l := range ml {
		l.OnRetryExceeded(entry)
	}
}
