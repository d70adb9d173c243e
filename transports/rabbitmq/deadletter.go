// Package rabbitmq forwards terminally failed and expired queue entries to
// an AMQP dead-letter exchange, so an external collaborator (replay
// tooling, alerting, archival) can pick them up.
//
// The publisher implements queue.Listener: register it with
// queue.WithListener (or combine it with others via queue.MultiListener)
// and every RetryExceeded and Expired entry is published as a persistent
// JSON envelope. Enqueued and Dequeued events are ignored.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/priomq/priomq-go/contracts"
)

// DeadLetterEnvelope is the wire format for a dead-lettered entry.
type DeadLetterEnvelope struct {
	EntryID     string            `json:"entryId"`
	Priority    string            `json:"priority"`
	Reason      string            `json:"reason"`
	MessageID   string            `json:"messageId,omitempty"`
	MessageType string            `json:"messageType,omitempty"`
	Content     string            `json:"content,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	EnqueuedAt  time.Time         `json:"enqueuedAt"`
	ExpiresAt   time.Time         `json:"expiresAt"`
	RetryCount  int               `json:"retryCount"`
	LastError   string            `json:"lastError,omitempty"`
	DeadAt      time.Time         `json:"deadAt"`
}

// Dead-letter reasons carried in the envelope and routing key.
const (
	ReasonRetryExceeded = "retry-exceeded"
	ReasonExpired       = "expired"
)

// channelPublisher is the subset of *amqp.Channel the publisher needs.
// Narrowed to an interface so tests can run without a broker.
type channelPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
}

// DeadLetterPublisher publishes dead-lettered entries to an AMQP exchange.
type DeadLetterPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  channelPublisher
	exchange string
	timeout  time.Duration
	logger   *slog.Logger
}

// DeadLetterOption configures the publisher
type DeadLetterOption func(*DeadLetterPublisher)

// WithExchange sets the target exchange name.
func WithExchange(exchange string) DeadLetterOption {
	return func(p *DeadLetterPublisher) {
		if exchange != "" {
			p.exchange = exchange
		}
	}
}

// WithPublishTimeout bounds each publish call.
func WithPublishTimeout(timeout time.Duration) DeadLetterOption {
	return func(p *DeadLetterPublisher) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// WithDeadLetterLogger sets the logger.
func WithDeadLetterLogger(logger *slog.Logger) DeadLetterOption {
	return func(p *DeadLetterPublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewDeadLetterPublisher connects to the broker at connectionString and
// declares the durable dead-letter exchange.
func NewDeadLetterPublisher(connectionString string, options ...DeadLetterOption) (*DeadLetterPublisher, error) {
	p := &DeadLetterPublisher{
		exchange: "priomq.dead-letter",
		timeout:  5 * time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range options {
		opt(p)
	}

	conn, err := amqp.Dial(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p.conn = conn
	p.channel = channel

	if err := p.declareExchange(); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *DeadLetterPublisher) declareExchange() error {
	err := p.channel.ExchangeDeclare(
		p.exchange, // name
		"topic",    // kind
		true,       // durable
		false,      // autoDelete
		false,      // internal
		false,      // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", p.exchange, err)
	}
	return nil
}

// OnEnqueued implements queue.Listener. No-op.
func (p *DeadLetterPublisher) OnEnqueued(*contracts.QueueEntry) {}

// OnDequeued implements queue.Listener. No-op.
func (p *DeadLetterPublisher) OnDequeued(*contracts.QueueEntry) {}

// OnExpired implements queue.Listener.
func (p *DeadLetterPublisher) OnExpired(entry *contracts.QueueEntry) {
	p.publish(entry, ReasonExpired)
}

// OnRetryExceeded implements queue.Listener.
func (p *DeadLetterPublisher) OnRetryExceeded(entry *contracts.QueueEntry) {
	p.publish(entry, ReasonRetryExceeded)
}

// publish forwards the entry, best-effort: a broker failure is logged and
// never propagated back into the queue's notification path.
func (p *DeadLetterPublisher) publish(entry *contracts.QueueEntry, reason string) {
	envelope := buildEnvelope(entry, reason)

	body, err := json.Marshal(envelope)
	if err != nil {
		p.logger.Error("failed to marshal dead-letter envelope",
			"entryId", entry.ID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	routingKey := fmt.Sprintf("dead.%s.%s", reason, entry.Priority)

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    envelope.EntryID,
			Timestamp:    envelope.DeadAt,
			Headers: amqp.Table{
				"x-dead-reason": reason,
				"x-retry-count": int32(entry.RetryCount),
				"x-priority":    entry.Priority.String(),
				"x-last-error":  entry.LastError,
			},
		},
	)
	if err != nil {
		p.logger.Error("failed to publish dead-letter envelope",
			"entryId", entry.ID, "reason", reason, "error", err)
		return
	}

	p.logger.Info("dead-lettered entry forwarded",
		"entryId", entry.ID, "reason", reason, "routingKey", routingKey)
}

// buildEnvelope flattens a queue entry into the wire format.
func buildEnvelope(entry *contracts.QueueEntry, reason string) DeadLetterEnvelope {
	envelope := DeadLetterEnvelope{
		EntryID:    entry.ID,
		Priority:   entry.Priority.String(),
		Reason:     reason,
		Metadata:   entry.Metadata,
		EnqueuedAt: entry.EnqueuedAt,
		ExpiresAt:  entry.ExpiresAt,
		RetryCount: entry.RetryCount,
		LastError:  entry.LastError,
		DeadAt:     time.Now().UTC(),
	}
	if entry.Message != nil {
		envelope.MessageID = entry.Message.GetID()
		envelope.MessageType = entry.Message.GetType()
		envelope.Content = entry.Message.GetContent()
	}
	return envelope
}

// Close releases the channel and connection.
func (p *DeadLetterPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ch, ok := p.channel.(*amqp.Channel); ok && ch != nil {
		_ = ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
