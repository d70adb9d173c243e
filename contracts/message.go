package contracts

import (
	"time"

	"github.com/google/uuid"
)

// Message is the base interface for all queue payloads.
type Message interface {
	GetID() string
	GetTimestamp() time.Time
	GetType() string
	GetContent() string
	GetMetadata() map[string]string
}

// BaseMessage provides common fields for all message types
type BaseMessage struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Type      string            `json:"type"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewBaseMessage creates a new base message with generated ID and current timestamp
func NewBaseMessage(messageType string) BaseMessage {
	return BaseMessage{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      messageType,
	}
}

// NewMessage creates a message carrying content and caller-opaque metadata.
func NewMessage(messageType, content string, metadata map[string]string) BaseMessage {
	msg := NewBaseMessage(messageType)
	msg.Content = content
	msg.Metadata = metadata
	return msg
}

// GetID returns the message ID
func (m BaseMessage) GetID() string {
	return m.ID
}

// GetTimestamp returns the message timestamp
func (m BaseMessage) GetTimestamp() time.Time {
	return m.Timestamp
}

// GetType returns the message type
func (m BaseMessage) GetType() string {
	return m.Type
}

// GetContent returns the message content
func (m BaseMessage) GetContent() string {
	return m.Content
}

// GetMetadata returns the caller-opaque metadata map
func (m BaseMessage) GetMetadata() map[string]string {
	return m.Metadata
}
