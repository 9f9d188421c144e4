package mq

import (
	"context"

	"github.com/google/uuid"
)

// Message is a broker-agnostic payload.
type Message struct {
	ID          string
	ContentType string
	Data        []byte
	Attributes  map[string]string
}

// Publisher is implemented by every broker backend.
type Publisher interface {
	Publish(ctx context.Context, channel string, msg Message) (string, error)
	Close() error
}

// NewMessageID returns a fresh message identifier.
func NewMessageID() string {
	return uuid.NewString()
}

func (m Message) withDefaults() Message {
	if m.ID == "" {
		m.ID = NewMessageID()
	}
	if m.ContentType == "" {
		m.ContentType = "application/octet-stream"
	}
	return m
}
