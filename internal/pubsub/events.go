// Package pubsub fans events out from the engine side of neovis (redraw
// flushes, setting changes, log entries) to any number of listeners,
// usually the bubbletea update loop.
package pubsub

import (
	"context"
	"time"
)

// EventType tags what happened.
type EventType string

const (
	// FlushEvent marks the end of a redraw batch from the engine.
	FlushEvent EventType = "flush"
	// TitleEvent carries a new window title.
	TitleEvent EventType = "title"
	// ChangedEvent carries a setting whose value changed.
	ChangedEvent EventType = "changed"
	// LogEvent carries a formatted log entry.
	LogEvent EventType = "log"
)

// Event is a published payload with its type and publish time.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber hands out subscription channels.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher publishes typed payloads.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
