package outbox

import (
	"context"
	"errors"
)

// ErrClosed is returned when publishing to a publisher that has been stopped.
var ErrClosed = errors.New("outbox: publisher closed")

// Event is any domain event with a name identifier.
type Event interface {
	EventName() string
}

// Keyed is implemented by events that carry a partitioning key. Brokers that
// support ordering per key (Kafka) use it; others ignore it.
type Keyed interface {
	EventKey() string
}

// Handler processes a published event.
type Handler func(ctx context.Context, e Event) error

// Publisher publishes events to interested subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers for event names.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}

// KeyOf returns the partitioning key of e, or "" when it has none.
func KeyOf(e Event) string {
	if k, ok := e.(Keyed); ok {
		return k.EventKey()
	}
	return ""
}
