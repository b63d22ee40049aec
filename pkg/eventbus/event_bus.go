// Package eventbus carries stageflow messages between the API and the workers.
package eventbus

import (
	"context"

	"github.com/dukex/stageflow/pkg/events"
)

// Event is any message the bus can route by type.
type Event interface {
	GetType() events.EventType
}

// EventPublisher sends events. Events sharing a key keep their relative
// order; stageflow keys by community id.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber routes incoming events to the handler registered for
// their type. Handlers must be registered before Subscribe.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler processes one decoded event. A non-nil error asks the bus
// to redeliver the message.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
