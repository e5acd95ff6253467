package outbox

import "context"

// Event is any domain event with a name identifier.
type Event interface {
	EventName() string
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

// Bus is both ends of the in-process event pipe.
type Bus interface {
	Publisher
	Subscriber
}

// NopPublisher drops every event. Use it where no bus is wired.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
