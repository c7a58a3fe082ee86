// Package eventbus implements the in-process publish/subscribe bus carrying
// the alert lifecycle events defined in core/events.
package eventbus

// Event is an arbitrary event passed on the bus.
type Event interface{}

// EventBus is a fan-out publish/subscribe bus.
type EventBus interface {
	Publish(Event)
	Subscribe() <-chan Event
	Unsubscribe(<-chan Event)
	Close()
}

// Bus is the default EventBus implementation.
type Bus = Typed[Event]

// New creates an empty Bus.
func New() *Bus { return NewTyped[Event]() }
