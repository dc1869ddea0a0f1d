// Package events is the in-process publish/subscribe bus used for
// lifecycle notifications between components.
package events

import (
	"reflect"
	"sync"
	"time"
)

// Callback receives an event; a non-nil return value is published in turn
type Callback func(event any) any

// Listener is one subscription
type Listener struct {
	id        uint64
	Instance  any          // subscribing component, may be nil
	EventType reflect.Type // accepted event type
	Callback  Callback
}

// Accepts reports whether the listener takes events of t
func (l *Listener) Accepts(t reflect.Type) bool {
	return t.AssignableTo(l.EventType)
}

// Bus dispatches events synchronously to listeners in registration order
type Bus struct {
	mu        sync.RWMutex
	listeners []*Listener
	nextID    uint64
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers callback for events assignable to eventType and
// returns a function that removes the subscription
func (b *Bus) Subscribe(instance any, eventType reflect.Type, callback Callback) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	l := &Listener{id: b.nextID, Instance: instance, EventType: eventType, Callback: callback}
	b.listeners = append(b.listeners, l)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, existing := range b.listeners {
			if existing.id == l.id {
				b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
				return
			}
		}
	}
}

// On subscribes a typed handler
func On[E any](b *Bus, instance any, handler func(E) any) func() {
	return b.Subscribe(instance, reflect.TypeFor[E](), func(event any) any {
		return handler(event.(E))
	})
}

// Publish delivers event to every listener whose type is assignable from the
// event's runtime type, in registration order. Events returned by listeners
// are published recursively before the next listener runs. Nil is ignored.
func (b *Bus) Publish(event any) {
	if event == nil {
		return
	}
	eventType := reflect.TypeOf(event)

	b.mu.RLock()
	snapshot := make([]*Listener, len(b.listeners))
	copy(snapshot, b.listeners)
	b.mu.RUnlock()

	for _, l := range snapshot {
		if !l.Accepts(eventType) {
			continue
		}
		if result := l.Callback(event); result != nil {
			b.Publish(result)
		}
	}
}

// Listeners returns a copy of the current subscriptions
func (b *Bus) Listeners() []*Listener {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Listener, len(b.listeners))
	copy(out, b.listeners)
	return out
}

// Len returns the number of subscriptions
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// ContextRefreshed is published once the application finished booting
type ContextRefreshed struct {
	Components int
	Routes     int
	At         time.Time
}

// ContextClosed is published when the application shuts down
type ContextClosed struct {
	At time.Time
}
