// Package event provides the typed broadcast bus connecting the game
// core's accepted mutations to the gateway fan-out, the journal and
// metrics.
package event

import (
	"reflect"
	"sync"
)

// Bus delivers typed events to subscribed handlers as they are
// emitted. Subscriptions happen during startup wiring; emission is
// concurrent, so handlers must be safe to call from any goroutine.
type Bus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]any
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[reflect.Type][]any)}
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.handlers[t] = append(b.handlers[t], fn)
}

// Emit calls every subscriber of type T with the event, in
// subscription order, on the caller's goroutine.
func Emit[T any](b *Bus, event T) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.mu.RLock()
	handlers := b.handlers[t]
	b.mu.RUnlock()
	for _, h := range handlers {
		// Safe: Subscribe stores handlers under the same type key.
		h.(func(T))(event)
	}
}
