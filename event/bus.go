package event

import (
	"sync"
)

// Handler processes events published on a Bus.
type Handler[Key comparable, Event any] interface {
	OnEvent(key Key, e Event)
}

// HandlerFunc is an adapter to allow the use of ordinary
// functions as Handlers.
type HandlerFunc[Key comparable, Event any] func(Key, Event)

// OnEvent calls f(key, e).
func (f HandlerFunc[Key, Event]) OnEvent(key Key, e Event) {
	f(key, e)
}

// Bus fans an event out to every registered handler. Dispatch is synchronous:
// OnEvent returns once all handlers have run, so a publisher observes handler
// side effects before continuing. Handlers run outside the bus lock and may
// safely register more handlers or publish again from inside a callback.
type Bus[Key comparable, Event any] struct {
	handlersMu sync.RWMutex
	handlers   []Handler[Key, Event]
	keyed      map[Key][]Handler[Key, Event]
}

func NewBus[Key comparable, Event any]() *Bus[Key, Event] {
	return &Bus[Key, Event]{
		keyed: make(map[Key][]Handler[Key, Event]),
	}
}

// AddHandler registers a handler for every event, regardless of key.
func (b *Bus[Key, Event]) AddHandler(h Handler[Key, Event]) {
	b.handlersMu.Lock()
	b.handlers = append(b.handlers, h)
	b.handlersMu.Unlock()
}

// AddKeyHandler registers a handler that only receives events published
// under the given key.
func (b *Bus[Key, Event]) AddKeyHandler(key Key, h Handler[Key, Event]) {
	b.handlersMu.Lock()
	b.keyed[key] = append(b.keyed[key], h)
	b.handlersMu.Unlock()
}

func (b *Bus[Key, Event]) OnEvent(key Key, e Event) {
	b.handlersMu.RLock()
	// Copy handlers to prevent race conditions
	handlers := make([]Handler[Key, Event], 0, len(b.handlers)+len(b.keyed[key]))
	handlers = append(handlers, b.handlers...)
	handlers = append(handlers, b.keyed[key]...)
	b.handlersMu.RUnlock()

	// Execute handlers outside the lock
	for _, h := range handlers {
		h.OnEvent(key, e)
	}
}
