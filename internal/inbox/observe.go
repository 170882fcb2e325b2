package inbox

import (
	"sync"

	"github.com/google/uuid"
)

// observers is the subscription half of a store: a current-value read plus
// handler callbacks invoked after every mutation. Mutations are the only
// legal way to change store state, so handlers always see a snapshot that a
// store operation just produced.
type observers[T any] struct {
	mu       sync.Mutex
	handlers map[string]func(T)
}

func newObservers[T any]() *observers[T] {
	return &observers[T]{handlers: make(map[string]func(T))}
}

// subscribe registers a handler and returns a cancel func.
func (o *observers[T]) subscribe(handler func(T)) func() {
	if handler == nil {
		return func() {}
	}
	id := uuid.New().String()

	o.mu.Lock()
	o.handlers[id] = handler
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.handlers, id)
		o.mu.Unlock()
	}
}

// notify invokes every registered handler with the given snapshot.
func (o *observers[T]) notify(snapshot T) {
	o.mu.Lock()
	handlers := make([]func(T), 0, len(o.handlers))
	for _, handler := range o.handlers {
		handlers = append(handlers, handler)
	}
	o.mu.Unlock()

	for _, handler := range handlers {
		handler(snapshot)
	}
}
