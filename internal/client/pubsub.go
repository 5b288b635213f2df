// Package client is the consumer-side reconciliation layer: it applies
// optimistic local state for sent messages, queues sends made while
// disconnected, replays the queue on reconnect, and merges out-of-band events
// into local per-room state without violating per-room ordering.
package client

import (
	"sort"
	"sync"
)

// Disposer cancels a subscription. The type system enforces paired
// subscribe/unsubscribe: dropping the disposer is the only way to leak.
type Disposer func()

// Bus is a typed publish/subscribe fan-out. Handlers run synchronously on the
// publisher's goroutine, in subscription order.
type Bus[T any] struct {
	mu   sync.Mutex
	subs map[int]func(T)
	next int
}

func NewBus[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[int]func(T))}
}

// Subscribe registers a handler and returns its disposer.
func (b *Bus[T]) Subscribe(fn func(T)) Disposer {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers the event to every current subscriber.
func (b *Bus[T]) Publish(ev T) {
	b.mu.Lock()
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	// map order is random; deliver in subscription order
	sort.Ints(ids)
	handlers := make([]func(T), 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, b.subs[id])
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
}
