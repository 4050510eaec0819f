// Package bus implements the process-scoped event fan-out that drives
// reporters. Subscribers are isolated from each
// other and from the bus: a handler that panics must not prevent other
// subscribers from receiving the event and must not corrupt the bus.
//
// Modeled on how a fan-out worker pool accounts each child run's
// outcome independently without a single failing child taking down the
// pool; here the "child" is a reporter's Handle call instead of a
// recursive run.
package bus

import (
	"sync"

	"github.com/qunitjs/qtap/types"
)

// Subscriber is the narrow, subscribe-only interface handed to
// reporters. Reporters never see the publishing side of the Bus, per
// reporter isolation.
type Subscriber interface {
	Handle(types.Event)
}

// SubscriberFunc adapts a function to a Subscriber.
type SubscriberFunc func(types.Event)

// Handle implements Subscriber.
func (f SubscriberFunc) Handle(e types.Event) { f(e) }

// Bus is a process-scoped publish/subscribe fan-out. The zero value is
// not usable; construct with New.
type Bus struct {
	mu          sync.Mutex
	subscribers []Subscriber
	onPanic     func(recovered any)
}

// New creates an empty Bus. onPanic, if non-nil, is invoked
// synchronously (still holding no lock) whenever a subscriber panics;
// the orchestrator uses it to convert the panic into a KindReporter
// error and trigger global cancellation.
func New(onPanic func(recovered any)) *Bus {
	return &Bus{onPanic: onPanic}
}

// Subscribe registers a subscriber. Safe to call concurrently with Publish.
func (b *Bus) Subscribe(s Subscriber) {
	b.mu.Lock()
	b.subscribers = append(b.subscribers, s)
	b.mu.Unlock()
}

// Publish delivers e to every subscriber synchronously, in subscription
// order (events emitted on the bus are delivered to
// subscribers synchronously in emit order." Each subscriber call is
// wrapped in its own failure barrier so one panicking reporter cannot
// prevent the rest from observing e, and cannot corrupt the bus itself.
func (b *Bus) Publish(e types.Event) {
	b.mu.Lock()
	subs := make([]Subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()

	for _, s := range subs {
		b.dispatch(s, e)
	}
}

func (b *Bus) dispatch(s Subscriber, e types.Event) {
	defer func() {
		if r := recover(); r != nil && b.onPanic != nil {
			b.onPanic(r)
		}
	}()
	s.Handle(e)
}
