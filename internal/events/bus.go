// Package events implements the state service's synchronous pub/sub bus
// (base §4.8): subscribers register for order-state-change notifications and
// receive an OrderEvent on every accepted PlannedOrder mutation. A failing
// subscriber must never prevent its peers from being notified.
package events

import (
	"sync"

	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/rs/zerolog"
)

// Subscriber receives every accepted order-state-change event.
type Subscriber func(domain.OrderEvent)

// Bus is a single-topic, synchronous publish/subscribe fan-out. It is
// explicitly constructed (not a package-level singleton), per the Design
// Notes' instruction to make the state service's subscriber list an
// explicit constructor parameter for multi-instance testing.
type Bus struct {
	mu          sync.RWMutex
	subscribers []Subscriber
	log         zerolog.Logger
}

// NewBus constructs an empty bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{log: log.With().Str("component", "event_bus").Logger()}
}

// Subscribe registers fn to receive every future Publish call. There is no
// unsubscribe: subscribers live for the lifetime of the process, matching
// the teacher's registration pattern where listeners are wired once at
// startup.
func (b *Bus) Subscribe(fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, fn)
}

// Publish delivers ev to every subscriber in registration order. Delivery is
// synchronous and a panicking subscriber is recovered and logged so it
// cannot block delivery to the remaining subscribers.
func (b *Bus) Publish(ev domain.OrderEvent) {
	b.mu.RLock()
	subs := make([]Subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliverOne(sub, ev)
	}
}

func (b *Bus) deliverOne(sub Subscriber, ev domain.OrderEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Interface("panic", r).
				Int64("order_id", ev.OrderID).
				Msg("order event subscriber panicked, continuing delivery to remaining subscribers")
		}
	}()
	sub(ev)
}

// SubscriberCount reports the number of registered subscribers (used by the
// status HTTP surface).
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
