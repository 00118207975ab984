// Package activeorders holds the in-memory table of submitted bracket
// orders shared by the execution orchestrator, the manager, and the status
// HTTP API (base §5 "Active-order map").
package activeorders

import (
	"sync"

	"github.com/robinmaple/trading-automation-sub001/internal/domain"
)

// Store is a read-write-mutex-guarded map of working ActiveOrders, keyed by
// their natural key (symbol|action|entry|stop).
type Store struct {
	mu      sync.RWMutex
	byKey   map[string]*domain.ActiveOrder
}

func New() *Store {
	return &Store{byKey: make(map[string]*domain.ActiveOrder)}
}

// Insert adds or overwrites an active order, as done by the execution
// orchestrator upon successful bracket submission.
func (s *Store) Insert(order *domain.ActiveOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[order.NaturalKey()] = order
}

// Remove drops an active order by natural key, as done by the manager once
// the order's position is no longer open.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byKey, key)
}

// Get returns the active order for a natural key, if any.
func (s *Store) Get(key string) (*domain.ActiveOrder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.byKey[key]
	return o, ok
}

// All returns a snapshot slice of every tracked active order.
func (s *Store) All() []*domain.ActiveOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.ActiveOrder, 0, len(s.byKey))
	for _, o := range s.byKey {
		out = append(out, o)
	}
	return out
}

// CountWorking returns how many tracked orders still occupy an open-order slot.
func (s *Store) CountWorking() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, o := range s.byKey {
		if o.IsWorking() {
			n++
		}
	}
	return n
}

// ExistsByKey reports whether an identical active order already exists,
// for the execution orchestrator's duplicate-submission guard.
func (s *Store) ExistsByKey(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// UpdateStatus mutates a tracked order's status in place, reporting whether
// an order with that key was tracked.
func (s *Store) UpdateStatus(key string, status domain.ActiveOrderStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byKey[key]
	if !ok {
		return false
	}
	o.Status = status
	return true
}
