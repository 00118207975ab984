// Package stateservice is the sole authority for mutating PlannedOrder.Status
// and closing ExecutedOrder.IsOpen (base §4.8). Every other component reads
// state; none but this service writes it.
package stateservice

import (
	"fmt"
	"sync"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/robinmaple/trading-automation-sub001/internal/events"
	"github.com/robinmaple/trading-automation-sub001/internal/persistence"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Service validates and commits PlannedOrder state transitions and publishes
// the resulting OrderEvent to its bus.
type Service struct {
	mu           sync.Mutex
	plannedRepo  *persistence.PlannedOrderRepository
	executedRepo *persistence.ExecutedOrderRepository
	bus          *events.Bus
	log          zerolog.Logger
}

// New constructs a state service. bus is an explicit parameter (not a
// package singleton) so tests can construct multiple independent instances.
func New(plannedRepo *persistence.PlannedOrderRepository, executedRepo *persistence.ExecutedOrderRepository, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		plannedRepo:  plannedRepo,
		executedRepo: executedRepo,
		bus:          bus,
		log:          log.With().Str("service", "state").Logger(),
	}
}

// Subscribe registers fn for every future order-state-change event.
func (s *Service) Subscribe(fn events.Subscriber) {
	s.bus.Subscribe(fn)
}

// UpdatePlannedOrderState validates and commits a PlannedOrder status
// transition. Terminal states ({CANCELLED, EXPIRED, LIQUIDATED,
// LIQUIDATED_EXTERNALLY}) can never be left; same-state writes are
// no-ops that still return true. On success the order's in-memory Status
// is updated and an OrderEvent is published synchronously to all subscribers.
func (s *Service) UpdatePlannedOrderState(order *domain.PlannedOrder, newStatus domain.OrderStatus, reason, source string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.Status == newStatus {
		return true, nil
	}
	if order.Status.IsTerminal() {
		s.log.Warn().
			Int64("order_id", order.ID).
			Str("from", string(order.Status)).
			Str("to", string(newStatus)).
			Msg("rejected transition out of terminal state")
		return false, nil
	}

	old := order.Status
	if err := s.plannedRepo.UpdateStatus(order.ID, newStatus, reason, order.BrokerOrderIDs); err != nil {
		return false, fmt.Errorf("failed to commit state transition for order %d: %w", order.ID, err)
	}

	order.Status = newStatus
	order.StatusReason = reason
	order.UpdatedAt = time.Now().UTC()

	s.bus.Publish(domain.OrderEvent{
		OrderID:   order.ID,
		Symbol:    order.Symbol,
		OldState:  old,
		NewState:  newStatus,
		Timestamp: order.UpdatedAt,
		Source:    source,
		Details:   map[string]interface{}{"reason": reason},
	})
	return true, nil
}

// CloseExecutedOrder closes an ExecutedOrder and records its realized P&L
// against the account ledger, the other mutation this service exclusively owns.
func (s *Service) CloseExecutedOrder(executedOrderID int64, symbol string, action domain.Action, entry, exit decimal.Decimal, quantity int64, accountNumber string, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pnl := domain.RealizedPnLForClose(action, entry, exit, quantity)
	if err := s.executedRepo.Close(executedOrderID, closedAt, pnl); err != nil {
		return fmt.Errorf("failed to close executed order %d: %w", executedOrderID, err)
	}
	if err := s.executedRepo.RecordRealizedPnL(executedOrderID, symbol, pnl, closedAt, accountNumber); err != nil {
		return fmt.Errorf("failed to record realized pnl for executed order %d: %w", executedOrderID, err)
	}
	return nil
}
