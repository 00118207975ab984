// Package bracket implements the mutually-exclusive capital queue of base
// §4.7: only one PlannedOrder sharing a capital pool may hold committed
// capital at a time, with FIFO reactivation once capital frees up.
package bracket

import (
	"context"
	"sync"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/robinmaple/trading-automation-sub001/internal/execution"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// pending is one queued-but-not-yet-activated order, with the capital pool
// it competes against.
type pending struct {
	order             *domain.PlannedOrder
	fillProbability   float64
	totalCapital      decimal.Decimal
	capitalCommitment decimal.Decimal
}

// Manager tracks active commitments per capital pool and the FIFO queue of
// orders still waiting for room.
type Manager struct {
	mu       sync.Mutex
	orch     *execution.Orchestrator
	active   map[string]decimal.Decimal // pool key -> committed capital
	inactive map[string][]*pending      // pool key -> FIFO queue
	log      zerolog.Logger
}

func New(orch *execution.Orchestrator, log zerolog.Logger) *Manager {
	return &Manager{
		orch:     orch,
		active:   make(map[string]decimal.Decimal),
		inactive: make(map[string][]*pending),
		log:      log.With().Str("component", "bracket_manager").Logger(),
	}
}

// poolKey groups competing orders; orders sharing the same symbol compete
// for the same capital pool in the reference design.
func poolKey(order *domain.PlannedOrder) string {
	return order.Symbol
}

// AddOrder activates the order immediately via the execution orchestrator
// if its capital fits within the pool's remaining budget; otherwise it is
// enqueued as inactive, per base §4.7.
func (m *Manager) AddOrder(ctx context.Context, order *domain.PlannedOrder, fillProbability float64, capitalCommitment, totalCapital decimal.Decimal, now time.Time) (execution.Outcome, error) {
	m.mu.Lock()
	key := poolKey(order)
	committed := m.active[key]
	fits := committed.Add(capitalCommitment).LessThanOrEqual(totalCapital)
	m.mu.Unlock()

	if !fits {
		m.mu.Lock()
		m.inactive[key] = append(m.inactive[key], &pending{
			order: order, fillProbability: fillProbability,
			totalCapital: totalCapital, capitalCommitment: capitalCommitment,
		})
		m.mu.Unlock()
		m.log.Info().Str("symbol", order.Symbol).Msg("order enqueued inactive; capital pool full")
		return execution.Outcome{Accepted: false, Reason: "capital pool full, enqueued"}, nil
	}

	outcome, err := m.orch.Submit(ctx, order, fillProbability, false, now)
	if err != nil {
		return outcome, err
	}
	if outcome.Accepted {
		m.mu.Lock()
		m.active[key] = committed.Add(capitalCommitment)
		m.mu.Unlock()
	}
	return outcome, nil
}

// HandleExit removes a filled/closed order from its pool's active
// commitment and scans the inactive queue FIFO for orders that now fit.
func (m *Manager) HandleExit(ctx context.Context, order *domain.PlannedOrder, capitalCommitment decimal.Decimal, reason string, now time.Time) {
	key := poolKey(order)

	m.mu.Lock()
	m.active[key] = m.active[key].Sub(capitalCommitment)
	if m.active[key].IsNegative() {
		m.active[key] = decimal.Zero
	}
	m.mu.Unlock()

	m.log.Info().Str("symbol", order.Symbol).Str("reason", reason).Msg("order exited; scanning reactivation queue")
	m.reactivate(ctx, key, now)
}

// reactivate scans the whole inactive queue for a pool once, front-to-back,
// activating every order that now fits within remaining capital rather than
// only the first one, per base §4.7 and the original's
// _reactivate_inactive_orders: an order that doesn't fit is skipped, not a
// stopping point, so a smaller order further back can still activate.
func (m *Manager) reactivate(ctx context.Context, key string, now time.Time) {
	m.mu.Lock()
	queue := m.inactive[key]
	committed := m.active[key]
	m.mu.Unlock()

	remaining := make([]*pending, 0, len(queue))
	for _, next := range queue {
		if !committed.Add(next.capitalCommitment).LessThanOrEqual(next.totalCapital) {
			remaining = append(remaining, next)
			continue
		}

		outcome, err := m.orch.Submit(ctx, next.order, next.fillProbability, false, now)
		if err != nil {
			m.log.Error().Err(err).Str("symbol", next.order.Symbol).Msg("failed to activate reactivated order")
			remaining = append(remaining, next)
			continue
		}
		if !outcome.Accepted {
			remaining = append(remaining, next)
			continue
		}
		committed = committed.Add(next.capitalCommitment)
	}

	m.mu.Lock()
	m.inactive[key] = remaining
	m.active[key] = committed
	m.mu.Unlock()
}

// CancelOrder requests broker cancellation for an already-active order and
// triggers a reactivation scan in its place.
func (m *Manager) CancelOrder(ctx context.Context, order *domain.ActiveOrder, broker domain.BrokerClient, capitalCommitment decimal.Decimal, now time.Time) error {
	for _, id := range order.OrderIDs {
		if _, err := broker.CancelOrder(ctx, id); err != nil {
			return err
		}
	}
	key := poolKey(order.Planned)
	m.mu.Lock()
	m.active[key] = m.active[key].Sub(capitalCommitment)
	if m.active[key].IsNegative() {
		m.active[key] = decimal.Zero
	}
	m.mu.Unlock()
	m.reactivate(ctx, key, now)
	return nil
}

// CancelInactiveOrder removes the first inactive queue entry matching
// symbol, per base §4.7.
func (m *Manager) CancelInactiveOrder(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, queue := range m.inactive {
		for i, p := range queue {
			if p.order.Symbol == symbol {
				m.inactive[key] = append(queue[:i], queue[i+1:]...)
				return true
			}
		}
	}
	return false
}

// CancelAllOrders drops the committed-capital and inactive-queue bookkeeping
// of each listed pool. It sends no cancellation to the broker: the broker
// argument is not used.
func (m *Manager) CancelAllOrders(ctx context.Context, pools []string, broker domain.BrokerClient) {
	for _, key := range pools {
		m.mu.Lock()
		delete(m.active, key)
		delete(m.inactive, key)
		m.mu.Unlock()
	}
}

// ListInactive returns a snapshot of queued symbols for a pool, for status reporting.
func (m *Manager) ListInactive(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.inactive[key]))
	for _, p := range m.inactive[key] {
		out = append(out, p.order.Symbol)
	}
	return out
}
