// Package reconciliation implements the background worker of base §4.9
// that converges internal state with broker truth at a configurable
// interval, with exponential backoff on consecutive failures.
package reconciliation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/activeorders"
	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/robinmaple/trading-automation-sub001/internal/persistence"
	"github.com/robinmaple/trading-automation-sub001/internal/stateservice"
	"github.com/rs/zerolog"
)

// priceMatchTolerance is the absolute price closeness used to match broker
// and internal orders by (symbol, action, entry), per base §4.9 "within 1¢".
const priceMatchTolerance = 0.01

// Discrepancy is one reconciliation finding.
type Discrepancy struct {
	Type   string
	Symbol string
	Detail string
}

// Engine is the background reconciliation loop, grounded on the fixed-
// cadence worker idiom used throughout this engine (mutex + stop channel +
// done channel, exponential backoff, a hard stop after too many failures).
type Engine struct {
	broker            domain.BrokerClient
	plannedRepo       *persistence.PlannedOrderRepository
	executedRepo      *persistence.ExecutedOrderRepository
	active            *activeorders.Store
	state             *stateservice.Service
	interval          time.Duration
	maxConsecutive    int
	priceTolerance    float64
	log               zerolog.Logger

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	healthy  bool
}

func New(broker domain.BrokerClient, plannedRepo *persistence.PlannedOrderRepository, executedRepo *persistence.ExecutedOrderRepository, active *activeorders.Store, state *stateservice.Service, interval time.Duration, maxConsecutiveErrors int, priceTolerance float64, log zerolog.Logger) *Engine {
	if priceTolerance <= 0 {
		priceTolerance = priceMatchTolerance
	}
	return &Engine{
		broker:         broker,
		plannedRepo:    plannedRepo,
		executedRepo:   executedRepo,
		active:         active,
		state:          state,
		interval:       interval,
		maxConsecutive: maxConsecutiveErrors,
		priceTolerance: priceTolerance,
		healthy:        true,
		log:            log.With().Str("component", "reconciliation").Logger(),
	}
}

// Start launches the background loop. It is idempotent: calling Start twice
// on an already-running engine is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.mu.Unlock()

	go e.loop(ctx)
}

// Stop signals the loop to exit and waits up to 5 seconds for it to finish,
// per base §5 "Reconciliation thread join is bounded (5 s)".
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	close(e.stopCh)
	done := e.doneCh
	e.mu.Unlock()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		e.log.Warn().Msg("reconciliation loop did not exit within 5s bound")
	}
}

// Healthy reports whether the engine has not yet given up after
// maxConsecutive (configurable, default 5) consecutive failures.
func (e *Engine) Healthy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.healthy
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.doneCh)

	consecutiveFailures := 0
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.RunOnce(ctx); err != nil {
				consecutiveFailures++
				e.log.Error().Err(err).Int("consecutive_failures", consecutiveFailures).Msg("reconciliation cycle failed")

				if consecutiveFailures >= e.maxConsecutive {
					e.mu.Lock()
					e.healthy = false
					e.mu.Unlock()
					e.log.Error().Int("max_consecutive", e.maxConsecutive).Msg("reconciliation engine stopping after too many consecutive failures")
					return
				}

				backoff := time.Duration(60*consecutiveFailures) * time.Second
				if backoff > 300*time.Second {
					backoff = 300 * time.Second
				}
				select {
				case <-time.After(backoff):
				case <-e.stopCh:
					return
				case <-ctx.Done():
					return
				}
				continue
			}
			consecutiveFailures = 0
		}
	}
}

// RunOnce executes a single reconciliation cycle, per base §4.9's ordered steps.
func (e *Engine) RunOnce(ctx context.Context) error {
	brokerOrders, err := e.broker.GetOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch broker open orders: %w", err)
	}

	internalOrders, err := e.plannedRepo.GetByStatuses(domain.StatusPending, domain.StatusLive, domain.StatusLiveWorking)
	if err != nil {
		return fmt.Errorf("failed to load internal working orders: %w", err)
	}

	discrepancies := e.computeOrderDiscrepancies(brokerOrders, internalOrders)
	for _, d := range discrepancies {
		e.log.Warn().Str("type", d.Type).Str("symbol", d.Symbol).Str("detail", d.Detail).Msg("reconciliation discrepancy detected")
	}

	e.applyAONConvergence(brokerOrders, internalOrders)

	positions, err := e.broker.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch broker positions: %w", err)
	}

	internalPositions, err := e.executedRepo.GetAllOpenPositions()
	if err != nil {
		return fmt.Errorf("failed to load internal open positions: %w", err)
	}

	for _, d := range e.computePositionDiscrepancies(positions, internalPositions) {
		e.log.Warn().Str("type", d.Type).Str("symbol", d.Symbol).Str("detail", d.Detail).Msg("reconciliation discrepancy detected")
	}

	return nil
}

func (e *Engine) computeOrderDiscrepancies(brokerOrders []domain.BrokerOrder, internalOrders []*domain.PlannedOrder) []Discrepancy {
	var out []Discrepancy

	matchedInternal := make(map[int64]bool)
	for _, bo := range brokerOrders {
		matched := false
		for _, io := range internalOrders {
			if e.matches(bo, io) {
				matched = true
				matchedInternal[io.ID] = true
				if !statusesAgree(bo.Status, io.Status) {
					out = append(out, Discrepancy{
						Type: domain.DiscrepancyStatusMismatch, Symbol: io.Symbol,
						Detail: fmt.Sprintf("broker=%s internal=%s", bo.Status, io.Status),
					})
				}
				break
			}
		}
		if !matched {
			out = append(out, Discrepancy{Type: domain.DiscrepancyOrphanedOrder, Symbol: bo.Symbol, Detail: bo.OrderID})
		}
	}

	for _, io := range internalOrders {
		if !matchedInternal[io.ID] {
			out = append(out, Discrepancy{Type: domain.DiscrepancyMissingOrder, Symbol: io.Symbol, Detail: fmt.Sprintf("planned_order_id=%d", io.ID)})
		}
	}

	return out
}

func (e *Engine) matches(bo domain.BrokerOrder, io *domain.PlannedOrder) bool {
	if bo.Symbol != io.Symbol || bo.Action != io.Action {
		return false
	}
	entry := bo.LimitPrice
	if entry.IsZero() {
		entry = bo.AuxPrice
	}
	diff := entry.Sub(io.EntryPrice).Abs().InexactFloat64()
	return diff <= e.priceTolerance
}

func statusesAgree(brokerStatus string, internalStatus domain.OrderStatus) bool {
	switch brokerStatus {
	case "Filled":
		return internalStatus == domain.StatusFilled
	case "Cancelled":
		return internalStatus == domain.StatusCancelled
	case "Submitted", "PreSubmitted", "Working":
		return internalStatus == domain.StatusLive || internalStatus == domain.StatusLiveWorking
	default:
		return true
	}
}

// applyAONConvergence transitions an internal LIVE_WORKING order to the
// broker's terminal state when the broker reports Filled or Cancelled for
// the matching order, per base §4.9's AON-specific handling. Broker wins:
// this happens even if a concurrent local submission is in flight.
func (e *Engine) applyAONConvergence(brokerOrders []domain.BrokerOrder, internalOrders []*domain.PlannedOrder) {
	for _, bo := range brokerOrders {
		if bo.Status != "Filled" && bo.Status != "Cancelled" {
			continue
		}
		for _, io := range internalOrders {
			if io.Status != domain.StatusLiveWorking || !e.matches(bo, io) {
				continue
			}
			target := domain.StatusFilled
			if bo.Status == "Cancelled" {
				target = domain.StatusCancelled
			}
			if _, err := e.state.UpdatePlannedOrderState(io, target, "broker-reported terminal state (AON convergence)", "reconciliation"); err != nil {
				e.log.Error().Err(err).Int64("planned_order_id", io.ID).Msg("failed to converge AON order to broker terminal state")
			}
		}
	}
}

// computePositionDiscrepancies matches each broker-reported position against
// the internally-tracked open position for the same symbol and flags a
// quantity_mismatch when they disagree; corrective action is out of scope
// per base §4.9.
func (e *Engine) computePositionDiscrepancies(positions []domain.BrokerPosition, internalPositions []persistence.OpenPosition) []Discrepancy {
	internalBySymbol := make(map[string]persistence.OpenPosition, len(internalPositions))
	for _, ip := range internalPositions {
		internalBySymbol[ip.Symbol] = ip
	}

	var out []Discrepancy
	for _, p := range positions {
		ip, ok := internalBySymbol[p.Symbol]
		if !ok {
			continue
		}
		if p.Quantity != ip.FilledQuantity {
			out = append(out, Discrepancy{
				Type: domain.DiscrepancyQuantityMismatch, Symbol: p.Symbol,
				Detail: fmt.Sprintf("broker=%d internal=%d", p.Quantity, ip.FilledQuantity),
			})
		}
	}
	return out
}
