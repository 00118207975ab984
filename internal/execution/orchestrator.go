// Package execution implements the per-order submission pipeline of base
// §4.6: equity resolution, sizing, viability checks, margin validation,
// bracket submission (or simulated fill), and ActiveOrder tracking.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/activeorders"
	"github.com/robinmaple/trading-automation-sub001/internal/config"
	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/robinmaple/trading-automation-sub001/internal/persistence"
	"github.com/robinmaple/trading-automation-sub001/internal/sizing"
	"github.com/robinmaple/trading-automation-sub001/internal/stateservice"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// cashMarginPct and defaultMarginPct are the margin requirements of base
// §4.6 ("2% of notional for CASH, 50% otherwise").
const (
	cashMarginPct    = 0.02
	defaultMarginPct = 0.50
	maxMarginOfEquityPct = 0.80
)

// Orchestrator submits one prioritized order at a time.
type Orchestrator struct {
	broker       domain.BrokerClient
	sizer        *sizing.Sizer
	plannedRepo  *persistence.PlannedOrderRepository
	executedRepo *persistence.ExecutedOrderRepository
	state        *stateservice.Service
	active       *activeorders.Store
	simEquity    decimal.Decimal
	minFillProb  float64
	maxOpenOrders int
	log          zerolog.Logger
}

func New(
	broker domain.BrokerClient,
	sizer *sizing.Sizer,
	plannedRepo *persistence.PlannedOrderRepository,
	executedRepo *persistence.ExecutedOrderRepository,
	state *stateservice.Service,
	active *activeorders.Store,
	cfg *config.Config,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		broker:        broker,
		sizer:         sizer,
		plannedRepo:   plannedRepo,
		executedRepo:  executedRepo,
		state:         state,
		active:        active,
		simEquity:     decimal.NewFromFloat(cfg.Simulation.DefaultEquity),
		minFillProb:   cfg.Execution.MinFillProbability,
		maxOpenOrders: cfg.RiskLimits.MaxOpenOrders,
		log:           log.With().Str("component", "execution_orchestrator").Logger(),
	}
}

// Outcome is the terminal disposition of one submission attempt.
type Outcome struct {
	Accepted bool
	Reason   string
	Active   *domain.ActiveOrder
}

// Submit runs the full pipeline for one prioritized order. fillProbability
// is the score computed upstream by the probability engine; legacyPath
// indicates whether the min-fill-probability viability check applies (base
// §4.6 "for the legacy path").
func (o *Orchestrator) Submit(ctx context.Context, order *domain.PlannedOrder, fillProbability float64, legacyPath bool, now time.Time) (Outcome, error) {
	equity, isLive := o.resolveEquity(ctx)

	if order.EntryPrice.IsZero() {
		return o.reject(order, "entry price is null", now)
	}

	if legacyPath && fillProbability < o.minFillProb {
		return o.reject(order, fmt.Sprintf("fill probability %.2f below minimum %.2f", fillProbability, o.minFillProb), now)
	}

	if hasOpen, err := o.executedRepo.GetOpenBySymbol(order.Symbol); err != nil {
		return Outcome{}, fmt.Errorf("failed to check open position for %s: %w", order.Symbol, err)
	} else if hasOpen {
		return o.reject(order, "open position already exists for symbol", now)
	}

	if o.active.ExistsByKey(order.NaturalKey()) {
		return o.reject(order, "identical active order already exists", now)
	}

	if o.active.CountWorking() >= o.maxOpenOrders {
		return o.reject(order, "max open orders reached", now)
	}

	sized, err := o.sizer.Resolve(order, equity)
	if err != nil {
		return o.reject(order, err.Error(), now)
	}

	if _, err := o.state.UpdatePlannedOrderState(order, domain.StatusExecuting, "submission pipeline started", "execution_orchestrator"); err != nil {
		return Outcome{}, fmt.Errorf("failed to persist EXECUTING status: %w", err)
	}

	requiredMarginPct := defaultMarginPct
	if order.SecurityType == domain.SecurityCash {
		requiredMarginPct = cashMarginPct
	}
	requiredMargin := sized.CapitalCommitment.Mul(decimal.NewFromFloat(requiredMarginPct))
	marginCeiling := equity.Mul(decimal.NewFromFloat(maxMarginOfEquityPct))
	if requiredMargin.GreaterThan(marginCeiling) {
		return o.rejectWithStatus(order, "required margin exceeds 80% of equity", now)
	}

	if !o.broker.Connected() {
		return o.simulateFill(order, sized.Quantity, isLive, now)
	}

	return o.submitBracket(ctx, order, sized.Quantity, equity, isLive, fillProbability, now)
}

func (o *Orchestrator) resolveEquity(ctx context.Context) (decimal.Decimal, bool) {
	if o.broker != nil && o.broker.Connected() {
		if equity, err := o.broker.GetAccountValue(ctx); err == nil {
			return equity, !o.broker.IsPaperAccount()
		}
		o.log.Warn().Msg("failed to fetch live account value; falling back to configured default")
	}
	return o.simEquity, false
}

func (o *Orchestrator) reject(order *domain.PlannedOrder, reason string, now time.Time) (Outcome, error) {
	o.log.Info().Str("symbol", order.Symbol).Str("reason", reason).Msg("order rejected before submission")
	return Outcome{Accepted: false, Reason: reason}, nil
}

func (o *Orchestrator) rejectWithStatus(order *domain.PlannedOrder, reason string, now time.Time) (Outcome, error) {
	if _, err := o.state.UpdatePlannedOrderState(order, domain.StatusCancelled, reason, "execution_orchestrator"); err != nil {
		return Outcome{}, fmt.Errorf("failed to persist CANCELLED status: %w", err)
	}
	o.log.Warn().Str("symbol", order.Symbol).Str("reason", reason).Msg("order cancelled by submission pipeline")
	return Outcome{Accepted: false, Reason: reason}, nil
}

func (o *Orchestrator) submitBracket(ctx context.Context, order *domain.PlannedOrder, quantity int64, equity decimal.Decimal, isLive bool, fillProbability float64, now time.Time) (Outcome, error) {
	orderIDs, err := o.broker.PlaceBracketOrder(ctx, order, quantity, equity)
	if err != nil {
		return o.rejectWithStatus(order, fmt.Sprintf("broker rejected bracket submission: %v", err), now)
	}

	order.BrokerOrderIDs = orderIDs[:]
	if _, err := o.state.UpdatePlannedOrderState(order, domain.StatusLive, "bracket submitted", "execution_orchestrator"); err != nil {
		return Outcome{}, fmt.Errorf("failed to persist LIVE status: %w", err)
	}

	exec := &domain.ExecutedOrder{
		PlannedOrderID: order.ID,
		FilledQuantity: quantity,
		Status:         string(domain.ActiveSubmitted),
		ExecutedAt:     now,
		IsOpen:         true,
		IsLiveTrading:  isLive,
		ExpirationDate: order.ExpirationDate,
	}
	if err := o.executedRepo.Create(exec); err != nil {
		return Outcome{}, fmt.Errorf("failed to record submitted execution: %w", err)
	}

	active := &domain.ActiveOrder{
		DBID:              exec.ID,
		Planned:           order,
		OrderIDs:          orderIDs[:],
		Status:            domain.ActiveSubmitted,
		CapitalCommitment: domain.CapitalCommitment(order.EntryPrice, quantity),
		FillProbability:   fillProbability,
		Timestamp:         now,
		IsLiveTrading:     isLive,
	}
	o.active.Insert(active)

	return Outcome{Accepted: true, Active: active}, nil
}

// simulateFill handles the no-broker-connection path: the order is marked
// FILLED immediately at entry_price with zero commission, per base §4.6
// "In simulation ... mark FILLED at entry_price with zero commission."
func (o *Orchestrator) simulateFill(order *domain.PlannedOrder, quantity int64, isLive bool, now time.Time) (Outcome, error) {
	if _, err := o.state.UpdatePlannedOrderState(order, domain.StatusFilled, "simulated fill", "execution_orchestrator"); err != nil {
		return Outcome{}, fmt.Errorf("failed to persist FILLED status: %w", err)
	}

	exec := &domain.ExecutedOrder{
		PlannedOrderID: order.ID,
		FilledPrice:    order.EntryPrice,
		FilledQuantity: quantity,
		Commission:     decimal.Zero,
		Status:         "FILLED",
		ExecutedAt:     now,
		IsOpen:         true,
		IsLiveTrading:  isLive,
		ExpirationDate: order.ExpirationDate,
	}
	if err := o.executedRepo.Create(exec); err != nil {
		return Outcome{}, fmt.Errorf("failed to record simulated execution: %w", err)
	}

	active := &domain.ActiveOrder{
		DBID:              exec.ID,
		Planned:           order,
		Status:            domain.ActiveFilled,
		CapitalCommitment: domain.CapitalCommitment(order.EntryPrice, quantity),
		Timestamp:         now,
		IsLiveTrading:     isLive,
	}
	o.active.Insert(active)

	return Outcome{Accepted: true, Active: active}, nil
}

// EffectivePriority is base_priority * fill_probability, used only for
// logging/ordering, per base §4.6.
func EffectivePriority(basePriority int, fillProbability float64) float64 {
	return float64(basePriority) * fillProbability
}
