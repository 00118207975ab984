// Package risk implements the gatekeeper invoked just before order
// submission (base §4.5): risk_per_trade capping, a 5-minute-cached trading
// halt check, and CORE/HYBRID exposure caps.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/config"
	"github.com/robinmaple/trading-automation-sub001/internal/persistence"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// haltCacheTTL is the maximum staleness of a halt computation before it is
// recomputed, per base §4.5 "refreshed no more than once per 5 minutes".
const haltCacheTTL = 5 * time.Minute

// HaltState is the outcome of the most recent loss-halt computation.
type HaltState struct {
	Halted bool
	Reason string
}

// Service is the order-submission gatekeeper.
type Service struct {
	limits       config.RiskLimits
	executedRepo *persistence.ExecutedOrderRepository
	log          zerolog.Logger

	mu           sync.Mutex
	cachedAt     time.Time
	cachedState  HaltState
	cachedAcct   string
}

func New(limits config.RiskLimits, executedRepo *persistence.ExecutedOrderRepository, log zerolog.Logger) *Service {
	return &Service{
		limits:       limits,
		executedRepo: executedRepo,
		log:          log.With().Str("component", "risk_management").Logger(),
	}
}

// Decision is the full outcome of a can_place_order evaluation.
type Decision struct {
	Allowed      bool
	Reason       string
	RiskPerTrade decimal.Decimal // possibly clamped
}

// WorkingExposure summarizes the caller's currently working CORE/HYBRID
// commitments, supplied by the caller since only it knows active orders.
type WorkingExposure struct {
	CoreHybridCommitted decimal.Decimal
}

// CanPlaceOrder evaluates the three-step gate of base §4.5 against one
// candidate order. now is passed in so callers can test deterministically.
func (s *Service) CanPlaceOrder(accountNumber string, riskPerTrade decimal.Decimal, equity decimal.Decimal, isCoreOrHybrid bool, candidateCapital decimal.Decimal, exposure WorkingExposure, now time.Time) Decision {
	if riskPerTrade.GreaterThan(decimal.NewFromFloat(s.limits.MaxRiskPerTrade)) {
		riskPerTrade = decimal.NewFromFloat(s.limits.MaxRiskPerTrade)
	}

	halt := s.haltState(accountNumber, equity, now)
	if halt.Halted {
		return Decision{Allowed: false, Reason: halt.Reason, RiskPerTrade: riskPerTrade}
	}

	if isCoreOrHybrid {
		singleCap := equity.Mul(decimal.NewFromFloat(s.limits.CoreHybridSingleTradeCapPct))
		if candidateCapital.GreaterThan(singleCap) {
			return Decision{Allowed: false, Reason: "CORE/HYBRID single-trade capital cap exceeded", RiskPerTrade: riskPerTrade}
		}
		aggregateCap := equity.Mul(decimal.NewFromFloat(s.limits.CoreHybridAggregateCapPct))
		if exposure.CoreHybridCommitted.Add(candidateCapital).GreaterThan(aggregateCap) {
			return Decision{Allowed: false, Reason: "CORE/HYBRID aggregate capital cap exceeded", RiskPerTrade: riskPerTrade}
		}
	}

	return Decision{Allowed: true, RiskPerTrade: riskPerTrade}
}

// haltState returns the cached halt computation if still fresh, otherwise
// recomputes it. Any error during recomputation forces a halt, per base
// §4.5 "any exception forces halt for safety".
func (s *Service) haltState(accountNumber string, equity decimal.Decimal, now time.Time) HaltState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cachedAcct == accountNumber && now.Sub(s.cachedAt) < haltCacheTTL {
		return s.cachedState
	}

	state, err := s.computeHalt(accountNumber, equity, now)
	if err != nil {
		s.log.Error().Err(err).Msg("halt computation failed; halting for safety")
		state = HaltState{Halted: true, Reason: fmt.Sprintf("halt computation failed: %v", err)}
	}

	s.cachedAcct = accountNumber
	s.cachedAt = now
	s.cachedState = state
	return state
}

func (s *Service) computeHalt(accountNumber string, equity decimal.Decimal, now time.Time) (HaltState, error) {
	if equity.LessThanOrEqual(decimal.Zero) {
		return HaltState{Halted: true, Reason: "Zero or negative equity"}, nil
	}

	windows := []struct {
		label string
		since time.Time
		limit float64
	}{
		{"daily", now.AddDate(0, 0, -1), s.limits.DailyLossPct},
		{"weekly", now.AddDate(0, 0, -7), s.limits.WeeklyLossPct},
		{"monthly", now.AddDate(0, -1, 0), s.limits.MonthlyLossPct},
	}

	for _, w := range windows {
		pnl, err := s.executedRepo.SumRealizedPnLSince(accountNumber, w.since)
		if err != nil {
			return HaltState{}, fmt.Errorf("failed to sum %s realized pnl: %w", w.label, err)
		}
		if pnl.IsNegative() {
			lossRatio := pnl.Abs().Div(equity).InexactFloat64()
			if lossRatio >= w.limit {
				return HaltState{
					Halted: true,
					Reason: fmt.Sprintf("%s loss %.2f%% meets or exceeds limit %.2f%%", w.label, lossRatio*100, w.limit*100),
				}, nil
			}
		}
	}

	return HaltState{Halted: false}, nil
}

// CachedHaltState reports the most recently computed halt state without
// forcing a recomputation, for the read-only status HTTP surface.
func (s *Service) CachedHaltState() HaltState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cachedState
}
