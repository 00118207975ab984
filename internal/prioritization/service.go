package prioritization

import (
	"context"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/config"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Service runs the two-layer pipeline under a watchdog timeout, falling back
// to a single composite score on timeout or panic, per base §4.4.
type Service struct {
	weights              Weights
	watchdogTimeout      time.Duration
	twoLayerEnabled      bool
	market               MarketContext
	setups               SetupPerformance
	log                  zerolog.Logger
}

func New(cfg config.Prioritization, market MarketContext, setups SetupPerformance, log zerolog.Logger) *Service {
	return &Service{
		weights: Weights{
			ManualPriority: cfg.WeightManualPriority,
			Efficiency:     cfg.WeightEfficiency,
			RiskReward:     cfg.WeightRiskReward,
			TimeframeMatch: cfg.WeightTimeframeMatch,
			SetupBias:      cfg.WeightSetupBias,
		},
		watchdogTimeout: time.Duration(cfg.WatchdogTimeoutSeconds) * time.Second,
		twoLayerEnabled: cfg.TwoLayerEnabled,
		market:          market,
		setups:          setups,
		log:             log.With().Str("component", "prioritization").Logger(),
	}
}

// Allocate runs the viability filter, quality scoring, and greedy allocation
// over candidates, returning every candidate's final disposition.
func (s *Service) Allocate(ctx context.Context, candidates []Candidate, maxOpenOrders, currentlyWorkingOrders int, equity decimal.Decimal, maxCapitalUtilization float64, alreadyCommitted decimal.Decimal) []Allocated {
	if len(candidates) == 0 {
		return nil
	}

	resultCh := make(chan []Allocated, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Interface("panic", r).Msg("prioritization pipeline panicked; falling back to legacy path")
				resultCh <- s.legacyAllocate(candidates, maxOpenOrders, currentlyWorkingOrders, equity, maxCapitalUtilization, alreadyCommitted)
			}
		}()
		resultCh <- s.twoLayerAllocate(candidates, maxOpenOrders, currentlyWorkingOrders, equity, maxCapitalUtilization, alreadyCommitted)
	}()

	timeout := s.watchdogTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case result := <-resultCh:
		return result
	case <-time.After(timeout):
		s.log.Warn().Dur("timeout", timeout).Msg("prioritization watchdog fired; falling back to legacy path")
		return s.legacyAllocate(candidates, maxOpenOrders, currentlyWorkingOrders, equity, maxCapitalUtilization, alreadyCommitted)
	case <-ctx.Done():
		s.log.Warn().Err(ctx.Err()).Msg("prioritization context cancelled; falling back to legacy path")
		return s.legacyAllocate(candidates, maxOpenOrders, currentlyWorkingOrders, equity, maxCapitalUtilization, alreadyCommitted)
	}
}

func (s *Service) twoLayerAllocate(candidates []Candidate, maxOpenOrders, currentlyWorkingOrders int, equity decimal.Decimal, maxCapitalUtilization float64, alreadyCommitted decimal.Decimal) []Allocated {
	if !s.twoLayerEnabled {
		return s.legacyAllocate(candidates, maxOpenOrders, currentlyWorkingOrders, equity, maxCapitalUtilization, alreadyCommitted)
	}
	scored := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, scoreQuality(c, s.weights, s.market, s.setups))
	}
	return allocate(scored, maxOpenOrders, currentlyWorkingOrders, equity, maxCapitalUtilization, alreadyCommitted)
}

// legacyAllocate uses the same greedy allocation, but with a single
// composite score (manual priority alone) rather than the full quality
// breakdown, per base §4.4 "same algorithm with a single composite score".
func (s *Service) legacyAllocate(candidates []Candidate, maxOpenOrders, currentlyWorkingOrders int, equity decimal.Decimal, maxCapitalUtilization float64, alreadyCommitted decimal.Decimal) []Allocated {
	scored := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, Scored{
			Candidate:    c,
			PriorityNorm: priorityNorm(c.Order.Priority),
			QualityScore: priorityNorm(c.Order.Priority),
		})
	}
	return allocate(scored, maxOpenOrders, currentlyWorkingOrders, equity, maxCapitalUtilization, alreadyCommitted)
}
