// Package eod implements the end-of-day policy engine of base §4.10: timed
// operational windows in US Eastern time that close DAY and expired HYBRID
// positions while leaving CORE and non-expired HYBRID positions untouched.
package eod

import (
	"fmt"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/config"
	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/robinmaple/trading-automation-sub001/internal/labeling"
	"github.com/robinmaple/trading-automation-sub001/internal/persistence"
	"github.com/robinmaple/trading-automation-sub001/internal/stateservice"
	"github.com/rs/zerolog"
)

var easternLocation = mustLoadEastern()

func mustLoadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}

// Window names the operational window the current time falls in, if any.
type Window string

const (
	WindowNone       Window = ""
	WindowPreMarket  Window = "pre_market"
	WindowClosing    Window = "closing"
	WindowPostMarket Window = "post_market"
)

// Service runs the EOD policy against persisted open positions.
type Service struct {
	cfg          config.EndOfDay
	executedRepo *persistence.ExecutedOrderRepository
	plannedRepo  *persistence.PlannedOrderRepository
	state        *stateservice.Service
	broker       domain.BrokerClient
	feed         domain.DataFeed
	labeling     *labeling.Service

	closeAttempts map[int64]int // per-position close attempt counter, reset daily
	log           zerolog.Logger
}

// New constructs the EOD policy engine. feed may be nil, in which case
// closed positions realize their fill price as the exit price. labelingSvc
// may be nil, in which case closed positions are not labeled for
// profitability.
func New(cfg config.EndOfDay, executedRepo *persistence.ExecutedOrderRepository, plannedRepo *persistence.PlannedOrderRepository, state *stateservice.Service, broker domain.BrokerClient, feed domain.DataFeed, labelingSvc *labeling.Service, log zerolog.Logger) *Service {
	return &Service{
		cfg:           cfg,
		executedRepo:  executedRepo,
		plannedRepo:   plannedRepo,
		state:         state,
		broker:        broker,
		feed:          feed,
		labeling:      labelingSvc,
		closeAttempts: make(map[int64]int),
		log:           log.With().Str("component", "end_of_day").Logger(),
	}
}

// CurrentWindow reports which operational window now (interpreted in US
// Eastern time) falls in. Outside all windows, or on a weekend, returns
// WindowNone.
func (s *Service) CurrentWindow(now time.Time) Window {
	et := now.In(easternLocation)
	if et.Weekday() == time.Saturday || et.Weekday() == time.Sunday {
		return WindowNone
	}

	marketOpen := time.Date(et.Year(), et.Month(), et.Day(), 9, 30, 0, 0, easternLocation)
	marketClose := time.Date(et.Year(), et.Month(), et.Day(), 16, 0, 0, 0, easternLocation)

	preMarketStart := marketOpen.Add(-time.Duration(s.cfg.PreMarketStartMinutes) * time.Minute)
	closingStart := marketClose.Add(-time.Duration(s.cfg.CloseBufferMinutes) * time.Minute)
	postMarketEnd := marketClose.Add(time.Duration(s.cfg.PostMarketEndMinutes) * time.Minute)

	switch {
	case !et.Before(preMarketStart) && et.Before(marketOpen):
		return WindowPreMarket
	case !et.Before(closingStart) && et.Before(marketClose):
		return WindowClosing
	case !et.Before(marketClose) && et.Before(postMarketEnd):
		return WindowPostMarket
	default:
		return WindowNone
	}
}

// Run executes the closing-window policy if the service is enabled and the
// closing window is currently active, per base §4.10's ordered steps.
func (s *Service) Run(now time.Time) error {
	if !s.cfg.Enabled {
		return nil
	}
	if s.CurrentWindow(now) != WindowClosing {
		return nil
	}

	positions, err := s.executedRepo.GetAllOpenPositions()
	if err != nil {
		return fmt.Errorf("failed to enumerate open positions for EOD policy: %w", err)
	}

	for _, pos := range positions {
		switch pos.PositionStrategy {
		case domain.StrategyDay:
			if s.cfg.CloseDayPositions {
				s.closePosition(pos, now, "end of day: DAY position closure")
			}
		case domain.StrategyHybrid:
			if s.cfg.CloseExpiredHybrid && pos.ExpirationDate != nil && now.After(*pos.ExpirationDate) {
				s.closePosition(pos, now, "end of day: expired HYBRID closure")
			}
		case domain.StrategyCore:
			// Left untouched regardless of leaveCorePositions flag; the
			// flag exists for parity with the policy's documented toggles.
		}
	}

	return nil
}

func (s *Service) closePosition(pos persistence.OpenPosition, now time.Time, reason string) {
	if s.closeAttempts[pos.ExecutedOrderID] >= s.cfg.MaxCloseAttempts {
		s.log.Warn().Int64("executed_order_id", pos.ExecutedOrderID).Msg("max EOD close attempts reached; leaving position open")
		return
	}
	s.closeAttempts[pos.ExecutedOrderID]++

	exitPrice := pos.FilledPrice
	if s.feed != nil {
		if quote, ok := s.feed.GetCurrentPrice(pos.Symbol); ok && quote != nil && quote.Price.IsPositive() {
			exitPrice = quote.Price
		}
	}

	if err := s.state.CloseExecutedOrder(pos.ExecutedOrderID, pos.Symbol, pos.Action, pos.FilledPrice, exitPrice, pos.FilledQuantity, "", now); err != nil {
		s.log.Error().Err(err).Int64("executed_order_id", pos.ExecutedOrderID).Msg("failed to close position during EOD policy")
		return
	}

	if s.labeling != nil {
		pnl := domain.RealizedPnLForClose(pos.Action, pos.FilledPrice, exitPrice, pos.FilledQuantity)
		capitalCommitment := domain.CapitalCommitment(pos.FilledPrice, pos.FilledQuantity)
		s.labeling.LabelProfitability(pos.PlannedOrderID, pnl.InexactFloat64(), capitalCommitment.InexactFloat64(), now)
	}

	if !s.cfg.ExpirePlannedOrders {
		return
	}
	planned, err := s.plannedRepo.GetByID(pos.PlannedOrderID)
	if err != nil || planned == nil {
		return
	}
	if _, err := s.state.UpdatePlannedOrderState(planned, domain.StatusExpired, reason, "end_of_day"); err != nil {
		s.log.Error().Err(err).Int64("planned_order_id", pos.PlannedOrderID).Msg("failed to expire planned order during EOD policy")
	}
}

// RunEODProcess is Run with an explicit status result, matching base §8's
// boundary behavior "EOD not in window -> run_eod_process returns status
// 'skipped'".
func (s *Service) RunEODProcess(now time.Time) (string, error) {
	if !s.cfg.Enabled {
		return "skipped", nil
	}
	if s.CurrentWindow(now) != WindowClosing {
		return "skipped", nil
	}
	if err := s.Run(now); err != nil {
		return "failed", err
	}
	return "ran", nil
}

// ResetDailyCounters is the documented entry point called at session start
// (or by a daily cron trigger) to clear the per-position close-attempt
// counters, per base §4.10 "Per-day counters reset via a documented entry
// point called at session start."
func (s *Service) ResetDailyCounters() {
	s.closeAttempts = make(map[int64]int)
	s.log.Info().Msg("EOD daily counters reset")
}
