// Package labeling derives ML outcome labels from executed orders (base
// §4 "Outcome-labeling service"), reacting to state-service events so
// labels stay current as orders fill and close.
package labeling

import (
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/robinmaple/trading-automation-sub001/internal/events"
	"github.com/robinmaple/trading-automation-sub001/internal/persistence"
	"github.com/rs/zerolog"
)

// Service computes and upserts OrderLabels for a planned order once its
// outcome is known. Re-running is idempotent: Upsert overwrites rather than
// duplicating a (planned_order_id, label_type) row.
type Service struct {
	plannedRepo     *persistence.PlannedOrderRepository
	executedRepo    *persistence.ExecutedOrderRepository
	labelRepo       *persistence.LabelRepository
	probabilityRepo *persistence.ProbabilityScoreRepository
	log             zerolog.Logger
}

func New(
	plannedRepo *persistence.PlannedOrderRepository,
	executedRepo *persistence.ExecutedOrderRepository,
	labelRepo *persistence.LabelRepository,
	probabilityRepo *persistence.ProbabilityScoreRepository,
	log zerolog.Logger,
) *Service {
	return &Service{
		plannedRepo:     plannedRepo,
		executedRepo:    executedRepo,
		labelRepo:       labelRepo,
		probabilityRepo: probabilityRepo,
		log:             log.With().Str("component", "labeling").Logger(),
	}
}

// Subscribe registers this service's event handler on the state service's
// event bus, so labeling reacts to every accepted order-state transition.
func (s *Service) Subscribe(bus *events.Bus) {
	bus.Subscribe(s.HandleEvent)
}

// HandleEvent computes labels appropriate to the transition just observed.
// Only terminal or fill-adjacent transitions produce labels; intermediate
// states (EXECUTING, LIVE) are ignored.
func (s *Service) HandleEvent(ev domain.OrderEvent) {
	switch ev.NewState {
	case domain.StatusFilled:
		s.labelFill(ev.OrderID, ev.Timestamp)
	case domain.StatusCancelled, domain.StatusExpired, domain.StatusRejected:
		s.labelNoFill(ev.OrderID, ev.Timestamp)
	}
}

func (s *Service) labelNoFill(plannedOrderID int64, now time.Time) {
	s.upsert(plannedOrderID, domain.LabelFilledBinary, 0.0, now, "order never filled")
}

func (s *Service) labelFill(plannedOrderID int64, now time.Time) {
	order, err := s.plannedRepo.GetByID(plannedOrderID)
	if err != nil || order == nil {
		s.log.Warn().Int64("planned_order_id", plannedOrderID).Msg("cannot label fill: planned order not found")
		return
	}

	positions, err := s.executedRepo.GetAllOpenPositions()
	if err != nil {
		s.log.Error().Err(err).Int64("planned_order_id", plannedOrderID).Msg("failed to load executed order for labeling")
		return
	}
	var filledQty int64
	var filledPrice = order.EntryPrice
	for _, p := range positions {
		if p.PlannedOrderID == plannedOrderID {
			filledQty = p.FilledQuantity
			filledPrice = p.FilledPrice
			break
		}
	}

	s.upsert(plannedOrderID, domain.LabelFilledBinary, 1.0, now, "")

	timeToFill := now.Sub(order.CreatedAt).Seconds()
	s.upsert(plannedOrderID, domain.LabelTimeToFill, timeToFill, now, "")

	slippage := filledPrice.Sub(order.EntryPrice).InexactFloat64()
	if !order.Action.IsBuySide() {
		slippage = -slippage
	}
	s.upsert(plannedOrderID, domain.LabelSlippage, slippage, now, "")

	s.labelProbabilityAccuracy(plannedOrderID, 1.0, now)
	_ = filledQty
}

// labelProbabilityAccuracy compares the most recent persisted probability
// score against the realized outcome: 1 - |predicted - actual|.
func (s *Service) labelProbabilityAccuracy(plannedOrderID int64, actualFilled float64, now time.Time) {
	score, err := s.probabilityRepo.GetLatestByPlannedOrder(plannedOrderID)
	if err != nil || score == nil {
		return
	}
	accuracy := 1.0 - abs(score.FillProbability-actualFilled)
	s.upsert(plannedOrderID, domain.LabelProbabilityAccuracy, accuracy, now, "")
}

// LabelProfitability records the realized profitability label once a
// position closes; called directly by the caller that observes the close
// (the state service has no generic "position closed" event type, only
// PlannedOrder state transitions).
func (s *Service) LabelProfitability(plannedOrderID int64, realizedPnL, capitalCommitment float64, now time.Time) {
	profitability := 0.0
	if capitalCommitment != 0 {
		profitability = realizedPnL / capitalCommitment
	}
	s.upsert(plannedOrderID, domain.LabelProfitability, profitability, now, "")
}

func (s *Service) upsert(plannedOrderID int64, labelType domain.LabelType, value float64, now time.Time, notes string) {
	label := &domain.OrderLabel{
		PlannedOrderID: plannedOrderID,
		LabelType:      labelType,
		LabelValue:     value,
		ComputedAt:     now,
		Notes:          notes,
	}
	if err := s.labelRepo.Upsert(label); err != nil {
		s.log.Error().Err(err).Int64("planned_order_id", plannedOrderID).Str("label_type", string(labelType)).Msg("failed to upsert label")
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
