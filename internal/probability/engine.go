package probability

import (
	"fmt"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/robinmaple/trading-automation-sub001/internal/persistence"
	"github.com/rs/zerolog"
)

// Engine evaluates a fill probability for a planned order and persists every
// evaluation together with its feature map, per base §4.2 "scores are
// persisted per evaluation with their feature map for offline analysis".
type Engine struct {
	scorer Scorer
	repo   *persistence.ProbabilityScoreRepository
	log    zerolog.Logger
}

func NewEngine(scorer Scorer, repo *persistence.ProbabilityScoreRepository, log zerolog.Logger) *Engine {
	if scorer == nil {
		scorer = NewReferenceScorer()
	}
	return &Engine{
		scorer: scorer,
		repo:   repo,
		log:    log.With().Str("component", "probability_engine").Logger(),
	}
}

// Evaluate extracts features from the current quote, scores the order, and
// persists the result. The returned probability is usable even if
// persistence fails; a persistence error is logged, not propagated, since a
// probability score is advisory and must never block order evaluation.
func (e *Engine) Evaluate(order *domain.PlannedOrder, quote *domain.Quote, now time.Time) (float64, map[string]interface{}) {
	features := ExtractFeatures(order, quote, now)
	probability := e.scorer.Score(order, features)

	score := &domain.ProbabilityScore{
		PlannedOrderID:  order.ID,
		FillProbability: probability,
		Features:        features,
		Timestamp:       now,
	}
	if err := e.repo.Create(score); err != nil {
		e.log.Error().Err(err).Int64("planned_order_id", order.ID).Msg("failed to persist probability score")
	}

	return probability, features
}

// MeetsThreshold reports whether a probability clears the configured
// fill-probability gate for the order's priority tier, per base §6
// (fill_probability thresholds differ for high vs. standard priority).
func MeetsThreshold(probability float64, highPriorityThreshold, standardThreshold float64, priority int) bool {
	if priority >= 4 {
		return probability >= highPriorityThreshold
	}
	return probability >= standardThreshold
}

// describeDecision renders a short audit string for logging at the call
// site, kept here since both the engine and its callers need the same format.
func describeDecision(order *domain.PlannedOrder, probability float64, passed bool) string {
	return fmt.Sprintf("%s %s probability=%.2f passed=%t", order.Symbol, order.Action, probability, passed)
}
