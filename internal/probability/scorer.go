package probability

import (
	"github.com/robinmaple/trading-automation-sub001/internal/domain"
)

// referenceHighProbability and referenceLowProbability are the reference
// scorer's two output levels (base §4.2's worked example values).
const (
	referenceHighProbability = 0.95
	referenceLowProbability  = 0.1
	marketOrderProbability   = 0.99
)

// Scorer maps a feature map to a fill probability in [0,1]. Any replacement
// scorer must satisfy this same contract; probability is never a blocking
// gate by itself.
type Scorer interface {
	Score(order *domain.PlannedOrder, features map[string]interface{}) float64
}

// ReferenceScorer implements the worked reference policy of base §4.2:
// for LMT orders, probability is high when the current price is at entry or
// already past it on the favorable side, low otherwise; MKT orders are always high.
type ReferenceScorer struct{}

func NewReferenceScorer() *ReferenceScorer { return &ReferenceScorer{} }

func (s *ReferenceScorer) Score(order *domain.PlannedOrder, features map[string]interface{}) float64 {
	if order.OrderType == domain.OrderTypeMarket {
		return marketOrderProbability
	}
	if order.OrderType != domain.OrderTypeLimit {
		return referenceLowProbability
	}

	currentPrice, ok := features["current_price"].(float64)
	if !ok {
		return referenceLowProbability
	}
	entryPrice := order.EntryPrice.InexactFloat64()

	if order.Action.IsBuySide() {
		if currentPrice <= entryPrice {
			return referenceHighProbability
		}
		return referenceLowProbability
	}
	// SELL: favorable when current price has risen to or past entry.
	if currentPrice >= entryPrice {
		return referenceHighProbability
	}
	return referenceLowProbability
}
