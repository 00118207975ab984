// Package sizing wraps the pure position-sizing function with the
// configuration-driven caps of the risk management service (base §4.3/§4.5):
// risk_per_trade is clamped to the configured ceiling before quantity is
// computed, and capital commitment (entry × quantity) is computed; it is not
// checked against available equity here.
package sizing

import (
	"fmt"

	"github.com/robinmaple/trading-automation-sub001/internal/config"
	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/shopspring/decimal"
)

// Sizer resolves a PlannedOrder's effective quantity against current equity.
type Sizer struct {
	maxRiskPerTrade decimal.Decimal
}

func New(limits config.RiskLimits) *Sizer {
	return &Sizer{maxRiskPerTrade: decimal.NewFromFloat(limits.MaxRiskPerTrade)}
}

// Result is the resolved sizing decision for one order.
type Result struct {
	Quantity          int64
	CapitalCommitment decimal.Decimal
	RiskAmount        decimal.Decimal
}

// Resolve clamps the order's risk_per_trade to the configured ceiling, then
// computes quantity and capital commitment against the supplied equity.
func (s *Sizer) Resolve(order *domain.PlannedOrder, equity decimal.Decimal) (*Result, error) {
	if equity.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("equity must be positive, got %s", equity)
	}

	riskPerTrade := order.RiskPerTrade
	if riskPerTrade.GreaterThan(s.maxRiskPerTrade) {
		riskPerTrade = s.maxRiskPerTrade
	}

	qty, err := domain.CalculateQuantity(order.SecurityType, order.EntryPrice, order.StopLoss, equity, riskPerTrade)
	if err != nil {
		return nil, fmt.Errorf("failed to size %s: %w", order.Symbol, err)
	}

	return &Result{
		Quantity:          qty,
		CapitalCommitment: domain.CapitalCommitment(order.EntryPrice, qty),
		RiskAmount:        equity.Mul(riskPerTrade),
	}, nil
}
