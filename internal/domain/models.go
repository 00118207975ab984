package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PlannedOrder is the human-authored (or broker-discovered) trading intent.
type PlannedOrder struct {
	ID                int64
	Symbol            string
	SecurityType      SecurityType
	Exchange          string
	Currency          string
	Action            Action
	OrderType         OrderType
	EntryPrice        decimal.Decimal
	StopLoss          decimal.Decimal
	RiskPerTrade       decimal.Decimal
	RiskRewardRatio    decimal.Decimal
	Priority          int
	PositionStrategy  PositionStrategy
	TradingSetup      string
	CoreTimeframe     string
	OverallTrend      string
	BriefAnalysis     string
	Status            OrderStatus
	StatusReason      string
	IsLiveTrading     bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ExpirationDate    *time.Time
	BrokerOrderIDs    []string
	ImportedAt        time.Time // "most recent import time", standardized per Design Notes open question.
}

// MaxRiskPerTrade is the hard cap on PlannedOrder.RiskPerTrade (2% of equity).
var MaxRiskPerTrade = decimal.NewFromFloat(0.02)

// Validate checks the invariants from the data model section: stop placement
// relative to entry by side, risk_per_trade bounds, priority range, and
// risk_reward_ratio floor.
func (p *PlannedOrder) Validate() error {
	if !p.SecurityType.Valid() {
		return fmt.Errorf("invalid security type: %q", p.SecurityType)
	}
	if !p.Action.Valid() {
		return fmt.Errorf("invalid action: %q", p.Action)
	}
	if !p.OrderType.Valid() {
		return fmt.Errorf("invalid order type: %q", p.OrderType)
	}
	if !p.PositionStrategy.Valid() {
		return fmt.Errorf("invalid position strategy: %q", p.PositionStrategy)
	}
	if p.Action.IsBuySide() {
		if !p.StopLoss.LessThan(p.EntryPrice) {
			return fmt.Errorf("BUY order requires stop_loss < entry_price, got stop=%s entry=%s", p.StopLoss, p.EntryPrice)
		}
	} else {
		if !p.StopLoss.GreaterThan(p.EntryPrice) {
			return fmt.Errorf("SELL order requires stop_loss > entry_price, got stop=%s entry=%s", p.StopLoss, p.EntryPrice)
		}
	}
	if p.RiskPerTrade.LessThanOrEqual(decimal.Zero) || p.RiskPerTrade.GreaterThan(MaxRiskPerTrade) {
		return fmt.Errorf("risk_per_trade out of range (0, 0.02]: %s", p.RiskPerTrade)
	}
	if p.Priority < 1 || p.Priority > 5 {
		return fmt.Errorf("priority out of range [1,5]: %d", p.Priority)
	}
	if p.RiskRewardRatio.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("risk_reward_ratio must be >= 1.0: %s", p.RiskRewardRatio)
	}
	return nil
}

// NaturalKey identifies duplicate PlannedOrders: (symbol, action, entry, stop).
func (p *PlannedOrder) NaturalKey() string {
	return fmt.Sprintf("%s|%s|%s|%s", p.Symbol, p.Action, p.EntryPrice.String(), p.StopLoss.String())
}

// RiskPerUnit is |entry - stop|, the per-share/per-contract risk distance.
func (p *PlannedOrder) RiskPerUnit() decimal.Decimal {
	return p.EntryPrice.Sub(p.StopLoss).Abs()
}

// ProfitTarget computes entry +/- risk*rr_ratio depending on side.
func (p *PlannedOrder) ProfitTarget() decimal.Decimal {
	delta := p.RiskPerUnit().Mul(p.RiskRewardRatio)
	if p.Action.IsBuySide() {
		return p.EntryPrice.Add(delta)
	}
	return p.EntryPrice.Sub(delta)
}

// SetExpiration computes and stores ExpirationDate from PositionStrategy,
// relative to CreatedAt: DAY -> end of current session (same calendar day,
// left to the EOD service to act on); HYBRID -> created+10 days; CORE -> nil.
func (p *PlannedOrder) SetExpiration() {
	switch p.PositionStrategy {
	case StrategyHybrid:
		t := p.CreatedAt.AddDate(0, 0, HybridExpirationDays)
		p.ExpirationDate = &t
	case StrategyDay:
		endOfDay := time.Date(p.CreatedAt.Year(), p.CreatedAt.Month(), p.CreatedAt.Day(), 23, 59, 59, 0, p.CreatedAt.Location())
		p.ExpirationDate = &endOfDay
	case StrategyCore:
		p.ExpirationDate = nil
	}
}

// IsHybridExpired reports whether a HYBRID order's 10-day window has passed.
func (p *PlannedOrder) IsHybridExpired(now time.Time) bool {
	if p.PositionStrategy != StrategyHybrid || p.ExpirationDate == nil {
		return false
	}
	return now.After(*p.ExpirationDate)
}

// ActiveOrder is a tracked, submitted bracket order.
type ActiveOrder struct {
	DBID              int64
	Planned           *PlannedOrder
	OrderIDs          []string // [parent, take-profit, stop]
	Status            ActiveOrderStatus
	CapitalCommitment decimal.Decimal
	FillProbability   float64
	Timestamp         time.Time
	IsLiveTrading     bool
	AccountNumber     string
}

// Symbol mirrors the planned order's symbol for convenience.
func (a *ActiveOrder) Symbol() string {
	if a.Planned == nil {
		return ""
	}
	return a.Planned.Symbol
}

// IsWorking reports whether this order still occupies an open-order slot.
func (a *ActiveOrder) IsWorking() bool {
	return a.Status.IsWorking()
}

// AgeSeconds returns the time since submission.
func (a *ActiveOrder) AgeSeconds(now time.Time) float64 {
	return now.Sub(a.Timestamp).Seconds()
}

// NaturalKey mirrors the PlannedOrder dedupe key for active-order uniqueness checks.
func (a *ActiveOrder) NaturalKey() string {
	if a.Planned == nil {
		return ""
	}
	return a.Planned.NaturalKey()
}

// ExecutedOrder is the durable record of a fill (or simulated fill).
type ExecutedOrder struct {
	ID              int64
	PlannedOrderID  int64
	FilledPrice     decimal.Decimal
	FilledQuantity  int64
	Commission      decimal.Decimal
	RealizedPnL     decimal.Decimal
	Status          string
	ExecutedAt      time.Time
	ClosedAt        *time.Time
	IsOpen          bool
	IsLiveTrading   bool
	AccountNumber   string
	ExpirationDate  *time.Time
}

// RealizedPnLForClose computes quantity*(exit-entry) for BUY, quantity*(entry-exit) for SELL.
func RealizedPnLForClose(action Action, entry, exit decimal.Decimal, quantity int64) decimal.Decimal {
	qty := decimal.NewFromInt(quantity)
	if action.IsBuySide() {
		return exit.Sub(entry).Mul(qty)
	}
	return entry.Sub(exit).Mul(qty)
}

// OrderLabel is a derived ML outcome row. (PlannedOrderID, LabelType) is unique.
type OrderLabel struct {
	PlannedOrderID int64
	LabelType      LabelType
	LabelValue     float64
	ComputedAt     time.Time
	Notes          string
}

// ProbabilityScore is a single fill-probability evaluation with its feature map.
type ProbabilityScore struct {
	PlannedOrderID  int64
	Timestamp       time.Time
	FillProbability float64
	Features        map[string]interface{}
}

// OrderEvent is the transient pub/sub payload published on every accepted
// PlannedOrder state mutation.
type OrderEvent struct {
	OrderID   int64
	Symbol    string
	OldState  OrderStatus
	NewState  OrderStatus
	Timestamp time.Time
	Source    string
	Details   map[string]interface{}
}
