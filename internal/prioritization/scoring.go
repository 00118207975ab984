// Package prioritization implements the two-layer viability/quality scoring
// and greedy capital/slot allocation of base §4.4, with a watchdog-bounded
// fallback to a legacy single-layer composite score.
package prioritization

import (
	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/shopspring/decimal"
)

// Candidate is one order entering the prioritization pipeline, carrying the
// sizing result computed for it upstream.
type Candidate struct {
	Order             *domain.PlannedOrder
	Quantity          int64
	CapitalCommitment decimal.Decimal
}

// Scored is a Candidate after quality scoring.
type Scored struct {
	Candidate
	PriorityNorm    float64
	Efficiency      float64
	RiskRewardScore float64
	TimeframeMatch  float64
	SetupBias       float64
	QualityScore    float64
}

// Allocated is the final disposition of one candidate after allocation.
type Allocated struct {
	Scored
	Allocated bool
	Reason    string
}

// Minimum sample thresholds below which setup_bias falls back to the
// below-threshold penalty value, per base §4.4.
const (
	minSetupTrades      = 10
	minSetupWinRate     = 0.3
	minSetupProfitFactor = 1.0
)

// MarketContext reports the dominant trading timeframe observed across
// active symbols, an optional advanced-features collaborator (base §4.4).
type MarketContext interface {
	DominantTimeframe() (timeframe string, ok bool)
	CompatibleTimeframes(dominant string) []string
}

// SetupStats is one trading_setup's historical performance summary.
type SetupStats struct {
	TradeCount   int
	WinRate      float64
	ProfitFactor float64
}

// SetupPerformance looks up historical performance by trading_setup name.
type SetupPerformance interface {
	Stats(setup string) (SetupStats, bool)
}

// Weights are the quality-score component weights; callers pass the
// configured values (sum to ~1.0, validated at config load).
type Weights struct {
	ManualPriority float64
	Efficiency     float64
	RiskReward     float64
	TimeframeMatch float64
	SetupBias      float64
}

// scoreQuality computes every component of the quality score for one
// candidate, per base §4.4's formulas.
func scoreQuality(c Candidate, weights Weights, market MarketContext, setups SetupPerformance) Scored {
	s := Scored{Candidate: c}

	s.PriorityNorm = priorityNorm(c.Order.Priority)
	s.Efficiency = efficiency(c.Order, c.Quantity, c.CapitalCommitment)
	s.RiskRewardScore = riskRewardScore(c.Order.RiskRewardRatio.InexactFloat64())
	s.TimeframeMatch = timeframeMatch(c.Order.CoreTimeframe, market)
	s.SetupBias = setupBias(c.Order.TradingSetup, setups)

	s.QualityScore = weights.ManualPriority*s.PriorityNorm +
		weights.Efficiency*s.Efficiency +
		weights.RiskReward*s.RiskRewardScore +
		weights.TimeframeMatch*s.TimeframeMatch +
		weights.SetupBias*s.SetupBias

	return s
}

func priorityNorm(priority int) float64 {
	return float64(6-priority) / 5.0
}

func efficiency(order *domain.PlannedOrder, quantity int64, capitalCommitment decimal.Decimal) float64 {
	if capitalCommitment.IsZero() {
		return 0
	}
	profitTarget := order.ProfitTarget()
	expectedProfitPerUnit := profitTarget.Sub(order.EntryPrice).Abs()
	expectedProfitTotal := expectedProfitPerUnit.Mul(decimal.NewFromInt(quantity))

	eff := expectedProfitTotal.Div(capitalCommitment).InexactFloat64()
	if eff < 0 {
		return 0
	}
	return eff
}

func riskRewardScore(rr float64) float64 {
	a := 0.5 + (rr-1)*0.25
	if a > 1.2 {
		a = 1.2
	}
	b := 1 - (rr-1)*0.1
	if b < 0.6 {
		b = 0.6
	}
	return a * b
}

func timeframeMatch(coreTimeframe string, market MarketContext) float64 {
	if market == nil {
		return 0.5
	}
	dominant, ok := market.DominantTimeframe()
	if !ok {
		return 0.5
	}
	if coreTimeframe == dominant {
		return 1.0
	}
	for _, tf := range market.CompatibleTimeframes(dominant) {
		if tf == coreTimeframe {
			return 0.7
		}
	}
	return 0.3
}

func setupBias(setup string, setups SetupPerformance) float64 {
	if setups == nil || setup == "" {
		return 0.5
	}
	stats, ok := setups.Stats(setup)
	if !ok {
		return 0.5
	}
	if stats.TradeCount < minSetupTrades || stats.WinRate < minSetupWinRate || stats.ProfitFactor < minSetupProfitFactor {
		return 0.3
	}
	pf := stats.ProfitFactor
	if pf > 5 {
		pf = 5
	}
	score := 0.6*stats.WinRate + 0.4*(pf/5)
	if score < 0.1 {
		score = 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
