package prioritization

import (
	"testing"

	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func sampleCandidate(symbol string, priority int) Candidate {
	order := &domain.PlannedOrder{
		Symbol:          symbol,
		Action:          domain.ActionBuy,
		EntryPrice:      decimal.NewFromFloat(100),
		StopLoss:        decimal.NewFromFloat(95),
		RiskRewardRatio: decimal.NewFromFloat(2),
		Priority:        priority,
	}
	return Candidate{
		Order:             order,
		Quantity:          100,
		CapitalCommitment: decimal.NewFromFloat(10000),
	}
}

func TestPriorityNorm_Bounds(t *testing.T) {
	assert.InDelta(t, 1.0, priorityNorm(1), 0.0001)
	assert.InDelta(t, 0.2, priorityNorm(5), 0.0001)
}

func TestRiskRewardScore_Monotonic(t *testing.T) {
	low := riskRewardScore(1.0)
	mid := riskRewardScore(2.0)
	assert.Less(t, low, mid)
}

func TestTimeframeMatch_NilMarketDefaultsToHalf(t *testing.T) {
	assert.Equal(t, 0.5, timeframeMatch("1H", nil))
}

func TestSetupBias_BelowThresholdPenalized(t *testing.T) {
	stats := fakeSetups{"scalp": SetupStats{TradeCount: 2, WinRate: 0.8, ProfitFactor: 3}}
	assert.Equal(t, 0.3, setupBias("scalp", stats))
}

func TestSetupBias_UnavailableDefaultsToHalf(t *testing.T) {
	assert.Equal(t, 0.5, setupBias("scalp", nil))
}

type fakeSetups map[string]SetupStats

func (f fakeSetups) Stats(setup string) (SetupStats, bool) {
	s, ok := f[setup]
	return s, ok
}

func TestScoreQuality_ProducesWeightedScore(t *testing.T) {
	weights := Weights{ManualPriority: 0.3, Efficiency: 0.25, RiskReward: 0.25, TimeframeMatch: 0.1, SetupBias: 0.1}
	s := scoreQuality(sampleCandidate("AAPL", 1), weights, nil, nil)
	assert.Greater(t, s.QualityScore, 0.0)
}
