package sizing

import (
	"testing"

	"github.com/robinmaple/trading-automation-sub001/internal/config"
	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_ClampsRiskPerTradeToConfiguredCeiling(t *testing.T) {
	s := New(config.RiskLimits{MaxRiskPerTrade: 0.01})
	order := &domain.PlannedOrder{
		Symbol: "AAPL", SecurityType: domain.SecurityStock,
		EntryPrice: decimal.NewFromFloat(150), StopLoss: decimal.NewFromFloat(145),
		RiskPerTrade: decimal.NewFromFloat(0.02),
	}

	result, err := s.Resolve(order, decimal.NewFromInt(100000))
	require.NoError(t, err)
	// 100000*0.01 / 5 = 200
	assert.Equal(t, int64(200), result.Quantity)
}

func TestResolve_RejectsNonPositiveEquity(t *testing.T) {
	s := New(config.RiskLimits{MaxRiskPerTrade: 0.02})
	order := &domain.PlannedOrder{
		SecurityType: domain.SecurityStock,
		EntryPrice:   decimal.NewFromFloat(150), StopLoss: decimal.NewFromFloat(145),
		RiskPerTrade: decimal.NewFromFloat(0.01),
	}
	_, err := s.Resolve(order, decimal.Zero)
	assert.Error(t, err)
}
