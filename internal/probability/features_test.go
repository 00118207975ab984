package probability

import (
	"testing"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleOrder() *domain.PlannedOrder {
	return &domain.PlannedOrder{
		Symbol:       "AAPL",
		Action:       domain.ActionBuy,
		OrderType:    domain.OrderTypeLimit,
		EntryPrice:   decimal.NewFromFloat(150),
		StopLoss:     decimal.NewFromFloat(145),
		Priority:     3,
		TradingSetup: "breakout",
	}
}

func TestExtractFeatures_NoQuoteOmitsMarketFields(t *testing.T) {
	f := ExtractFeatures(sampleOrder(), nil, time.Now())
	assert.Equal(t, "AAPL", f["symbol"])
	_, hasCurrent := f["current_price"]
	assert.False(t, hasCurrent)
}

func TestExtractFeatures_WithQuotePopulatesMarketFields(t *testing.T) {
	q := &domain.Quote{
		Symbol: "AAPL",
		Price:  decimal.NewFromFloat(150),
		Bid:    decimal.NewFromFloat(149.9),
		Ask:    decimal.NewFromFloat(150.1),
		Last:   decimal.NewFromFloat(150),
		Volume: 1000,
	}
	f := ExtractFeatures(sampleOrder(), q, time.Now())
	require.Contains(t, f, "current_price")
	assert.InDelta(t, 150.0, f["current_price"], 0.0001)
	assert.InDelta(t, 0.2, f["spread_absolute"], 0.0001)
}

func TestRealizedVolatility_RequiresMinimumHistory(t *testing.T) {
	_, ok := realizedVolatility([]decimal.Decimal{decimal.NewFromFloat(100)})
	assert.False(t, ok)
}

func TestRealizedVolatility_ComputesNonNegativeStdDev(t *testing.T) {
	history := []decimal.Decimal{
		decimal.NewFromFloat(100), decimal.NewFromFloat(101), decimal.NewFromFloat(99), decimal.NewFromFloat(102),
	}
	vol, ok := realizedVolatility(history)
	require.True(t, ok)
	assert.GreaterOrEqual(t, vol, 0.0)
}

func TestRecentRSI_RequiresFifteenPoints(t *testing.T) {
	_, ok := recentRSI([]decimal.Decimal{decimal.NewFromFloat(100)})
	assert.False(t, ok)
}
