package marketctx

import (
	"testing"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/database"
	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/robinmaple/trading-automation-sub001/internal/persistence"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(symbol, timeframe string) *domain.PlannedOrder {
	return &domain.PlannedOrder{
		Symbol:           symbol,
		SecurityType:     domain.SecurityStock,
		Exchange:         "SMART",
		Currency:         "USD",
		Action:           domain.ActionBuy,
		OrderType:        domain.OrderTypeLimit,
		EntryPrice:       decimal.NewFromFloat(100),
		StopLoss:         decimal.NewFromFloat(98),
		RiskPerTrade:     decimal.NewFromFloat(0.01),
		RiskRewardRatio:  decimal.NewFromFloat(2),
		Priority:         3,
		PositionStrategy: domain.StrategyDay,
		CoreTimeframe:    timeframe,
		Status:           domain.StatusPending,
	}
}

func TestTracker_DominantTimeframe(t *testing.T) {
	tr := NewTracker()

	_, ok := tr.DominantTimeframe()
	assert.False(t, ok, "empty tracker reports no dominant timeframe")

	tr.Update([]*domain.PlannedOrder{
		newOrder("AAPL", "1h"),
		newOrder("MSFT", "1h"),
		newOrder("TSLA", "1d"),
	})

	dominant, ok := tr.DominantTimeframe()
	require.True(t, ok)
	assert.Equal(t, "1h", dominant)
	assert.Contains(t, tr.CompatibleTimeframes(dominant), "4h")
}

func TestTracker_UpdateReplacesPriorTally(t *testing.T) {
	tr := NewTracker()
	tr.Update([]*domain.PlannedOrder{newOrder("AAPL", "1h")})
	tr.Update([]*domain.PlannedOrder{newOrder("AAPL", "1d"), newOrder("MSFT", "1d")})

	dominant, ok := tr.DominantTimeframe()
	require.True(t, ok)
	assert.Equal(t, "1d", dominant)
}

func newTestSetupStore(t *testing.T) (*SetupStore, *persistence.PlannedOrderRepository, *persistence.LabelRepository) {
	t.Helper()
	db, err := database.NewInMemory(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	plannedRepo := persistence.NewPlannedOrderRepository(db.Conn(), zerolog.Nop())
	labelRepo := persistence.NewLabelRepository(db.Conn(), zerolog.Nop())
	return NewSetupStore(db.Conn(), zerolog.Nop()), plannedRepo, labelRepo
}

func TestSetupStore_StatsUnknownSetup(t *testing.T) {
	store, _, _ := newTestSetupStore(t)
	_, ok := store.Stats("breakout_pullback")
	assert.False(t, ok)
}

func TestSetupStore_StatsAggregatesWinRateAndProfitFactor(t *testing.T) {
	store, plannedRepo, labelRepo := newTestSetupStore(t)

	now := time.Now().UTC()
	for i, profitability := range []float64{0.02, 0.03, -0.01} {
		order := newOrder("AAPL", "1h")
		order.TradingSetup = "breakout_pullback"
		require.NoError(t, plannedRepo.Create(order))
		require.NoError(t, labelRepo.Upsert(&domain.OrderLabel{
			PlannedOrderID: order.ID,
			LabelType:      domain.LabelProfitability,
			LabelValue:     profitability,
			ComputedAt:     now,
		}))
		_ = i
	}

	stats, ok := store.Stats("breakout_pullback")
	require.True(t, ok)
	assert.Equal(t, 3, stats.TradeCount)
	assert.InDelta(t, 2.0/3.0, stats.WinRate, 0.0001)
	assert.InDelta(t, 5.0, stats.ProfitFactor, 0.0001) // (0.02+0.03)/0.01
}
