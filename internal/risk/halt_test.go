package risk

import (
	"testing"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/config"
	"github.com/robinmaple/trading-automation-sub001/internal/database"
	"github.com/robinmaple/trading-automation-sub001/internal/persistence"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRiskService(t *testing.T) (*Service, *persistence.ExecutedOrderRepository) {
	t.Helper()
	db, err := database.NewInMemory(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := persistence.NewExecutedOrderRepository(db.Conn(), zerolog.Nop())
	limits := config.RiskLimits{
		DailyLossPct: 0.02, WeeklyLossPct: 0.05, MonthlyLossPct: 0.08,
		MaxRiskPerTrade: 0.02, CoreHybridSingleTradeCapPct: 0.20, CoreHybridAggregateCapPct: 0.60,
	}
	return New(limits, repo, zerolog.Nop()), repo
}

func TestCanPlaceOrder_ZeroEquityHalts(t *testing.T) {
	svc, _ := newTestRiskService(t)
	d := svc.CanPlaceOrder("acct1", decimal.NewFromFloat(0.01), decimal.Zero, false, decimal.NewFromInt(1000), WorkingExposure{}, time.Now())
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "Zero or negative equity")
}

func TestCanPlaceOrder_DailyLossHalts(t *testing.T) {
	svc, repo := newTestRiskService(t)
	now := time.Now().UTC()
	require.NoError(t, repo.RecordRealizedPnL(1, "AAPL", decimal.NewFromFloat(-3000), now, "acct1"))

	d := svc.CanPlaceOrder("acct1", decimal.NewFromFloat(0.01), decimal.NewFromInt(100000), false, decimal.NewFromInt(1000), WorkingExposure{}, now)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "daily")
}

func TestCanPlaceOrder_CapsRiskPerTradeToConfiguredMax(t *testing.T) {
	svc, _ := newTestRiskService(t)
	d := svc.CanPlaceOrder("acct1", decimal.NewFromFloat(0.05), decimal.NewFromInt(100000), false, decimal.NewFromInt(1000), WorkingExposure{}, time.Now())
	assert.True(t, d.Allowed)
	assert.True(t, d.RiskPerTrade.Equal(decimal.NewFromFloat(0.02)))
}

func TestCanPlaceOrder_CoreHybridSingleTradeCapExceeded(t *testing.T) {
	svc, _ := newTestRiskService(t)
	d := svc.CanPlaceOrder("acct1", decimal.NewFromFloat(0.01), decimal.NewFromInt(100000), true, decimal.NewFromInt(25000), WorkingExposure{}, time.Now())
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "single-trade")
}

func TestCanPlaceOrder_CoreHybridAggregateCapExceeded(t *testing.T) {
	svc, _ := newTestRiskService(t)
	exposure := WorkingExposure{CoreHybridCommitted: decimal.NewFromInt(55000)}
	d := svc.CanPlaceOrder("acct1", decimal.NewFromFloat(0.01), decimal.NewFromInt(100000), true, decimal.NewFromInt(10000), exposure, time.Now())
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "aggregate")
}

func TestCanPlaceOrder_DayStrategyExemptFromExposureCaps(t *testing.T) {
	svc, _ := newTestRiskService(t)
	d := svc.CanPlaceOrder("acct1", decimal.NewFromFloat(0.01), decimal.NewFromInt(100000), false, decimal.NewFromInt(90000), WorkingExposure{}, time.Now())
	assert.True(t, d.Allowed)
}

func TestHaltState_CachesWithinTTL(t *testing.T) {
	svc, repo := newTestRiskService(t)
	now := time.Now().UTC()
	require.NoError(t, repo.RecordRealizedPnL(1, "AAPL", decimal.NewFromFloat(-3000), now, "acct1"))

	first := svc.haltState("acct1", decimal.NewFromInt(100000), now)
	assert.True(t, first.Halted)

	require.NoError(t, repo.RecordRealizedPnL(2, "AAPL", decimal.NewFromFloat(3000), now, "acct1"))
	cached := svc.haltState("acct1", decimal.NewFromInt(100000), now.Add(1*time.Minute))
	assert.True(t, cached.Halted, "should still read from cache within TTL")
}
