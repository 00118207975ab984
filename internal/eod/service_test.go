package eod

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/config"
	"github.com/robinmaple/trading-automation-sub001/internal/database"
	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/robinmaple/trading-automation-sub001/internal/events"
	"github.com/robinmaple/trading-automation-sub001/internal/persistence"
	"github.com/robinmaple/trading-automation-sub001/internal/stateservice"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFeed is a minimal domain.DataFeed test double returning a fixed quote
// per symbol, used to exercise EOD closure pricing off live market data.
type stubFeed struct {
	quotes map[string]decimal.Decimal
}

func (f *stubFeed) IsConnected() bool { return true }
func (f *stubFeed) Subscribe(ctx context.Context, symbol string) error { return nil }
func (f *stubFeed) Unsubscribe(ctx context.Context, symbol string) error { return nil }
func (f *stubFeed) GetCurrentPrice(symbol string) (*domain.Quote, bool) {
	price, ok := f.quotes[symbol]
	if !ok {
		return nil, false
	}
	return &domain.Quote{Symbol: symbol, Price: price}, true
}

func defaultEODConfig() config.EndOfDay {
	return config.EndOfDay{
		Enabled: true, CloseBufferMinutes: 15, PreMarketStartMinutes: 30, PostMarketEndMinutes: 30,
		MaxCloseAttempts: 3, CloseDayPositions: true, CloseExpiredHybrid: true,
		ExpirePlannedOrders: true, LeaveCorePositions: true,
	}
}

func newTestEODService(t *testing.T) (*Service, *persistence.PlannedOrderRepository, *persistence.ExecutedOrderRepository) {
	t.Helper()
	db, err := database.NewInMemory(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := zerolog.Nop()
	plannedRepo := persistence.NewPlannedOrderRepository(db.Conn(), log)
	executedRepo := persistence.NewExecutedOrderRepository(db.Conn(), log)
	bus := events.NewBus(log)
	state := stateservice.New(plannedRepo, executedRepo, bus, log)
	return New(defaultEODConfig(), executedRepo, plannedRepo, state, nil, nil, nil, log), plannedRepo, executedRepo
}

func newTestEODServiceWithFeed(t *testing.T, feed domain.DataFeed) (*Service, *persistence.PlannedOrderRepository, *persistence.ExecutedOrderRepository, *sql.DB) {
	t.Helper()
	db, err := database.NewInMemory(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := zerolog.Nop()
	plannedRepo := persistence.NewPlannedOrderRepository(db.Conn(), log)
	executedRepo := persistence.NewExecutedOrderRepository(db.Conn(), log)
	bus := events.NewBus(log)
	state := stateservice.New(plannedRepo, executedRepo, bus, log)
	return New(defaultEODConfig(), executedRepo, plannedRepo, state, nil, feed, nil, log), plannedRepo, executedRepo, db.Conn()
}

func TestCurrentWindow_ClosingWindowDetected(t *testing.T) {
	svc, _, _ := newTestEODService(t)
	// A Tuesday at 15:50 ET, 10 minutes before close, within the 15-minute buffer.
	et, _ := time.LoadLocation("America/New_York")
	now := time.Date(2026, 7, 28, 15, 50, 0, 0, et)
	assert.Equal(t, WindowClosing, svc.CurrentWindow(now))
}

func TestCurrentWindow_WeekendIsNone(t *testing.T) {
	svc, _, _ := newTestEODService(t)
	et, _ := time.LoadLocation("America/New_York")
	now := time.Date(2026, 8, 1, 15, 50, 0, 0, et) // Saturday
	assert.Equal(t, WindowNone, svc.CurrentWindow(now))
}

func TestCurrentWindow_MiddayIsNone(t *testing.T) {
	svc, _, _ := newTestEODService(t)
	et, _ := time.LoadLocation("America/New_York")
	now := time.Date(2026, 7, 28, 12, 0, 0, 0, et)
	assert.Equal(t, WindowNone, svc.CurrentWindow(now))
}

func TestRun_ClosesDayPositionDuringClosingWindow(t *testing.T) {
	svc, plannedRepo, executedRepo := newTestEODService(t)

	planned := &domain.PlannedOrder{
		Symbol: "AAPL", SecurityType: domain.SecurityStock, Exchange: "SMART", Currency: "USD",
		Action: domain.ActionBuy, OrderType: domain.OrderTypeLimit,
		EntryPrice: decimal.NewFromFloat(150), StopLoss: decimal.NewFromFloat(145),
		RiskPerTrade: decimal.NewFromFloat(0.01), RiskRewardRatio: decimal.NewFromFloat(2),
		Priority: 3, PositionStrategy: domain.StrategyDay, Status: domain.StatusFilled,
	}
	require.NoError(t, plannedRepo.Create(planned))

	exec := &domain.ExecutedOrder{
		PlannedOrderID: planned.ID, FilledPrice: decimal.NewFromFloat(150), FilledQuantity: 100,
		Status: "FILLED", ExecutedAt: time.Now(), IsOpen: true,
	}
	require.NoError(t, executedRepo.Create(exec))

	et, _ := time.LoadLocation("America/New_York")
	closingTime := time.Date(2026, 7, 28, 15, 50, 0, 0, et)
	require.NoError(t, svc.Run(closingTime))

	positions, err := executedRepo.GetAllOpenPositions()
	require.NoError(t, err)
	assert.Empty(t, positions)

	updated, err := plannedRepo.GetByID(planned.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, updated.Status)
}

func TestRun_ClosesDayPositionAtLiveFeedPrice(t *testing.T) {
	feed := &stubFeed{quotes: map[string]decimal.Decimal{"AAPL": decimal.NewFromFloat(152.5)}}
	svc, plannedRepo, executedRepo, conn := newTestEODServiceWithFeed(t, feed)

	planned := &domain.PlannedOrder{
		Symbol: "AAPL", SecurityType: domain.SecurityStock, Exchange: "SMART", Currency: "USD",
		Action: domain.ActionBuy, OrderType: domain.OrderTypeLimit,
		EntryPrice: decimal.NewFromFloat(150), StopLoss: decimal.NewFromFloat(145),
		RiskPerTrade: decimal.NewFromFloat(0.01), RiskRewardRatio: decimal.NewFromFloat(2),
		Priority: 3, PositionStrategy: domain.StrategyDay, Status: domain.StatusFilled,
	}
	require.NoError(t, plannedRepo.Create(planned))

	exec := &domain.ExecutedOrder{
		PlannedOrderID: planned.ID, FilledPrice: decimal.NewFromFloat(150), FilledQuantity: 100,
		Status: "FILLED", ExecutedAt: time.Now(), IsOpen: true,
	}
	require.NoError(t, executedRepo.Create(exec))

	et, _ := time.LoadLocation("America/New_York")
	closingTime := time.Date(2026, 7, 28, 15, 50, 0, 0, et)
	require.NoError(t, svc.Run(closingTime))

	var pnlStr string
	require.NoError(t, conn.QueryRow(`SELECT pnl FROM executed_orders WHERE id = ?`, exec.ID).Scan(&pnlStr))
	pnl, err := decimal.NewFromString(pnlStr)
	require.NoError(t, err)
	// (152.5 - 150) * 100 = 250; a 0 P&L would mean the fill price was used
	// as the exit price instead of the live feed quote.
	assert.True(t, pnl.Equal(decimal.NewFromFloat(250)), "realized P&L should reflect the live feed exit price, got %s", pnl)
}

func TestResetDailyCounters_ClearsAttempts(t *testing.T) {
	svc, _, _ := newTestEODService(t)
	svc.closeAttempts[1] = 2
	svc.ResetDailyCounters()
	assert.Empty(t, svc.closeAttempts)
}
