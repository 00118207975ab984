package stateservice

import (
	"testing"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/database"
	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/robinmaple/trading-automation-sub001/internal/events"
	"github.com/robinmaple/trading-automation-sub001/internal/persistence"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *persistence.PlannedOrderRepository) {
	t.Helper()
	db, err := database.NewInMemory(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := zerolog.Nop()
	plannedRepo := persistence.NewPlannedOrderRepository(db.Conn(), log)
	executedRepo := persistence.NewExecutedOrderRepository(db.Conn(), log)
	bus := events.NewBus(log)
	return New(plannedRepo, executedRepo, bus, log), plannedRepo
}

func samplePlannedOrder() *domain.PlannedOrder {
	now := time.Now().UTC()
	return &domain.PlannedOrder{
		Symbol:           "AAPL",
		SecurityType:     domain.SecurityStock,
		Exchange:         "SMART",
		Currency:         "USD",
		Action:           domain.ActionBuy,
		OrderType:        domain.OrderTypeLimit,
		EntryPrice:       decimal.NewFromFloat(150),
		StopLoss:         decimal.NewFromFloat(145),
		RiskPerTrade:     decimal.NewFromFloat(0.01),
		RiskRewardRatio:  decimal.NewFromFloat(2.0),
		Priority:         3,
		PositionStrategy: domain.StrategyCore,
		Status:           domain.StatusPending,
		CreatedAt:        now,
		ImportedAt:       now,
	}
}

func TestUpdatePlannedOrderState_SameStateIsNoOp(t *testing.T) {
	svc, repo := newTestService(t)
	p := samplePlannedOrder()
	require.NoError(t, repo.Create(p))

	ok, err := svc.UpdatePlannedOrderState(p, domain.StatusPending, "", "test")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.StatusPending, p.Status)
}

func TestUpdatePlannedOrderState_ValidTransitionCommitsAndPublishes(t *testing.T) {
	svc, repo := newTestService(t)
	p := samplePlannedOrder()
	require.NoError(t, repo.Create(p))

	var received []domain.OrderEvent
	svc.Subscribe(func(ev domain.OrderEvent) { received = append(received, ev) })

	ok, err := svc.UpdatePlannedOrderState(p, domain.StatusLive, "submitted", "execution")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.StatusLive, p.Status)
	require.Len(t, received, 1)
	require.Equal(t, domain.StatusPending, received[0].OldState)
	require.Equal(t, domain.StatusLive, received[0].NewState)

	reloaded, err := repo.GetByID(p.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusLive, reloaded.Status)
}

func TestUpdatePlannedOrderState_TerminalStateCannotBeLeft(t *testing.T) {
	svc, repo := newTestService(t)
	p := samplePlannedOrder()
	p.Status = domain.StatusCancelled
	require.NoError(t, repo.Create(p))

	ok, err := svc.UpdatePlannedOrderState(p, domain.StatusLive, "", "test")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, domain.StatusCancelled, p.Status)
}

func TestUpdatePlannedOrderState_FailingSubscriberDoesNotBlockOthers(t *testing.T) {
	svc, repo := newTestService(t)
	p := samplePlannedOrder()
	require.NoError(t, repo.Create(p))

	secondCalled := false
	svc.Subscribe(func(ev domain.OrderEvent) { panic("boom") })
	svc.Subscribe(func(ev domain.OrderEvent) { secondCalled = true })

	ok, err := svc.UpdatePlannedOrderState(p, domain.StatusLive, "", "test")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, secondCalled)
}

func TestCloseExecutedOrder_RecordsRealizedPnL(t *testing.T) {
	db, err := database.NewInMemory(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := zerolog.Nop()
	plannedRepo := persistence.NewPlannedOrderRepository(db.Conn(), log)
	executedRepo := persistence.NewExecutedOrderRepository(db.Conn(), log)
	bus := events.NewBus(log)
	svc := New(plannedRepo, executedRepo, bus, log)

	p := samplePlannedOrder()
	require.NoError(t, plannedRepo.Create(p))

	exec := &domain.ExecutedOrder{
		PlannedOrderID: p.ID,
		FilledPrice:    decimal.NewFromFloat(150),
		FilledQuantity: 100,
		Commission:     decimal.Zero,
		Status:         "SUBMITTED",
		ExecutedAt:     time.Now().UTC(),
		IsOpen:         true,
		AccountNumber:  "ACC-1",
	}
	require.NoError(t, executedRepo.Create(exec))

	err = svc.CloseExecutedOrder(exec.ID, p.Symbol, p.Action, decimal.NewFromFloat(150), decimal.NewFromFloat(160), 100, "ACC-1", time.Now().UTC())
	require.NoError(t, err)

	total, err := executedRepo.SumRealizedPnLSince("ACC-1", time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, total.Equal(decimal.NewFromFloat(1000)))
}
