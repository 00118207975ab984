package execution

import (
	"context"
	"testing"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/activeorders"
	"github.com/robinmaple/trading-automation-sub001/internal/config"
	"github.com/robinmaple/trading-automation-sub001/internal/database"
	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/robinmaple/trading-automation-sub001/internal/events"
	"github.com/robinmaple/trading-automation-sub001/internal/persistence"
	"github.com/robinmaple/trading-automation-sub001/internal/sizing"
	"github.com/robinmaple/trading-automation-sub001/internal/stateservice"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopBroker struct{ connected bool }

func (n *noopBroker) Connected() bool                                     { return n.connected }
func (n *noopBroker) IsPaperAccount() bool                                { return true }
func (n *noopBroker) AccountNumber() string                               { return "paper1" }
func (n *noopBroker) GetAccountValue(ctx context.Context) (decimal.Decimal, error) {
	return decimal.NewFromInt(100000), nil
}
func (n *noopBroker) PlaceBracketOrder(ctx context.Context, order *domain.PlannedOrder, quantity int64, equity decimal.Decimal) ([3]string, error) {
	return [3]string{"p1", "tp1", "sl1"}, nil
}
func (n *noopBroker) CancelOrder(ctx context.Context, orderID string) (bool, error) { return true, nil }
func (n *noopBroker) GetOpenOrders(ctx context.Context) ([]domain.BrokerOrder, error) {
	return nil, nil
}
func (n *noopBroker) GetPositions(ctx context.Context) ([]domain.BrokerPosition, error) {
	return nil, nil
}

func newTestOrchestrator(t *testing.T, broker domain.BrokerClient) *Orchestrator {
	t.Helper()
	db, err := database.NewInMemory(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := zerolog.Nop()
	plannedRepo := persistence.NewPlannedOrderRepository(db.Conn(), log)
	executedRepo := persistence.NewExecutedOrderRepository(db.Conn(), log)
	bus := events.NewBus(log)
	state := stateservice.New(plannedRepo, executedRepo, bus, log)
	sizer := sizing.New(config.RiskLimits{MaxRiskPerTrade: 0.02})
	active := activeorders.New()

	cfg := &config.Config{
		Simulation: config.Simulation{DefaultEquity: 100000},
		Execution:  config.Execution{MinFillProbability: 0.4},
		RiskLimits: config.RiskLimits{MaxOpenOrders: 5},
	}
	return New(broker, sizer, plannedRepo, executedRepo, state, active, cfg, log)
}

func sampleExecOrder() *domain.PlannedOrder {
	return &domain.PlannedOrder{
		ID: 1, Symbol: "AAPL", SecurityType: domain.SecurityStock,
		Action: domain.ActionBuy, OrderType: domain.OrderTypeLimit,
		EntryPrice: decimal.NewFromFloat(150), StopLoss: decimal.NewFromFloat(145),
		RiskPerTrade: decimal.NewFromFloat(0.01), RiskRewardRatio: decimal.NewFromFloat(2),
		Priority: 3, PositionStrategy: domain.StrategyDay, Status: domain.StatusPending,
	}
}

func TestSubmit_NoBrokerSimulatesFill(t *testing.T) {
	orch := newTestOrchestrator(t, &noopBroker{connected: false})
	order := sampleExecOrder()

	out, err := orch.Submit(context.Background(), order, 0.9, false, time.Now())
	require.NoError(t, err)
	assert.True(t, out.Accepted)
	assert.Equal(t, domain.StatusFilled, order.Status)
}

func TestSubmit_ConnectedBrokerSubmitsBracket(t *testing.T) {
	orch := newTestOrchestrator(t, &noopBroker{connected: true})
	order := sampleExecOrder()

	out, err := orch.Submit(context.Background(), order, 0.9, false, time.Now())
	require.NoError(t, err)
	assert.True(t, out.Accepted)
	assert.Equal(t, domain.StatusLive, order.Status)
	assert.Len(t, order.BrokerOrderIDs, 3)
}

func TestSubmit_LegacyPathRejectsLowFillProbability(t *testing.T) {
	orch := newTestOrchestrator(t, &noopBroker{connected: false})
	order := sampleExecOrder()

	out, err := orch.Submit(context.Background(), order, 0.1, true, time.Now())
	require.NoError(t, err)
	assert.False(t, out.Accepted)
	assert.Contains(t, out.Reason, "fill probability")
}

func TestSubmit_RejectsWhenDuplicateActiveOrderExists(t *testing.T) {
	orch := newTestOrchestrator(t, &noopBroker{connected: false})
	order := sampleExecOrder()
	orch.active.Insert(&domain.ActiveOrder{Planned: order, Status: domain.ActiveWorking})

	out, err := orch.Submit(context.Background(), order, 0.9, false, time.Now())
	require.NoError(t, err)
	assert.False(t, out.Accepted)
}

func TestEffectivePriority(t *testing.T) {
	assert.InDelta(t, 2.7, EffectivePriority(3, 0.9), 0.0001)
}
