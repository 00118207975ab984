package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/database"
	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/robinmaple/trading-automation-sub001/internal/persistence"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(t *testing.T, broker domain.BrokerClient) (*Orchestrator, *persistence.PlannedOrderRepository) {
	t.Helper()
	db, err := database.NewInMemory(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := zerolog.Nop()
	repo := persistence.NewPlannedOrderRepository(db.Conn(), log)
	sheet := NewSpreadsheetSource(defaultOrderDefaults())
	return New(repo, sheet, broker, log), repo
}

func TestOrchestrator_DatabaseDropsExpiredDayOrder(t *testing.T) {
	orch, repo := newTestOrchestrator(t, nil)

	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	p := &domain.PlannedOrder{
		Symbol: "AAPL", SecurityType: domain.SecurityStock, Exchange: "SMART", Currency: "USD",
		Action: domain.ActionBuy, OrderType: domain.OrderTypeLimit,
		EntryPrice: decimal.NewFromFloat(150), StopLoss: decimal.NewFromFloat(145),
		RiskPerTrade: decimal.NewFromFloat(0.01), RiskRewardRatio: decimal.NewFromFloat(2),
		Priority: 3, PositionStrategy: domain.StrategyDay, Status: domain.StatusLive,
		CreatedAt: yesterday, ImportedAt: yesterday,
	}
	require.NoError(t, repo.Create(p))

	orders := orch.Load(context.Background(), "", time.Now().UTC())
	require.Empty(t, orders)
}

func TestOrchestrator_DatabaseKeepsCoreRegardlessOfAge(t *testing.T) {
	orch, repo := newTestOrchestrator(t, nil)

	old := time.Now().UTC().AddDate(0, 0, -100)
	p := &domain.PlannedOrder{
		Symbol: "AAPL", SecurityType: domain.SecurityStock, Exchange: "SMART", Currency: "USD",
		Action: domain.ActionBuy, OrderType: domain.OrderTypeLimit,
		EntryPrice: decimal.NewFromFloat(150), StopLoss: decimal.NewFromFloat(145),
		RiskPerTrade: decimal.NewFromFloat(0.01), RiskRewardRatio: decimal.NewFromFloat(2),
		Priority: 3, PositionStrategy: domain.StrategyCore, Status: domain.StatusPending,
		CreatedAt: old, ImportedAt: old,
	}
	require.NoError(t, repo.Create(p))

	orders := orch.Load(context.Background(), "", time.Now().UTC())
	require.Len(t, orders, 1)
}

func TestOrchestrator_DBEntryOutranksEqualPrioritySpreadsheetDuplicate(t *testing.T) {
	// A spreadsheet row with the same natural key as a database order does
	// not displace it: Load returns the database order, carrying its ID.
	orch, repo := newTestOrchestrator(t, nil)

	now := time.Now().UTC()
	p := &domain.PlannedOrder{
		Symbol: "AAPL", SecurityType: domain.SecurityStock, Exchange: "SMART", Currency: "USD",
		Action: domain.ActionBuy, OrderType: domain.OrderTypeLimit,
		EntryPrice: decimal.NewFromFloat(150), StopLoss: decimal.NewFromFloat(145),
		RiskPerTrade: decimal.NewFromFloat(0.01), RiskRewardRatio: decimal.NewFromFloat(2),
		Priority: 3, PositionStrategy: domain.StrategyCore, Status: domain.StatusPending,
		CreatedAt: now, ImportedAt: now,
	}
	require.NoError(t, repo.Create(p))

	sheetPath := filepath.Join(t.TempDir(), "orders.csv")
	csv := "Security Type,Exchange,Currency,Action,Symbol,Entry Price,Stop Loss\n" +
		"STK,SMART,USD,BUY,AAPL,150,145\n"
	require.NoError(t, os.WriteFile(sheetPath, []byte(csv), 0644))

	orders := orch.Load(context.Background(), sheetPath, now)
	require.Len(t, orders, 1)
	require.Equal(t, p.ID, orders[0].ID)
}
