package labeling

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

func newTestService(t *testing.T) (*Service, *persistence.PlannedOrderRepository, *persistence.LabelRepository) {
	t.Helper()
	db, err := database.NewInMemory(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := zerolog.Nop()
	plannedRepo := persistence.NewPlannedOrderRepository(db.Conn(), log)
	executedRepo := persistence.NewExecutedOrderRepository(db.Conn(), log)
	labelRepo := persistence.NewLabelRepository(db.Conn(), log)
	probabilityRepo := persistence.NewProbabilityScoreRepository(db.Conn(), log)
	return New(plannedRepo, executedRepo, labelRepo, probabilityRepo, log), plannedRepo, labelRepo
}

func samplePlanned() *domain.PlannedOrder {
	return &domain.PlannedOrder{
		Symbol: "AAPL", SecurityType: domain.SecurityStock, Exchange: "SMART", Currency: "USD",
		Action: domain.ActionBuy, OrderType: domain.OrderTypeLimit,
		EntryPrice: decimal.NewFromFloat(150), StopLoss: decimal.NewFromFloat(145),
		RiskPerTrade: decimal.NewFromFloat(0.01), RiskRewardRatio: decimal.NewFromFloat(2),
		Priority: 3, PositionStrategy: domain.StrategyDay, Status: domain.StatusPending,
		CreatedAt: time.Now().UTC().Add(-time.Minute),
	}
}

func TestHandleEvent_CancelledLabelsFilledBinaryZero(t *testing.T) {
	svc, repo, labelRepo := newTestService(t)
	p := samplePlanned()
	require.NoError(t, repo.Create(p))

	svc.HandleEvent(domain.OrderEvent{OrderID: p.ID, NewState: domain.StatusCancelled, Timestamp: time.Now()})

	labels, err := labelRepo.GetByPlannedOrder(p.ID)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, domain.LabelFilledBinary, labels[0].LabelType)
	assert.Equal(t, 0.0, labels[0].LabelValue)
}

func TestHandleEvent_FilledLabelsMultipleTypes(t *testing.T) {
	svc, repo, labelRepo := newTestService(t)
	p := samplePlanned()
	require.NoError(t, repo.Create(p))

	svc.HandleEvent(domain.OrderEvent{OrderID: p.ID, NewState: domain.StatusFilled, Timestamp: time.Now()})

	labels, err := labelRepo.GetByPlannedOrder(p.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(labels), 3)
}

func TestUpsert_IsIdempotent(t *testing.T) {
	svc, repo, labelRepo := newTestService(t)
	p := samplePlanned()
	require.NoError(t, repo.Create(p))

	svc.upsert(p.ID, domain.LabelFilledBinary, 1.0, time.Now(), "")
	svc.upsert(p.ID, domain.LabelFilledBinary, 1.0, time.Now(), "")

	labels, err := labelRepo.GetByPlannedOrder(p.ID)
	require.NoError(t, err)
	assert.Len(t, labels, 1)
}

func TestLabelProfitability_HandlesZeroCapital(t *testing.T) {
	svc, repo, labelRepo := newTestService(t)
	p := samplePlanned()
	require.NoError(t, repo.Create(p))

	svc.LabelProfitability(p.ID, 100, 0, time.Now())

	labels, err := labelRepo.GetByPlannedOrder(p.ID)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, 0.0, labels[0].LabelValue)
}
