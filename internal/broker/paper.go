// Package broker provides the paper-account default implementation of
// domain.BrokerClient (base §6 treats a real venue adapter as out of
// scope): always reports disconnected so the execution orchestrator takes
// its simulated-fill path, while still answering AccountNumber/equity
// queries the rest of the pipeline depends on.
package broker

import (
	"context"

	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/shopspring/decimal"
)

// PaperBroker is a disconnected stand-in satisfying domain.BrokerClient.
// It never reaches a venue; every mutating call is a no-op error.
type PaperBroker struct {
	accountNumber string
	equity        decimal.Decimal
}

// New constructs a paper broker reporting the given account number and
// simulated equity.
func New(accountNumber string, equity decimal.Decimal) *PaperBroker {
	return &PaperBroker{accountNumber: accountNumber, equity: equity}
}

func (p *PaperBroker) Connected() bool      { return false }
func (p *PaperBroker) IsPaperAccount() bool { return true }
func (p *PaperBroker) AccountNumber() string {
	return p.accountNumber
}

func (p *PaperBroker) GetAccountValue(ctx context.Context) (decimal.Decimal, error) {
	return p.equity, nil
}

func (p *PaperBroker) PlaceBracketOrder(ctx context.Context, order *domain.PlannedOrder, quantity int64, equity decimal.Decimal) ([3]string, error) {
	return [3]string{}, domain.ErrBrokerDisconnected
}

func (p *PaperBroker) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	return false, domain.ErrBrokerDisconnected
}

func (p *PaperBroker) GetOpenOrders(ctx context.Context) ([]domain.BrokerOrder, error) {
	return nil, nil
}

func (p *PaperBroker) GetPositions(ctx context.Context) ([]domain.BrokerPosition, error) {
	return nil, nil
}
