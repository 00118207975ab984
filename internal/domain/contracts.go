package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrBrokerDisconnected is returned by BrokerClient implementations whose
// mutating calls cannot reach a venue, such as the paper-account default.
var ErrBrokerDisconnected = errors.New("broker is not connected")

// BrokerOrder is a broker-reported open order, used by the reconciliation
// engine and the order-loading orchestrator's broker-discovery path.
type BrokerOrder struct {
	OrderID            string
	Symbol             string
	Action             Action
	OrderType          OrderType
	LimitPrice         decimal.Decimal
	AuxPrice           decimal.Decimal
	TotalQuantity      int64
	RemainingQuantity  int64
	Status             string
	ParentID           string
}

// BrokerPosition is a broker-reported open position.
type BrokerPosition struct {
	Symbol      string
	Quantity    int64
	AverageCost decimal.Decimal
}

// Quote is a market snapshot for a single symbol, the data-feed's query result.
type Quote struct {
	Symbol    string
	Price     decimal.Decimal
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	BidSize   int64
	AskSize   int64
	Last      decimal.Decimal
	Volume    int64
	History   []decimal.Decimal // recent trade/close prices, most-recent last
	Timestamp time.Time
	DataType  string
}

// BrokerClient is the collaborator contract of base §6. It is out of scope
// to implement against a real venue; concrete adapters (paper, replay, a
// real venue client) satisfy this capability set.
type BrokerClient interface {
	Connected() bool
	IsPaperAccount() bool
	AccountNumber() string
	GetAccountValue(ctx context.Context) (decimal.Decimal, error)

	// PlaceBracketOrder submits parent+take-profit+stop and returns their
	// three broker order identifiers in that order, or an error.
	PlaceBracketOrder(ctx context.Context, order *PlannedOrder, quantity int64, equity decimal.Decimal) ([3]string, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	GetOpenOrders(ctx context.Context) ([]BrokerOrder, error)
	GetPositions(ctx context.Context) ([]BrokerPosition, error)
}

// DataFeed is the market-data collaborator contract of base §6.
type DataFeed interface {
	IsConnected() bool
	Subscribe(ctx context.Context, symbol string) error
	Unsubscribe(ctx context.Context, symbol string) error
	GetCurrentPrice(symbol string) (*Quote, bool)
}
