// Package domain holds the core trading-decision types: planned, active and
// executed orders, their enums, and the event/contract shapes shared by the
// rest of the engine.
package domain

// SecurityType identifies the instrument class of a PlannedOrder.
type SecurityType string

const (
	SecurityStock      SecurityType = "STK"
	SecurityOption     SecurityType = "OPT"
	SecurityFuture     SecurityType = "FUT"
	SecurityIndex      SecurityType = "IND"
	SecurityFutureOpt  SecurityType = "FOP"
	SecurityCash       SecurityType = "CASH"
	SecurityBag        SecurityType = "BAG"
	SecurityWarrant    SecurityType = "WAR"
	SecurityBond       SecurityType = "BOND"
	SecurityCommodity  SecurityType = "CMDTY"
	SecurityNews       SecurityType = "NEWS"
	SecurityFund       SecurityType = "FUND"
)

func (s SecurityType) Valid() bool {
	switch s {
	case SecurityStock, SecurityOption, SecurityFuture, SecurityIndex, SecurityFutureOpt,
		SecurityCash, SecurityBag, SecurityWarrant, SecurityBond, SecurityCommodity,
		SecurityNews, SecurityFund:
		return true
	}
	return false
}

// Action is the trade direction.
type Action string

const (
	ActionBuy    Action = "BUY"
	ActionSell   Action = "SELL"
	ActionSShort Action = "SSHORT"
)

func (a Action) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionSShort:
		return true
	}
	return false
}

// IsBuySide reports whether the action opens a long-style position, which
// determines the sign convention for stop placement and profit targets.
func (a Action) IsBuySide() bool {
	return a == ActionBuy
}

// OrderType is the broker order type used for the parent leg of a bracket.
type OrderType string

const (
	OrderTypeLimit        OrderType = "LMT"
	OrderTypeMarket       OrderType = "MKT"
	OrderTypeStop         OrderType = "STP"
	OrderTypeStopLimit    OrderType = "STP_LMT"
	OrderTypeTrailingStop OrderType = "TRAIL"
)

func (o OrderType) Valid() bool {
	switch o {
	case OrderTypeLimit, OrderTypeMarket, OrderTypeStop, OrderTypeStopLimit, OrderTypeTrailingStop:
		return true
	}
	return false
}

// PositionStrategy is the holding-horizon strategy for a planned order.
type PositionStrategy string

const (
	StrategyDay    PositionStrategy = "DAY"
	StrategyCore   PositionStrategy = "CORE"
	StrategyHybrid PositionStrategy = "HYBRID"
)

func (p PositionStrategy) Valid() bool {
	switch p {
	case StrategyDay, StrategyCore, StrategyHybrid:
		return true
	}
	return false
}

// HybridExpirationDays is the holding window for HYBRID strategy orders.
const HybridExpirationDays = 10

// OrderStatus is the lifecycle state of a PlannedOrder.
type OrderStatus string

const (
	StatusPending              OrderStatus = "PENDING"
	StatusLive                 OrderStatus = "LIVE"
	StatusLiveWorking          OrderStatus = "LIVE_WORKING"
	StatusExecuting            OrderStatus = "EXECUTING"
	StatusFilled               OrderStatus = "FILLED"
	StatusCancelled            OrderStatus = "CANCELLED"
	StatusExpired              OrderStatus = "EXPIRED"
	StatusRejected             OrderStatus = "REJECTED"
	StatusLiquidated           OrderStatus = "LIQUIDATED"
	StatusLiquidatedExternally OrderStatus = "LIQUIDATED_EXTERNALLY"
)

// TerminalStatuses is the set of states a PlannedOrder may never leave.
var TerminalStatuses = map[OrderStatus]bool{
	StatusCancelled:            true,
	StatusExpired:              true,
	StatusLiquidated:           true,
	StatusLiquidatedExternally: true,
}

func (s OrderStatus) IsTerminal() bool {
	return TerminalStatuses[s]
}

// ActiveOrderStatus is the lifecycle state of an ActiveOrder.
type ActiveOrderStatus string

const (
	ActiveSubmitted ActiveOrderStatus = "SUBMITTED"
	ActiveWorking   ActiveOrderStatus = "WORKING"
	ActiveFilled    ActiveOrderStatus = "FILLED"
	ActiveCancelling ActiveOrderStatus = "CANCELLING"
)

// IsWorking reports whether this ActiveOrder still occupies a slot.
func (s ActiveOrderStatus) IsWorking() bool {
	return s == ActiveSubmitted || s == ActiveWorking
}

// LabelType names the kind of ML outcome label derived from an executed order.
type LabelType string

const (
	LabelFilledBinary       LabelType = "filled_binary"
	LabelTimeToFill         LabelType = "time_to_fill"
	LabelSlippage           LabelType = "slippage"
	LabelProfitability      LabelType = "profitability"
	LabelProbabilityAccuracy LabelType = "probability_accuracy"
)

// Reconciliation discrepancy-type constants, carried over verbatim from the
// original source's audit log so downstream tooling keys on stable strings.
const (
	DiscrepancyOrphanedOrder   = "orphaned_order"
	DiscrepancyMissingOrder    = "missing_order"
	DiscrepancyStatusMismatch  = "status_mismatch"
	DiscrepancyQuantityMismatch = "quantity_mismatch"
)

// Allocation rejection reasons, used verbatim in PrioritizedOrder.Reason.
const (
	ReasonMaxOpenOrders      = "Max open orders reached"
	ReasonInsufficientCapital = "Insufficient capital"
)
