package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ExecutedOrderRepository persists fills (real or simulated) and the
// realized P&L ledger consumed by the risk service's loss-halt computation.
type ExecutedOrderRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewExecutedOrderRepository(db *sql.DB, log zerolog.Logger) *ExecutedOrderRepository {
	return &ExecutedOrderRepository{db: db, log: log.With().Str("repo", "executed_order").Logger()}
}

// Create inserts an execution row with the status the caller sets: SUBMITTED
// for a bracket sent to the broker, FILLED for a simulated fill. This
// repository has no method that changes a row's status afterwards.
func (r *ExecutedOrderRepository) Create(e *domain.ExecutedOrder) error {
	res, err := r.db.Exec(
		`INSERT INTO executed_orders
			(planned_order_id, filled_price, filled_quantity, commission, pnl, status,
			 executed_at, closed_at, is_open, is_live_trading, account_number, expiration_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.PlannedOrderID, e.FilledPrice.String(), e.FilledQuantity, e.Commission.String(), e.RealizedPnL.String(),
		e.Status, e.ExecutedAt.Format(time.RFC3339), nullTime(e.ClosedAt), boolToInt(e.IsOpen),
		boolToInt(e.IsLiveTrading), nullString(e.AccountNumber), nullTime(e.ExpirationDate),
	)
	if err != nil {
		return fmt.Errorf("failed to insert executed order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted executed order id: %w", err)
	}
	e.ID = id
	return nil
}

// Close marks an executed order closed, records realized P&L, and flips
// is_open to false. The risk service's loss-halt computation does not read
// these rows; it reads the realized_pnl ledger written by RecordRealizedPnL.
func (r *ExecutedOrderRepository) Close(id int64, closedAt time.Time, pnl decimal.Decimal) error {
	_, err := r.db.Exec(
		`UPDATE executed_orders SET is_open = 0, closed_at = ?, pnl = ? WHERE id = ?`,
		closedAt.Format(time.RFC3339), pnl.String(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to close executed order %d: %w", id, err)
	}
	return nil
}

// GetOpenBySymbol reports whether an open executed order exists for symbol,
// used by the execution orchestrator's "open position exists" viability check.
func (r *ExecutedOrderRepository) GetOpenBySymbol(symbol string) (bool, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM executed_orders eo
		 JOIN planned_orders po ON po.id = eo.planned_order_id
		 WHERE po.symbol = ? AND eo.is_open = 1`, symbol,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query open positions for %s: %w", symbol, err)
	}
	return count > 0, nil
}

// OpenPosition summarizes one open executed order for EOD / reconciliation use.
type OpenPosition struct {
	ExecutedOrderID  int64
	PlannedOrderID   int64
	Symbol           string
	Action           domain.Action
	PositionStrategy domain.PositionStrategy
	FilledPrice      decimal.Decimal
	FilledQuantity   int64
	ExpirationDate   *time.Time
}

// GetAllOpenPositions returns every open executed order joined with its
// planned order, for the end-of-day policy engine to enumerate against.
func (r *ExecutedOrderRepository) GetAllOpenPositions() ([]OpenPosition, error) {
	rows, err := r.db.Query(
		`SELECT eo.id, eo.planned_order_id, po.symbol, po.action, po.position_strategy_id,
		        eo.filled_price, eo.filled_quantity, eo.expiration_date
		 FROM executed_orders eo
		 JOIN planned_orders po ON po.id = eo.planned_order_id
		 WHERE eo.is_open = 1`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions: %w", err)
	}
	defer rows.Close()

	var out []OpenPosition
	for rows.Next() {
		var op OpenPosition
		var action, strategy, filledPrice string
		var expiration sql.NullString
		if err := rows.Scan(&op.ExecutedOrderID, &op.PlannedOrderID, &op.Symbol, &action, &strategy,
			&filledPrice, &op.FilledQuantity, &expiration); err != nil {
			return nil, fmt.Errorf("failed to scan open position: %w", err)
		}
		op.Action = domain.Action(action)
		op.PositionStrategy = domain.PositionStrategy(strategy)
		op.FilledPrice, _ = decimal.NewFromString(filledPrice)
		if expiration.Valid && expiration.String != "" {
			t, err := time.Parse(time.RFC3339, expiration.String)
			if err == nil {
				op.ExpirationDate = &t
			}
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// RecordRealizedPnL appends a row to the realized-P&L ledger, per base §4.5
// "on trade close the service records the realized P&L... for future halt
// computations."
func (r *ExecutedOrderRepository) RecordRealizedPnL(orderID int64, symbol string, pnl decimal.Decimal, exitDate time.Time, accountNumber string) error {
	_, err := r.db.Exec(
		`INSERT INTO realized_pnl (order_id, symbol, pnl, exit_date, account_number) VALUES (?, ?, ?, ?, ?)`,
		orderID, symbol, pnl.String(), exitDate.Format(time.RFC3339), accountNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to record realized pnl: %w", err)
	}
	return nil
}

// SumRealizedPnLSince sums realized_pnl rows for accountNumber with
// exit_date >= since, used by the risk service's daily/weekly/monthly
// loss-halt computation.
func (r *ExecutedOrderRepository) SumRealizedPnLSince(accountNumber string, since time.Time) (decimal.Decimal, error) {
	rows, err := r.db.Query(
		`SELECT pnl FROM realized_pnl WHERE account_number = ? AND exit_date >= ?`,
		accountNumber, since.Format(time.RFC3339),
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query realized pnl: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var pnlStr string
		if err := rows.Scan(&pnlStr); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan realized pnl: %w", err)
		}
		v, err := decimal.NewFromString(pnlStr)
		if err != nil {
			continue
		}
		total = total.Add(v)
	}
	return total, rows.Err()
}
