// Package persistence is the durable store of planned orders, executions,
// labels, probability scores, attempts and realized P&L (base §3, §6).
package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const plannedOrderColumns = `id, symbol, security_type, exchange, currency, action, order_type,
	entry_price, stop_loss, risk_per_trade, risk_reward_ratio, priority, position_strategy_id,
	trading_setup, core_timeframe, overall_trend, brief_analysis, status, status_reason,
	is_live_trading, created_at, updated_at, expiration_date, broker_order_ids, imported_at`

// PlannedOrderRepository persists and queries PlannedOrders.
type PlannedOrderRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPlannedOrderRepository constructs a repository bound to db.
func NewPlannedOrderRepository(db *sql.DB, log zerolog.Logger) *PlannedOrderRepository {
	return &PlannedOrderRepository{db: db, log: log.With().Str("repo", "planned_order").Logger()}
}

// Create inserts a new PlannedOrder and populates its ID.
func (r *PlannedOrderRepository) Create(p *domain.PlannedOrder) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid planned order: %w", err)
	}

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	query := `INSERT INTO planned_orders
		(symbol, security_type, exchange, currency, action, order_type, entry_price, stop_loss,
		 risk_per_trade, risk_reward_ratio, priority, position_strategy_id, trading_setup,
		 core_timeframe, overall_trend, brief_analysis, status, status_reason, is_live_trading,
		 created_at, updated_at, expiration_date, broker_order_ids, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.Exec(query,
		p.Symbol, string(p.SecurityType), p.Exchange, p.Currency, string(p.Action), string(p.OrderType),
		p.EntryPrice.String(), p.StopLoss.String(), p.RiskPerTrade.String(), p.RiskRewardRatio.String(),
		p.Priority, string(p.PositionStrategy), nullString(p.TradingSetup), nullString(p.CoreTimeframe),
		nullString(p.OverallTrend), nullString(p.BriefAnalysis), string(p.Status), nullString(p.StatusReason),
		boolToInt(p.IsLiveTrading), p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339),
		nullTime(p.ExpirationDate), joinIDs(p.BrokerOrderIDs), nullTime(&p.ImportedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert planned order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted planned order id: %w", err)
	}
	p.ID = id
	return nil
}

// UpdateStatus mutates status/status_reason/broker_order_ids. Callers are
// expected to be the state service; this repository performs no transition
// validation of its own.
func (r *PlannedOrderRepository) UpdateStatus(id int64, status domain.OrderStatus, reason string, brokerOrderIDs []string) error {
	_, err := r.db.Exec(
		`UPDATE planned_orders SET status = ?, status_reason = ?, broker_order_ids = ?, updated_at = ? WHERE id = ?`,
		string(status), nullString(reason), joinIDs(brokerOrderIDs), time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update planned order %d status: %w", id, err)
	}
	return nil
}

// GetByID fetches a single PlannedOrder.
func (r *PlannedOrderRepository) GetByID(id int64) (*domain.PlannedOrder, error) {
	row := r.db.QueryRow(`SELECT `+plannedOrderColumns+` FROM planned_orders WHERE id = ?`, id)
	return scanPlannedOrder(row)
}

// GetByStatuses returns all planned orders whose status is in the given set,
// used by the loading orchestrator's database-resumption path.
func (r *PlannedOrderRepository) GetByStatuses(statuses ...domain.OrderStatus) ([]*domain.PlannedOrder, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]interface{}, len(statuses))
	query := `SELECT ` + plannedOrderColumns + ` FROM planned_orders WHERE status IN (`
	for i, s := range statuses {
		if i > 0 {
			query += ","
		}
		query += "?"
		placeholders[i] = string(s)
	}
	query += ")"

	rows, err := r.db.Query(query, placeholders...)
	if err != nil {
		return nil, fmt.Errorf("failed to query planned orders by status: %w", err)
	}
	defer rows.Close()

	var out []*domain.PlannedOrder
	for rows.Next() {
		p, err := scanPlannedOrderRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FindByNaturalKey looks up an existing planned order by (symbol, action, entry, stop).
func (r *PlannedOrderRepository) FindByNaturalKey(symbol string, action domain.Action, entry, stop decimal.Decimal) (*domain.PlannedOrder, error) {
	row := r.db.QueryRow(
		`SELECT `+plannedOrderColumns+` FROM planned_orders WHERE symbol = ? AND action = ? AND entry_price = ? AND stop_loss = ? ORDER BY id DESC LIMIT 1`,
		symbol, string(action), entry.String(), stop.String(),
	)
	p, err := scanPlannedOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPlannedOrder(row *sql.Row) (*domain.PlannedOrder, error) {
	return scanPlannedOrderGeneric(row)
}

func scanPlannedOrderRows(rows *sql.Rows) (*domain.PlannedOrder, error) {
	return scanPlannedOrderGeneric(rows)
}

func scanPlannedOrderGeneric(s rowScanner) (*domain.PlannedOrder, error) {
	var (
		p                                                  domain.PlannedOrder
		securityType, action, orderType, positionStrategy  string
		status                                             string
		entryPrice, stopLoss, riskPerTrade, riskReward     string
		tradingSetup, coreTimeframe, overallTrend           sql.NullString
		briefAnalysis, statusReason                        sql.NullString
		createdAt, updatedAt                                string
		expirationDate, brokerOrderIDs, importedAt          sql.NullString
		isLiveTrading                                       int
	)
	err := s.Scan(
		&p.ID, &p.Symbol, &securityType, &p.Exchange, &p.Currency, &action, &orderType,
		&entryPrice, &stopLoss, &riskPerTrade, &riskReward, &p.Priority, &positionStrategy,
		&tradingSetup, &coreTimeframe, &overallTrend, &briefAnalysis, &status, &statusReason,
		&isLiveTrading, &createdAt, &updatedAt, &expirationDate, &brokerOrderIDs, &importedAt,
	)
	if err != nil {
		return nil, err
	}

	p.SecurityType = domain.SecurityType(securityType)
	p.Action = domain.Action(action)
	p.OrderType = domain.OrderType(orderType)
	p.PositionStrategy = domain.PositionStrategy(positionStrategy)
	p.Status = domain.OrderStatus(status)
	p.EntryPrice, _ = decimal.NewFromString(entryPrice)
	p.StopLoss, _ = decimal.NewFromString(stopLoss)
	p.RiskPerTrade, _ = decimal.NewFromString(riskPerTrade)
	p.RiskRewardRatio, _ = decimal.NewFromString(riskReward)
	p.TradingSetup = tradingSetup.String
	p.CoreTimeframe = coreTimeframe.String
	p.OverallTrend = overallTrend.String
	p.BriefAnalysis = briefAnalysis.String
	p.StatusReason = statusReason.String
	p.IsLiveTrading = isLiveTrading != 0
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if expirationDate.Valid && expirationDate.String != "" {
		t, err := time.Parse(time.RFC3339, expirationDate.String)
		if err == nil {
			p.ExpirationDate = &t
		}
	}
	if brokerOrderIDs.Valid {
		p.BrokerOrderIDs = splitIDs(brokerOrderIDs.String)
	}
	if importedAt.Valid && importedAt.String != "" {
		t, err := time.Parse(time.RFC3339, importedAt.String)
		if err == nil {
			p.ImportedAt = t
		}
	}
	return &p, nil
}
