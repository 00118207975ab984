// Package loader implements the order-loading orchestrator (base §4.1):
// merging planned orders from the spreadsheet plan, the database, and
// broker-discovered orders into a single deduplicated list per tick.
package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/config"
	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/shopspring/decimal"
)

// The spreadsheet parsing library itself is an out-of-scope collaborator
// (base §1); this CSV reader is a minimal stand-in satisfying the same
// column contract (base §6), not the core component the spec describes.

// requiredColumns must be present in the header row or the whole file is rejected.
var requiredColumns = []string{"Security Type", "Exchange", "Currency", "Action", "Symbol"}

// SpreadsheetSource parses a CSV trading-plan file into PlannedOrders,
// applying the documented column defaults and rejecting unknown enum values.
type SpreadsheetSource struct {
	defaults config.OrderDefaults
}

// NewSpreadsheetSource constructs a parser using cfg's order_defaults.
func NewSpreadsheetSource(defaults config.OrderDefaults) *SpreadsheetSource {
	return &SpreadsheetSource{defaults: defaults}
}

// RowError pairs a 1-based row number with why it was rejected.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

// Load parses path and returns every row that validated successfully, plus
// a RowError for every row that was skipped.
func (s *SpreadsheetSource) Load(path string) ([]*domain.PlannedOrder, []RowError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open spreadsheet %s: %w", path, err)
	}
	defer f.Close()
	return s.loadFromReader(f)
}

func (s *SpreadsheetSource) loadFromReader(r io.Reader) ([]*domain.PlannedOrder, []RowError, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read spreadsheet header: %w", err)
	}

	colIndex := make(map[string]int, len(header))
	for i, name := range header {
		colIndex[strings.TrimSpace(name)] = i
	}
	for _, required := range requiredColumns {
		if _, ok := colIndex[required]; !ok {
			return nil, nil, fmt.Errorf("spreadsheet missing required column %q", required)
		}
	}

	var orders []*domain.PlannedOrder
	var errs []RowError
	rowNum := 1 // header was row 1
	now := time.Now().UTC()

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			errs = append(errs, RowError{Row: rowNum, Err: err})
			continue
		}

		p, err := s.parseRow(colIndex, record, now)
		if err != nil {
			errs = append(errs, RowError{Row: rowNum, Err: err})
			continue
		}
		orders = append(orders, p)
	}
	return orders, errs, nil
}

func col(record []string, colIndex map[string]int, name string) (string, bool) {
	idx, ok := colIndex[name]
	if !ok || idx >= len(record) {
		return "", false
	}
	return strings.TrimSpace(record[idx]), true
}

func (s *SpreadsheetSource) parseRow(colIndex map[string]int, record []string, now time.Time) (*domain.PlannedOrder, error) {
	securityType, _ := col(record, colIndex, "Security Type")
	exchange, _ := col(record, colIndex, "Exchange")
	currency, _ := col(record, colIndex, "Currency")
	action, _ := col(record, colIndex, "Action")
	symbol, _ := col(record, colIndex, "Symbol")

	if symbol == "" {
		return nil, fmt.Errorf("missing required Symbol")
	}

	p := &domain.PlannedOrder{
		Symbol:           strings.ToUpper(symbol),
		SecurityType:     domain.SecurityType(strings.ToUpper(securityType)),
		Exchange:         exchange,
		Currency:         strings.ToUpper(currency),
		Action:           domain.Action(strings.ToUpper(action)),
		Status:           domain.StatusPending,
		CreatedAt:        now,
		ImportedAt:       now,
	}
	if !p.SecurityType.Valid() {
		return nil, fmt.Errorf("unknown security type %q", securityType)
	}
	if !p.Action.Valid() {
		return nil, fmt.Errorf("unknown action %q", action)
	}

	orderType, ok := col(record, colIndex, "Order Type")
	if !ok || orderType == "" {
		orderType = s.defaults.OrderType
	}
	p.OrderType = domain.OrderType(strings.ToUpper(orderType))
	if !p.OrderType.Valid() {
		return nil, fmt.Errorf("unknown order type %q", orderType)
	}

	strategy, ok := col(record, colIndex, "Position Management Strategy")
	if !ok || strategy == "" {
		strategy = s.defaults.PositionStrategy
	}
	p.PositionStrategy = domain.PositionStrategy(strings.ToUpper(strategy))
	if !p.PositionStrategy.Valid() {
		return nil, fmt.Errorf("unknown position management strategy %q", strategy)
	}

	entry, err := decimalColOrZero(record, colIndex, "Entry Price")
	if err != nil {
		return nil, err
	}
	p.EntryPrice = entry

	stop, err := decimalColOrZero(record, colIndex, "Stop Loss")
	if err != nil {
		return nil, err
	}
	p.StopLoss = stop

	riskPerTrade, err := decimalColOrDefault(record, colIndex, "Risk Per Trade", s.defaults.RiskPerTrade)
	if err != nil {
		return nil, err
	}
	p.RiskPerTrade = riskPerTrade

	rr, err := decimalColOrDefault(record, colIndex, "Risk Reward Ratio", s.defaults.RiskRewardRatio)
	if err != nil {
		return nil, err
	}
	p.RiskRewardRatio = rr

	priority := s.defaults.Priority
	if raw, ok := col(record, colIndex, "Priority"); ok && raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid Priority %q: %w", raw, err)
		}
		priority = parsed
	}
	p.Priority = priority

	p.TradingSetup, _ = col(record, colIndex, "Trading Setup")
	p.CoreTimeframe, _ = col(record, colIndex, "Core Timeframe")
	p.OverallTrend, _ = col(record, colIndex, "Overall Trend")
	p.BriefAnalysis, _ = col(record, colIndex, "Brief Analysis")

	p.SetExpiration()

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func decimalColOrZero(record []string, colIndex map[string]int, name string) (decimal.Decimal, error) {
	raw, ok := col(record, colIndex, name)
	if !ok || raw == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return v, nil
}

func decimalColOrDefault(record []string, colIndex map[string]int, name string, defaultValue float64) (decimal.Decimal, error) {
	raw, ok := col(record, colIndex, name)
	if !ok || raw == "" {
		return decimal.NewFromFloat(defaultValue), nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return v, nil
}
