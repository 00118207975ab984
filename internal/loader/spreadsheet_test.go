package loader

import (
	"strings"
	"testing"

	"github.com/robinmaple/trading-automation-sub001/internal/config"
	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultOrderDefaults() config.OrderDefaults {
	return config.OrderDefaults{
		RiskPerTrade:     0.005,
		RiskRewardRatio:  2.0,
		Priority:         3,
		OrderType:        "LMT",
		PositionStrategy: "CORE",
	}
}

func TestSpreadsheetSource_AppliesDefaults(t *testing.T) {
	csv := "Security Type,Exchange,Currency,Action,Symbol,Entry Price,Stop Loss\n" +
		"STK,SMART,USD,BUY,AAPL,150,145\n"

	src := NewSpreadsheetSource(defaultOrderDefaults())
	orders, errs, err := src.loadFromReader(strings.NewReader(csv))
	require.NoError(t, err)
	require.Empty(t, errs)
	require.Len(t, orders, 1)

	o := orders[0]
	assert.Equal(t, domain.OrderTypeLimit, o.OrderType)
	assert.Equal(t, domain.StrategyCore, o.PositionStrategy)
	assert.Equal(t, 3, o.Priority)
	assert.True(t, o.RiskPerTrade.Equal(o.RiskPerTrade)) // sanity: no panic
}

func TestSpreadsheetSource_UnknownEnumAbortsRowOnly(t *testing.T) {
	csv := "Security Type,Exchange,Currency,Action,Symbol,Entry Price,Stop Loss\n" +
		"BOGUS,SMART,USD,BUY,AAPL,150,145\n" +
		"STK,SMART,USD,BUY,MSFT,300,295\n"

	src := NewSpreadsheetSource(defaultOrderDefaults())
	orders, errs, err := src.loadFromReader(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, errs, 1)
	require.Len(t, orders, 1)
	assert.Equal(t, "MSFT", orders[0].Symbol)
}

func TestSpreadsheetSource_MissingRequiredColumnRejectsWholeFile(t *testing.T) {
	csv := "Exchange,Currency,Action,Symbol\nSMART,USD,BUY,AAPL\n"
	src := NewSpreadsheetSource(defaultOrderDefaults())
	_, _, err := src.loadFromReader(strings.NewReader(csv))
	assert.Error(t, err)
}

func TestSpreadsheetSource_InvariantViolationSkipsRow(t *testing.T) {
	csv := "Security Type,Exchange,Currency,Action,Symbol,Entry Price,Stop Loss\n" +
		"STK,SMART,USD,BUY,AAPL,150,160\n" // stop above entry on a BUY: invalid

	src := NewSpreadsheetSource(defaultOrderDefaults())
	orders, errs, err := src.loadFromReader(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Empty(t, orders)
	require.Len(t, errs, 1)
}
