package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// cashLotSize is the rounding lot for CASH security types (multiples of 10000, min 10000).
const cashLotSize = 10000

// CalculateQuantity implements the position-sizing contract of base §3/§4.3:
//
//	risk_per_unit = |entry-stop| (x100 for OPT)
//	base = equity*risk_per_trade / risk_per_unit
//
// rounded per security type, with CASH rounding to the nearest multiple of
// 10000 (floor of 10000) and all others rounding to the nearest whole unit
// (floor of 1).
func CalculateQuantity(securityType SecurityType, entry, stop, equity, riskPerTrade decimal.Decimal) (int64, error) {
	riskPerUnit := entry.Sub(stop).Abs()
	if securityType == SecurityOption {
		riskPerUnit = riskPerUnit.Mul(decimal.NewFromInt(100))
	}
	if riskPerUnit.IsZero() {
		return 0, fmt.Errorf("risk_per_unit is zero: entry and stop are equal")
	}

	riskAmount := equity.Mul(riskPerTrade)
	base := riskAmount.Div(riskPerUnit)

	if securityType == SecurityCash {
		lot := decimal.NewFromInt(cashLotSize)
		rounded := base.Div(lot).Round(0).Mul(lot)
		qty := rounded.IntPart()
		if qty < cashLotSize {
			qty = cashLotSize
		}
		return qty, nil
	}

	qty := base.Round(0).IntPart()
	if qty < 1 {
		qty = 1
	}
	return qty, nil
}

// CapitalCommitment is entry_price * quantity.
func CapitalCommitment(entry decimal.Decimal, quantity int64) decimal.Decimal {
	return entry.Mul(decimal.NewFromInt(quantity))
}
