// Package probability implements the fill-probability engine (base §4.2):
// feature extraction from live market snapshots and a pluggable scorer.
package probability

import (
	"time"

	"github.com/markcheno/go-talib"
	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// ExtractFeatures builds the feature map consumed by a Scorer, from the
// current market snapshot and the order under evaluation. Every field is
// optional where the underlying data is missing, per base §4.2.
func ExtractFeatures(order *domain.PlannedOrder, quote *domain.Quote, now time.Time) map[string]interface{} {
	f := map[string]interface{}{
		"timestamp":            now.Format(time.RFC3339),
		"time_of_day_seconds":  secondsSinceMidnight(now),
		"day_of_week":          int(now.Weekday()),
		"symbol":               order.Symbol,
		"side":                 string(order.Action),
		"type":                 string(order.OrderType),
		"entry_price":          order.EntryPrice.InexactFloat64(),
		"stop_loss":            order.StopLoss.InexactFloat64(),
		"priority":             order.Priority,
		"trading_setup":        order.TradingSetup,
		"core_timeframe":       order.CoreTimeframe,
	}

	if quote == nil {
		return f
	}

	currentPrice := quote.Price.InexactFloat64()
	entryPrice := order.EntryPrice.InexactFloat64()

	f["current_price"] = currentPrice
	f["bid"] = quote.Bid.InexactFloat64()
	f["ask"] = quote.Ask.InexactFloat64()
	f["bid_size"] = quote.BidSize
	f["ask_size"] = quote.AskSize
	f["last"] = quote.Last.InexactFloat64()
	f["volume"] = quote.Volume

	spreadAbs := quote.Ask.Sub(quote.Bid).InexactFloat64()
	f["spread_absolute"] = spreadAbs
	if currentPrice != 0 {
		f["spread_relative"] = spreadAbs / currentPrice
	}

	priceDiffAbs := currentPrice - entryPrice
	f["price_diff_absolute"] = priceDiffAbs
	if entryPrice != 0 {
		f["price_diff_relative"] = priceDiffAbs / entryPrice
	}

	if vol, ok := realizedVolatility(quote.History); ok {
		f["volatility_estimate"] = vol
	}
	if rsi, ok := recentRSI(quote.History); ok {
		f["rsi_14"] = rsi
	}

	return f
}

func secondsSinceMidnight(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// realizedVolatility returns the standard deviation of simple returns
// computed from quote history (most-recent last), using gonum's stat
// package, per base §4.2 "implementation may use realized standard
// deviation of recent returns."
func realizedVolatility(history []decimal.Decimal) (float64, bool) {
	if len(history) < 3 {
		return 0, false
	}
	prices := make([]float64, len(history))
	for i, d := range history {
		prices[i] = d.InexactFloat64()
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}
	if len(returns) < 2 {
		return 0, false
	}
	return stat.StdDev(returns, nil), true
}

// recentRSI computes a 14-period RSI from quote history as a supplementary,
// optional momentum feature folded into the feature map.
func recentRSI(history []decimal.Decimal) (float64, bool) {
	const period = 14
	if len(history) < period+1 {
		return 0, false
	}
	prices := make([]float64, len(history))
	for i, d := range history {
		prices[i] = d.InexactFloat64()
	}
	rsi := talib.Rsi(prices, period)
	if len(rsi) == 0 {
		return 0, false
	}
	return rsi[len(rsi)-1], true
}
