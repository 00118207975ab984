package prioritization

import (
	"sort"

	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	reasonMaxOpenOrders       = domain.ReasonMaxOpenOrders
	reasonInsufficientCapital = domain.ReasonInsufficientCapital
)

// allocate implements the greedy, deterministic allocation of base §4.4:
// sort by quality_score descending, tie-broken by priority_norm then symbol,
// and award slots/capital until either cap is exhausted.
func allocate(scored []Scored, maxOpenOrders, currentlyWorkingOrders int, equity decimal.Decimal, maxCapitalUtilization float64, alreadyCommitted decimal.Decimal) []Allocated {
	ordered := make([]Scored, len(scored))
	copy(ordered, scored)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].QualityScore != ordered[j].QualityScore {
			return ordered[i].QualityScore > ordered[j].QualityScore
		}
		if ordered[i].PriorityNorm != ordered[j].PriorityNorm {
			return ordered[i].PriorityNorm > ordered[j].PriorityNorm
		}
		return ordered[i].Order.Symbol < ordered[j].Order.Symbol
	})

	slotsRemaining := maxOpenOrders - currentlyWorkingOrders
	capitalCeiling := equity.Mul(decimal.NewFromFloat(maxCapitalUtilization)).Sub(alreadyCommitted)
	capitalCommitted := decimal.Zero

	out := make([]Allocated, 0, len(ordered))
	for _, s := range ordered {
		if slotsRemaining <= 0 {
			out = append(out, Allocated{Scored: s, Allocated: false, Reason: reasonMaxOpenOrders})
			continue
		}
		if capitalCommitted.Add(s.CapitalCommitment).GreaterThan(capitalCeiling) {
			out = append(out, Allocated{Scored: s, Allocated: false, Reason: reasonInsufficientCapital})
			continue
		}
		capitalCommitted = capitalCommitted.Add(s.CapitalCommitment)
		slotsRemaining--
		out = append(out, Allocated{Scored: s, Allocated: true})
	}
	return out
}
