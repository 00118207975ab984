package prioritization

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoredFrom(symbol string, priority int, quality float64, capital decimal.Decimal) Scored {
	c := sampleCandidate(symbol, priority)
	c.CapitalCommitment = capital
	return Scored{Candidate: c, PriorityNorm: priorityNorm(priority), QualityScore: quality}
}

func TestAllocate_SortsByQualityDescending(t *testing.T) {
	scored := []Scored{
		scoredFrom("MSFT", 3, 0.5, decimal.NewFromInt(1000)),
		scoredFrom("AAPL", 3, 0.9, decimal.NewFromInt(1000)),
	}
	out := allocate(scored, 5, 0, decimal.NewFromInt(100000), 0.8, decimal.Zero)
	require.Len(t, out, 2)
	assert.Equal(t, "AAPL", out[0].Order.Symbol)
	assert.True(t, out[0].Allocated)
}

func TestAllocate_StopsAtMaxOpenOrders(t *testing.T) {
	scored := []Scored{
		scoredFrom("AAPL", 3, 0.9, decimal.NewFromInt(1000)),
		scoredFrom("MSFT", 3, 0.8, decimal.NewFromInt(1000)),
	}
	out := allocate(scored, 1, 0, decimal.NewFromInt(100000), 0.8, decimal.Zero)
	require.Len(t, out, 2)
	assert.True(t, out[0].Allocated)
	assert.False(t, out[1].Allocated)
	assert.Equal(t, reasonMaxOpenOrders, out[1].Reason)
}

func TestAllocate_StopsAtCapitalCeiling(t *testing.T) {
	scored := []Scored{
		scoredFrom("AAPL", 3, 0.9, decimal.NewFromInt(60000)),
		scoredFrom("MSFT", 3, 0.8, decimal.NewFromInt(60000)),
	}
	out := allocate(scored, 5, 0, decimal.NewFromInt(100000), 0.8, decimal.Zero)
	require.Len(t, out, 2)
	assert.True(t, out[0].Allocated)
	assert.False(t, out[1].Allocated)
	assert.Equal(t, reasonInsufficientCapital, out[1].Reason)
}

func TestAllocate_TiesBreakByPriorityThenSymbol(t *testing.T) {
	scored := []Scored{
		scoredFrom("ZZZ", 3, 0.5, decimal.NewFromInt(1000)),
		scoredFrom("AAA", 3, 0.5, decimal.NewFromInt(1000)),
	}
	out := allocate(scored, 5, 0, decimal.NewFromInt(100000), 0.8, decimal.Zero)
	assert.Equal(t, "AAA", out[0].Order.Symbol)
}
