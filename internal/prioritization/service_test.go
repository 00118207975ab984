package prioritization

import (
	"context"
	"testing"

	"github.com/robinmaple/trading-automation-sub001/internal/config"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPrioritizationConfig() config.Prioritization {
	return config.Prioritization{
		TwoLayerEnabled:        true,
		WatchdogTimeoutSeconds: 5,
		WeightManualPriority:   0.30,
		WeightEfficiency:       0.25,
		WeightRiskReward:       0.25,
		WeightTimeframeMatch:   0.10,
		WeightSetupBias:        0.10,
	}
}

func TestService_AllocateTwoLayer(t *testing.T) {
	svc := New(testPrioritizationConfig(), nil, nil, zerolog.Nop())
	candidates := []Candidate{sampleCandidate("AAPL", 1), sampleCandidate("MSFT", 5)}

	out := svc.Allocate(context.Background(), candidates, 5, 0, decimal.NewFromInt(1000000), 0.8, decimal.Zero)
	require.Len(t, out, 2)
	assert.Equal(t, "AAPL", out[0].Order.Symbol)
}

func TestService_LegacyFallbackWhenTwoLayerDisabled(t *testing.T) {
	cfg := testPrioritizationConfig()
	cfg.TwoLayerEnabled = false
	svc := New(cfg, nil, nil, zerolog.Nop())
	candidates := []Candidate{sampleCandidate("AAPL", 1), sampleCandidate("MSFT", 5)}

	out := svc.Allocate(context.Background(), candidates, 5, 0, decimal.NewFromInt(1000000), 0.8, decimal.Zero)
	require.Len(t, out, 2)
	assert.Equal(t, "AAPL", out[0].Order.Symbol)
}

func TestService_EmptyCandidatesReturnsNil(t *testing.T) {
	svc := New(testPrioritizationConfig(), nil, nil, zerolog.Nop())
	out := svc.Allocate(context.Background(), nil, 5, 0, decimal.NewFromInt(1000000), 0.8, decimal.Zero)
	assert.Nil(t, out)
}
