package portfolio

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/backtest/strategy"
)

func contrib(id string, budget float64, weights map[string]float64) Contribution {
	return Contribution{
		StrategyID:     id,
		BudgetFraction: budget,
		Output:         strategy.Output{Weights: weights, Confidence: 1},
	}
}

// Three strategies with budgets 0.6, 0.25, 0.15 each fully allocated to the
// same asset must produce a combined target of exactly 1.0 of NAV.
func TestAggregate_BudgetsCompose(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())

	targets, attr := agg.Aggregate([]Contribution{
		contrib("a", 0.6, map[string]float64{"X": 1}),
		contrib("b", 0.25, map[string]float64{"X": 1}),
		contrib("c", 0.15, map[string]float64{"X": 1}),
	})

	require.Len(t, targets, 1)
	assert.InDelta(t, 1.0, targets["X"], 1e-9)
	assert.InDelta(t, 0.6, attr["X"]["a"], 1e-9)
	assert.InDelta(t, 0.25, attr["X"]["b"], 1e-9)
	assert.InDelta(t, 0.15, attr["X"]["c"], 1e-9)
}

// Attribution must sum to the combined target per asset, and conflicting
// signals net through summation.
func TestAggregate_AttributionConservation(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())

	targets, attr := agg.Aggregate([]Contribution{
		contrib("momo", 0.5, map[string]float64{"SPY": 0.8, "BTC": 0.2}),
		contrib("value", 0.3, map[string]float64{"SPY": 0.5}),
	})

	for asset, total := range targets {
		assert.InDelta(t, total, attr.Sum(asset), 1e-9, "asset %s", asset)
	}
	assert.InDelta(t, 0.5*0.8+0.3*0.5, targets["SPY"], 1e-9)
	assert.InDelta(t, 0.1, targets["BTC"], 1e-9)
}

func TestAggregate_SanitizesUntrustedOutput(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())

	// Negative clamps to zero and drops out of attribution.
	targets, attr := agg.Aggregate([]Contribution{
		contrib("s", 0.5, map[string]float64{"SPY": -0.3, "BTC": 0.4}),
	})
	assert.NotContains(t, targets, "SPY")
	assert.NotContains(t, attr, "SPY")
	assert.InDelta(t, 0.2, targets["BTC"], 1e-9)

	// A single weight above 1 clamps to 1.
	targets, _ = agg.Aggregate([]Contribution{
		contrib("s", 0.5, map[string]float64{"SPY": 1.7}),
	})
	assert.InDelta(t, 0.5, targets["SPY"], 1e-9)

	// Weights summing past 1 scale back onto the budget.
	targets, attr = agg.Aggregate([]Contribution{
		contrib("s", 0.4, map[string]float64{"SPY": 1.0, "BTC": 1.0}),
	})
	assert.InDelta(t, 0.2, targets["SPY"], 1e-9)
	assert.InDelta(t, 0.2, targets["BTC"], 1e-9)
	assert.InDelta(t, targets["SPY"], attr.Sum("SPY"), 1e-9)
}

func TestAggregate_Empty(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())
	targets, attr := agg.Aggregate(nil)
	assert.Empty(t, targets)
	assert.Empty(t, attr)
}
