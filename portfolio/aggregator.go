package portfolio

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/quantlab/backtest/strategy"
)

// Contribution pairs one strategy's output with its budget fraction.
type Contribution struct {
	StrategyID     string
	BudgetFraction float64
	Output         strategy.Output
}

// Aggregator converts budget-relative strategy outputs into a single set of
// NAV-relative target weights with exact per-strategy attribution.
type Aggregator struct {
	log zerolog.Logger
}

func NewAggregator(log zerolog.Logger) *Aggregator {
	return &Aggregator{log: log.With().Str("component", "aggregator").Logger()}
}

// Aggregate multiplies each per-asset budget fraction by the strategy's
// overall budget fraction, sums contributions per asset, and records each
// under attribution[asset][strategy]. Conflicting signals net through
// summation. Outputs are untrusted: negative weights clamp to zero, weights
// above one clamp to one, and an output summing past one is scaled back
// onto the budget, each with a logged warning.
func (a *Aggregator) Aggregate(contribs []Contribution) (map[string]float64, Attribution) {
	targets := make(map[string]float64)
	attr := make(Attribution)

	// Deterministic order regardless of caller map iteration.
	sorted := append([]Contribution(nil), contribs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StrategyID < sorted[j].StrategyID })

	for _, c := range sorted {
		weights := a.sanitize(c)
		for _, asset := range sortedKeys(weights) {
			navFraction := weights[asset] * c.BudgetFraction
			if navFraction == 0 {
				continue
			}
			targets[asset] += navFraction
			if attr[asset] == nil {
				attr[asset] = make(map[string]float64)
			}
			attr[asset][c.StrategyID] += navFraction
		}
	}
	return targets, attr
}

func (a *Aggregator) sanitize(c Contribution) map[string]float64 {
	out := make(map[string]float64, len(c.Output.Weights))
	sum := 0.0
	for asset, w := range c.Output.Weights {
		switch {
		case w < 0:
			a.log.Warn().Str("strategy", c.StrategyID).Str("asset", asset).
				Float64("weight", w).Msg("negative budget weight clamped to 0")
			w = 0
		case w > 1:
			a.log.Warn().Str("strategy", c.StrategyID).Str("asset", asset).
				Float64("weight", w).Msg("budget weight clamped to 1")
			w = 1
		}
		if w > 0 {
			out[asset] = w
			sum += w
		}
	}
	if sum > 1+1e-9 {
		a.log.Warn().Str("strategy", c.StrategyID).Float64("sum", sum).
			Msg("budget weights sum past 1, scaling back onto budget")
		for asset := range out {
			out[asset] /= sum
		}
	}
	return out
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
