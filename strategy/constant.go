package strategy

import (
	"fmt"
	"time"

	"github.com/quantlab/backtest/snapshot"
)

func init() {
	Register("constant", NewConstant)
}

// Constant holds a fixed target allocation, rebalancing on a configurable
// interval. Between rebalances it restates its current exposures so the
// aggregator sees "hold" rather than "flatten".
type Constant struct {
	weights map[string]float64
	every   time.Duration

	lastRebalance time.Time
}

func NewConstant(p Params) (Strategy, error) {
	if len(p.Weights) == 0 {
		return nil, fmt.Errorf("constant: weights are required")
	}
	sum := 0.0
	for sym, w := range p.Weights {
		if w < 0 || w > 1 {
			return nil, fmt.Errorf("constant: weight %f for %s outside [0,1]", w, sym)
		}
		sum += w
	}
	if sum > 1+1e-9 {
		return nil, fmt.Errorf("constant: weights sum %f exceeds 1", sum)
	}

	var every time.Duration
	if p.RebalanceEvery != "" {
		d, err := time.ParseDuration(p.RebalanceEvery)
		if err != nil {
			return nil, fmt.Errorf("constant: rebalance_every: %w", err)
		}
		every = d
	}

	weights := make(map[string]float64, len(p.Weights))
	for k, v := range p.Weights {
		weights[k] = v
	}
	return &Constant{weights: weights, every: every}, nil
}

func (c *Constant) Name() string { return "constant" }

func (c *Constant) Decide(s *snapshot.Snapshot) (Output, error) {
	// The first decision step of a run always rebalances; calendar position
	// only matters once a rebalance has happened in this run.
	due := c.lastRebalance.IsZero() ||
		c.every == 0 ||
		s.Time().Sub(c.lastRebalance) >= c.every

	if due {
		c.lastRebalance = s.Time()
		out := make(map[string]float64, len(c.weights))
		for sym, w := range c.weights {
			out[sym] = w
		}
		return Output{Weights: out, Confidence: 1}, nil
	}

	return Output{Weights: c.hold(s)}, nil
}

// hold converts current NAV-relative exposures back into budget fractions.
func (c *Constant) hold(s *snapshot.Snapshot) map[string]float64 {
	budget := s.BudgetFraction()
	if budget <= 0 {
		return map[string]float64{}
	}
	out := make(map[string]float64)
	for sym, exp := range s.Exposures() {
		if exp > 0 {
			out[sym] = exp / budget
		}
	}
	return out
}
