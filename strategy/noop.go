package strategy

import "github.com/quantlab/backtest/snapshot"

func init() {
	Register("noop", func(Params) (Strategy, error) {
		return Noop{}, nil
	})
}

// Noop requests no exposure. Useful as a control in sweeps and in tests.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) Decide(*snapshot.Snapshot) (Output, error) {
	return Output{Weights: map[string]float64{}}, nil
}
