package strategy

import (
	"fmt"

	"github.com/quantlab/backtest/snapshot"
)

func init() {
	Register("ema-cross", NewEMACross)
}

// EMACross allocates equally across assets whose fast EMA sits above their
// slow EMA, reading the derived columns the ingest step computed.
type EMACross struct {
	symbols []string
	fastCol string
	slowCol string
}

func NewEMACross(p Params) (Strategy, error) {
	if len(p.Symbols) == 0 {
		return nil, fmt.Errorf("ema-cross: symbols are required")
	}
	fast, slow := p.FastPeriod, p.SlowPeriod
	if fast <= 0 {
		fast = 20
	}
	if slow <= 0 {
		slow = 50
	}
	if fast >= slow {
		return nil, fmt.Errorf("ema-cross: fast period %d must be below slow %d", fast, slow)
	}
	return &EMACross{
		symbols: append([]string(nil), p.Symbols...),
		fastCol: fmt.Sprintf("ema_%d", fast),
		slowCol: fmt.Sprintf("ema_%d", slow),
	}, nil
}

func (e *EMACross) Name() string { return "ema-cross" }

func (e *EMACross) Decide(s *snapshot.Snapshot) (Output, error) {
	var long []string
	for _, sym := range e.symbols {
		fast, okF := s.Indicator(sym, e.fastCol)
		slow, okS := s.Indicator(sym, e.slowCol)
		if !okF || !okS {
			continue
		}
		if fast > slow {
			long = append(long, sym)
		}
	}

	out := Output{Weights: make(map[string]float64, len(long))}
	if len(long) == 0 {
		return out, nil
	}
	w := 1.0 / float64(len(long))
	for _, sym := range long {
		out.Weights[sym] = w
	}
	return out, nil
}
