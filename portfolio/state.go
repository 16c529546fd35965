package portfolio

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ErrReconciliation means attribution no longer sums to actual exposure.
// This indicates an aggregation bug; the run must abort.
var ErrReconciliation = errors.New("attribution does not reconcile with positions")

// ReconcileTolerance is the relative tolerance for attribution checks.
const ReconcileTolerance = 1e-6

// Position is one asset's holding. Quantity and market value are money
// amounts, kept in decimal so long runs do not drift.
type Position struct {
	Quantity    decimal.Decimal
	MarketValue decimal.Decimal
}

// Attribution decomposes per-asset exposure into NAV fractions contributed
// by each strategy: asset -> strategy -> NAV fraction.
type Attribution map[string]map[string]float64

// Clone deep-copies the attribution map.
func (a Attribution) Clone() Attribution {
	out := make(Attribution, len(a))
	for asset, byStrat := range a {
		m := make(map[string]float64, len(byStrat))
		for id, w := range byStrat {
			m[id] = w
		}
		out[asset] = m
	}
	return out
}

// Sum returns the total attributed NAV fraction for one asset.
func (a Attribution) Sum(asset string) float64 {
	total := 0.0
	for _, w := range a[asset] {
		total += w
	}
	return total
}

// State is the portfolio at one instant. It has exactly one writer, the
// run orchestrator; every other component receives a Clone.
type State struct {
	Time        time.Time
	Cash        decimal.Decimal
	Positions   map[string]Position
	Attribution Attribution
	PeakNAV     decimal.Decimal
}

// NewState starts a run with all value in cash.
func NewState(start time.Time, cash decimal.Decimal) *State {
	return &State{
		Time:        start,
		Cash:        cash,
		Positions:   make(map[string]Position),
		Attribution: make(Attribution),
		PeakNAV:     cash,
	}
}

// NAV is cash plus the sum of position market values.
func (s *State) NAV() decimal.Decimal {
	nav := s.Cash
	for _, p := range s.Positions {
		nav = nav.Add(p.MarketValue)
	}
	return nav
}

// Drawdown is the fractional decline from peak NAV, in [0,1).
func (s *State) Drawdown() float64 {
	if s.PeakNAV.IsZero() {
		return 0
	}
	dd, _ := s.PeakNAV.Sub(s.NAV()).Div(s.PeakNAV).Float64()
	if dd < 0 {
		return 0
	}
	return dd
}

// Weight is one asset's market value as a NAV fraction.
func (s *State) Weight(symbol string) float64 {
	nav := s.NAV()
	if nav.IsZero() {
		return 0
	}
	p, ok := s.Positions[symbol]
	if !ok {
		return 0
	}
	w, _ := p.MarketValue.Div(nav).Float64()
	return w
}

// Weights returns all current NAV-relative exposures.
func (s *State) Weights() map[string]float64 {
	out := make(map[string]float64, len(s.Positions))
	for sym := range s.Positions {
		out[sym] = s.Weight(sym)
	}
	return out
}

// StrategyExposures extracts one strategy's NAV-relative exposures from the
// attribution map, for embedding in that strategy's snapshot.
func (s *State) StrategyExposures(strategyID string) map[string]float64 {
	out := make(map[string]float64)
	for asset, byStrat := range s.Attribution {
		if w, ok := byStrat[strategyID]; ok && w != 0 {
			out[asset] = w
		}
	}
	return out
}

// Symbols lists held assets in deterministic order.
func (s *State) Symbols() []string {
	syms := make([]string, 0, len(s.Positions))
	for sym := range s.Positions {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return syms
}

// Clone is the read-only copy handed to engines and strategies.
func (s *State) Clone() *State {
	pos := make(map[string]Position, len(s.Positions))
	for sym, p := range s.Positions {
		pos[sym] = p
	}
	return &State{
		Time:        s.Time,
		Cash:        s.Cash,
		Positions:   pos,
		Attribution: s.Attribution.Clone(),
		PeakNAV:     s.PeakNAV,
	}
}

// UpdatePeak ratchets the peak NAV. The peak never decreases.
func (s *State) UpdatePeak() {
	if nav := s.NAV(); nav.GreaterThan(s.PeakNAV) {
		s.PeakNAV = nav
	}
}

// Reconcile verifies that for every held asset the attributed fractions sum
// to the position's actual NAV share within tolerance. A failure is fatal.
func (s *State) Reconcile() error {
	nav := s.NAV()
	if nav.IsZero() {
		return nil
	}
	for _, sym := range s.Symbols() {
		actual := s.Weight(sym)
		attributed := s.Attribution.Sum(sym)
		diff := actual - attributed
		if diff < 0 {
			diff = -diff
		}
		scale := actual
		if scale < 0 {
			scale = -scale
		}
		if scale < 1 {
			scale = 1
		}
		if diff/scale > ReconcileTolerance {
			return fmt.Errorf("asset %s: attributed %.9f vs actual %.9f: %w",
				sym, attributed, actual, ErrReconciliation)
		}
	}
	return nil
}
