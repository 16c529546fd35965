package snapshot

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantlab/backtest/market"
	"github.com/quantlab/backtest/regime"
)

// Snapshot is the immutable view a strategy decides against: bounded
// per-asset history, regime labels, and the strategy's own budget and
// current exposures, all at-or-before the decision time.
//
// Fields are unexported and accessors copy, so a strategy cannot mutate
// shared state or widen its view past the decision time.
type Snapshot struct {
	at        time.Time
	windows   map[string][]market.Bar
	reg       regime.State
	budget    float64
	budgetVal decimal.Decimal
	exposures map[string]float64
}

// Time is the decision timestamp. No bar in the snapshot is stamped later.
func (s *Snapshot) Time() time.Time { return s.at }

// Symbols lists the assets that had sufficient history at build time.
func (s *Snapshot) Symbols() []string {
	syms := make([]string, 0, len(s.windows))
	for sym := range s.windows {
		syms = append(syms, sym)
	}
	return syms
}

// Window returns a copy of the lookback bars for one asset, oldest first,
// or nil when the asset was skipped for insufficient history.
func (s *Snapshot) Window(symbol string) []market.Bar {
	w, ok := s.windows[symbol]
	if !ok {
		return nil
	}
	out := make([]market.Bar, len(w))
	copy(out, w)
	return out
}

// Close returns the most recent close for an asset, reporting whether the
// asset is present.
func (s *Snapshot) Close(symbol string) (float64, bool) {
	w, ok := s.windows[symbol]
	if !ok || len(w) == 0 {
		return 0, false
	}
	return w[len(w)-1].Close, true
}

// Indicator returns the most recent derived column value for an asset.
func (s *Snapshot) Indicator(symbol, name string) (float64, bool) {
	w, ok := s.windows[symbol]
	if !ok || len(w) == 0 {
		return 0, false
	}
	return w[len(w)-1].Indicator(name)
}

// Regime is the regime state current at the decision time.
func (s *Snapshot) Regime() regime.State { return s.reg }

// BudgetFraction is the requesting strategy's share of total NAV.
func (s *Snapshot) BudgetFraction() float64 { return s.budget }

// BudgetValue is the dollar value of the strategy's budget.
func (s *Snapshot) BudgetValue() decimal.Decimal { return s.budgetVal }

// Exposure returns the strategy's current NAV-relative exposure in an asset.
func (s *Snapshot) Exposure(symbol string) float64 { return s.exposures[symbol] }

// Exposures returns a copy of all current NAV-relative exposures.
func (s *Snapshot) Exposures() map[string]float64 {
	out := make(map[string]float64, len(s.exposures))
	for k, v := range s.exposures {
		out[k] = v
	}
	return out
}
