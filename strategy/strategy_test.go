package strategy

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/backtest/indicators"
	"github.com/quantlab/backtest/market"
	"github.com/quantlab/backtest/regime"
	"github.com/quantlab/backtest/snapshot"
)

func day(d int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

// snapAt builds a snapshot over a trivially flat history, carrying the given
// budget and exposures.
func snapAt(t *testing.T, at time.Time, budget float64, exposures map[string]float64, inds ...indicators.Streaming) *snapshot.Snapshot {
	t.Helper()
	bars := make([]market.Bar, 60)
	for i := range bars {
		px := 100 + float64(i)
		bars[i] = market.Bar{Time: day(i), Open: px, High: px, Low: px, Close: px}
	}
	bars = indicators.Enrich(bars, inds...)
	s, err := market.NewSeries("SPY", bars)
	require.NoError(t, err)

	h := market.History{"SPY": s}
	u := market.Universe{"SPY": market.NewAsset("SPY", market.ClassEquity, "1", 2)}
	b := snapshot.NewBuilder(h, u, zerolog.Nop())
	snap, err := b.Build(snapshot.Request{
		At:             at,
		Lookback:       55,
		Regime:         regime.Neutral(at),
		BudgetFraction: budget,
		Exposures:      exposures,
	})
	require.NoError(t, err)
	return snap
}

func TestByName(t *testing.T) {
	_, err := ByName("no-such-strategy", Params{})
	assert.Error(t, err)

	s, err := ByName("NOOP", Params{})
	require.NoError(t, err)
	assert.Equal(t, "noop", s.Name())

	assert.Contains(t, Names(), "constant")
	assert.Contains(t, Names(), "ema-cross")
}

func TestNoop(t *testing.T) {
	s, err := ByName("noop", Params{})
	require.NoError(t, err)

	out, err := s.Decide(snapAt(t, day(59), 0.5, nil))
	require.NoError(t, err)
	assert.Empty(t, out.Weights)
}

func TestConstant_Validation(t *testing.T) {
	_, err := NewConstant(Params{})
	assert.Error(t, err, "weights required")

	_, err = NewConstant(Params{Weights: map[string]float64{"SPY": -0.1}})
	assert.Error(t, err)

	_, err = NewConstant(Params{Weights: map[string]float64{"SPY": 0.7, "BTC": 0.7}})
	assert.Error(t, err, "sum past 1")

	_, err = NewConstant(Params{Weights: map[string]float64{"SPY": 1}, RebalanceEvery: "often"})
	assert.Error(t, err)
}

func TestConstant_FirstStepAlwaysRebalances(t *testing.T) {
	s, err := NewConstant(Params{
		Weights:        map[string]float64{"SPY": 0.8},
		RebalanceEvery: "168h",
	})
	require.NoError(t, err)

	// First decision rebalances regardless of the interval.
	out, err := s.Decide(snapAt(t, day(55), 0.5, nil))
	require.NoError(t, err)
	assert.Equal(t, 0.8, out.Weights["SPY"])
	assert.Equal(t, 1.0, out.Confidence)
}

func TestConstant_HoldsBetweenRebalances(t *testing.T) {
	s, err := NewConstant(Params{
		Weights:        map[string]float64{"SPY": 0.8},
		RebalanceEvery: "72h",
	})
	require.NoError(t, err)

	_, err = s.Decide(snapAt(t, day(55), 0.5, nil))
	require.NoError(t, err)

	// One day later: not due. Current exposure 0.38 of NAV on a 0.5 budget
	// restates as 0.76 of budget, so the aggregator sees "hold".
	out, err := s.Decide(snapAt(t, day(56), 0.5, map[string]float64{"SPY": 0.38}))
	require.NoError(t, err)
	assert.InDelta(t, 0.76, out.Weights["SPY"], 1e-9)

	// Three days later: due again, back to the target.
	out, err = s.Decide(snapAt(t, day(58), 0.5, map[string]float64{"SPY": 0.38}))
	require.NoError(t, err)
	assert.Equal(t, 0.8, out.Weights["SPY"])
}

func TestEMACross(t *testing.T) {
	_, err := NewEMACross(Params{})
	assert.Error(t, err, "symbols required")

	_, err = NewEMACross(Params{Symbols: []string{"SPY"}, FastPeriod: 50, SlowPeriod: 20})
	assert.Error(t, err, "fast must be below slow")

	s, err := NewEMACross(Params{Symbols: []string{"SPY"}, FastPeriod: 10, SlowPeriod: 30})
	require.NoError(t, err)

	// Rising closes: the fast EMA leads the slow one.
	snap := snapAt(t, day(59), 0.4, nil, indicators.NewEMA(10), indicators.NewEMA(30))
	out, err := s.Decide(snap)
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.Weights["SPY"])

	// Missing columns: no signal, empty output rather than an error.
	out, err = s.Decide(snapAt(t, day(59), 0.4, nil))
	require.NoError(t, err)
	assert.Empty(t, out.Weights)
}
