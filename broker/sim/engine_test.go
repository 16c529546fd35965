package sim

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/backtest/broker"
	"github.com/quantlab/backtest/market"
)

var (
	monday   = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	saturday = time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newEngine(t *testing.T, universe market.Universe, cfg Config) *Engine {
	t.Helper()
	if cfg.InitialCash == "" {
		cfg.InitialCash = "1000"
	}
	e, err := New(universe, cfg, zerolog.Nop())
	require.NoError(t, err)
	return e
}

func cryptoUniverse(inc string) market.Universe {
	return market.Universe{"X": market.NewAsset("X", market.ClassCrypto, inc, 2)}
}

func TestSubmit_FullFillNoFriction(t *testing.T) {
	e := newEngine(t, cryptoUniverse("0.0001"), Config{})
	e.MarkPrices(map[string]decimal.Decimal{"X": d("100")})

	fills, rejs, err := e.SubmitTargetWeights(context.Background(), monday,
		map[string]float64{"X": 1.0}, map[string][]string{"X": {"core"}})
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Empty(t, rejs)

	f := fills[0]
	assert.Equal(t, broker.Buy, f.Side)
	assert.True(t, f.Quantity.Equal(d("10")), "qty %s", f.Quantity)
	assert.True(t, f.Price.Equal(d("100")))
	assert.True(t, f.Fees.IsZero())
	assert.Equal(t, []string{"core"}, f.Strategies)

	assert.True(t, e.Cash().IsZero(), "cash %s", e.Cash())
	assert.True(t, e.NAV().Equal(d("1000")), "frictionless fill preserves NAV")
	assert.True(t, e.Positions()["X"].Quantity.Equal(d("10")))
}

func TestSubmit_BelowIncrementRejected(t *testing.T) {
	e := newEngine(t, cryptoUniverse("1"), Config{})
	e.MarkPrices(map[string]decimal.Decimal{"X": d("100")})

	// 0.005 of 1000 = 5 value = 0.05 units, below a whole-unit increment.
	fills, rejs, err := e.SubmitTargetWeights(context.Background(), monday,
		map[string]float64{"X": 0.005}, nil)
	require.NoError(t, err)
	assert.Empty(t, fills)
	require.Len(t, rejs, 1)
	assert.Equal(t, "below minimum order increment", rejs[0].Reason)
	assert.True(t, rejs[0].IntendedDelta.Equal(d("0.05")))
	assert.True(t, rejs[0].ExecutedDelta.IsZero())
	assert.True(t, e.Cash().Equal(d("1000")), "nothing moved")
}

func TestSubmit_PartialFillRoundsDown(t *testing.T) {
	e := newEngine(t, cryptoUniverse("1"), Config{})
	e.MarkPrices(map[string]decimal.Decimal{"X": d("100")})

	// 0.155 of 1000 = 1.55 units, truncated to 1. Fill and rejection together.
	fills, rejs, err := e.SubmitTargetWeights(context.Background(), monday,
		map[string]float64{"X": 0.155}, nil)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.True(t, fills[0].Quantity.Equal(d("1")))
	require.Len(t, rejs, 1)
	assert.Equal(t, "rounded to minimum order increment", rejs[0].Reason)
	assert.True(t, rejs[0].IntendedDelta.Equal(d("1.55")))
	assert.True(t, rejs[0].ExecutedDelta.Equal(d("1")))
}

func TestSubmit_SellTruncatesTowardZero(t *testing.T) {
	e := newEngine(t, cryptoUniverse("1"), Config{})
	e.MarkPrices(map[string]decimal.Decimal{"X": d("100")})

	_, _, err := e.SubmitTargetWeights(context.Background(), monday,
		map[string]float64{"X": 0.5}, nil)
	require.NoError(t, err)
	require.True(t, e.Positions()["X"].Quantity.Equal(d("5")))

	// Reducing by 1.55 units must sell exactly 1, never 2.
	fills, rejs, err := e.SubmitTargetWeights(context.Background(), monday,
		map[string]float64{"X": 0.345}, nil)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, broker.Sell, fills[0].Side)
	assert.True(t, fills[0].Quantity.Equal(d("1")))
	require.Len(t, rejs, 1)
	assert.True(t, e.Positions()["X"].Quantity.Equal(d("4")))
}

func TestSubmit_SlippageAndFees(t *testing.T) {
	e := newEngine(t, cryptoUniverse("1"), Config{
		SlippageBps: 10, // 0.001
		FeeRate:     0.001,
		FeeFixed:    "0.5",
	})
	e.MarkPrices(map[string]decimal.Decimal{"X": d("100")})

	fills, _, err := e.SubmitTargetWeights(context.Background(), monday,
		map[string]float64{"X": 0.1}, nil)
	require.NoError(t, err)
	require.Len(t, fills, 1)

	f := fills[0]
	assert.True(t, f.Price.Equal(d("100.1")), "buy pays up: %s", f.Price)
	assert.True(t, f.Fees.Equal(d("0.6001")), "0.001*100.1 + 0.5: %s", f.Fees)
	assert.True(t, f.Slippage.Equal(d("0.1")))
	assert.True(t, e.Cash().Equal(d("899.2999")), "cash %s", e.Cash())

	// Sells receive less than the mark.
	fills, _, err = e.SubmitTargetWeights(context.Background(), monday,
		map[string]float64{}, nil)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, broker.Sell, fills[0].Side)
	assert.True(t, fills[0].Price.Equal(d("99.9")))
}

func TestSubmit_MarketClosed(t *testing.T) {
	universe := market.Universe{"SPY": market.NewAsset("SPY", market.ClassEquity, "1", 2)}
	e := newEngine(t, universe, Config{})
	e.MarkPrices(map[string]decimal.Decimal{"SPY": d("500")})

	fills, rejs, err := e.SubmitTargetWeights(context.Background(), saturday,
		map[string]float64{"SPY": 0.5}, nil)
	require.NoError(t, err)
	assert.Empty(t, fills)
	require.Len(t, rejs, 1)
	assert.Equal(t, "market closed", rejs[0].Reason)

	fills, _, err = e.SubmitTargetWeights(context.Background(), monday,
		map[string]float64{"SPY": 0.5}, nil)
	require.NoError(t, err)
	assert.Len(t, fills, 1)
}

func TestSubmit_NoMarkRejected(t *testing.T) {
	e := newEngine(t, cryptoUniverse("1"), Config{})

	fills, rejs, err := e.SubmitTargetWeights(context.Background(), monday,
		map[string]float64{"X": 0.5}, nil)
	require.NoError(t, err)
	assert.Empty(t, fills)
	require.Len(t, rejs, 1)
	assert.Equal(t, "no mark price", rejs[0].Reason)
}

func TestSubmit_FlattensDroppedHolding(t *testing.T) {
	e := newEngine(t, cryptoUniverse("1"), Config{})
	e.MarkPrices(map[string]decimal.Decimal{"X": d("100")})

	_, _, err := e.SubmitTargetWeights(context.Background(), monday,
		map[string]float64{"X": 0.5}, nil)
	require.NoError(t, err)

	// A held asset absent from the targets is an implicit zero.
	fills, _, err := e.SubmitTargetWeights(context.Background(), monday,
		map[string]float64{}, nil)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, broker.Sell, fills[0].Side)
	assert.Empty(t, e.Positions())
	assert.True(t, e.Cash().Equal(d("1000")))
}

// Identical inputs must produce byte-identical trade logs, IDs included.
func TestSubmit_DeterministicIDs(t *testing.T) {
	run := func() []broker.Trade {
		e := newEngine(t, cryptoUniverse("1"), Config{})
		e.MarkPrices(map[string]decimal.Decimal{"X": d("100")})
		for i, w := range []float64{0.5, 0.2, 0.8} {
			at := monday.Add(time.Duration(i) * 24 * time.Hour)
			_, _, err := e.SubmitTargetWeights(context.Background(), at,
				map[string]float64{"X": w}, nil)
			require.NoError(t, err)
		}
		return e.Trades()
	}

	a, b := run(), run()
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
		assert.True(t, a[i].Quantity.Equal(b[i].Quantity))
		assert.True(t, a[i].ResultingNAV.Equal(b[i].ResultingNAV))
	}
}

func TestSubmit_ContextCancelled(t *testing.T) {
	e := newEngine(t, cryptoUniverse("1"), Config{})
	e.MarkPrices(map[string]decimal.Decimal{"X": d("100")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := e.SubmitTargetWeights(ctx, monday, map[string]float64{"X": 0.5}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
