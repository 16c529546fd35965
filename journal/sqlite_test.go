package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/backtest/broker"
)

func tstamp(h int) time.Time {
	return time.Date(2024, 5, 1, h, 0, 0, 0, time.UTC)
}

func openSQLite(t *testing.T) *SQLite {
	t.Helper()
	j, err := NewSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestSQLite_RunLifecycle(t *testing.T) {
	j := openSQLite(t)

	run := RunRecord{
		RunID:      "run-1",
		ConfigHash: "abc123",
		StartTime:  tstamp(0),
		StartNAV:   decimal.NewFromInt(10000),
	}
	require.NoError(t, j.BeginRun(run))

	// Until EndRun the run is incomplete.
	got, err := j.GetRun("run-1")
	require.NoError(t, err)
	assert.False(t, got.Completed)
	assert.Equal(t, "abc123", got.ConfigHash)
	assert.True(t, got.StartNAV.Equal(decimal.NewFromInt(10000)))

	incomplete, err := j.ListIncompleteRuns()
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1"}, incomplete)

	run.EndTime = tstamp(10)
	run.EndNAV = decimal.RequireFromString("10123.45")
	run.Completed = true
	require.NoError(t, j.EndRun(run))

	got, err = j.GetRun("run-1")
	require.NoError(t, err)
	assert.True(t, got.Completed)
	assert.True(t, got.EndNAV.Equal(decimal.RequireFromString("10123.45")))

	incomplete, err = j.ListIncompleteRuns()
	require.NoError(t, err)
	assert.Empty(t, incomplete)
}

func TestSQLite_TradeRoundTrip(t *testing.T) {
	j := openSQLite(t)
	require.NoError(t, j.BeginRun(RunRecord{RunID: "run-1", StartTime: tstamp(0), StartNAV: decimal.NewFromInt(1000)}))

	fill := broker.Trade{
		ID:           "01ABC",
		Time:         tstamp(1),
		Symbol:       "BTC",
		Side:         broker.Buy,
		Quantity:     decimal.RequireFromString("0.0123"),
		Price:        decimal.RequireFromString("65000.5"),
		Fees:         decimal.RequireFromString("0.79"),
		Slippage:     decimal.RequireFromString("0.32"),
		ResultingNAV: decimal.RequireFromString("999.21"),
		Strategies:   []string{"core", "trend"},
	}
	require.NoError(t, j.RecordTrade(NewTradeRecord("run-1", fill)))

	trades, err := j.ListTradesByRun("run-1")
	require.NoError(t, err)
	require.Len(t, trades, 1)

	got := trades[0]
	assert.Equal(t, "01ABC", got.TradeID)
	assert.Equal(t, "buy", got.Side)
	assert.Equal(t, "core,trend", got.Strategies)
	assert.True(t, got.Quantity.Equal(fill.Quantity), "quantity survives the round trip exactly")
	assert.True(t, got.Price.Equal(fill.Price))
	assert.True(t, got.ResultingNAV.Equal(fill.ResultingNAV))

	// Scoped to the run.
	other, err := j.ListTradesByRun("run-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSQLite_EquityCurve(t *testing.T) {
	j := openSQLite(t)
	require.NoError(t, j.BeginRun(RunRecord{RunID: "run-1", StartTime: tstamp(0), StartNAV: decimal.NewFromInt(1000)}))

	navs := []string{"1000", "1010.5", "995.25"}
	for i, nav := range navs {
		require.NoError(t, j.RecordEquity(EquitySnapshot{
			RunID:   "run-1",
			Time:    tstamp(i),
			NAV:     decimal.RequireFromString(nav),
			Cash:    decimal.NewFromInt(100),
			PeakNAV: decimal.RequireFromString("1010.5"),
		}))
	}

	curve, err := j.EquityCurve("run-1")
	require.NoError(t, err)
	require.Len(t, curve, 3)
	for i, nav := range navs {
		assert.True(t, curve[i].NAV.Equal(decimal.RequireFromString(nav)))
		assert.Equal(t, tstamp(i), curve[i].Time.UTC())
	}
}

func TestSQLite_OtherRecords(t *testing.T) {
	j := openSQLite(t)
	require.NoError(t, j.BeginRun(RunRecord{RunID: "run-1", StartTime: tstamp(0), StartNAV: decimal.NewFromInt(1000)}))

	assert.NoError(t, j.RecordRejection(RejectionRecord{
		RunID: "run-1", Time: tstamp(1), Symbol: "SPY",
		IntendedDelta: decimal.RequireFromString("1.55"),
		ExecutedDelta: decimal.NewFromInt(1),
		Reason:        "rounded to minimum order increment",
	}))
	assert.NoError(t, j.RecordRiskAction(RiskActionRecord{
		RunID: "run-1", Time: tstamp(1), Kind: "per_asset_cap",
		Asset: "SPY", Limit: 0.4, Observed: 0.6, Ratio: 2.0 / 3.0,
	}))
	assert.NoError(t, j.RecordRegime(RegimeRecord{
		RunID: "run-1", Time: tstamp(1),
		From: "sideways/normal/neutral/neutral", To: "up/low/risk_on/expansion",
	}))
	assert.NoError(t, j.RecordAttribution(AttributionRecord{
		RunID: "run-1", Time: tstamp(1), Asset: "SPY", Strategy: "core", Weight: 0.3,
	}))
}
