package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/backtest/market"
	"github.com/quantlab/backtest/regime"
)

func TestDefaultValidates(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Run, loaded.Run)
	assert.Equal(t, cfg.Strategies, loaded.Strategies)
	assert.Equal(t, cfg.Hash(), loaded.Hash(), "identical configs hash identically")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero lookback", func(c *Config) { c.Run.Lookback = 0 }},
		{"bad journal type", func(c *Config) { c.Run.JournalType = "parquet" }},
		{"missing journal path", func(c *Config) { c.Run.JournalPath = "" }},
		{"no assets", func(c *Config) { c.Assets = nil }},
		{"duplicate asset", func(c *Config) { c.Assets = append(c.Assets, c.Assets[0]) }},
		{"unknown class", func(c *Config) { c.Assets[0].Class = "bond" }},
		{"bad increment", func(c *Config) { c.Assets[0].MinIncrement = "x" }},
		{"no strategies", func(c *Config) { c.Strategies = nil }},
		{"duplicate strategy id", func(c *Config) { c.Strategies[1].ID = c.Strategies[0].ID }},
		{"budget out of range", func(c *Config) { c.Strategies[0].Budget = 1.5 }},
		{"budgets sum past 1", func(c *Config) {
			c.Strategies[0].Budget = 0.7
			c.Strategies[1].Budget = 0.7
		}},
		{"weight on unknown asset", func(c *Config) { c.Strategies[0].Weights["GLD"] = 0.1 }},
		{"reference not in universe", func(c *Config) { c.Regime.ReferenceSymbol = "GLD" }},
		{"halt below derisk", func(c *Config) { c.Risk.HaltThreshold = 0.05 }},
		{"bad initial cash", func(c *Config) { c.Execution.InitialCash = "lots" }},
		{"override for unknown strategy", func(c *Config) {
			c.Overrides.ByRegime = map[string]map[string]float64{
				"up/low/risk_on/expansion": {"nope": 0.5},
			}
		}},
		{"override budgets sum past 1", func(c *Config) {
			c.Overrides.ByRegime = map[string]map[string]float64{
				"up/low/risk_on/expansion": {"core": 0.7, "trend": 0.7},
			}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestUniverseAndBudgets(t *testing.T) {
	cfg := Default()
	u := cfg.Universe()
	require.Len(t, u, 2)
	assert.Equal(t, market.ClassEquity, u["SPY"].Class)
	assert.Equal(t, market.ClassCrypto, u["BTC"].Class)

	saturday := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	assert.True(t, u["BTC"].Calendar.IsOpen(saturday))
	assert.False(t, u["SPY"].Calendar.IsOpen(saturday))

	b := cfg.Budgets()
	assert.Equal(t, 0.6, b["core"])
	assert.Equal(t, 0.4, b["trend"])
}

func TestBudgetOverrides(t *testing.T) {
	cfg := Default()
	defaults := cfg.Budgets()
	state := regime.State{Trend: regime.TrendUp, Volatility: regime.VolLow,
		Sentiment: regime.SentimentRiskOn, Macro: regime.MacroExpansion}

	// No override table: defaults pass through.
	assert.Equal(t, defaults, cfg.Overrides.For(state, defaults))

	cfg.Overrides.ByRegime = map[string]map[string]float64{
		"up/low/risk_on/expansion": {"core": 0.3, "trend": 0.7},
	}
	require.NoError(t, cfg.Validate())

	got := cfg.Overrides.For(state, defaults)
	assert.Equal(t, 0.3, got["core"])
	assert.Equal(t, 0.7, got["trend"])

	// Any other regime still falls back.
	assert.Equal(t, defaults, cfg.Overrides.For(regime.Neutral(state.Time), defaults))
}
