package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/quantlab/backtest/broker/sim"
	"github.com/quantlab/backtest/market"
	"github.com/quantlab/backtest/regime"
	"github.com/quantlab/backtest/risk"
)

// Config is the complete run configuration. Constructed once at run start,
// validated at load, and passed by reference into the runner; engines never
// reach for ambient globals.
type Config struct {
	Run        RunConfig        `yaml:"run"`
	Assets     []AssetConfig    `yaml:"assets"`
	Strategies []StrategyConfig `yaml:"strategies"`
	Regime     regime.Config    `yaml:"regime"`
	Risk       risk.Limits      `yaml:"risk"`
	Execution  sim.Config       `yaml:"execution"`
	Overrides  BudgetOverrides  `yaml:"budget_overrides"`
}

// RunConfig contains loop-level parameters.
type RunConfig struct {
	Lookback    int    `yaml:"lookback"`
	JournalType string `yaml:"journal_type"` // "csv", "sqlite" or "memory"
	JournalPath string `yaml:"journal_path,omitempty"`
}

// AssetConfig declares one universe member and its data file.
type AssetConfig struct {
	Symbol       string `yaml:"symbol"`
	Class        string `yaml:"class"`
	MinIncrement string `yaml:"min_increment"`
	Precision    int32  `yaml:"precision"`
	DataFile     string `yaml:"data_file,omitempty"`
}

// StrategyConfig declares one active strategy and its budget fraction.
type StrategyConfig struct {
	ID             string             `yaml:"id"`
	Kind           string             `yaml:"kind"`
	Budget         float64            `yaml:"budget"`
	Symbols        []string           `yaml:"symbols,omitempty"`
	Weights        map[string]float64 `yaml:"weights,omitempty"`
	FastPeriod     int                `yaml:"fast_period,omitempty"`
	SlowPeriod     int                `yaml:"slow_period,omitempty"`
	RebalanceEvery string             `yaml:"rebalance_every,omitempty"`
}

// BudgetOverrides maps regime label tuples to per-strategy budget
// fractions. Missing keys fall back to the strategies' configured budgets.
type BudgetOverrides struct {
	ByRegime map[string]map[string]float64 `yaml:"by_regime,omitempty"`
}

// For resolves the budgets for a regime state, falling back to defaults.
func (b BudgetOverrides) For(state regime.State, defaults map[string]float64) map[string]float64 {
	if over, ok := b.ByRegime[state.Key()]; ok {
		return over
	}
	return defaults
}

// LoadFromFile loads and validates a YAML configuration.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration as YAML.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Hash fingerprints the configuration for run records; identical configs
// hash identically, which is what reproducibility claims hang off.
func (c *Config) Hash() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Universe builds the asset reference data.
func (c *Config) Universe() market.Universe {
	u := make(market.Universe, len(c.Assets))
	for _, a := range c.Assets {
		u[a.Symbol] = market.NewAsset(a.Symbol, market.AssetClass(a.Class), a.MinIncrement, a.Precision)
	}
	return u
}

// Budgets returns the configured per-strategy budget fractions.
func (c *Config) Budgets() map[string]float64 {
	out := make(map[string]float64, len(c.Strategies))
	for _, s := range c.Strategies {
		out[s.ID] = s.Budget
	}
	return out
}

// Validate checks the configuration is internally coherent.
func (c *Config) Validate() error {
	if c.Run.Lookback <= 0 {
		return fmt.Errorf("run.lookback must be positive")
	}
	switch c.Run.JournalType {
	case "csv", "sqlite", "memory":
	default:
		return fmt.Errorf("run.journal_type must be csv, sqlite or memory, got %q", c.Run.JournalType)
	}
	if c.Run.JournalType != "memory" && c.Run.JournalPath == "" {
		return fmt.Errorf("run.journal_path required for %s journal", c.Run.JournalType)
	}

	if len(c.Assets) == 0 {
		return fmt.Errorf("at least one asset is required")
	}
	symbols := make(map[string]bool, len(c.Assets))
	for _, a := range c.Assets {
		if a.Symbol == "" {
			return fmt.Errorf("asset symbol is required")
		}
		if symbols[a.Symbol] {
			return fmt.Errorf("duplicate asset %q", a.Symbol)
		}
		symbols[a.Symbol] = true
		switch market.AssetClass(a.Class) {
		case market.ClassEquity, market.ClassCrypto:
		default:
			return fmt.Errorf("asset %s: unknown class %q", a.Symbol, a.Class)
		}
		if _, err := decimal.NewFromString(a.MinIncrement); err != nil {
			return fmt.Errorf("asset %s: min_increment %q: %w", a.Symbol, a.MinIncrement, err)
		}
	}

	if len(c.Strategies) == 0 {
		return fmt.Errorf("at least one strategy is required")
	}
	ids := make(map[string]bool, len(c.Strategies))
	budgetSum := 0.0
	for _, s := range c.Strategies {
		if s.ID == "" {
			return fmt.Errorf("strategy id is required")
		}
		if ids[s.ID] {
			return fmt.Errorf("duplicate strategy id %q", s.ID)
		}
		ids[s.ID] = true
		if s.Budget < 0 || s.Budget > 1 {
			return fmt.Errorf("strategy %s: budget %f outside [0,1]", s.ID, s.Budget)
		}
		budgetSum += s.Budget
		for sym := range s.Weights {
			if !symbols[sym] {
				return fmt.Errorf("strategy %s: weight for unknown asset %q", s.ID, sym)
			}
		}
		for _, sym := range s.Symbols {
			if !symbols[sym] {
				return fmt.Errorf("strategy %s: unknown asset %q", s.ID, sym)
			}
		}
	}
	if budgetSum > 1+1e-9 {
		return fmt.Errorf("strategy budgets sum to %f, must be <= 1", budgetSum)
	}

	if c.Regime.ReferenceSymbol != "" && !symbols[c.Regime.ReferenceSymbol] {
		return fmt.Errorf("regime.reference_symbol %q is not in the universe", c.Regime.ReferenceSymbol)
	}

	if err := c.Risk.Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}

	if _, err := decimal.NewFromString(c.Execution.InitialCash); err != nil {
		return fmt.Errorf("execution.initial_cash %q: %w", c.Execution.InitialCash, err)
	}
	if c.Execution.SlippageBps < 0 {
		return fmt.Errorf("execution.slippage_bps must be >= 0")
	}
	if c.Execution.FeeRate < 0 {
		return fmt.Errorf("execution.fee_rate must be >= 0")
	}

	// Override entries are validated at load, not at use.
	for key, over := range c.Overrides.ByRegime {
		sum := 0.0
		for id, budget := range over {
			if !ids[id] {
				return fmt.Errorf("budget_overrides[%s]: unknown strategy %q", key, id)
			}
			if budget < 0 || budget > 1 {
				return fmt.Errorf("budget_overrides[%s]: budget %f for %s outside [0,1]", key, budget, id)
			}
			sum += budget
		}
		if sum > 1+1e-9 {
			return fmt.Errorf("budget_overrides[%s]: budgets sum to %f, must be <= 1", key, sum)
		}
	}

	return nil
}

// Default returns a configuration with sensible defaults for a two-asset
// simulated run.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Lookback:    60,
			JournalType: "csv",
			JournalPath: "./journal",
		},
		Assets: []AssetConfig{
			{Symbol: "SPY", Class: "equity", MinIncrement: "1", Precision: 2, DataFile: "./data/SPY.csv"},
			{Symbol: "BTC", Class: "crypto", MinIncrement: "0.0001", Precision: 2, DataFile: "./data/BTC.csv"},
		},
		Strategies: []StrategyConfig{
			{ID: "core", Kind: "constant", Budget: 0.6,
				Weights: map[string]float64{"SPY": 0.8, "BTC": 0.2}, RebalanceEvery: "720h"},
			{ID: "trend", Kind: "ema-cross", Budget: 0.4,
				Symbols: []string{"SPY", "BTC"}, FastPeriod: 20, SlowPeriod: 50},
		},
		Regime: func() regime.Config {
			rc := regime.DefaultConfig()
			rc.ReferenceSymbol = "SPY"
			return rc
		}(),
		Risk: risk.Default(),
		Execution: sim.Config{
			SlippageBps: 5,
			FeeRate:     0.001,
			InitialCash: "1000000",
		},
	}
}
