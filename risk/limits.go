package risk

import (
	"fmt"

	"github.com/quantlab/backtest/market"
)

// Limits is the full risk-limit set for a run. Loaded once, immutable.
type Limits struct {
	// PerAssetCap bounds |weight| for any single asset. Zero disables.
	PerAssetCap float64 `yaml:"per_asset_cap"`

	// PerAssetOverrides narrows the cap for specific symbols.
	PerAssetOverrides map[string]float64 `yaml:"per_asset_overrides,omitempty"`

	// PerClassCap bounds the summed |weight| of each asset class. Zero
	// for a class disables that class's cap.
	PerClassCap map[market.AssetClass]float64 `yaml:"per_class_cap,omitempty"`

	// MaxGrossLeverage bounds sum(|weight|) across all assets. Zero disables.
	MaxGrossLeverage float64 `yaml:"max_gross_leverage"`

	// Drawdown thresholds. Derisk scales all weights by DeriskScale once
	// drawdown reaches DeriskThreshold; Halt zeroes all weights once it
	// reaches HaltThreshold. Zero threshold disables the stage.
	DeriskThreshold float64 `yaml:"derisk_threshold"`
	HaltThreshold   float64 `yaml:"halt_threshold"`
	DeriskScale     float64 `yaml:"derisk_scale"`
}

// Default returns a conservative limit set.
func Default() Limits {
	return Limits{
		PerAssetCap:      0.4,
		PerClassCap:      map[market.AssetClass]float64{market.ClassCrypto: 0.2},
		MaxGrossLeverage: 1.2,
		DeriskThreshold:  0.1,
		HaltThreshold:    0.2,
		DeriskScale:      0.5,
	}
}

// Validate rejects limit sets that could not be enforced coherently.
func (l Limits) Validate() error {
	if l.PerAssetCap < 0 {
		return fmt.Errorf("per_asset_cap must be >= 0, got %f", l.PerAssetCap)
	}
	for sym, cap := range l.PerAssetOverrides {
		if cap < 0 {
			return fmt.Errorf("per_asset_overrides[%s] must be >= 0, got %f", sym, cap)
		}
	}
	for class, cap := range l.PerClassCap {
		if cap < 0 {
			return fmt.Errorf("per_class_cap[%s] must be >= 0, got %f", class, cap)
		}
	}
	if l.MaxGrossLeverage < 0 {
		return fmt.Errorf("max_gross_leverage must be >= 0, got %f", l.MaxGrossLeverage)
	}
	if l.DeriskThreshold < 0 || l.DeriskThreshold >= 1 {
		return fmt.Errorf("derisk_threshold must be in [0,1), got %f", l.DeriskThreshold)
	}
	if l.HaltThreshold < 0 || l.HaltThreshold >= 1 {
		return fmt.Errorf("halt_threshold must be in [0,1), got %f", l.HaltThreshold)
	}
	if l.DeriskThreshold > 0 && l.HaltThreshold > 0 && l.HaltThreshold <= l.DeriskThreshold {
		return fmt.Errorf("halt_threshold %f must exceed derisk_threshold %f",
			l.HaltThreshold, l.DeriskThreshold)
	}
	if l.DeriskThreshold > 0 && (l.DeriskScale <= 0 || l.DeriskScale >= 1) {
		return fmt.Errorf("derisk_scale must be in (0,1), got %f", l.DeriskScale)
	}
	return nil
}

// AssetCap resolves the cap for one symbol.
func (l Limits) AssetCap(symbol string) float64 {
	if cap, ok := l.PerAssetOverrides[symbol]; ok {
		return cap
	}
	return l.PerAssetCap
}
