package backtest

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/quantlab/backtest/config"
	"github.com/quantlab/backtest/indicators"
	"github.com/quantlab/backtest/market"
)

// LoadHistory reads every asset's data file and precomputes the derived
// indicator columns the configured strategies read. Enrichment is streaming
// and happens before series construction, so derived columns never embed
// future bars.
func LoadHistory(cfg *config.Config, log zerolog.Logger) (market.History, error) {
	h := make(market.History, len(cfg.Assets))
	for _, a := range cfg.Assets {
		if a.DataFile == "" {
			return nil, fmt.Errorf("asset %s: data_file is required", a.Symbol)
		}
		series, stats, err := loadEnriched(a.Symbol, a.DataFile, cfg)
		if err != nil {
			return nil, err
		}
		if stats.Duplicates > 0 || stats.BadLines > 0 {
			log.Warn().Str("symbol", a.Symbol).Str("file", a.DataFile).
				Int("rows", stats.Rows).Int("duplicates", stats.Duplicates).
				Int("bad_lines", stats.BadLines).Msg("ingest warnings")
		}
		h[a.Symbol] = series
	}
	return h, nil
}

func loadEnriched(symbol, path string, cfg *config.Config) (*market.Series, market.IngestStats, error) {
	series, stats, err := market.LoadSeriesCSV(symbol, path)
	if err != nil {
		return nil, stats, err
	}

	// Rebuild with derived columns. The loader returns a sealed series, so
	// pull the window covering everything and enrich the copy.
	bars, err := series.WindowAt(series.Last(), series.Len())
	if err != nil {
		return nil, stats, err
	}
	bars = indicators.Enrich(bars, buildIndicators(cfg)...)

	enriched, err := market.NewSeries(symbol, bars)
	if err != nil {
		return nil, stats, err
	}
	return enriched, stats, nil
}

// buildIndicators collects every EMA period the strategies and the regime
// classifier reference, plus a default ATR.
func buildIndicators(cfg *config.Config) []indicators.Streaming {
	periods := map[int]bool{}
	for _, s := range cfg.Strategies {
		if s.Kind != "ema-cross" {
			continue
		}
		fast, slow := s.FastPeriod, s.SlowPeriod
		if fast <= 0 {
			fast = 20
		}
		if slow <= 0 {
			slow = 50
		}
		periods[fast] = true
		periods[slow] = true
	}
	if cfg.Regime.FastPeriod > 0 {
		periods[cfg.Regime.FastPeriod] = true
	}
	if cfg.Regime.SlowPeriod > 0 {
		periods[cfg.Regime.SlowPeriod] = true
	}

	sorted := make([]int, 0, len(periods))
	for p := range periods {
		sorted = append(sorted, p)
	}
	sort.Ints(sorted)

	inds := make([]indicators.Streaming, 0, len(sorted)+1)
	for _, p := range sorted {
		inds = append(inds, indicators.NewEMA(p))
	}
	inds = append(inds, indicators.NewATR(14))
	return inds
}
