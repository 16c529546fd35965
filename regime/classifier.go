package regime

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/quantlab/backtest/market"
)

// Config holds classifier thresholds. Loaded once per run.
type Config struct {
	ReferenceSymbol string        `yaml:"reference_symbol"`
	FastPeriod      int           `yaml:"fast_period"`
	SlowPeriod      int           `yaml:"slow_period"`
	MacroPeriod     int           `yaml:"macro_period"`
	TrendBandPct    float64       `yaml:"trend_band_pct"`
	VolLowPct       float64       `yaml:"vol_low_pct"`  // ATR/price below this is low
	VolHighPct      float64       `yaml:"vol_high_pct"` // ATR/price above this is high
	BreadthRiskOn   float64       `yaml:"breadth_risk_on"`
	BreadthRiskOff  float64       `yaml:"breadth_risk_off"`
	Freshness       time.Duration `yaml:"freshness"`
}

// DefaultConfig returns thresholds that behave sensibly on daily bars.
func DefaultConfig() Config {
	return Config{
		FastPeriod:     20,
		SlowPeriod:     50,
		MacroPeriod:    100,
		TrendBandPct:   0.002,
		VolLowPct:      0.005,
		VolHighPct:     0.02,
		BreadthRiskOn:  0.6,
		BreadthRiskOff: 0.4,
		Freshness:      72 * time.Hour,
	}
}

// Classifier derives regime labels from bounded history reads. Every lookup
// goes through Series.WindowAt/AsOf at the decision time, so the classifier
// cannot observe data from after that time.
type Classifier struct {
	cfg      Config
	universe market.Universe
	log      zerolog.Logger
}

func NewClassifier(cfg Config, universe market.Universe, log zerolog.Logger) *Classifier {
	return &Classifier{cfg: cfg, universe: universe, log: log.With().Str("component", "regime").Logger()}
}

// Classify is total: it always returns a state. When the reference series is
// stale beyond the freshness threshold, it returns the neutral state and
// logs a warning.
func (c *Classifier) Classify(h market.History, t time.Time) State {
	ref, ok := h[c.cfg.ReferenceSymbol]
	if !ok {
		c.log.Warn().Str("symbol", c.cfg.ReferenceSymbol).Time("at", t).
			Msg("reference series missing, using neutral regime")
		return Neutral(t)
	}

	last, found := ref.AsOf(t)
	if !found || t.Sub(last.Time) > c.cfg.Freshness {
		age := time.Duration(0)
		if found {
			age = t.Sub(last.Time)
		}
		c.log.Warn().Str("symbol", c.cfg.ReferenceSymbol).Time("at", t).
			Dur("age", age).Dur("freshness", c.cfg.Freshness).
			Msg("reference series stale, using neutral regime")
		return Neutral(t)
	}

	s := State{Time: t}
	s.Trend = ClassifyTrend(ref, t, c.cfg.FastPeriod, c.cfg.SlowPeriod, c.cfg.TrendBandPct)
	s.Volatility = ClassifyVolatility(ref, t, c.cfg.FastPeriod, c.cfg.VolLowPct, c.cfg.VolHighPct)
	s.Sentiment = ClassifySentiment(h, c.universe, t, c.cfg.FastPeriod, c.cfg.BreadthRiskOn, c.cfg.BreadthRiskOff)
	s.Macro = ClassifyMacro(ref, t, c.cfg.MacroPeriod)
	return s
}

// ClassifyTrend compares fast and slow moving averages of the reference
// closes. A band around parity keeps marginal crossings labeled sideways.
func ClassifyTrend(ref *market.Series, t time.Time, fast, slow int, bandPct float64) Trend {
	win, err := ref.WindowAt(t, slow)
	if err != nil {
		return TrendSideways
	}
	fastMA := meanClose(win[len(win)-fast:])
	slowMA := meanClose(win)
	if slowMA == 0 {
		return TrendSideways
	}
	switch ratio := fastMA/slowMA - 1; {
	case ratio > bandPct:
		return TrendUp
	case ratio < -bandPct:
		return TrendDown
	default:
		return TrendSideways
	}
}

// ClassifyVolatility buckets average true range relative to price.
func ClassifyVolatility(ref *market.Series, t time.Time, period int, lowPct, highPct float64) Volatility {
	win, err := ref.WindowAt(t, period+1)
	if err != nil {
		return VolNormal
	}
	var trSum float64
	for i := 1; i < len(win); i++ {
		trSum += tr(win[i], win[i-1])
	}
	atr := trSum / float64(len(win)-1)
	px := win[len(win)-1].Close
	if px == 0 {
		return VolNormal
	}
	switch rel := atr / px; {
	case rel < lowPct:
		return VolLow
	case rel > highPct:
		return VolHigh
	default:
		return VolNormal
	}
}

// ClassifySentiment measures breadth: the fraction of universe assets whose
// last close sits above their own moving average.
func ClassifySentiment(h market.History, universe market.Universe, t time.Time, period int, riskOn, riskOff float64) Sentiment {
	above, total := 0, 0
	for sym := range universe {
		s, ok := h[sym]
		if !ok {
			continue
		}
		win, err := s.WindowAt(t, period)
		if err != nil {
			continue
		}
		total++
		if win[len(win)-1].Close > meanClose(win) {
			above++
		}
	}
	if total == 0 {
		return SentimentNeutral
	}
	switch breadth := float64(above) / float64(total); {
	case breadth >= riskOn:
		return SentimentRiskOn
	case breadth <= riskOff:
		return SentimentRiskOff
	default:
		return SentimentNeutral
	}
}

// ClassifyMacro looks at the slope of a long moving average of the
// reference series, a slow proxy for the macro phase.
func ClassifyMacro(ref *market.Series, t time.Time, period int) Macro {
	win, err := ref.WindowAt(t, period)
	if err != nil {
		return MacroNeutral
	}
	half := period / 2
	older := meanClose(win[:half])
	newer := meanClose(win[half:])
	if older == 0 {
		return MacroNeutral
	}
	switch ratio := newer/older - 1; {
	case ratio > 0.01:
		return MacroExpansion
	case ratio < -0.01:
		return MacroContraction
	default:
		return MacroNeutral
	}
}

func meanClose(bars []market.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range bars {
		sum += b.Close
	}
	return sum / float64(len(bars))
}

func tr(cur, prev market.Bar) float64 {
	hl := cur.High - cur.Low
	hc := cur.High - prev.Close
	if hc < 0 {
		hc = -hc
	}
	lc := cur.Low - prev.Close
	if lc < 0 {
		lc = -lc
	}
	m := hl
	if hc > m {
		m = hc
	}
	if lc > m {
		m = lc
	}
	return m
}
