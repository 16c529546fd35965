package market

import "time"

// Bar is one OHLCV row plus any derived indicator columns computed during
// ingest. Indicator values are statistical, so plain float64 is fine here;
// money amounts elsewhere use decimal.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64

	// Derived columns keyed by indicator name, e.g. "ema_20", "atr_14".
	Indicators map[string]float64
}

// Indicator returns a derived column value, reporting whether it exists.
func (b Bar) Indicator(name string) (float64, bool) {
	v, ok := b.Indicators[name]
	return v, ok
}
