package indicators

import "github.com/quantlab/backtest/market"

// Enrich runs each streaming indicator over the bars (oldest first) and
// writes its value into the bar's derived-indicator columns once the
// indicator is warmed up. Bars are modified in place and returned.
//
// Enrichment happens at ingest time, before a series is built, so every
// derived column on a bar is a function of that bar and earlier bars only.
func Enrich(bars []market.Bar, inds ...Streaming) []market.Bar {
	for _, ind := range inds {
		ind.Reset()
	}
	for i := range bars {
		if bars[i].Indicators == nil {
			bars[i].Indicators = make(map[string]float64, len(inds))
		}
		for _, ind := range inds {
			ind.Update(bars[i])
			if ind.Ready() {
				bars[i].Indicators[ind.Name()] = ind.Value()
			}
		}
	}
	return bars
}
