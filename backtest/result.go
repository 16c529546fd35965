package backtest

import (
	"time"

	"github.com/shopspring/decimal"
)

// Result is the per-run summary. The journal holds the full equity curve,
// trade list and attribution history needed to reconstruct the run.
type Result struct {
	RunID      string
	StartNAV   decimal.Decimal
	EndNAV     decimal.Decimal
	EndTime    time.Time
	Return     float64
	Steps      int
	Trades     int
	Rejections int
	HaltState  string
	Incomplete bool
}

func ret(start, end decimal.Decimal) float64 {
	if start.IsZero() {
		return 0
	}
	r, _ := end.Sub(start).Div(start).Float64()
	return r
}
