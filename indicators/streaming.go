package indicators

import (
	"fmt"

	"github.com/quantlab/backtest/market"
)

// Streaming is a bar-at-a-time indicator. Update feeds bars oldest first;
// Value is meaningful only once Ready reports true.
type Streaming interface {
	Name() string
	Warmup() int
	Reset()
	Update(b market.Bar)
	Ready() bool
	Value() float64
}

// SimpleMA is a streaming Simple Moving Average indicator.
type SimpleMA struct {
	period int
	window []float64
}

// NewMA creates a Simple Moving Average indicator with the given period.
func NewMA(period int) *SimpleMA {
	return &SimpleMA{
		period: period,
		window: make([]float64, 0, period),
	}
}

func (m *SimpleMA) Name() string {
	return fmt.Sprintf("sma_%d", m.period)
}

func (m *SimpleMA) Warmup() int {
	return m.period
}

func (m *SimpleMA) Reset() {
	m.window = m.window[:0]
}

func (m *SimpleMA) Update(b market.Bar) {
	m.window = append(m.window, b.Close)
	if len(m.window) > m.period {
		m.window = m.window[1:]
	}
}

func (m *SimpleMA) Ready() bool {
	return len(m.window) >= m.period
}

func (m *SimpleMA) Value() float64 {
	if !m.Ready() {
		return 0
	}
	sum := 0.0
	for _, c := range m.window {
		sum += c
	}
	return sum / float64(len(m.window))
}

// ExponentialMA is a streaming Exponential Moving Average indicator.
type ExponentialMA struct {
	period     int
	multiplier float64
	ema        float64
	count      int
	warmupSum  float64
}

// NewEMA creates an Exponential Moving Average indicator with the given period.
func NewEMA(period int) *ExponentialMA {
	return &ExponentialMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *ExponentialMA) Name() string {
	return fmt.Sprintf("ema_%d", e.period)
}

func (e *ExponentialMA) Warmup() int {
	return e.period
}

func (e *ExponentialMA) Reset() {
	e.ema = 0
	e.count = 0
	e.warmupSum = 0
}

func (e *ExponentialMA) Update(b market.Bar) {
	if e.count < e.period {
		// During warmup, accumulate sum for initial SMA
		e.warmupSum += b.Close
		e.count++
		if e.count == e.period {
			// Initialize EMA with SMA
			e.ema = e.warmupSum / float64(e.period)
		}
	} else {
		e.ema = (b.Close-e.ema)*e.multiplier + e.ema
	}
}

func (e *ExponentialMA) Ready() bool {
	return e.count >= e.period
}

func (e *ExponentialMA) Value() float64 {
	if !e.Ready() {
		return 0
	}
	return e.ema
}
