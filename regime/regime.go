package regime

import (
	"fmt"
	"time"
)

// Trend is the trend-direction label.
type Trend int

const (
	TrendSideways Trend = iota
	TrendUp
	TrendDown
)

func (t Trend) String() string {
	switch t {
	case TrendUp:
		return "up"
	case TrendDown:
		return "down"
	default:
		return "sideways"
	}
}

// Volatility is the volatility-level label.
type Volatility int

const (
	VolNormal Volatility = iota
	VolLow
	VolHigh
)

func (v Volatility) String() string {
	switch v {
	case VolLow:
		return "low"
	case VolHigh:
		return "high"
	default:
		return "normal"
	}
}

// Sentiment is the cross-asset sentiment label.
type Sentiment int

const (
	SentimentNeutral Sentiment = iota
	SentimentRiskOn
	SentimentRiskOff
)

func (s Sentiment) String() string {
	switch s {
	case SentimentRiskOn:
		return "risk_on"
	case SentimentRiskOff:
		return "risk_off"
	default:
		return "neutral"
	}
}

// Macro is the macro-phase label.
type Macro int

const (
	MacroNeutral Macro = iota
	MacroExpansion
	MacroContraction
)

func (m Macro) String() string {
	switch m {
	case MacroExpansion:
		return "expansion"
	case MacroContraction:
		return "contraction"
	default:
		return "neutral"
	}
}

// State is the timestamped set of regime labels for one decision step.
// It is pure derived data, recomputed each step.
type State struct {
	Time       time.Time
	Trend      Trend
	Volatility Volatility
	Sentiment  Sentiment
	Macro      Macro
}

// Neutral is the conservative fallback used when inputs are stale.
func Neutral(t time.Time) State {
	return State{Time: t}
}

// Key renders the label tuple, used to index budget override tables.
func (s State) Key() string {
	return fmt.Sprintf("%s/%s/%s/%s", s.Trend, s.Volatility, s.Sentiment, s.Macro)
}

// SameLabels reports whether two states carry identical labels,
// ignoring their timestamps.
func (s State) SameLabels(o State) bool {
	return s.Trend == o.Trend &&
		s.Volatility == o.Volatility &&
		s.Sentiment == o.Sentiment &&
		s.Macro == o.Macro
}
