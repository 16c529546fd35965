package risk

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantlab/backtest/market"
	"github.com/quantlab/backtest/portfolio"
)

// DrawdownState is the drawdown machine state. Transitions are
// one-directional within a run: NORMAL -> DERISKED -> HALTED.
type DrawdownState int

const (
	Normal DrawdownState = iota
	Derisked
	Halted
)

func (s DrawdownState) String() string {
	switch s {
	case Derisked:
		return "DERISKED"
	case Halted:
		return "HALTED"
	default:
		return "NORMAL"
	}
}

// ActionKind names one constraint application for the journal.
type ActionKind string

const (
	ActionPerAssetCap        ActionKind = "per_asset_cap"
	ActionPerClassCap        ActionKind = "per_class_cap"
	ActionLeverageCap        ActionKind = "leverage_cap"
	ActionDrawdownTransition ActionKind = "drawdown_transition"
	ActionDeriskScale        ActionKind = "derisk_scale"
	ActionHaltZero           ActionKind = "halt_zero"
)

// Action records one scaling or transition the engine applied, with the
// values that triggered it.
type Action struct {
	Time     time.Time
	Kind     ActionKind
	Asset    string
	Class    market.AssetClass
	Limit    float64
	Observed float64
	Ratio    float64
	Drawdown float64
	From     DrawdownState
	To       DrawdownState
}

// Engine enforces the limit set in fixed order: per-asset cap, per-class
// cap, gross leverage cap, then the drawdown machine. Each step only
// narrows the feasible region, so later steps cannot undo earlier ones.
// Attribution is scaled by the same ratios as weights so conservation holds
// through enforcement.
type Engine struct {
	limits   Limits
	universe market.Universe
	log      zerolog.Logger

	state DrawdownState
}

func NewEngine(limits Limits, universe market.Universe, log zerolog.Logger) *Engine {
	return &Engine{
		limits:   limits,
		universe: universe,
		log:      log.With().Str("component", "risk").Logger(),
	}
}

// State exposes the current drawdown machine state.
func (e *Engine) State() DrawdownState { return e.state }

// ResetHalt is the manual intervention that releases a halted engine.
// Nothing in the run loop calls it.
func (e *Engine) ResetHalt() {
	if e.state == Halted {
		e.log.Warn().Msg("halt manually reset")
		e.state = Normal
	}
}

// Enforce produces compliant weights and matching attribution from the
// aggregated targets. It never mutates its inputs; the caller commits the
// result. Returned actions are in application order for journaling.
func (e *Engine) Enforce(t time.Time, targets map[string]float64, attr portfolio.Attribution, st *portfolio.State) (map[string]float64, portfolio.Attribution, []Action) {
	weights := copyWeights(targets)
	attribution := attr.Clone()
	var actions []Action

	// 1. Per-asset caps.
	for _, sym := range sortedSymbols(weights) {
		limit := e.limits.AssetCap(sym)
		if limit <= 0 {
			continue
		}
		w := weights[sym]
		if math.Abs(w) <= limit {
			continue
		}
		ratio := limit / math.Abs(w)
		weights[sym] = w * ratio
		scaleAttrAsset(attribution, sym, ratio)
		actions = append(actions, Action{
			Time: t, Kind: ActionPerAssetCap, Asset: sym,
			Limit: limit, Observed: math.Abs(w), Ratio: ratio,
		})
		e.log.Info().Str("asset", sym).Float64("weight", w).Float64("cap", limit).
			Float64("ratio", ratio).Msg("per-asset cap applied")
	}

	// 2. Per-class caps: proportional scale so the class total equals the cap.
	for _, class := range sortedClasses(e.limits.PerClassCap) {
		limit := e.limits.PerClassCap[class]
		if limit <= 0 {
			continue
		}
		gross := 0.0
		for sym, w := range weights {
			if e.universe[sym].Class == class {
				gross += math.Abs(w)
			}
		}
		if gross <= limit {
			continue
		}
		ratio := limit / gross
		for _, sym := range sortedSymbols(weights) {
			if e.universe[sym].Class != class {
				continue
			}
			weights[sym] *= ratio
			scaleAttrAsset(attribution, sym, ratio)
		}
		actions = append(actions, Action{
			Time: t, Kind: ActionPerClassCap, Class: class,
			Limit: limit, Observed: gross, Ratio: ratio,
		})
		e.log.Info().Str("class", string(class)).Float64("gross", gross).
			Float64("cap", limit).Float64("ratio", ratio).Msg("per-class cap applied")
	}

	// 3. Gross leverage cap: uniform scale across everything.
	if lim := e.limits.MaxGrossLeverage; lim > 0 {
		gross := 0.0
		for _, w := range weights {
			gross += math.Abs(w)
		}
		if gross > lim {
			ratio := lim / gross
			for sym := range weights {
				weights[sym] *= ratio
			}
			scaleAttrAll(attribution, ratio)
			actions = append(actions, Action{
				Time: t, Kind: ActionLeverageCap,
				Limit: lim, Observed: gross, Ratio: ratio,
			})
			e.log.Info().Float64("gross", gross).Float64("cap", lim).
				Float64("ratio", ratio).Msg("leverage cap applied")
		}
	}

	// 4. Drawdown machine.
	actions = append(actions, e.applyDrawdown(t, st.Drawdown(), weights, attribution)...)

	return weights, attribution, actions
}

func (e *Engine) applyDrawdown(t time.Time, dd float64, weights map[string]float64, attribution portfolio.Attribution) []Action {
	var actions []Action

	// Transitions first, in severity order, one-directional.
	if e.limits.HaltThreshold > 0 && dd >= e.limits.HaltThreshold && e.state != Halted {
		from := e.state
		e.state = Halted
		actions = append(actions, Action{
			Time: t, Kind: ActionDrawdownTransition,
			Drawdown: dd, Limit: e.limits.HaltThreshold, From: from, To: Halted,
		})
		e.log.Warn().Float64("drawdown", dd).Float64("threshold", e.limits.HaltThreshold).
			Str("from", from.String()).Str("to", Halted.String()).
			Msg("drawdown halt triggered")
	} else if e.limits.DeriskThreshold > 0 && dd >= e.limits.DeriskThreshold && e.state == Normal {
		e.state = Derisked
		actions = append(actions, Action{
			Time: t, Kind: ActionDrawdownTransition,
			Drawdown: dd, Limit: e.limits.DeriskThreshold, From: Normal, To: Derisked,
		})
		e.log.Warn().Float64("drawdown", dd).Float64("threshold", e.limits.DeriskThreshold).
			Str("from", Normal.String()).Str("to", Derisked.String()).
			Msg("drawdown derisk triggered")
	}

	// Then the standing effect of the current state.
	switch e.state {
	case Halted:
		zeroed := false
		for sym, w := range weights {
			if w != 0 {
				zeroed = true
			}
			weights[sym] = 0
		}
		for asset := range attribution {
			delete(attribution, asset)
		}
		if zeroed {
			actions = append(actions, Action{
				Time: t, Kind: ActionHaltZero, Drawdown: dd, Ratio: 0,
			})
		}
	case Derisked:
		for sym := range weights {
			weights[sym] *= e.limits.DeriskScale
		}
		scaleAttrAll(attribution, e.limits.DeriskScale)
		actions = append(actions, Action{
			Time: t, Kind: ActionDeriskScale, Drawdown: dd, Ratio: e.limits.DeriskScale,
		})
	}

	return actions
}

func copyWeights(w map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

func scaleAttrAsset(a portfolio.Attribution, asset string, ratio float64) {
	for id := range a[asset] {
		a[asset][id] *= ratio
	}
}

func scaleAttrAll(a portfolio.Attribution, ratio float64) {
	for asset := range a {
		scaleAttrAsset(a, asset, ratio)
	}
}

func sortedSymbols(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedClasses(m map[market.AssetClass]float64) []market.AssetClass {
	out := make([]market.AssetClass, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
