package sim

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/quantlab/backtest/broker"
	"github.com/quantlab/backtest/internal/id"
	"github.com/quantlab/backtest/market"
	"github.com/quantlab/backtest/portfolio"
)

// Config is the fill model: proportional slippage plus a two-part fee.
type Config struct {
	SlippageBps float64 `yaml:"slippage_bps"`
	FeeRate     float64 `yaml:"fee_rate"` // fraction of notional
	FeeFixed    string  `yaml:"fee_fixed"`
	InitialCash string  `yaml:"initial_cash"`
}

// Engine is the simulated execution boundary. Fills are synchronous and
// purely computational: weight deltas become order quantities at the last
// marked price, rounded toward zero onto the asset's minimum increment.
type Engine struct {
	universe market.Universe
	log      zerolog.Logger

	slippage decimal.Decimal // fractional, e.g. 0.0005 for 5 bps
	feeRate  decimal.Decimal
	feeFixed decimal.Decimal

	cash      decimal.Decimal
	positions map[string]position
	marks     map[string]decimal.Decimal
	trades    []broker.Trade
	ids       *id.Sequence
}

type position struct {
	qty decimal.Decimal
}

func New(universe market.Universe, cfg Config, log zerolog.Logger) (*Engine, error) {
	cash, err := decimal.NewFromString(cfg.InitialCash)
	if err != nil {
		return nil, fmt.Errorf("sim: initial_cash %q: %w", cfg.InitialCash, err)
	}
	feeFixed := decimal.Zero
	if cfg.FeeFixed != "" {
		feeFixed, err = decimal.NewFromString(cfg.FeeFixed)
		if err != nil {
			return nil, fmt.Errorf("sim: fee_fixed %q: %w", cfg.FeeFixed, err)
		}
	}
	return &Engine{
		universe:  universe,
		log:       log.With().Str("component", "sim").Logger(),
		slippage:  decimal.NewFromFloat(cfg.SlippageBps).Div(decimal.NewFromInt(10000)),
		feeRate:   decimal.NewFromFloat(cfg.FeeRate),
		feeFixed:  feeFixed,
		cash:      cash,
		positions: make(map[string]position),
		marks:     make(map[string]decimal.Decimal),
		ids:       id.NewSequence(1),
	}, nil
}

// MarkPrices revalues the book at the latest known prices. The runner calls
// this once per step, before submitting targets, using prices at-or-before
// the decision time.
func (e *Engine) MarkPrices(prices map[string]decimal.Decimal) {
	for sym, px := range prices {
		e.marks[sym] = px
	}
}

func (e *Engine) Cash() decimal.Decimal { return e.cash }

func (e *Engine) Positions() map[string]portfolio.Position {
	out := make(map[string]portfolio.Position, len(e.positions))
	for sym, p := range e.positions {
		if p.qty.IsZero() {
			continue
		}
		out[sym] = portfolio.Position{
			Quantity:    p.qty,
			MarketValue: p.qty.Mul(e.marks[sym]),
		}
	}
	return out
}

func (e *Engine) NAV() decimal.Decimal {
	nav := e.cash
	for sym, p := range e.positions {
		nav = nav.Add(p.qty.Mul(e.marks[sym]))
	}
	return nav
}

// Trades returns the append-only fill log.
func (e *Engine) Trades() []broker.Trade {
	out := make([]broker.Trade, len(e.trades))
	copy(out, e.trades)
	return out
}

// SubmitTargetWeights executes the weight deltas in symbol order. Orders on
// closed calendars or without a mark are rejected; quantities are rounded
// toward zero onto the minimum increment, never up. Partial and zero
// executions are reported as rejections alongside any fills.
func (e *Engine) SubmitTargetWeights(ctx context.Context, at time.Time, weights map[string]float64, contributors map[string][]string) ([]broker.Trade, []broker.Rejection, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	// The union of targeted and held symbols: a held asset missing from the
	// targets must be flattened.
	symbols := make(map[string]bool, len(weights)+len(e.positions))
	for sym := range weights {
		symbols[sym] = true
	}
	for sym, p := range e.positions {
		if !p.qty.IsZero() {
			symbols[sym] = true
		}
	}
	order := make([]string, 0, len(symbols))
	for sym := range symbols {
		order = append(order, sym)
	}
	sort.Strings(order)

	var fills []broker.Trade
	var rejections []broker.Rejection

	for _, sym := range order {
		nav := e.NAV()
		fill, rej, err := e.execute(at, sym, weights[sym], nav, contributors[sym])
		if err != nil {
			return fills, rejections, err
		}
		if rej != nil {
			rejections = append(rejections, *rej)
			e.log.Warn().Str("symbol", sym).Time("at", at).
				Str("intended", rej.IntendedDelta.String()).
				Str("executed", rej.ExecutedDelta.String()).
				Str("reason", rej.Reason).Msg("order not fully executed")
		}
		if fill != nil {
			fills = append(fills, *fill)
			e.trades = append(e.trades, *fill)
		}
	}
	return fills, rejections, nil
}

func (e *Engine) execute(at time.Time, sym string, weight float64, nav decimal.Decimal, strategies []string) (*broker.Trade, *broker.Rejection, error) {
	asset, ok := e.universe[sym]
	if !ok {
		return nil, nil, fmt.Errorf("sim: unknown asset %q", sym)
	}
	mark, ok := e.marks[sym]
	if !ok || mark.IsZero() {
		return nil, &broker.Rejection{
			Time: at, Symbol: sym, Reason: "no mark price",
		}, nil
	}

	targetValue := nav.Mul(decimal.NewFromFloat(weight))
	currentValue := e.positions[sym].qty.Mul(mark)
	deltaValue := targetValue.Sub(currentValue)
	intendedQty := deltaValue.Div(mark)

	if intendedQty.IsZero() {
		return nil, nil, nil
	}

	if !asset.Calendar.IsOpen(at) {
		return nil, &broker.Rejection{
			Time: at, Symbol: sym,
			IntendedDelta: intendedQty,
			ExecutedDelta: decimal.Zero,
			Reason:        "market closed",
		}, nil
	}

	// Round toward zero onto the minimum increment. Never round up.
	inc := asset.MinOrderIncrement
	qty := intendedQty
	if inc.IsPositive() {
		qty = intendedQty.Div(inc).Truncate(0).Mul(inc)
	}
	if qty.IsZero() {
		return nil, &broker.Rejection{
			Time: at, Symbol: sym,
			IntendedDelta: intendedQty,
			ExecutedDelta: decimal.Zero,
			Reason:        "below minimum order increment",
		}, nil
	}

	var rej *broker.Rejection
	if !qty.Equal(intendedQty) {
		rej = &broker.Rejection{
			Time: at, Symbol: sym,
			IntendedDelta: intendedQty,
			ExecutedDelta: qty,
			Reason:        "rounded to minimum order increment",
		}
	}

	side := broker.Buy
	if qty.IsNegative() {
		side = broker.Sell
	}

	// Buys pay up, sells receive less.
	execPrice := mark
	if side == broker.Buy {
		execPrice = mark.Mul(decimal.NewFromInt(1).Add(e.slippage))
	} else {
		execPrice = mark.Mul(decimal.NewFromInt(1).Sub(e.slippage))
	}

	notional := qty.Mul(execPrice)
	fees := notional.Abs().Mul(e.feeRate).Add(e.feeFixed)
	slipCost := qty.Mul(execPrice.Sub(mark)).Abs()

	e.cash = e.cash.Sub(notional).Sub(fees)
	p := e.positions[sym]
	p.qty = p.qty.Add(qty)
	if p.qty.IsZero() {
		delete(e.positions, sym)
	} else {
		e.positions[sym] = p
	}

	trade := &broker.Trade{
		ID:           e.ids.At(at),
		Time:         at,
		Symbol:       sym,
		Side:         side,
		Quantity:     qty.Abs(),
		Price:        execPrice,
		Fees:         fees,
		Slippage:     slipCost,
		ResultingNAV: e.NAV(),
		Strategies:   append([]string(nil), strategies...),
	}
	return trade, rej, nil
}
