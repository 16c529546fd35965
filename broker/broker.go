package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantlab/backtest/portfolio"
)

// Side of a fill.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Trade is one executed fill. Immutable once emitted.
type Trade struct {
	ID           string
	Time         time.Time
	Symbol       string
	Side         Side
	Quantity     decimal.Decimal // absolute units
	Price        decimal.Decimal // executed price, slippage included
	Fees         decimal.Decimal
	Slippage     decimal.Decimal // cost vs the mark price, in money
	ResultingNAV decimal.Decimal
	Strategies   []string // contributing strategies, sorted
}

// Rejection records an order the engine could not execute as intended:
// intended vs executed delta, never silently rounded up.
type Rejection struct {
	Time          time.Time
	Symbol        string
	IntendedDelta decimal.Decimal // desired quantity change
	ExecutedDelta decimal.Decimal // what actually executed (may be zero)
	Reason        string
}

// ExecutionBoundary is the single execution contract. The simulated
// implementation fills synchronously; a live adapter must honor the same
// interface but may be asynchronous underneath, which is why Submit takes a
// context. The run loop never depends on which implementation is active.
type ExecutionBoundary interface {
	// SubmitTargetWeights moves the book toward the given NAV-relative
	// weights. contributors names the strategies behind each asset's
	// target, for trade attribution.
	SubmitTargetWeights(ctx context.Context, at time.Time, weights map[string]float64, contributors map[string][]string) ([]Trade, []Rejection, error)

	Positions() map[string]portfolio.Position
	Cash() decimal.Decimal
	NAV() decimal.Decimal
}
