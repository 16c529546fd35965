package snapshot

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/quantlab/backtest/market"
	"github.com/quantlab/backtest/regime"
)

// ErrCausality means a bar stamped after the decision time reached a
// snapshot. This is a programming error; the run must abort.
var ErrCausality = errors.New("causality violation: future data visible in snapshot")

// ErrEmptyUniverse means no asset in the universe had enough history at the
// decision time.
var ErrEmptyUniverse = errors.New("no asset has sufficient history at decision time")

// Builder constructs per-strategy snapshots. Windows come exclusively from
// Series.WindowAt, which only yields bars at-or-before the decision time;
// Build re-asserts that bound before releasing the snapshot.
type Builder struct {
	history  market.History
	universe market.Universe
	log      zerolog.Logger
}

func NewBuilder(h market.History, u market.Universe, log zerolog.Logger) *Builder {
	return &Builder{
		history:  h,
		universe: u,
		log:      log.With().Str("component", "snapshot").Logger(),
	}
}

// Request carries the per-strategy inputs a snapshot embeds.
type Request struct {
	At             time.Time
	Lookback       int
	Regime         regime.State
	BudgetFraction float64
	BudgetValue    decimal.Decimal
	Exposures      map[string]float64 // strategy's current NAV-relative exposures
}

// Build assembles a snapshot at req.At. Assets with insufficient history are
// skipped with a warning and the rest of the universe proceeds; an empty
// result is an error. A bar past the decision time is fatal.
func (b *Builder) Build(req Request) (*Snapshot, error) {
	if req.Lookback <= 0 {
		return nil, fmt.Errorf("snapshot: lookback %d", req.Lookback)
	}
	if req.Regime.Time.After(req.At) {
		return nil, fmt.Errorf("snapshot at %s: regime stamped %s: %w",
			req.At, req.Regime.Time, ErrCausality)
	}

	windows := make(map[string][]market.Bar, len(b.universe))
	for sym := range b.universe {
		series, ok := b.history[sym]
		if !ok {
			b.log.Warn().Str("symbol", sym).Time("at", req.At).Msg("no series for asset, skipping")
			continue
		}
		win, err := series.WindowAt(req.At, req.Lookback)
		if err != nil {
			if errors.Is(err, market.ErrInsufficientHistory) || errors.Is(err, market.ErrNoData) {
				b.log.Warn().Str("symbol", sym).Time("at", req.At).Err(err).
					Msg("skipping asset for this step")
				continue
			}
			return nil, err
		}
		windows[sym] = win
	}
	if len(windows) == 0 {
		return nil, fmt.Errorf("snapshot at %s: %w", req.At, ErrEmptyUniverse)
	}

	if err := assertBounded(windows, req.At); err != nil {
		return nil, err
	}

	exp := make(map[string]float64, len(req.Exposures))
	for k, v := range req.Exposures {
		exp[k] = v
	}

	return &Snapshot{
		at:        req.At,
		windows:   windows,
		reg:       req.Regime,
		budget:    req.BudgetFraction,
		budgetVal: req.BudgetValue,
		exposures: exp,
	}, nil
}

// assertBounded verifies max(visible timestamp) <= decision time for every
// asset. WindowAt already guarantees this; a failure here means a bug
// upstream and must stop the run rather than be corrected silently.
func assertBounded(windows map[string][]market.Bar, at time.Time) error {
	for sym, win := range windows {
		for _, bar := range win {
			if bar.Time.After(at) {
				return fmt.Errorf("asset %s: bar %s after decision time %s: %w",
					sym, bar.Time, at, ErrCausality)
			}
		}
	}
	return nil
}
