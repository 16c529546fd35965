package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/quantlab/backtest/broker"
	"github.com/quantlab/backtest/config"
	"github.com/quantlab/backtest/internal/id"
	"github.com/quantlab/backtest/journal"
	"github.com/quantlab/backtest/market"
	"github.com/quantlab/backtest/portfolio"
	"github.com/quantlab/backtest/regime"
	"github.com/quantlab/backtest/risk"
	"github.com/quantlab/backtest/snapshot"
	"github.com/quantlab/backtest/strategy"
)

// PriceMarker is implemented by execution boundaries that need the runner
// to feed them marks (the simulated engine). Live adapters price themselves.
type PriceMarker interface {
	MarkPrices(prices map[string]decimal.Decimal)
}

// Active pairs a strategy with its configured identity.
type Active struct {
	ID   string
	Impl strategy.Strategy
}

// Runner drives one run: snapshot, regime, strategies, aggregation, risk,
// execution, commit — in that order, strictly sequentially. It is the
// single writer of the portfolio state; every step's mutation completes
// before the next step's snapshots are built.
type Runner struct {
	cfg        *config.Config
	universe   market.Universe
	history    market.History
	builder    *snapshot.Builder
	classifier *regime.Classifier
	aggregator *portfolio.Aggregator
	riskEng    *risk.Engine
	exec       broker.ExecutionBoundary
	strategies []Active
	journal    journal.Journal
	log        zerolog.Logger
}

func NewRunner(
	cfg *config.Config,
	history market.History,
	exec broker.ExecutionBoundary,
	strategies []Active,
	j journal.Journal,
	log zerolog.Logger,
) *Runner {
	universe := cfg.Universe()
	sorted := append([]Active(nil), strategies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	return &Runner{
		cfg:        cfg,
		universe:   universe,
		history:    history,
		builder:    snapshot.NewBuilder(history, universe, log),
		classifier: regime.NewClassifier(cfg.Regime, universe, log),
		aggregator: portfolio.NewAggregator(log),
		riskEng:    risk.NewEngine(cfg.Risk, universe, log),
		exec:       exec,
		strategies: sorted,
		journal:    j,
		log:        log.With().Str("component", "runner").Logger(),
	}
}

// Run executes the full decision loop over the merged bar axis. The
// returned Result is also persisted through the journal. Cancellation via
// ctx marks the run incomplete rather than truncating it silently.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	times := r.history.DecisionTimes()
	if len(times) == 0 {
		return Result{}, fmt.Errorf("backtest: no bars to run over")
	}

	runID := id.New()
	startNAV := r.exec.NAV()
	run := journal.RunRecord{
		RunID:      runID,
		ConfigHash: r.cfg.Hash(),
		StartTime:  times[0],
		StartNAV:   startNAV,
	}
	if err := r.journal.BeginRun(run); err != nil {
		return Result{}, fmt.Errorf("backtest: begin run: %w", err)
	}

	st := portfolio.NewState(times[0], r.exec.Cash())
	res := Result{RunID: runID, StartNAV: startNAV}
	prevRegime := regime.Neutral(times[0])

	completed := false
	defer func() {
		run.EndTime = st.Time
		run.EndNAV = st.NAV()
		run.Completed = completed
		if err := r.journal.EndRun(run); err != nil {
			r.log.Error().Err(err).Str("run_id", runID).Msg("end run record failed")
		}
	}()

	for _, t := range times {
		if err := ctx.Err(); err != nil {
			r.log.Warn().Str("run_id", runID).Time("at", t).
				Msg("run canceled, results marked incomplete")
			res.Incomplete = true
			return res, err
		}

		if err := r.step(ctx, runID, t, st, &prevRegime, &res); err != nil {
			res.Incomplete = true
			return res, err
		}
	}

	completed = true
	res.EndNAV = st.NAV()
	res.EndTime = st.Time
	res.Return = ret(startNAV, res.EndNAV)
	res.HaltState = r.riskEng.State().String()
	return res, nil
}

func (r *Runner) step(ctx context.Context, runID string, t time.Time, st *portfolio.State, prevRegime *regime.State, res *Result) error {
	// Mark the book at prices known at-or-before t.
	r.markPrices(t)

	// Sync state from the execution boundary and mark attribution to
	// market before anything reads drawdown or exposures.
	r.syncState(st, t)

	// Regime is pure derived data, recomputed every step.
	reg := r.classifier.Classify(r.history, t)
	if !reg.SameLabels(*prevRegime) {
		if err := r.journal.RecordRegime(journal.NewRegimeRecord(runID, *prevRegime, reg)); err != nil {
			return err
		}
		r.log.Info().Time("at", t).Str("from", prevRegime.Key()).Str("to", reg.Key()).
			Msg("regime transition")
	}
	*prevRegime = reg

	budgets := r.cfg.Overrides.For(reg, r.cfg.Budgets())
	nav := st.NAV()

	contribs, err := r.collect(t, reg, budgets, nav, st)
	if err != nil {
		return err
	}

	if len(contribs) > 0 {
		targets, attr := r.aggregator.Aggregate(contribs)
		weights, attr, actions := r.riskEng.Enforce(t, targets, attr, st)
		for _, a := range actions {
			if err := r.journal.RecordRiskAction(journal.NewRiskActionRecord(runID, a)); err != nil {
				return err
			}
		}

		fills, rejections, err := r.exec.SubmitTargetWeights(ctx, t, weights, contributors(attr))
		if err != nil {
			return err
		}
		for _, f := range fills {
			if err := r.journal.RecordTrade(journal.NewTradeRecord(runID, f)); err != nil {
				return err
			}
		}
		for _, rej := range rejections {
			if err := r.journal.RecordRejection(journal.NewRejectionRecord(runID, rej)); err != nil {
				return err
			}
		}
		res.Trades += len(fills)
		res.Rejections += len(rejections)

		// Commit: the only portfolio mutation of this step.
		r.syncState(st, t)
		r.commitAttribution(st, attr)
	}

	st.UpdatePeak()
	if err := st.Reconcile(); err != nil {
		// An attribution that no longer sums to actual exposure is an
		// aggregation bug; continuing would corrupt every later record.
		return fmt.Errorf("backtest at %s: %w", t, err)
	}

	if err := r.journal.RecordEquity(journal.EquitySnapshot{
		RunID: runID, Time: t, NAV: st.NAV(), Cash: st.Cash,
		PeakNAV: st.PeakNAV, Drawdown: st.Drawdown(),
	}); err != nil {
		return err
	}
	for _, asset := range st.Symbols() {
		for _, sid := range sortedIDs(st.Attribution[asset]) {
			if err := r.journal.RecordAttribution(journal.AttributionRecord{
				RunID: runID, Time: t, Asset: asset, Strategy: sid,
				Weight: st.Attribution[asset][sid],
			}); err != nil {
				return err
			}
		}
	}

	res.Steps++
	return nil
}

// collect builds one snapshot per strategy and gathers their outputs.
// A strategy whose whole universe lacks history is skipped for this step.
func (r *Runner) collect(t time.Time, reg regime.State, budgets map[string]float64, nav decimal.Decimal, st *portfolio.State) ([]portfolio.Contribution, error) {
	var contribs []portfolio.Contribution
	for _, act := range r.strategies {
		budget := budgets[act.ID]
		snap, err := r.builder.Build(snapshot.Request{
			At:             t,
			Lookback:       r.cfg.Run.Lookback,
			Regime:         reg,
			BudgetFraction: budget,
			BudgetValue:    nav.Mul(decimal.NewFromFloat(budget)),
			Exposures:      st.StrategyExposures(act.ID),
		})
		if err != nil {
			if errors.Is(err, snapshot.ErrEmptyUniverse) {
				continue
			}
			return nil, err
		}
		out, err := act.Impl.Decide(snap)
		if err != nil {
			return nil, fmt.Errorf("strategy %s at %s: %w", act.ID, t, err)
		}
		contribs = append(contribs, portfolio.Contribution{
			StrategyID:     act.ID,
			BudgetFraction: budget,
			Output:         out,
		})
	}
	return contribs, nil
}

// markPrices pushes last-known prices into a marking execution boundary.
func (r *Runner) markPrices(t time.Time) {
	m, ok := r.exec.(PriceMarker)
	if !ok {
		return
	}
	marks := make(map[string]decimal.Decimal, len(r.universe))
	for sym := range r.universe {
		series, ok := r.history[sym]
		if !ok {
			continue
		}
		px, err := series.CloseAt(t)
		if err != nil {
			continue
		}
		marks[sym] = decimal.NewFromFloat(px)
	}
	m.MarkPrices(marks)
}

// syncState copies positions and cash from the execution boundary into the
// portfolio state and marks attribution to market: price moves change each
// asset's NAV share, so attributed fractions are rescaled to keep summing
// to the actual share. Relative shares between strategies are preserved.
func (r *Runner) syncState(st *portfolio.State, t time.Time) {
	st.Time = t
	st.Cash = r.exec.Cash()
	st.Positions = r.exec.Positions()

	for asset := range st.Attribution {
		if _, held := st.Positions[asset]; !held {
			delete(st.Attribution, asset)
		}
	}
	for _, asset := range st.Symbols() {
		actual := st.Weight(asset)
		sum := st.Attribution.Sum(asset)
		if sum == 0 {
			continue
		}
		ratio := actual / sum
		for sid := range st.Attribution[asset] {
			st.Attribution[asset][sid] *= ratio
		}
	}
}

// commitAttribution replaces the state's attribution with the post-risk
// targets, rescaled onto realized weights. Fills can deviate from targets
// (rounding, rejections); realized exposure is the ground truth, target
// attribution only sets the relative shares.
func (r *Runner) commitAttribution(st *portfolio.State, target portfolio.Attribution) {
	prev := st.Attribution
	next := make(portfolio.Attribution)

	for _, asset := range st.Symbols() {
		actual := st.Weight(asset)
		if actual == 0 {
			continue
		}
		shares := target[asset]
		if len(shares) == 0 {
			// Residue with no target, e.g. dust left by a partial
			// flatten: keep the previous strategy shares.
			shares = prev[asset]
		}
		if len(shares) == 0 {
			continue
		}
		sum := 0.0
		for _, w := range shares {
			sum += w
		}
		if sum == 0 {
			continue
		}
		m := make(map[string]float64, len(shares))
		for sid, w := range shares {
			m[sid] = w / sum * actual
		}
		next[asset] = m
	}
	st.Attribution = next
}

// contributors lists, per asset, the strategies behind its target.
func contributors(attr portfolio.Attribution) map[string][]string {
	out := make(map[string][]string, len(attr))
	for asset, byStrat := range attr {
		out[asset] = sortedIDs(byStrat)
	}
	return out
}

func sortedIDs(m map[string]float64) []string {
	ids := make([]string, 0, len(m))
	for sid := range m {
		ids = append(ids, sid)
	}
	sort.Strings(ids)
	return ids
}
