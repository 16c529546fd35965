package journal

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantlab/backtest/broker"
	"github.com/quantlab/backtest/regime"
	"github.com/quantlab/backtest/risk"
)

// RunRecord identifies one run. Incomplete runs stay marked as such so an
// aborted sweep never masquerades as a finished result.
type RunRecord struct {
	RunID      string
	ConfigHash string
	StartTime  time.Time
	EndTime    time.Time
	StartNAV   decimal.Decimal
	EndNAV     decimal.Decimal
	Completed  bool
}

// TradeRecord is a fill row, flattened for persistence.
type TradeRecord struct {
	RunID        string
	TradeID      string
	Time         time.Time
	Symbol       string
	Side         string
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	Fees         decimal.Decimal
	Slippage     decimal.Decimal
	ResultingNAV decimal.Decimal
	Strategies   string // comma-joined contributing strategies
}

// NewTradeRecord flattens a broker fill.
func NewTradeRecord(runID string, t broker.Trade) TradeRecord {
	return TradeRecord{
		RunID:        runID,
		TradeID:      t.ID,
		Time:         t.Time,
		Symbol:       t.Symbol,
		Side:         string(t.Side),
		Quantity:     t.Quantity,
		Price:        t.Price,
		Fees:         t.Fees,
		Slippage:     t.Slippage,
		ResultingNAV: t.ResultingNAV,
		Strategies:   strings.Join(t.Strategies, ","),
	}
}

// RejectionRecord is an order the execution boundary could not fill as
// intended.
type RejectionRecord struct {
	RunID         string
	Time          time.Time
	Symbol        string
	IntendedDelta decimal.Decimal
	ExecutedDelta decimal.Decimal
	Reason        string
}

func NewRejectionRecord(runID string, r broker.Rejection) RejectionRecord {
	return RejectionRecord{
		RunID:         runID,
		Time:          r.Time,
		Symbol:        r.Symbol,
		IntendedDelta: r.IntendedDelta,
		ExecutedDelta: r.ExecutedDelta,
		Reason:        r.Reason,
	}
}

// RiskActionRecord is one constraint application, including drawdown state
// transitions, tagged with its triggering values.
type RiskActionRecord struct {
	RunID    string
	Time     time.Time
	Kind     string
	Asset    string
	Class    string
	Limit    float64
	Observed float64
	Ratio    float64
	Drawdown float64
	From     string
	To       string
}

func NewRiskActionRecord(runID string, a risk.Action) RiskActionRecord {
	rec := RiskActionRecord{
		RunID:    runID,
		Time:     a.Time,
		Kind:     string(a.Kind),
		Asset:    a.Asset,
		Class:    string(a.Class),
		Limit:    a.Limit,
		Observed: a.Observed,
		Ratio:    a.Ratio,
		Drawdown: a.Drawdown,
	}
	if a.Kind == risk.ActionDrawdownTransition {
		rec.From = a.From.String()
		rec.To = a.To.String()
	}
	return rec
}

// RegimeRecord is one regime transition.
type RegimeRecord struct {
	RunID string
	Time  time.Time
	From  string
	To    string
}

func NewRegimeRecord(runID string, from, to regime.State) RegimeRecord {
	return RegimeRecord{
		RunID: runID,
		Time:  to.Time,
		From:  from.Key(),
		To:    to.Key(),
	}
}

// EquitySnapshot is the per-step NAV row; the full set reconstructs the
// equity curve.
type EquitySnapshot struct {
	RunID    string
	Time     time.Time
	NAV      decimal.Decimal
	Cash     decimal.Decimal
	PeakNAV  decimal.Decimal
	Drawdown float64
}

// AttributionRecord is one (step, asset, strategy) exposure row.
type AttributionRecord struct {
	RunID    string
	Time     time.Time
	Asset    string
	Strategy string
	Weight   float64
}

// Journal is the append-only event sink. Implementations must tolerate
// being closed after a partially recorded (incomplete) run.
type Journal interface {
	BeginRun(RunRecord) error
	EndRun(RunRecord) error
	RecordTrade(TradeRecord) error
	RecordRejection(RejectionRecord) error
	RecordRiskAction(RiskActionRecord) error
	RecordRegime(RegimeRecord) error
	RecordEquity(EquitySnapshot) error
	RecordAttribution(AttributionRecord) error
	Close() error
}
