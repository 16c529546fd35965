package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// CSV writes one file per record family under a directory. Rows are flushed
// per record so an aborted run leaves usable partial files.
type CSV struct {
	dir     string
	files   []*os.File
	trades  *csv.Writer
	rejects *csv.Writer
	riskW   *csv.Writer
	regimes *csv.Writer
	equity  *csv.Writer
	attr    *csv.Writer
	runs    *csv.Writer
}

func NewCSV(dir string) (*CSV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}
	j := &CSV{dir: dir}

	var err error
	if j.trades, err = j.open("trades.csv", []string{
		"run_id", "trade_id", "time", "symbol", "side", "quantity", "price",
		"fees", "slippage", "resulting_nav", "strategies"}); err != nil {
		return nil, err
	}
	if j.rejects, err = j.open("rejections.csv", []string{
		"run_id", "time", "symbol", "intended_delta", "executed_delta", "reason"}); err != nil {
		return nil, err
	}
	if j.riskW, err = j.open("risk_actions.csv", []string{
		"run_id", "time", "kind", "asset", "class", "limit", "observed",
		"ratio", "drawdown", "from", "to"}); err != nil {
		return nil, err
	}
	if j.regimes, err = j.open("regimes.csv", []string{
		"run_id", "time", "from", "to"}); err != nil {
		return nil, err
	}
	if j.equity, err = j.open("equity.csv", []string{
		"run_id", "time", "nav", "cash", "peak_nav", "drawdown"}); err != nil {
		return nil, err
	}
	if j.attr, err = j.open("attributions.csv", []string{
		"run_id", "time", "asset", "strategy", "weight"}); err != nil {
		return nil, err
	}
	if j.runs, err = j.open("runs.csv", []string{
		"run_id", "config_hash", "start_time", "end_time", "start_nav",
		"end_nav", "completed"}); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *CSV) open(name string, header []string) (*csv.Writer, error) {
	f, err := os.Create(filepath.Join(j.dir, name))
	if err != nil {
		return nil, err
	}
	j.files = append(j.files, f)
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	w.Flush()
	return w, w.Error()
}

func write(w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (j *CSV) BeginRun(r RunRecord) error {
	return write(j.runs, []string{
		r.RunID, r.ConfigHash, r.StartTime.Format(time.RFC3339), "",
		r.StartNAV.String(), "", "false",
	})
}

func (j *CSV) EndRun(r RunRecord) error {
	// CSV is append-only; the closing row supersedes the opening one.
	return write(j.runs, []string{
		r.RunID, r.ConfigHash, r.StartTime.Format(time.RFC3339),
		r.EndTime.Format(time.RFC3339), r.StartNAV.String(),
		r.EndNAV.String(), strconv.FormatBool(r.Completed),
	})
}

func (j *CSV) RecordTrade(t TradeRecord) error {
	return write(j.trades, []string{
		t.RunID, t.TradeID, t.Time.Format(time.RFC3339), t.Symbol, t.Side,
		t.Quantity.String(), t.Price.String(), t.Fees.String(),
		t.Slippage.String(), t.ResultingNAV.String(), t.Strategies,
	})
}

func (j *CSV) RecordRejection(r RejectionRecord) error {
	return write(j.rejects, []string{
		r.RunID, r.Time.Format(time.RFC3339), r.Symbol,
		r.IntendedDelta.String(), r.ExecutedDelta.String(), r.Reason,
	})
}

func (j *CSV) RecordRiskAction(a RiskActionRecord) error {
	return write(j.riskW, []string{
		a.RunID, a.Time.Format(time.RFC3339), a.Kind, a.Asset, a.Class,
		ff(a.Limit), ff(a.Observed), ff(a.Ratio), ff(a.Drawdown), a.From, a.To,
	})
}

func (j *CSV) RecordRegime(r RegimeRecord) error {
	return write(j.regimes, []string{
		r.RunID, r.Time.Format(time.RFC3339), r.From, r.To,
	})
}

func (j *CSV) RecordEquity(e EquitySnapshot) error {
	return write(j.equity, []string{
		e.RunID, e.Time.Format(time.RFC3339), e.NAV.String(), e.Cash.String(),
		e.PeakNAV.String(), ff(e.Drawdown),
	})
}

func (j *CSV) RecordAttribution(a AttributionRecord) error {
	return write(j.attr, []string{
		a.RunID, a.Time.Format(time.RFC3339), a.Asset, a.Strategy, ff(a.Weight),
	})
}

func (j *CSV) Close() error {
	var firstErr error
	for _, f := range j.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func ff(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}

var _ Journal = (*CSV)(nil)
