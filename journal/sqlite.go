package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// SQLite persists the journal to a single database file.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) BeginRun(r RunRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO runs (run_id, config_hash, start_time, start_nav, completed)
		VALUES (?, ?, ?, ?, 0)`,
		r.RunID, r.ConfigHash, r.StartTime, r.StartNAV.String(),
	)
	return err
}

func (j *SQLite) EndRun(r RunRecord) error {
	completed := 0
	if r.Completed {
		completed = 1
	}
	_, err := j.db.Exec(`
		UPDATE runs SET end_time = ?, end_nav = ?, completed = ? WHERE run_id = ?`,
		r.EndTime, r.EndNAV.String(), completed, r.RunID,
	)
	return err
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(run_id, trade_id, time, symbol, side, quantity, price, fees, slippage, resulting_nav, strategies)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RunID, t.TradeID, t.Time, t.Symbol, t.Side,
		t.Quantity.String(), t.Price.String(), t.Fees.String(),
		t.Slippage.String(), t.ResultingNAV.String(), t.Strategies,
	)
	return err
}

func (j *SQLite) RecordRejection(r RejectionRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO rejections (run_id, time, symbol, intended_delta, executed_delta, reason)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Time, r.Symbol,
		r.IntendedDelta.String(), r.ExecutedDelta.String(), r.Reason,
	)
	return err
}

func (j *SQLite) RecordRiskAction(a RiskActionRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO risk_actions
		(run_id, time, kind, asset, class, lim, observed, ratio, drawdown, from_state, to_state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.RunID, a.Time, a.Kind, a.Asset, a.Class,
		a.Limit, a.Observed, a.Ratio, a.Drawdown, a.From, a.To,
	)
	return err
}

func (j *SQLite) RecordRegime(r RegimeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO regimes (run_id, time, from_state, to_state)
		VALUES (?, ?, ?, ?)`,
		r.RunID, r.Time, r.From, r.To,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity (run_id, time, nav, cash, peak_nav, drawdown)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Time, e.NAV.String(), e.Cash.String(),
		e.PeakNAV.String(), e.Drawdown,
	)
	return err
}

func (j *SQLite) RecordAttribution(a AttributionRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO attributions (run_id, time, asset, strategy, weight)
		VALUES (?, ?, ?, ?, ?)`,
		a.RunID, a.Time, a.Asset, a.Strategy, a.Weight,
	)
	return err
}

// ListTradesByRun returns a run's fills in time order.
func (j *SQLite) ListTradesByRun(runID string) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT run_id, trade_id, time, symbol, side, quantity, price, fees, slippage, resulting_nav, strategies
		FROM trades WHERE run_id = ? ORDER BY time, trade_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		var qty, price, fees, slip, nav string
		if err := rows.Scan(&t.RunID, &t.TradeID, &t.Time, &t.Symbol, &t.Side,
			&qty, &price, &fees, &slip, &nav, &t.Strategies); err != nil {
			return nil, err
		}
		if t.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, err
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		if t.Fees, err = decimal.NewFromString(fees); err != nil {
			return nil, err
		}
		if t.Slippage, err = decimal.NewFromString(slip); err != nil {
			return nil, err
		}
		if t.ResultingNAV, err = decimal.NewFromString(nav); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// EquityCurve returns a run's NAV series in time order.
func (j *SQLite) EquityCurve(runID string) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT run_id, time, nav, cash, peak_nav, drawdown
		FROM equity WHERE run_id = ? ORDER BY time`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		var nav, cash, peak string
		if err := rows.Scan(&e.RunID, &e.Time, &nav, &cash, &peak, &e.Drawdown); err != nil {
			return nil, err
		}
		if e.NAV, err = decimal.NewFromString(nav); err != nil {
			return nil, err
		}
		if e.Cash, err = decimal.NewFromString(cash); err != nil {
			return nil, err
		}
		if e.PeakNAV, err = decimal.NewFromString(peak); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetRun returns one run's summary row.
func (j *SQLite) GetRun(runID string) (RunRecord, error) {
	var r RunRecord
	var endTime sql.NullTime
	var startNAV string
	var endNAV sql.NullString
	var completed int

	err := j.db.QueryRow(`
		SELECT run_id, config_hash, start_time, end_time, start_nav, end_nav, completed
		FROM runs WHERE run_id = ?`, runID).
		Scan(&r.RunID, &r.ConfigHash, &r.StartTime, &endTime, &startNAV, &endNAV, &completed)
	if err != nil {
		return r, err
	}
	if endTime.Valid {
		r.EndTime = endTime.Time
	}
	if r.StartNAV, err = decimal.NewFromString(startNAV); err != nil {
		return r, err
	}
	if endNAV.Valid && endNAV.String != "" {
		if r.EndNAV, err = decimal.NewFromString(endNAV.String); err != nil {
			return r, err
		}
	}
	r.Completed = completed == 1
	return r, nil
}

// ListIncompleteRuns reports runs that never reached EndRun, typically
// aborted sweeps.
func (j *SQLite) ListIncompleteRuns() ([]string, error) {
	rows, err := j.db.Query(`SELECT run_id FROM runs WHERE completed = 0 ORDER BY start_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (j *SQLite) Close() error { return j.db.Close() }

var _ Journal = (*SQLite)(nil)
