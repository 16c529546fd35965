package journal

// Schema creates the journal tables. Money columns are stored as TEXT so
// decimal values round-trip exactly.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	config_hash TEXT NOT NULL,
	start_time  TIMESTAMP NOT NULL,
	end_time    TIMESTAMP,
	start_nav   TEXT NOT NULL,
	end_nav     TEXT,
	completed   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS trades (
	run_id        TEXT NOT NULL,
	trade_id      TEXT PRIMARY KEY,
	time          TIMESTAMP NOT NULL,
	symbol        TEXT NOT NULL,
	side          TEXT NOT NULL,
	quantity      TEXT NOT NULL,
	price         TEXT NOT NULL,
	fees          TEXT NOT NULL,
	slippage      TEXT NOT NULL,
	resulting_nav TEXT NOT NULL,
	strategies    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id, time);

CREATE TABLE IF NOT EXISTS rejections (
	run_id         TEXT NOT NULL,
	time           TIMESTAMP NOT NULL,
	symbol         TEXT NOT NULL,
	intended_delta TEXT NOT NULL,
	executed_delta TEXT NOT NULL,
	reason         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS risk_actions (
	run_id    TEXT NOT NULL,
	time      TIMESTAMP NOT NULL,
	kind      TEXT NOT NULL,
	asset     TEXT,
	class     TEXT,
	lim       REAL,
	observed  REAL,
	ratio     REAL,
	drawdown  REAL,
	from_state TEXT,
	to_state   TEXT
);
CREATE INDEX IF NOT EXISTS idx_risk_run ON risk_actions(run_id, time);

CREATE TABLE IF NOT EXISTS regimes (
	run_id     TEXT NOT NULL,
	time       TIMESTAMP NOT NULL,
	from_state TEXT NOT NULL,
	to_state   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS equity (
	run_id   TEXT NOT NULL,
	time     TIMESTAMP NOT NULL,
	nav      TEXT NOT NULL,
	cash     TEXT NOT NULL,
	peak_nav TEXT NOT NULL,
	drawdown REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_equity_run ON equity(run_id, time);

CREATE TABLE IF NOT EXISTS attributions (
	run_id   TEXT NOT NULL,
	time     TIMESTAMP NOT NULL,
	asset    TEXT NOT NULL,
	strategy TEXT NOT NULL,
	weight   REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attr_run ON attributions(run_id, time);
`
