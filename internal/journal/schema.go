package journal

// Schema creates the journal tables. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	id            TEXT PRIMARY KEY,
	symbol        TEXT NOT NULL,
	side          TEXT NOT NULL,
	size          REAL NOT NULL,
	leverage      INTEGER NOT NULL,
	entry_price   REAL NOT NULL,
	exit_price    REAL NOT NULL,
	opened_at     TIMESTAMP NOT NULL,
	closed_at     TIMESTAMP NOT NULL,
	realized_pnl  REAL NOT NULL,
	reason        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS equity (
	time            TIMESTAMP NOT NULL,
	balance         REAL NOT NULL,
	equity          REAL NOT NULL,
	unrealized_pnl  REAL NOT NULL,
	open_positions  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);
`
