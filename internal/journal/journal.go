// Package journal records closed trades and equity marks in a local
// sqlite database. Journal failures are never fatal to the trading loop.
package journal

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"leverage-agent/internal/types"
)

type TradeRecord struct {
	ID          string
	Symbol      string
	Side        types.Side
	Size        float64
	Leverage    int
	EntryPrice  float64
	ExitPrice   float64
	OpenedAt    time.Time
	ClosedAt    time.Time
	RealizedPnL float64
	Reason      types.CloseReason
}

type EquityMark struct {
	Time          time.Time
	Balance       float64
	Equity        float64
	UnrealizedPnL float64
	OpenPositions int
}

type Journal struct {
	db *sql.DB
}

func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func (j *Journal) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(id, symbol, side, size, leverage, entry_price, exit_price, opened_at, closed_at, realized_pnl, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Symbol, string(t.Side), t.Size, t.Leverage, t.EntryPrice,
		t.ExitPrice, t.OpenedAt, t.ClosedAt, t.RealizedPnL, string(t.Reason),
	)
	return err
}

func (j *Journal) RecordEquity(e EquityMark) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(time, balance, equity, unrealized_pnl, open_positions)
		VALUES (?, ?, ?, ?, ?)`,
		e.Time, e.Balance, e.Equity, e.UnrealizedPnL, e.OpenPositions,
	)
	return err
}

// ListTrades returns recorded trades for a symbol, newest first. An empty
// symbol returns everything.
func (j *Journal) ListTrades(symbol string) ([]TradeRecord, error) {
	q := `SELECT id, symbol, side, size, leverage, entry_price, exit_price, opened_at, closed_at, realized_pnl, reason
		FROM trades`
	args := []any{}
	if symbol != "" {
		q += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	q += ` ORDER BY closed_at DESC`

	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		var side, reason string
		if err := rows.Scan(&t.ID, &t.Symbol, &side, &t.Size, &t.Leverage, &t.EntryPrice,
			&t.ExitPrice, &t.OpenedAt, &t.ClosedAt, &t.RealizedPnL, &reason); err != nil {
			return nil, err
		}
		t.Side = types.Side(side)
		t.Reason = types.CloseReason(reason)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (j *Journal) Close() error {
	return j.db.Close()
}
