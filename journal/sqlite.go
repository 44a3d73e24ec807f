package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, symbol, side, kind, price, amount, leverage, realized_pnl, reason, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Symbol, t.Side, string(t.Kind), t.Price, t.Amount,
		t.Leverage, t.RealizedPnL, t.Reason, t.Time.UTC(),
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySample) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(time, equity, cash, margin_in_use, unrealized_pnl)
		VALUES (?, ?, ?, ?, ?)`,
		e.Time.UTC(), e.Equity, e.Cash, e.MarginInUse, e.UnrealizedPnL,
	)
	return err
}

// Reset deletes every trade and equity row.
func (j *SQLite) Reset() error {
	if _, err := j.db.Exec(`DELETE FROM trades; DELETE FROM equity;`); err != nil {
		return fmt.Errorf("sqlite reset: %w", err)
	}
	return nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
