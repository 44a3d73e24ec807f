package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"
)

const tradeColumns = `trade_id, symbol, side, kind, price, amount, leverage, realized_pnl, reason, time`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var (
		rec  TradeRecord
		kind string
	)
	err := s.Scan(
		&rec.ID,
		&rec.Symbol,
		&rec.Side,
		&kind,
		&rec.Price,
		&rec.Amount,
		&rec.Leverage,
		&rec.RealizedPnL,
		&rec.Reason,
		&rec.Time,
	)
	rec.Kind = Kind(kind)
	return rec, err
}

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(tradeID string) (TradeRecord, error) {
	row := j.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE trade_id = ?`, tradeID)
	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("trade %q not found", tradeID)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTrades returns the most recent trades, newest first. limit <= 0
// returns all of them.
func (j *SQLite) ListTrades(limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.Query(`
		SELECT `+tradeColumns+`
		FROM trades
		ORDER BY time DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return collectTrades(rows)
}

// ListTradesBetween returns trades executed within [start, end), oldest
// first.
func (j *SQLite) ListTradesBetween(start, end time.Time) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE time >= ? AND time < ?
		ORDER BY time ASC, rowid ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	return collectTrades(rows)
}

func collectTrades(rows *sql.Rows) ([]TradeRecord, error) {
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// ListEquity returns the most recent equity samples, oldest first.
func (j *SQLite) ListEquity(limit int) ([]EquitySample, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.Query(`
		SELECT time, equity, cash, margin_in_use, unrealized_pnl
		FROM equity
		ORDER BY time DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySample
	for rows.Next() {
		var e EquitySample
		if err := rows.Scan(&e.Time, &e.Equity, &e.Cash, &e.MarginInUse, &e.UnrealizedPnL); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
