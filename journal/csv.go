package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

var (
	tradeHeader  = []string{"trade_id", "symbol", "side", "kind", "price", "amount", "leverage", "realized_pnl", "reason", "time"}
	equityHeader = []string{"time", "equity", "cash", "margin_in_use", "unrealized_pnl"}
)

// CSV appends trades and equity samples to two CSV files. Each write is
// flushed so the files can be tailed while the terminal runs.
type CSV struct {
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

func NewCSV(tradesPath, equityPath string) (*CSV, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		_ = tf.Close()
		return nil, err
	}

	j := &CSV{csv.NewWriter(tf), csv.NewWriter(ef), tf, ef}
	if err := j.writeHeaders(); err != nil {
		_ = j.Close()
		return nil, err
	}
	return j, nil
}

func (j *CSV) writeHeaders() error {
	if err := j.trades.Write(tradeHeader); err != nil {
		return err
	}
	if err := j.equity.Write(equityHeader); err != nil {
		return err
	}
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSV) RecordTrade(t TradeRecord) error {
	err := j.trades.Write([]string{
		t.ID,
		t.Symbol,
		t.Side,
		string(t.Kind),
		f(t.Price),
		f(t.Amount),
		strconv.Itoa(t.Leverage),
		f(t.RealizedPnL),
		t.Reason,
		t.Time.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSV) RecordEquity(e EquitySample) error {
	err := j.equity.Write([]string{
		e.Time.UTC().Format(time.RFC3339),
		f(e.Equity),
		f(e.Cash),
		f(e.MarginInUse),
		f(e.UnrealizedPnL),
	})
	if err != nil {
		return err
	}
	j.equity.Flush()
	return j.equity.Error()
}

// Reset truncates both files and rewrites the headers.
func (j *CSV) Reset() error {
	for _, fh := range []*os.File{j.tf, j.ef} {
		if err := fh.Truncate(0); err != nil {
			return err
		}
		if _, err := fh.Seek(0, 0); err != nil {
			return err
		}
	}
	return j.writeHeaders()
}

func (j *CSV) Close() error {
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	if err := j.equity.Error(); err != nil {
		return err
	}

	if err := j.tf.Close(); err != nil {
		return err
	}
	if err := j.ef.Close(); err != nil {
		return err
	}
	return nil
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
