package journal

import "sync"

// MaxEquitySamples caps the in-memory equity history.
const MaxEquitySamples = 100

// Memory keeps trades newest first and the most recent equity samples.
type Memory struct {
	mu     sync.RWMutex
	trades []TradeRecord
	equity []EquitySample
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) RecordTrade(t TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append([]TradeRecord{t}, m.trades...)
	return nil
}

func (m *Memory) RecordEquity(e EquitySample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equity = append(m.equity, e)
	if n := len(m.equity); n > MaxEquitySamples {
		m.equity = append([]EquitySample(nil), m.equity[n-MaxEquitySamples:]...)
	}
	return nil
}

// Trades returns a copy of the trade log, newest first.
func (m *Memory) Trades() []TradeRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]TradeRecord(nil), m.trades...)
}

// Equity returns a copy of the equity history, oldest first.
func (m *Memory) Equity() []EquitySample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]EquitySample(nil), m.equity...)
}

func (m *Memory) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = nil
	m.equity = nil
	return nil
}

func (m *Memory) Close() error { return nil }
