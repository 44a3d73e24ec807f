package cmd

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/levterm/config"
	"github.com/rustyeddy/levterm/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayBounds(t *testing.T) {
	loc := time.FixedZone("test", -5*3600)
	start, end, err := dayBounds(loc, "2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, loc), start)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, loc), end)

	_, _, err = dayBounds(loc, "03/10/2024")
	assert.Error(t, err)
}

func TestOpenJournal(t *testing.T) {
	dir := t.TempDir()

	j, err := openJournal(config.JournalConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &journal.Memory{}, j)

	j, err = openJournal(config.JournalConfig{
		Type:       "csv",
		TradesFile: filepath.Join(dir, "trades.csv"),
		EquityFile: filepath.Join(dir, "equity.csv"),
	})
	require.NoError(t, err)
	assert.IsType(t, &journal.CSV{}, j)
	require.NoError(t, j.Close())

	j, err = openJournal(config.JournalConfig{Type: "sqlite", DBPath: filepath.Join(dir, "j.sqlite")})
	require.NoError(t, err)
	assert.IsType(t, &journal.SQLite{}, j)
	require.NoError(t, j.Close())
}

func TestNewAppOffline(t *testing.T) {
	configPath, offline = "", true
	defer func() { offline = false }()

	a, err := newApp()
	require.NoError(t, err)
	defer a.close()

	assert.True(t, a.cfg.Feed.Offline)
	assert.Equal(t, 10000.0, a.engine.Account().Cash)

	term, err := a.terminal(false)
	require.NoError(t, err)
	assert.Same(t, a.engine, term.Engine())
}

func TestOpt(t *testing.T) {
	v := 42.126
	assert.Equal(t, "42.13", opt(&v))
	assert.Equal(t, "-", opt(nil))
}
