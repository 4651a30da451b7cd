package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "trader.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTrade(exit time.Time) TradeRow {
	return TradeRow{
		Symbol:      "SPY",
		Side:        "LONG",
		Quantity:    100,
		EntryTime:   exit.Add(-30 * time.Minute),
		ExitTime:    exit,
		EntryPrice:  100.0,
		ExitPrice:   102.5,
		PnL:         250.0,
		PnLPercent:  2.5,
		HoldMinutes: 30,
		ExitReason:  "take_profit",
	}
}

func TestSaveAndQueryTrades(t *testing.T) {
	s := testStore(t)
	exit := time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveTrade(sampleTrade(exit)))
	require.NoError(t, s.SaveTrade(sampleTrade(exit.Add(time.Hour))))

	trades, err := s.Trades(exit.Add(30 * time.Minute))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "SPY", trades[0].Symbol)
	assert.InDelta(t, 250.0, trades[0].PnL, 1e-9)
}

func TestTradesTodayCount(t *testing.T) {
	s := testStore(t)
	day := time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveTrade(sampleTrade(day)))
	require.NoError(t, s.SaveTrade(sampleTrade(day.Add(2*time.Hour))))
	require.NoError(t, s.SaveTrade(sampleTrade(day.AddDate(0, 0, -1))))

	count, err := s.TradesTodayCount(day)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSaveSignalAndSessionRows(t *testing.T) {
	s := testStore(t)
	ts := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveSignal(SignalRow{
		Timestamp: ts,
		Symbol:    "SPY",
		Direction: "LONG",
		Strength:  0.65,
		Reasons:   "ma_crossover,rsi_band",
		Regime:    "TRENDING",
	}))
	require.NoError(t, s.SaveSessionTransition(SessionRow{
		Timestamp: ts,
		Symbol:    "SPY",
		FromState: "SCANNING_FOR_GAP",
		ToState:   "SIGNAL_ARMED",
	}))
	require.NoError(t, s.SavePerformance(PerformanceRow{
		Timestamp:   ts,
		Equity:      100000,
		Drawdown:    0.02,
		TradesToday: 1,
	}))
	require.NoError(t, s.SaveIndicators(IndicatorRow{
		Timestamp: ts,
		Symbol:    "SPY",
		Close:     100.5,
		RSI:       55,
		ATR:       2.0,
	}))

	signals, err := s.Signals(ts.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "ma_crossover,rsi_band", signals[0].Reasons)

	perf, err := s.Performance(ts.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, perf, 1)
	assert.InDelta(t, 0.02, perf[0].Drawdown, 1e-9)
}

func TestSaveSessionSummary(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.SaveSessionSummary(SummaryRow{
		Date:          time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
		OpeningEquity: 100000,
		ClosingEquity: 100300,
		Trades:        2,
		Winners:       1,
		Losers:        1,
		PnL:           300,
		MaxDrawdown:   0.02,
		Regime:        "TRENDING",
		AvgVIX:        20,
	}))
}

func TestSummaryWinRate(t *testing.T) {
	assert.InDelta(t, 0.0, SummaryRow{}.WinRate(), 1e-9)
	assert.InDelta(t, 50.0, SummaryRow{Trades: 2, Winners: 1}.WinRate(), 1e-9)
}

func TestExporterWritesCSVs(t *testing.T) {
	s := testStore(t)
	dir := t.TempDir()
	exit := time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveTrade(sampleTrade(exit)))

	exporter := NewExporter(s, dir)
	paths, err := exporter.ExportAll(exit.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, paths, 3)

	data, err := os.ReadFile(filepath.Join(dir, "trades.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "take_profit")
}
