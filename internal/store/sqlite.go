package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "alpaca-trader/internal/errors"
)

// SQLiteStore persists rows to a local database in WAL mode.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS signals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	direction TEXT NOT NULL,
	strength REAL NOT NULL,
	reasons TEXT,
	regime TEXT
);
CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	entry_time DATETIME NOT NULL,
	exit_time DATETIME NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	pnl REAL NOT NULL,
	pnl_percent REAL NOT NULL,
	hold_minutes REAL NOT NULL,
	exit_reason TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS performance (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	equity REAL NOT NULL,
	drawdown REAL NOT NULL,
	trades_today INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS indicators (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	close REAL NOT NULL,
	rsi REAL,
	atr REAL,
	adx REAL,
	atr_percentile REAL,
	sma_200 REAL
);
CREATE TABLE IF NOT EXISTS session_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	from_state TEXT NOT NULL,
	to_state TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS session_summary (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	date DATETIME NOT NULL,
	opening_equity REAL NOT NULL,
	closing_equity REAL NOT NULL,
	trades INTEGER NOT NULL,
	winners INTEGER NOT NULL,
	losers INTEGER NOT NULL,
	pnl REAL NOT NULL,
	max_drawdown REAL NOT NULL,
	regime TEXT,
	avg_vix REAL
);
CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades(exit_time);
CREATE INDEX IF NOT EXISTS idx_signals_timestamp ON signals(timestamp);
CREATE INDEX IF NOT EXISTS idx_performance_timestamp ON performance(timestamp);
`

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.Wrap(err, "creating database directory")
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, apperrors.Wrap(err, "opening database")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperrors.Wrap(err, "applying schema")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveSignal(row SignalRow) error {
	_, err := s.db.Exec(
		`INSERT INTO signals (timestamp, symbol, direction, strength, reasons, regime)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		row.Timestamp, row.Symbol, row.Direction, row.Strength, row.Reasons, row.Regime,
	)
	return wrapDB(err)
}

func (s *SQLiteStore) SaveTrade(row TradeRow) error {
	_, err := s.db.Exec(
		`INSERT INTO trades (symbol, side, quantity, entry_time, exit_time,
			entry_price, exit_price, pnl, pnl_percent, hold_minutes, exit_reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.Symbol, row.Side, row.Quantity, row.EntryTime, row.ExitTime,
		row.EntryPrice, row.ExitPrice, row.PnL, row.PnLPercent, row.HoldMinutes, row.ExitReason,
	)
	return wrapDB(err)
}

func (s *SQLiteStore) SavePerformance(row PerformanceRow) error {
	_, err := s.db.Exec(
		`INSERT INTO performance (timestamp, equity, drawdown, trades_today)
		 VALUES (?, ?, ?, ?)`,
		row.Timestamp, row.Equity, row.Drawdown, row.TradesToday,
	)
	return wrapDB(err)
}

func (s *SQLiteStore) SaveIndicators(row IndicatorRow) error {
	_, err := s.db.Exec(
		`INSERT INTO indicators (timestamp, symbol, close, rsi, atr, adx, atr_percentile, sma_200)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.Timestamp, row.Symbol, row.Close, row.RSI, row.ATR, row.ADX, row.ATRPct, row.SMA200,
	)
	return wrapDB(err)
}

func (s *SQLiteStore) SaveSessionTransition(row SessionRow) error {
	_, err := s.db.Exec(
		`INSERT INTO session_log (timestamp, symbol, from_state, to_state)
		 VALUES (?, ?, ?, ?)`,
		row.Timestamp, row.Symbol, row.FromState, row.ToState,
	)
	return wrapDB(err)
}

func (s *SQLiteStore) SaveSessionSummary(row SummaryRow) error {
	_, err := s.db.Exec(
		`INSERT INTO session_summary (date, opening_equity, closing_equity,
			trades, winners, losers, pnl, max_drawdown, regime, avg_vix)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.Date, row.OpeningEquity, row.ClosingEquity,
		row.Trades, row.Winners, row.Losers, row.PnL, row.MaxDrawdown, row.Regime, row.AvgVIX,
	)
	return wrapDB(err)
}

func (s *SQLiteStore) Trades(since time.Time) ([]TradeRow, error) {
	rows, err := s.db.Query(
		`SELECT id, symbol, side, quantity, entry_time, exit_time,
			entry_price, exit_price, pnl, pnl_percent, hold_minutes, exit_reason
		 FROM trades WHERE exit_time >= ? ORDER BY exit_time`, since)
	if err != nil {
		return nil, wrapDB(err)
	}
	defer rows.Close()

	var out []TradeRow
	for rows.Next() {
		var r TradeRow
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Side, &r.Quantity, &r.EntryTime, &r.ExitTime,
			&r.EntryPrice, &r.ExitPrice, &r.PnL, &r.PnLPercent, &r.HoldMinutes, &r.ExitReason); err != nil {
			return nil, wrapDB(err)
		}
		out = append(out, r)
	}
	return out, wrapDB(rows.Err())
}

func (s *SQLiteStore) Signals(since time.Time) ([]SignalRow, error) {
	rows, err := s.db.Query(
		`SELECT id, timestamp, symbol, direction, strength, reasons, regime
		 FROM signals WHERE timestamp >= ? ORDER BY timestamp`, since)
	if err != nil {
		return nil, wrapDB(err)
	}
	defer rows.Close()

	var out []SignalRow
	for rows.Next() {
		var r SignalRow
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Symbol, &r.Direction, &r.Strength, &r.Reasons, &r.Regime); err != nil {
			return nil, wrapDB(err)
		}
		out = append(out, r)
	}
	return out, wrapDB(rows.Err())
}

func (s *SQLiteStore) Performance(since time.Time) ([]PerformanceRow, error) {
	rows, err := s.db.Query(
		`SELECT id, timestamp, equity, drawdown, trades_today
		 FROM performance WHERE timestamp >= ? ORDER BY timestamp`, since)
	if err != nil {
		return nil, wrapDB(err)
	}
	defer rows.Close()

	var out []PerformanceRow
	for rows.Next() {
		var r PerformanceRow
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Equity, &r.Drawdown, &r.TradesToday); err != nil {
			return nil, wrapDB(err)
		}
		out = append(out, r)
	}
	return out, wrapDB(rows.Err())
}

// TradesTodayCount counts closed trades on the calendar day of day,
// used to rebuild the daily trade counter after a restart.
func (s *SQLiteStore) TradesTodayCount(day time.Time) (int, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM trades WHERE exit_time >= ? AND exit_time < ?`, start, end,
	).Scan(&count)
	return count, wrapDB(err)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func wrapDB(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrDatabaseError, err.Error())
}
