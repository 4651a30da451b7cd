// Package store persists the engine's audit trail: trades, signals,
// per-tick performance and indicator snapshots, and session state
// transitions.
package store

import (
	"time"

	"alpaca-trader/internal/models"
)

// SignalRow is one emitted (or suppressed) signal.
type SignalRow struct {
	ID        int64     `csv:"-"`
	Timestamp time.Time `csv:"timestamp"`
	Symbol    string    `csv:"symbol"`
	Direction string    `csv:"direction"`
	Strength  float64   `csv:"strength"`
	Reasons   string    `csv:"reasons"` // comma-joined reason codes
	Regime    string    `csv:"regime"`
}

// TradeRow is one completed round-trip.
type TradeRow struct {
	ID          int64     `csv:"-"`
	Symbol      string    `csv:"symbol"`
	Side        string    `csv:"side"`
	Quantity    int       `csv:"quantity"`
	EntryTime   time.Time `csv:"entry_time"`
	ExitTime    time.Time `csv:"exit_time"`
	EntryPrice  float64   `csv:"entry_price"`
	ExitPrice   float64   `csv:"exit_price"`
	PnL         float64   `csv:"pnl"`
	PnLPercent  float64   `csv:"pnl_percent"`
	HoldMinutes float64   `csv:"hold_minutes"`
	ExitReason  string    `csv:"exit_reason"`
}

// PerformanceRow is one per-tick account snapshot.
type PerformanceRow struct {
	ID          int64     `csv:"-"`
	Timestamp   time.Time `csv:"timestamp"`
	Equity      float64   `csv:"equity"`
	Drawdown    float64   `csv:"drawdown"`
	TradesToday int       `csv:"trades_today"`
}

// IndicatorRow is one per-tick indicator snapshot.
type IndicatorRow struct {
	ID        int64     `csv:"-"`
	Timestamp time.Time `csv:"timestamp"`
	Symbol    string    `csv:"symbol"`
	Close     float64   `csv:"close"`
	RSI       float64   `csv:"rsi"`
	ATR       float64   `csv:"atr"`
	ADX       float64   `csv:"adx"`
	ATRPct    float64   `csv:"atr_percentile"`
	SMA200    float64   `csv:"sma_200"`
}

// SummaryRow is one end-of-session performance summary.
type SummaryRow struct {
	ID            int64     `csv:"-"`
	Date          time.Time `csv:"date"`
	OpeningEquity float64   `csv:"opening_equity"`
	ClosingEquity float64   `csv:"closing_equity"`
	Trades        int       `csv:"trades"`
	Winners       int       `csv:"winners"`
	Losers        int       `csv:"losers"`
	PnL           float64   `csv:"pnl"`
	MaxDrawdown   float64   `csv:"max_drawdown"`
	Regime        string    `csv:"regime"` // most frequent label of the session
	AvgVIX        float64   `csv:"avg_vix"`
}

// WinRate returns winners as a percentage of closed trades.
func (r SummaryRow) WinRate() float64 {
	if r.Trades == 0 {
		return 0
	}
	return float64(r.Winners) / float64(r.Trades) * 100
}

// SessionRow is one opening-range state transition.
type SessionRow struct {
	ID        int64     `csv:"-"`
	Timestamp time.Time `csv:"timestamp"`
	Symbol    string    `csv:"symbol"`
	FromState string    `csv:"from_state"`
	ToState   string    `csv:"to_state"`
}

// Store is the persistence contract. Implementations must be safe for
// use from multiple symbol workers.
type Store interface {
	SaveSignal(row SignalRow) error
	SaveTrade(row TradeRow) error
	SavePerformance(row PerformanceRow) error
	SaveIndicators(row IndicatorRow) error
	SaveSessionTransition(row SessionRow) error
	SaveSessionSummary(row SummaryRow) error

	Trades(since time.Time) ([]TradeRow, error)
	Signals(since time.Time) ([]SignalRow, error)
	Performance(since time.Time) ([]PerformanceRow, error)
	TradesTodayCount(day time.Time) (int, error)

	Close() error
}

// TradeRowFrom flattens a trade record for persistence.
func TradeRowFrom(rec *models.TradeRecord) TradeRow {
	return TradeRow{
		Symbol:      rec.Symbol,
		Side:        string(rec.Side),
		Quantity:    rec.Quantity,
		EntryTime:   rec.EntryTime,
		ExitTime:    rec.ExitTime,
		EntryPrice:  rec.EntryPrice,
		ExitPrice:   rec.ExitPrice,
		PnL:         rec.PnL,
		PnLPercent:  rec.PnLPercent,
		HoldMinutes: rec.HoldMinutes,
		ExitReason:  string(rec.ExitReason),
	}
}
