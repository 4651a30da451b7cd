// Package models provides domain models for the trading engine.
package models

import (
	"time"
)

// Side represents the direction of a trade or position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
	SideFlat  Side = "FLAT"
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus represents the broker-reported status of an order.
type OrderStatus string

const (
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

// Bar represents OHLCV data for a single time period. Bars are immutable
// once produced; a bar sequence has strictly increasing timestamps.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Quote represents the latest bid/ask for a symbol.
type Quote struct {
	Symbol    string
	BidPrice  float64
	AskPrice  float64
	LastPrice float64
	Timestamp time.Time
}

// RegimeLabel classifies the current market condition.
type RegimeLabel string

const (
	RegimeTrending       RegimeLabel = "TRENDING"
	RegimeRanging        RegimeLabel = "RANGING"
	RegimeHighVolatility RegimeLabel = "HIGH_VOLATILITY"
	RegimeLowVolatility  RegimeLabel = "LOW_VOLATILITY"
	RegimeUnknown        RegimeLabel = "UNKNOWN"
)

// MarketRegime is the classifier output. Label is the sizing-relevant
// classification (volatility extremes take precedence); Trending reports
// the underlying ADX trend test, which still selects signal sub-rules
// when a volatility label wins.
type MarketRegime struct {
	Label      RegimeLabel
	Trending   bool
	Confidence float64 // [0,1]
}

// ReasonCode identifies a factor that contributed to a signal or a
// rejection. Codes are stable strings used in logs and stored records.
type ReasonCode string

const (
	ReasonCrossover       ReasonCode = "ma_crossover"
	ReasonRSIBand         ReasonCode = "rsi_band"
	ReasonMACDConfirm     ReasonCode = "macd_confirmation"
	ReasonVolumeConfirm   ReasonCode = "volume_confirmation"
	ReasonCandlePattern   ReasonCode = "candle_pattern"
	ReasonTrendAlignment  ReasonCode = "higher_timeframe_trend"
	ReasonSMA200Filter    ReasonCode = "sma200_filter"
	ReasonBollingerTouch  ReasonCode = "bollinger_touch"
	ReasonOpeningRangeGap ReasonCode = "opening_range_gap"
	ReasonRangeBreakout   ReasonCode = "range_breakout"
)

// Signal is the Signal Generator output for one tick. A zero-strength
// Flat signal means "no trade". ExpiresAt is zero for immediate signals;
// the opening-range mode sets it to the entry-window deadline.
type Signal struct {
	Symbol    string
	Direction Side
	Strength  float64 // [0,1]
	Stop      float64 // suggested protective stop at signal time
	Reasons   []ReasonCode
	Regime    MarketRegime
	At        time.Time
	ExpiresAt time.Time
}

// Expired reports whether a windowed signal has lapsed at t.
func (s Signal) Expired(t time.Time) bool {
	return !s.ExpiresAt.IsZero() && t.After(s.ExpiresAt)
}

// RejectReason identifies why the Risk Sizer declined a signal.
type RejectReason string

const (
	RejectNone              RejectReason = ""
	RejectNoATR             RejectReason = "atr_unavailable"
	RejectZeroStopDistance  RejectReason = "zero_stop_distance"
	RejectBelowMinNotional  RejectReason = "below_min_notional"
	RejectRiskReward        RejectReason = "insufficient_risk_reward"
	RejectDrawdownKill      RejectReason = "drawdown_kill_switch"
	RejectMaxTradesPerDay   RejectReason = "max_trades_per_day"
	RejectPatternDayTrader  RejectReason = "pdt_rule"
	RejectShortsDisabled    RejectReason = "short_selling_disabled"
	RejectInsufficientFunds RejectReason = "insufficient_buying_power"
)

// TakeProfit is one profit target, expressed both as an absolute price
// and as the R-multiple it was derived from.
type TakeProfit struct {
	Price    float64
	RMult    float64
	Fraction float64 // fraction of the position to close at this level
	Consumed bool
}

// RiskDecision is the Risk Sizer output. Approved decisions always carry
// a stop and at least one take-profit level.
type RiskDecision struct {
	Approved    bool
	Reason      RejectReason
	Quantity    int
	Stop        float64
	TakeProfits []TakeProfit
	Notional    float64
	RiskAmount  float64
}

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	StatusFlat         PositionStatus = "FLAT"
	StatusPendingEntry PositionStatus = "PENDING_ENTRY"
	StatusOpen         PositionStatus = "OPEN"
	StatusLiquidating  PositionStatus = "LIQUIDATING"
	StatusClosed       PositionStatus = "CLOSED"
)

// Terminal reports whether the status admits no further transitions.
func (s PositionStatus) Terminal() bool {
	return s == StatusClosed
}

// ExitReason records why a position (or part of it) was closed.
type ExitReason string

const (
	ExitStopHit        ExitReason = "stop_hit"
	ExitTakeProfit     ExitReason = "take_profit"
	ExitTrailingStop   ExitReason = "trailing_stop"
	ExitMaxHoldTime    ExitReason = "max_hold_time"
	ExitKillSwitch     ExitReason = "kill_switch"
	ExitSessionEnd     ExitReason = "session_end"
	ExitManual         ExitReason = "manual"
	ExitEntryTimeout   ExitReason = "entry_timeout"
	ExitReconciliation ExitReason = "reconciliation"
)

// Position is the per-symbol lifecycle state. It is owned and mutated
// exclusively by the lifecycle manager.
type Position struct {
	Symbol        string
	Side          Side
	Quantity      int // shares still held; shrinks as targets scale out
	EntryQuantity int // shares at entry fill, for the final trade record
	EntryPrice    float64
	Stop          float64
	TakeProfits   []TakeProfit

	TrailingArmed bool
	WaterMark     float64 // highest favorable price (long) or lowest (short) since arming

	OpenedAt time.Time
	Status   PositionStatus

	// Entry order bookkeeping while PendingEntry.
	PendingOrderID string
	SubmittedAt    time.Time

	RealizedPnL float64
	ExitReason  ExitReason
	ClosedAt    time.Time
}

// Notional returns the current position value at the given price.
func (p *Position) Notional(price float64) float64 {
	return price * float64(p.Quantity)
}

// UnrealizedPnL returns mark-to-market profit at the given price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	if p.Side == SideShort {
		return (p.EntryPrice - price) * float64(p.Quantity)
	}
	return (price - p.EntryPrice) * float64(p.Quantity)
}

// AccountState is the account snapshot a tick operates on. It is an
// explicit value passed through the tick, never ambient state.
type AccountState struct {
	Equity        float64
	Cash          float64
	BuyingPower   float64
	PeakEquity    float64
	TradesToday   int
	DayTradeDates []time.Time // entry timestamps of round-trips, for the PDT window
}

// Drawdown returns the fractional decline from peak equity.
func (a AccountState) Drawdown() float64 {
	if a.PeakEquity <= 0 {
		return 0
	}
	dd := (a.PeakEquity - a.Equity) / a.PeakEquity
	if dd < 0 {
		return 0
	}
	return dd
}

// OrderIntent is the lifecycle manager's instruction to the execution
// coordinator. It carries no decision logic of its own.
type OrderIntent struct {
	Symbol     string
	Side       OrderSide
	Type       OrderType
	Quantity   int
	LimitPrice float64
	Tag        string
}

// Fill is the executed (or pending) outcome of an order intent.
type Fill struct {
	OrderID    string
	Status     OrderStatus
	Price      float64 // fill price after simulation adjustments
	Quantity   int
	Commission float64
	FilledAt   time.Time
}

// TradeRecord is the final record of a closed trade, handed to the
// logging collaborator.
type TradeRecord struct {
	Symbol      string
	Side        Side
	Quantity    int
	EntryTime   time.Time
	ExitTime    time.Time
	EntryPrice  float64
	ExitPrice   float64
	Stop        float64
	PnL         float64
	PnLPercent  float64
	HoldMinutes float64
	ExitReason  ExitReason
	Regime      RegimeLabel
	Strength    float64
}
