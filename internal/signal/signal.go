// Package signal produces directional, strength-scored trade signals
// from indicator snapshots and the current market regime. Two strategy
// modes are supported: moving-average crossover and an intraday
// opening-range / fair-value-gap breakout.
package signal

import (
	"time"

	"alpaca-trader/internal/config"
	"alpaca-trader/internal/indicators"
	"alpaca-trader/internal/models"
)

// Inputs carries everything a generator may consult for one tick.
// Generators never mutate Inputs.
type Inputs struct {
	Symbol     string
	Bars       []models.Bar
	HourlyBars []models.Bar
	Snapshot   *indicators.Snapshot
	Regime     models.MarketRegime
	VIX        float64 // 0 when the filter is disabled or unavailable
	Now        time.Time
}

// Generator produces at most one signal per tick. A Flat signal with
// zero strength means "no trade this tick".
type Generator interface {
	Generate(in Inputs) models.Signal
}

// New returns the generator selected by the strategy mode.
func New(cfg *config.Config, loc *time.Location) Generator {
	if cfg.Strategy.Mode == config.ModeORFVG {
		open, _ := config.ParseClock(cfg.Session.OpenTime)
		return NewORFVG(cfg.Strategy.ORFVG, open, loc)
	}
	return NewCrossover(cfg.Strategy)
}

func flat(symbol string, regime models.MarketRegime, at time.Time) models.Signal {
	return models.Signal{
		Symbol:    symbol,
		Direction: models.SideFlat,
		Regime:    regime,
		At:        at,
	}
}

// bullishEngulfing reports whether cur engulfs a bearish prev bar.
func bullishEngulfing(prev, cur models.Bar) bool {
	return prev.Close < prev.Open &&
		cur.Close > cur.Open &&
		cur.Open <= prev.Close &&
		cur.Close >= prev.Open
}

// bearishEngulfing reports whether cur engulfs a bullish prev bar.
func bearishEngulfing(prev, cur models.Bar) bool {
	return prev.Close > prev.Open &&
		cur.Close < cur.Open &&
		cur.Open >= prev.Close &&
		cur.Close <= prev.Open
}
