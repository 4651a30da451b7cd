package signal

import (
	"time"

	"alpaca-trader/internal/config"
	"alpaca-trader/internal/models"
)

// ORState is the per-session state of the opening-range machine.
type ORState string

const (
	ORIdle           ORState = "IDLE"
	ORCapturingRange ORState = "CAPTURING_RANGE"
	ORRangeClosed    ORState = "RANGE_CLOSED"
	ORScanningForGap ORState = "SCANNING_FOR_GAP"
	ORSignalArmed    ORState = "SIGNAL_ARMED"
	ORConsumed       ORState = "CONSUMED"
	ORExpired        ORState = "EXPIRED"
)

const orfvgStrength = 0.85

// ORFVG implements the opening-range / fair-value-gap breakout strategy
// as an explicit per-session state machine. It emits at most one signal
// per session and resets at the next session's opening-range window.
// The machine is independent of position state; the caller reports
// entry via Consume.
type ORFVG struct {
	cfg  config.ORFVGConfig
	open config.Clock
	loc  *time.Location

	state     ORState
	session   time.Time // midnight of the current session, in loc
	rangeHigh float64
	rangeLow  float64
	armed     models.Signal

	// OnTransition, when set, observes every state change. Used for
	// session logging.
	OnTransition func(from, to ORState, at time.Time)
}

// NewORFVG returns an opening-range generator for sessions opening at
// the given clock time in loc.
func NewORFVG(cfg config.ORFVGConfig, open config.Clock, loc *time.Location) *ORFVG {
	return &ORFVG{cfg: cfg, open: open, loc: loc, state: ORIdle}
}

// State returns the current machine state.
func (g *ORFVG) State() ORState { return g.state }

// Range returns the captured opening range. Valid once the range has
// closed.
func (g *ORFVG) Range() (high, low float64) { return g.rangeHigh, g.rangeLow }

// Consume marks the armed signal as taken. Further ticks this session
// yield Flat.
func (g *ORFVG) Consume(at time.Time) {
	if g.state == ORSignalArmed {
		g.transition(ORConsumed, at)
	}
}

func (g *ORFVG) transition(to ORState, at time.Time) {
	from := g.state
	g.state = to
	if g.OnTransition != nil && from != to {
		g.OnTransition(from, to, at)
	}
}

// Generate advances the machine for one tick and returns the armed
// signal while it remains valid.
func (g *ORFVG) Generate(in Inputs) models.Signal {
	now := in.Now.In(g.loc)
	g.rollSession(now)

	rangeStart := g.sessionTime(g.open)
	rangeEnd := rangeStart.Add(time.Duration(g.cfg.OpeningRangeMinutes) * time.Minute)
	deadline := g.entryDeadline()

	switch g.state {
	case ORIdle:
		if now.Before(rangeStart) {
			break
		}
		g.transition(ORCapturingRange, now)
		fallthrough

	case ORCapturingRange:
		g.captureRange(in.Bars, rangeStart, rangeEnd)
		if !now.Before(rangeEnd) && g.rangeHigh > 0 {
			g.transition(ORRangeClosed, now)
			g.transition(ORScanningForGap, now)
		}

	case ORScanningForGap:
		if now.After(deadline) {
			g.transition(ORExpired, now)
			break
		}
		if sig, ok := g.scanForGap(in); ok {
			sig.ExpiresAt = deadline
			g.armed = sig
			g.transition(ORSignalArmed, now)
			return sig
		}

	case ORSignalArmed:
		if now.After(deadline) {
			g.transition(ORExpired, now)
			break
		}
		return g.armed
	}

	return flat(in.Symbol, in.Regime, in.Now)
}

// rollSession resets the machine when a new session date begins.
func (g *ORFVG) rollSession(now time.Time) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, g.loc)
	if day.Equal(g.session) {
		return
	}
	g.session = day
	g.rangeHigh = 0
	g.rangeLow = 0
	g.armed = models.Signal{}
	g.transition(ORIdle, now)
}

func (g *ORFVG) sessionTime(c config.Clock) time.Time {
	return g.session.Add(time.Duration(c) * time.Minute)
}

func (g *ORFVG) entryDeadline() time.Time {
	if c, err := config.ParseClock(g.cfg.MaxEntryTime); err == nil {
		return g.sessionTime(c)
	}
	// no deadline configured: the session open plus one hour
	return g.sessionTime(g.open).Add(time.Hour)
}

func (g *ORFVG) captureRange(bars []models.Bar, start, end time.Time) {
	for _, b := range bars {
		ts := b.Timestamp.In(g.loc)
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		if g.rangeHigh == 0 || b.High > g.rangeHigh {
			g.rangeHigh = b.High
		}
		if g.rangeLow == 0 || b.Low < g.rangeLow {
			g.rangeLow = b.Low
		}
	}
}

// scanForGap looks for a three-bar fair-value gap whose direction agrees
// with a break of the opening range, confirmed by volume.
func (g *ORFVG) scanForGap(in Inputs) (models.Signal, bool) {
	bars := in.Bars
	if len(bars) < 3 {
		return models.Signal{}, false
	}
	b1 := bars[len(bars)-3]
	b2 := bars[len(bars)-2]
	b3 := bars[len(bars)-1]
	if b2.Close <= 0 {
		return models.Signal{}, false
	}

	var direction models.Side
	var gap, stop float64
	switch {
	case b3.Low > b1.High && b3.Close > g.rangeHigh:
		direction = models.SideLong
		gap = (b3.Low - b1.High) / b2.Close * 100
		stop = g.rangeLow
	case b3.High < b1.Low && b3.Close < g.rangeLow:
		direction = models.SideShort
		gap = (b1.Low - b3.High) / b2.Close * 100
		stop = g.rangeHigh
	default:
		return models.Signal{}, false
	}
	if gap < g.cfg.MinGapSize {
		return models.Signal{}, false
	}

	reasons := []models.ReasonCode{models.ReasonOpeningRangeGap, models.ReasonRangeBreakout}
	if g.cfg.RequireVolumeConfirm {
		if in.Snapshot == nil || in.Snapshot.AvgVol20 <= 0 {
			return models.Signal{}, false
		}
		if float64(b3.Volume) < in.Snapshot.AvgVol20*g.cfg.VolumeConfirmRatio {
			return models.Signal{}, false
		}
		reasons = append(reasons, models.ReasonVolumeConfirm)
	}

	return models.Signal{
		Symbol:    in.Symbol,
		Direction: direction,
		Strength:  orfvgStrength,
		Stop:      stop,
		Reasons:   reasons,
		Regime:    in.Regime,
		At:        in.Now,
	}, true
}
