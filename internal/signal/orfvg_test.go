package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpaca-trader/internal/config"
	"alpaca-trader/internal/indicators"
	"alpaca-trader/internal/models"
)

func orfvgTestConfig() config.ORFVGConfig {
	return config.ORFVGConfig{
		OpeningRangeMinutes:  15,
		MinGapSize:           1.0,
		MaxEntryTime:         "10:30",
		RequireVolumeConfirm: true,
		VolumeConfirmRatio:   1.2,
	}
}

func newTestORFVG(t *testing.T) (*ORFVG, *time.Location) {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	open, err := config.ParseClock("09:30")
	require.NoError(t, err)
	return NewORFVG(orfvgTestConfig(), open, loc), loc
}

func sessionTime(loc *time.Location, hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, loc)
}

// rangeBars returns bars inside the opening-range window establishing
// a [100.00, 101.00] range.
func rangeBars(loc *time.Location) []models.Bar {
	return []models.Bar{
		{Timestamp: sessionTime(loc, 9, 30), Open: 100.2, High: 100.8, Low: 100.0, Close: 100.5, Volume: 1500},
		{Timestamp: sessionTime(loc, 9, 35), Open: 100.5, High: 101.0, Low: 100.3, Close: 100.9, Volume: 1400},
		{Timestamp: sessionTime(loc, 9, 40), Open: 100.9, High: 100.95, Low: 100.4, Close: 100.6, Volume: 1300},
	}
}

// gapBars appends a three-bar bullish fair-value gap breaking above the
// range: bar three's low sits 1.20 above bar one's high.
func gapBars(loc *time.Location, volume int64) []models.Bar {
	b1 := models.Bar{Timestamp: sessionTime(loc, 9, 45), Open: 100.6, High: 101.0, Low: 100.5, Close: 100.9, Volume: 1200}
	b2 := models.Bar{Timestamp: sessionTime(loc, 9, 50), Open: 100.9, High: 102.0, Low: 100.9, Close: 101.8, Volume: 1800}
	b3 := models.Bar{Timestamp: sessionTime(loc, 9, 55), Open: 102.1, High: 102.8, Low: 102.2, Close: 102.6, Volume: volume}
	return []models.Bar{b1, b2, b3}
}

func orfvgInputs(bars []models.Bar, now time.Time) Inputs {
	return Inputs{
		Symbol:   "SPY",
		Bars:     bars,
		Snapshot: &indicators.Snapshot{AvgVol20: 1500},
		Regime:   models.MarketRegime{Label: models.RegimeRanging},
		Now:      now,
	}
}

func TestORFVGArmsLongOnGapBreakout(t *testing.T) {
	g, loc := newTestORFVG(t)

	// range window closes; machine fixes [100.00, 101.00]
	sig := g.Generate(orfvgInputs(rangeBars(loc), sessionTime(loc, 9, 46)))
	assert.Equal(t, models.SideFlat, sig.Direction)
	assert.Equal(t, ORScanningForGap, g.State())
	high, low := g.Range()
	assert.InDelta(t, 101.0, high, 1e-9)
	assert.InDelta(t, 100.0, low, 1e-9)

	// gap of 1.20 with volume confirmation arms a long signal
	bars := append(rangeBars(loc), gapBars(loc, 2000)...)
	sig = g.Generate(orfvgInputs(bars, sessionTime(loc, 9, 56)))
	assert.Equal(t, ORSignalArmed, g.State())
	assert.Equal(t, models.SideLong, sig.Direction)
	assert.InDelta(t, orfvgStrength, sig.Strength, 1e-9)
	assert.InDelta(t, 100.0, sig.Stop, 1e-9)
	assert.Contains(t, sig.Reasons, models.ReasonOpeningRangeGap)
	assert.Contains(t, sig.Reasons, models.ReasonRangeBreakout)
	assert.Contains(t, sig.Reasons, models.ReasonVolumeConfirm)
	assert.True(t, sig.ExpiresAt.Equal(sessionTime(loc, 10, 30)))
}

func TestORFVGExpiresWithoutEntry(t *testing.T) {
	g, loc := newTestORFVG(t)
	bars := append(rangeBars(loc), gapBars(loc, 2000)...)

	g.Generate(orfvgInputs(rangeBars(loc), sessionTime(loc, 9, 46)))
	g.Generate(orfvgInputs(bars, sessionTime(loc, 9, 56)))
	assert.Equal(t, ORSignalArmed, g.State())

	// past the maximum entry time the signal lapses
	sig := g.Generate(orfvgInputs(bars, sessionTime(loc, 10, 31)))
	assert.Equal(t, ORExpired, g.State())
	assert.Equal(t, models.SideFlat, sig.Direction)

	// and no further signal is produced this session
	sig = g.Generate(orfvgInputs(bars, sessionTime(loc, 11, 0)))
	assert.Equal(t, models.SideFlat, sig.Direction)
}

func TestORFVGRejectsGapBelowMinimum(t *testing.T) {
	g, loc := newTestORFVG(t)
	g.Generate(orfvgInputs(rangeBars(loc), sessionTime(loc, 9, 46)))

	bars := append(rangeBars(loc), gapBars(loc, 2000)...)
	// shrink the gap below one percent of the middle bar
	bars[len(bars)-1].Low = 101.5
	sig := g.Generate(orfvgInputs(bars, sessionTime(loc, 9, 56)))
	assert.Equal(t, models.SideFlat, sig.Direction)
	assert.Equal(t, ORScanningForGap, g.State())
}

func TestORFVGRejectsWithoutVolumeConfirm(t *testing.T) {
	g, loc := newTestORFVG(t)
	g.Generate(orfvgInputs(rangeBars(loc), sessionTime(loc, 9, 46)))

	bars := append(rangeBars(loc), gapBars(loc, 1000)...) // below 1.2x avg
	sig := g.Generate(orfvgInputs(bars, sessionTime(loc, 9, 56)))
	assert.Equal(t, models.SideFlat, sig.Direction)
	assert.Equal(t, ORScanningForGap, g.State())
}

func TestORFVGConsumedBlocksSecondSignal(t *testing.T) {
	g, loc := newTestORFVG(t)
	bars := append(rangeBars(loc), gapBars(loc, 2000)...)

	g.Generate(orfvgInputs(rangeBars(loc), sessionTime(loc, 9, 46)))
	sig := g.Generate(orfvgInputs(bars, sessionTime(loc, 9, 56)))
	require.Equal(t, models.SideLong, sig.Direction)

	g.Consume(sessionTime(loc, 9, 57))
	assert.Equal(t, ORConsumed, g.State())

	sig = g.Generate(orfvgInputs(bars, sessionTime(loc, 10, 0)))
	assert.Equal(t, models.SideFlat, sig.Direction)
}

func TestORFVGResetsNextSession(t *testing.T) {
	g, loc := newTestORFVG(t)
	bars := append(rangeBars(loc), gapBars(loc, 2000)...)

	g.Generate(orfvgInputs(rangeBars(loc), sessionTime(loc, 9, 46)))
	g.Generate(orfvgInputs(bars, sessionTime(loc, 9, 56)))
	g.Consume(sessionTime(loc, 9, 57))

	nextDay := sessionTime(loc, 9, 31).AddDate(0, 0, 1)
	g.Generate(orfvgInputs(nil, nextDay))
	assert.Equal(t, ORCapturingRange, g.State())
}

func TestORFVGTransitionsObserved(t *testing.T) {
	g, loc := newTestORFVG(t)
	var seen []ORState
	g.OnTransition = func(from, to ORState, at time.Time) {
		seen = append(seen, to)
	}

	bars := append(rangeBars(loc), gapBars(loc, 2000)...)
	g.Generate(orfvgInputs(rangeBars(loc), sessionTime(loc, 9, 46)))
	g.Generate(orfvgInputs(bars, sessionTime(loc, 9, 56)))

	assert.Equal(t, []ORState{ORCapturingRange, ORRangeClosed, ORScanningForGap, ORSignalArmed}, seen)
}
