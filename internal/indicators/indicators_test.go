package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpaca-trader/internal/models"
)

func barsFromCloses(closes []float64) []models.Bar {
	bars := make([]models.Bar, len(closes))
	base := time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = models.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      c,
			High:      c + 0.5,
			Low:       c - 0.5,
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	out, err := SMA(values, 3)
	require.NoError(t, err)
	assert.Equal(t, 0.0, out[1])
	assert.InDelta(t, 2.0, out[2], 1e-9)
	assert.InDelta(t, 3.0, out[3], 1e-9)
	assert.InDelta(t, 4.0, out[4], 1e-9)
}

func TestSMAErrors(t *testing.T) {
	_, err := SMA([]float64{1, 2}, 0)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
	_, err = SMA([]float64{1, 2}, 5)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestEMAConvergesToConstant(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = 50.0
	}
	out, err := EMA(values, 10)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, out[len(out)-1], 1e-9)
}

func TestEMATracksFasterThanSMA(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = 100.0
	}
	// step up at the end; EMA should react more than SMA
	for i := 50; i < 60; i++ {
		values[i] = 110.0
	}
	ema, err := EMA(values, 20)
	require.NoError(t, err)
	sma, err := SMA(values, 20)
	require.NoError(t, err)
	assert.Greater(t, ema[59], sma[59])
}

func TestRSIExtremes(t *testing.T) {
	up := make([]float64, 30)
	for i := range up {
		up[i] = 100.0 + float64(i)
	}
	out, err := RSI(up, 14)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, out[len(out)-1], 1e-9)

	down := make([]float64, 30)
	for i := range down {
		down[i] = 100.0 - float64(i)
	}
	out, err = RSI(down, 14)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, out[len(out)-1], 1e-9)
}

func TestRSIRange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("rsi stays within [0,100]", prop.ForAll(
		func(deltas []float64) bool {
			values := make([]float64, len(deltas)+20)
			price := 100.0
			for i := range values {
				if i < len(deltas) {
					price += deltas[i]
				}
				if price < 1 {
					price = 1
				}
				values[i] = price
			}
			out, err := RSI(values, 14)
			if err != nil {
				return false
			}
			for _, v := range out[14:] {
				if v < 0 || v > 100 {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(40, gen.Float64Range(-5, 5)),
	))

	properties.TestingRun(t)
}

func TestTrueRangeUsesPreviousClose(t *testing.T) {
	bars := []models.Bar{
		{High: 102, Low: 100, Close: 101},
		{High: 103, Low: 102, Close: 102.5},
	}
	tr := TrueRange(bars)
	assert.InDelta(t, 2.0, tr[0], 1e-9)
	// high-low is 1 but high-prevClose is 2
	assert.InDelta(t, 2.0, tr[1], 1e-9)
}

func TestATRPositive(t *testing.T) {
	bars := barsFromCloses([]float64{100, 101, 102, 101, 100, 101, 102, 103, 102, 101, 100, 99, 100, 101, 102, 103})
	atr, err := ATR(bars, 14)
	require.NoError(t, err)
	assert.Greater(t, atr[len(atr)-1], 0.0)
}

func TestATRPercentile(t *testing.T) {
	atr := []float64{0, 0, 1.0, 1.5, 2.0, 2.5, 3.0}
	// latest value 3.0 is the max of the five valid entries
	assert.InDelta(t, 100.0, ATRPercentile(atr), 1e-9)

	atr = []float64{0, 3.0, 2.5, 2.0, 1.5, 1.0}
	assert.InDelta(t, 20.0, ATRPercentile(atr), 1e-9)
}

func TestMACDCrossSign(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = 100.0 + float64(i)*0.5
	}
	macdLine, signalLine, hist, err := MACD(values, 12, 26, 9)
	require.NoError(t, err)
	last := len(values) - 1
	assert.Greater(t, macdLine[last], 0.0)
	assert.InDelta(t, macdLine[last]-signalLine[last], hist[last], 1e-9)
}

func TestBollingerBandsOrdering(t *testing.T) {
	values := make([]float64, 40)
	for i := range values {
		values[i] = 100.0 + math.Sin(float64(i))*2
	}
	upper, middle, lower, err := Bollinger(values, 20, 2.0)
	require.NoError(t, err)
	last := len(values) - 1
	assert.Greater(t, upper[last], middle[last])
	assert.Less(t, lower[last], middle[last])
}

func TestAverageVolume(t *testing.T) {
	bars := barsFromCloses(make([]float64, 25))
	for i := range bars {
		bars[i].Volume = int64(1000 + i*100)
	}
	avg, err := AverageVolume(bars, 20)
	require.NoError(t, err)
	// last 20 bars have volumes 1500..3400
	assert.InDelta(t, 2450.0, avg, 1e-9)
}

func TestComputeSnapshot(t *testing.T) {
	closes := make([]float64, 250)
	for i := range closes {
		closes[i] = 100.0 + float64(i)*0.1 + math.Sin(float64(i)/5)*1.5
	}
	bars := barsFromCloses(closes)

	snap, err := Compute(bars, Params{
		ShortWindow: 20,
		LongWindow:  50,
		UseEMA:      false,
		RSIPeriod:   14,
		ATRPeriod:   14,
		ADXPeriod:   14,
	})
	require.NoError(t, err)
	assert.Greater(t, snap.ATR, 0.0)
	assert.Greater(t, snap.SMA200, 0.0)
	assert.Greater(t, snap.AvgVol20, 0.0)
	assert.NotZero(t, snap.ShortMA[len(snap.ShortMA)-1])
}

func TestComputeInsufficientData(t *testing.T) {
	bars := barsFromCloses([]float64{100, 101, 102})
	_, err := Compute(bars, Params{ShortWindow: 20, LongWindow: 50, RSIPeriod: 14, ATRPeriod: 14, ADXPeriod: 14})
	assert.ErrorIs(t, err, ErrInsufficientData)
}
