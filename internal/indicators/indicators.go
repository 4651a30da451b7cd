// Package indicators provides technical indicator calculations as pure
// functions over ordered bar sequences. No function keeps state between
// calls; identical input always yields identical output.
package indicators

import (
	"errors"
	"math"

	"alpaca-trader/internal/models"
)

var (
	// ErrInsufficientData indicates there are not enough bars for the
	// requested period.
	ErrInsufficientData = errors.New("insufficient data for calculation")
	// ErrInvalidPeriod indicates a non-positive period.
	ErrInvalidPeriod = errors.New("period must be positive")
)

// Closes extracts close prices from bars.
func Closes(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// SMA calculates the simple moving average series. Entries before the
// first full window are zero.
func SMA(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(values) < period {
		return nil, ErrInsufficientData
	}
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out, nil
}

// EMA calculates the exponential moving average series, seeded from the
// first value.
func EMA(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(values) < period {
		return nil, ErrInsufficientData
	}
	out := make([]float64, len(values))
	k := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out, nil
}

// RSI calculates the Relative Strength Index series with Wilder
// smoothing. Entries before period are zero.
func RSI(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(values) < period+1 {
		return nil, ErrInsufficientData
	}

	n := len(values)
	out := make([]float64, n)
	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	avgGain := mean(gains[1 : period+1])
	avgLoss := mean(losses[1 : period+1])
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < n; i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// TrueRange calculates the true range series.
func TrueRange(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		tr := b.High - b.Low
		if i > 0 {
			prev := bars[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
		}
		out[i] = tr
	}
	return out
}

// ATR calculates the Average True Range series as a rolling mean of the
// true range.
func ATR(bars []models.Bar, period int) ([]float64, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(bars) < period+1 {
		return nil, ErrInsufficientData
	}
	return SMA(TrueRange(bars), period)
}

// ATRPercentile returns the percentile rank (0..100) of the latest ATR
// value within the ATR series.
func ATRPercentile(atr []float64) float64 {
	if len(atr) == 0 {
		return 0
	}
	latest := atr[len(atr)-1]
	count := 0
	valid := 0
	for _, v := range atr {
		if v == 0 {
			continue // warmup entries
		}
		valid++
		if v <= latest {
			count++
		}
	}
	if valid == 0 {
		return 0
	}
	return float64(count) / float64(valid) * 100
}

// ADX calculates the Average Directional Index series.
func ADX(bars []models.Bar, period int) ([]float64, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(bars) < 3*period {
		return nil, ErrInsufficientData
	}

	n := len(bars)
	tr := TrueRange(bars)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := bars[i].High - bars[i-1].High
		down := bars[i-1].Low - bars[i].Low
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	atr, err := SMA(tr, period)
	if err != nil {
		return nil, err
	}
	plusSm, _ := SMA(plusDM, period)
	minusSm, _ := SMA(minusDM, period)

	dx := make([]float64, n)
	for i := period - 1; i < n; i++ {
		if atr[i] == 0 {
			continue
		}
		plusDI := 100 * plusSm[i] / atr[i]
		minusDI := 100 * minusSm[i] / atr[i]
		sum := plusDI + minusDI
		if sum == 0 {
			sum = 1e-4
		}
		dx[i] = 100 * math.Abs(plusDI-minusDI) / sum
	}

	return SMA(dx, period)
}

// MACD calculates the MACD line, signal line and histogram series.
func MACD(values []float64, fast, slow, signal int) (macdLine, signalLine, histogram []float64, err error) {
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return nil, nil, nil, ErrInvalidPeriod
	}
	if len(values) < slow+signal {
		return nil, nil, nil, ErrInsufficientData
	}
	emaFast, err := EMA(values, fast)
	if err != nil {
		return nil, nil, nil, err
	}
	emaSlow, err := EMA(values, slow)
	if err != nil {
		return nil, nil, nil, err
	}
	macdLine = make([]float64, len(values))
	for i := range values {
		macdLine[i] = emaFast[i] - emaSlow[i]
	}
	signalLine, err = EMA(macdLine, signal)
	if err != nil {
		return nil, nil, nil, err
	}
	histogram = make([]float64, len(values))
	for i := range values {
		histogram[i] = macdLine[i] - signalLine[i]
	}
	return macdLine, signalLine, histogram, nil
}

// Bollinger calculates Bollinger Bands series.
func Bollinger(values []float64, period int, numStd float64) (upper, middle, lower []float64, err error) {
	middle, err = SMA(values, period)
	if err != nil {
		return nil, nil, nil, err
	}
	upper = make([]float64, len(values))
	lower = make([]float64, len(values))
	for i := period - 1; i < len(values); i++ {
		window := values[i-period+1 : i+1]
		m := middle[i]
		var sq float64
		for _, v := range window {
			sq += (v - m) * (v - m)
		}
		std := math.Sqrt(sq / float64(period))
		upper[i] = m + std*numStd
		lower[i] = m - std*numStd
	}
	return upper, middle, lower, nil
}

// AverageVolume returns the rolling mean volume over the trailing window
// ending at the last bar.
func AverageVolume(bars []models.Bar, window int) (float64, error) {
	if window <= 0 {
		return 0, ErrInvalidPeriod
	}
	if len(bars) < window {
		return 0, ErrInsufficientData
	}
	var sum int64
	for _, b := range bars[len(bars)-window:] {
		sum += b.Volume
	}
	return float64(sum) / float64(window), nil
}
