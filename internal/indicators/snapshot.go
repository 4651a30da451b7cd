package indicators

import "alpaca-trader/internal/models"

// Snapshot holds all indicator values for a single symbol at a single
// point in time. Series fields keep full history so consumers can look
// back over recent bars; scalar fields reflect the latest completed bar.
type Snapshot struct {
	ShortMA []float64
	LongMA  []float64

	RSI      float64
	ATR      float64
	ATRPct   float64
	ADX      float64
	SMA200   float64
	AvgVol20 float64

	MACDLine  []float64
	MACDSig   []float64
	MACDHist  []float64
	BollUpper float64
	BollLower float64
	BollMid   float64
}

// Params controls which periods Compute uses.
type Params struct {
	ShortWindow int
	LongWindow  int
	UseEMA      bool
	RSIPeriod   int
	ATRPeriod   int
	ADXPeriod   int
}

// Compute builds a Snapshot from bars. It fails when the series is too
// short for the slowest indicator; callers treat that as a skipped tick,
// not a fault.
func Compute(bars []models.Bar, p Params) (*Snapshot, error) {
	closes := Closes(bars)

	ma := SMA
	if p.UseEMA {
		ma = EMA
	}
	short, err := ma(closes, p.ShortWindow)
	if err != nil {
		return nil, err
	}
	long, err := ma(closes, p.LongWindow)
	if err != nil {
		return nil, err
	}
	rsi, err := RSI(closes, p.RSIPeriod)
	if err != nil {
		return nil, err
	}
	atr, err := ATR(bars, p.ATRPeriod)
	if err != nil {
		return nil, err
	}
	macdLine, macdSig, macdHist, err := MACD(closes, 12, 26, 9)
	if err != nil {
		return nil, err
	}
	upper, middle, lower, err := Bollinger(closes, 20, 2.0)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		ShortMA:  short,
		LongMA:   long,
		RSI:      rsi[len(rsi)-1],
		ATR:      atr[len(atr)-1],
		ATRPct:   ATRPercentile(atr),
		MACDLine: macdLine,
		MACDSig:  macdSig,
		MACDHist: macdHist,
	}
	snap.BollUpper = upper[len(upper)-1]
	snap.BollMid = middle[len(middle)-1]
	snap.BollLower = lower[len(lower)-1]

	// ADX and the 200-bar SMA need deep history; leave them zero when
	// the series is too short so consumers can degrade gracefully.
	if adx, err := ADX(bars, p.ADXPeriod); err == nil {
		snap.ADX = adx[len(adx)-1]
	}
	if sma200, err := SMA(closes, 200); err == nil {
		snap.SMA200 = sma200[len(sma200)-1]
	}
	if av, err := AverageVolume(bars, 20); err == nil {
		snap.AvgVol20 = av
	}
	return snap, nil
}
