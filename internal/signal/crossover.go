package signal

import (
	"alpaca-trader/internal/config"
	"alpaca-trader/internal/indicators"
	"alpaca-trader/internal/models"
)

// Confirmation weights. The crossover itself carries the base weight;
// the rest accumulate per passing confirmation so the maximum total is
// exactly 1.0.
const (
	weightCrossover  = 0.30
	weightRSI        = 0.20
	weightMACD       = 0.15
	weightVolume     = 0.15
	weightCandle     = 0.10
	weightMultiframe = 0.10
)

// Crossover generates signals from a fast/slow moving-average crossover
// confirmed by momentum, volume and pattern filters. It keeps no state
// between ticks.
type Crossover struct {
	cfg config.StrategyConfig
}

// NewCrossover returns a crossover-mode generator.
func NewCrossover(cfg config.StrategyConfig) *Crossover {
	return &Crossover{cfg: cfg}
}

// Generate evaluates one tick. The crossover event itself must have
// occurred within the configured lookback window; a pair of averages
// that merely remains crossed does not qualify.
func (g *Crossover) Generate(in Inputs) models.Signal {
	snap := in.Snapshot
	direction := crossedWithin(snap.ShortMA, snap.LongMA, g.cfg.CrossoverLookback)
	if direction == models.SideFlat {
		return flat(in.Symbol, in.Regime, in.Now)
	}
	if direction == models.SideShort && !g.cfg.EnableShortSelling {
		return flat(in.Symbol, in.Regime, in.Now)
	}

	price := in.Bars[len(in.Bars)-1].Close

	if g.cfg.UseVIXFilter && in.VIX > g.cfg.VIXThreshold {
		return flat(in.Symbol, in.Regime, in.Now)
	}
	if g.cfg.Use200SMAFilter && !g.sma200Allows(direction, price, snap.SMA200) {
		return flat(in.Symbol, in.Regime, in.Now)
	}

	strength := weightCrossover
	reasons := []models.ReasonCode{models.ReasonCrossover}

	if g.rsiConfirms(direction, in.Regime, snap.RSI) {
		strength += weightRSI
		reasons = append(reasons, models.ReasonRSIBand)
	}

	macdOK := macdConfirms(direction, snap)
	if g.cfg.RequireMACDConfirm && !macdOK {
		return flat(in.Symbol, in.Regime, in.Now)
	}
	if macdOK {
		strength += weightMACD
		reasons = append(reasons, models.ReasonMACDConfirm)
	}

	if g.volumeConfirms(in.Bars, snap) {
		strength += weightVolume
		reasons = append(reasons, models.ReasonVolumeConfirm)
	}

	candleOK := candleConfirms(direction, in.Bars)
	if g.cfg.RequireCandlePattern && !candleOK {
		return flat(in.Symbol, in.Regime, in.Now)
	}
	if candleOK {
		strength += weightCandle
		reasons = append(reasons, models.ReasonCandlePattern)
	}

	if g.cfg.MultiframeFilter && multiframeConfirms(direction, in.HourlyBars) {
		strength += weightMultiframe
		reasons = append(reasons, models.ReasonTrendAlignment)
	}

	if strength < g.cfg.MinSignalStrength {
		return flat(in.Symbol, in.Regime, in.Now)
	}

	return models.Signal{
		Symbol:    in.Symbol,
		Direction: direction,
		Strength:  strength,
		Reasons:   reasons,
		Regime:    in.Regime,
		At:        in.Now,
	}
}

// crossedWithin scans the last lookback bars for a crossover event.
// Warmup entries (zeros) in either series are skipped.
func crossedWithin(short, long []float64, lookback int) models.Side {
	n := len(short)
	if len(long) < n {
		n = len(long)
	}
	if n < 2 || lookback < 1 {
		return models.SideFlat
	}
	start := n - lookback
	if start < 1 {
		start = 1
	}
	for i := n - 1; i >= start; i-- {
		if short[i] == 0 || long[i] == 0 || short[i-1] == 0 || long[i-1] == 0 {
			continue
		}
		if short[i-1] <= long[i-1] && short[i] > long[i] {
			return models.SideLong
		}
		if short[i-1] >= long[i-1] && short[i] < long[i] {
			return models.SideShort
		}
	}
	return models.SideFlat
}

// rsiConfirms checks the regime-dependent RSI band. Ranging markets use
// the tighter mean-reversion bounds; trending markets only exclude
// exhausted momentum.
func (g *Crossover) rsiConfirms(direction models.Side, regime models.MarketRegime, rsi float64) bool {
	if rsi == 0 {
		return false
	}
	ranging := g.cfg.RegimeDetection && !regime.Trending
	if direction == models.SideLong {
		if ranging {
			return rsi <= g.cfg.RSIRangeOversold
		}
		return rsi <= g.cfg.RSIBuyMax
	}
	if ranging {
		return rsi >= g.cfg.RSIRangeOverbought
	}
	return rsi >= g.cfg.RSISellMin && rsi <= g.cfg.RSISellMax
}

func macdConfirms(direction models.Side, snap *indicators.Snapshot) bool {
	n := len(snap.MACDHist)
	if n == 0 {
		return false
	}
	hist := snap.MACDHist[n-1]
	if direction == models.SideLong {
		return hist > 0
	}
	return hist < 0
}

func (g *Crossover) volumeConfirms(bars []models.Bar, snap *indicators.Snapshot) bool {
	if g.cfg.VolumeMultiplier <= 0 || snap.AvgVol20 <= 0 {
		return false
	}
	current := float64(bars[len(bars)-1].Volume)
	return current >= snap.AvgVol20*g.cfg.VolumeMultiplier
}

func candleConfirms(direction models.Side, bars []models.Bar) bool {
	if len(bars) < 2 {
		return false
	}
	prev, cur := bars[len(bars)-2], bars[len(bars)-1]
	if direction == models.SideLong {
		return bullishEngulfing(prev, cur)
	}
	return bearishEngulfing(prev, cur)
}

// multiframeConfirms checks 20/50 SMA alignment on the higher timeframe.
func multiframeConfirms(direction models.Side, hourly []models.Bar) bool {
	closes := indicators.Closes(hourly)
	sma20, err := indicators.SMA(closes, 20)
	if err != nil {
		return false
	}
	sma50, err := indicators.SMA(closes, 50)
	if err != nil {
		return false
	}
	fast := sma20[len(sma20)-1]
	slow := sma50[len(sma50)-1]
	if direction == models.SideLong {
		return fast > slow
	}
	return fast < slow
}

// sma200Allows gates entries against the long-term trend with a one
// percent tolerance band around the 200-bar average.
func (g *Crossover) sma200Allows(direction models.Side, price, sma200 float64) bool {
	if sma200 == 0 {
		return false
	}
	if direction == models.SideLong {
		return price > sma200*0.99
	}
	return price < sma200*1.01
}
