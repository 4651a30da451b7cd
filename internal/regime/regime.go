// Package regime classifies current market conditions so downstream
// strategy and risk logic can adapt. Classification is a pure function
// of the indicator snapshot.
package regime

import (
	"math"

	"alpaca-trader/internal/indicators"
	"alpaca-trader/internal/models"
)

// Classifier labels market regimes from indicator values.
type Classifier struct {
	adxThreshold float64
	highVolPct   float64
	lowVolPct    float64
}

// NewClassifier returns a Classifier using the given ADX threshold to
// separate trending from ranging markets and the given ATR percentile
// bounds to flag volatility extremes.
func NewClassifier(adxThreshold, highVolPct, lowVolPct float64) *Classifier {
	return &Classifier{
		adxThreshold: adxThreshold,
		highVolPct:   highVolPct,
		lowVolPct:    lowVolPct,
	}
}

// Classify determines the market regime from an indicator snapshot.
// Volatility extremes take priority for the label; the Trending flag is
// always derived from ADX so strategies keep their directional read even
// inside a volatility regime.
func (c *Classifier) Classify(snap *indicators.Snapshot) models.MarketRegime {
	trending := snap.ADX > c.adxThreshold

	var label models.RegimeLabel
	switch {
	case snap.ATRPct > c.highVolPct:
		label = models.RegimeHighVolatility
	case snap.ATRPct < c.lowVolPct:
		label = models.RegimeLowVolatility
	case trending:
		label = models.RegimeTrending
	default:
		label = models.RegimeRanging
	}

	return models.MarketRegime{
		Label:      label,
		Trending:   trending,
		Confidence: c.confidence(snap, label),
	}
}

// confidence scores how decisive the classification is, from 0.5 for a
// borderline call up to 1.0 for a clear one.
func (c *Classifier) confidence(snap *indicators.Snapshot, label models.RegimeLabel) float64 {
	var dist float64
	switch label {
	case models.RegimeHighVolatility:
		if c.highVolPct < 100 {
			dist = (snap.ATRPct - c.highVolPct) / (100 - c.highVolPct)
		}
	case models.RegimeLowVolatility:
		if c.lowVolPct > 0 {
			dist = (c.lowVolPct - snap.ATRPct) / c.lowVolPct
		}
	case models.RegimeTrending:
		if c.adxThreshold > 0 {
			dist = (snap.ADX - c.adxThreshold) / c.adxThreshold
		}
	default:
		if c.adxThreshold > 0 {
			dist = (c.adxThreshold - snap.ADX) / c.adxThreshold
		}
	}
	return 0.5 + 0.5*clamp01(dist)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
