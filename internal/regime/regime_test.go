package regime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"alpaca-trader/internal/indicators"
	"alpaca-trader/internal/models"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(25.0, 70.0, 30.0)

	tests := []struct {
		name         string
		atrPct       float64
		adx          float64
		wantLabel    models.RegimeLabel
		wantTrending bool
	}{
		{"high volatility wins over trend", 85, 40, models.RegimeHighVolatility, true},
		{"low volatility wins over trend", 10, 40, models.RegimeLowVolatility, true},
		{"trending", 50, 35, models.RegimeTrending, true},
		{"ranging", 50, 15, models.RegimeRanging, false},
		{"adx at threshold is not trending", 50, 25, models.RegimeRanging, false},
		{"atr exactly at high bound stays directional", 70, 30, models.RegimeTrending, true},
		{"atr exactly at low bound stays directional", 30, 10, models.RegimeRanging, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(&indicators.Snapshot{ATRPct: tt.atrPct, ADX: tt.adx})
			assert.Equal(t, tt.wantLabel, got.Label)
			assert.Equal(t, tt.wantTrending, got.Trending)
			assert.GreaterOrEqual(t, got.Confidence, 0.5)
			assert.LessOrEqual(t, got.Confidence, 1.0)
		})
	}
}

func TestVolatilityBoundsAreConfigurable(t *testing.T) {
	c := NewClassifier(25.0, 90.0, 10.0)

	got := c.Classify(&indicators.Snapshot{ATRPct: 85, ADX: 40})
	assert.Equal(t, models.RegimeTrending, got.Label)

	got = c.Classify(&indicators.Snapshot{ATRPct: 95, ADX: 40})
	assert.Equal(t, models.RegimeHighVolatility, got.Label)

	got = c.Classify(&indicators.Snapshot{ATRPct: 5, ADX: 10})
	assert.Equal(t, models.RegimeLowVolatility, got.Label)
}

func TestConfidenceScalesWithDistance(t *testing.T) {
	c := NewClassifier(25.0, 70.0, 30.0)

	borderline := c.Classify(&indicators.Snapshot{ATRPct: 71, ADX: 10})
	extreme := c.Classify(&indicators.Snapshot{ATRPct: 99, ADX: 10})
	assert.Equal(t, models.RegimeHighVolatility, borderline.Label)
	assert.Equal(t, models.RegimeHighVolatility, extreme.Label)
	assert.Greater(t, extreme.Confidence, borderline.Confidence)
}
