package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFrom(t *testing.T, toml string) *Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0o644))
	cfg, err := Load(dir)
	require.NoError(t, err)
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "SPY", cfg.Symbol)
	assert.Equal(t, ModeCrossover, cfg.Strategy.Mode)
	assert.InDelta(t, 70.0, cfg.Strategy.ATRHighVolPercentile, 1e-9)
	assert.InDelta(t, 30.0, cfg.Strategy.ATRLowVolPercentile, 1e-9)
	assert.False(t, cfg.Session.T1Settlement)
}

func TestT1SettlementKeyIsRead(t *testing.T) {
	cfg := loadFrom(t, "[session]\nt1_settlement = true\n")
	assert.True(t, cfg.Session.T1Settlement)
	assert.False(t, cfg.Session.RequireCashAccount)
}

func TestVolatilityPercentileKeysAreRead(t *testing.T) {
	cfg := loadFrom(t, "[strategy]\natr_high_vol_percentile = 85.0\natr_low_vol_percentile = 15.0\n")
	assert.InDelta(t, 85.0, cfg.Strategy.ATRHighVolPercentile, 1e-9)
	assert.InDelta(t, 15.0, cfg.Strategy.ATRLowVolPercentile, 1e-9)
}

func TestValidateRejectsInvertedPercentileBounds(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	cfg.Strategy.ATRHighVolPercentile = 20
	cfg.Strategy.ATRLowVolPercentile = 40
	assert.Error(t, cfg.Validate())
}
