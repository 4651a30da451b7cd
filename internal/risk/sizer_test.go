package risk

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpaca-trader/internal/config"
	"alpaca-trader/internal/models"
)

func baseRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		RiskPerTrade:      0.01,
		ATRStopMultiplier: 2.0,
		MinRiskReward:     1.5,
		MaxDrawdown:       0.10,
		MaxTradesPerDay:   5,
		MinNotional:       1000,
		MaxNotionalPct:    0.25,
		LotSize:           1,
		ProfitTarget1:     1.5,
		ProfitTarget2:     3.0,
		ScaleOutFraction:  0.5,
		PDTRule:           true,
		PDTMinEquity:      25000,
	}
}

func baseAccount() models.AccountState {
	return models.AccountState{
		Equity:      100000,
		Cash:        100000,
		BuyingPower: 100000,
		PeakEquity:  100000,
	}
}

func longSignal() models.Signal {
	return models.Signal{Symbol: "SPY", Direction: models.SideLong, Strength: 0.7}
}

func noon() time.Time {
	return time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
}

func TestSizerApprovesScenario(t *testing.T) {
	// equity 100000, risk 1%, ATR 2.0, stop multiplier 2.0:
	// stop distance 4.0 so size is 250 shares
	s := NewSizer(baseRiskConfig(), false)
	d := s.Evaluate(longSignal(), baseAccount(), 2.0, 100.0, noon())

	require.True(t, d.Approved)
	assert.Equal(t, 250, d.Quantity)
	assert.InDelta(t, 96.0, d.Stop, 1e-9)
	require.Len(t, d.TakeProfits, 2)
	assert.InDelta(t, 106.0, d.TakeProfits[0].Price, 1e-9)
	assert.InDelta(t, 112.0, d.TakeProfits[1].Price, 1e-9)
	assert.InDelta(t, 0.5, d.TakeProfits[0].Fraction, 1e-9)
	assert.InDelta(t, 1.0, d.TakeProfits[1].Fraction, 1e-9)
	assert.InDelta(t, 25000.0, d.Notional, 1e-9)
	assert.InDelta(t, 1000.0, d.RiskAmount, 1e-9)
}

func TestSizerRejectsWithoutATR(t *testing.T) {
	s := NewSizer(baseRiskConfig(), false)
	d := s.Evaluate(longSignal(), baseAccount(), 0, 100.0, noon())
	assert.False(t, d.Approved)
	assert.Equal(t, models.RejectNoATR, d.Reason)
}

func TestSizerUsesSignalStop(t *testing.T) {
	cfg := baseRiskConfig()
	cfg.MaxNotionalPct = 1.0
	s := NewSizer(cfg, false)
	sig := longSignal()
	sig.Stop = 98.0 // opening-range low
	d := s.Evaluate(sig, baseAccount(), 0, 100.0, noon())
	require.True(t, d.Approved)
	assert.InDelta(t, 98.0, d.Stop, 1e-9)
	// stop distance 2.0 so size is 500
	assert.Equal(t, 500, d.Quantity)
}

func TestSizerClampsToMaxNotional(t *testing.T) {
	cfg := baseRiskConfig()
	cfg.RiskPerTrade = 0.05 // unclamped size would be 1250 shares
	s := NewSizer(cfg, false)
	d := s.Evaluate(longSignal(), baseAccount(), 2.0, 100.0, noon())
	require.True(t, d.Approved)
	assert.Equal(t, 250, d.Quantity) // 25% of equity at 100/share
	assert.LessOrEqual(t, d.Notional, 100000*0.25)
}

func TestSizerRejectsBelowMinNotional(t *testing.T) {
	s := NewSizer(baseRiskConfig(), false)
	acct := baseAccount()
	acct.Equity = 2000
	acct.PeakEquity = 2000
	d := s.Evaluate(longSignal(), acct, 2.0, 100.0, noon())
	assert.False(t, d.Approved)
	assert.Equal(t, models.RejectBelowMinNotional, d.Reason)
}

func TestSizerRejectsInsufficientRiskReward(t *testing.T) {
	cfg := baseRiskConfig()
	cfg.ProfitTarget1 = 1.0
	s := NewSizer(cfg, false)
	d := s.Evaluate(longSignal(), baseAccount(), 2.0, 100.0, noon())
	assert.False(t, d.Approved)
	assert.Equal(t, models.RejectRiskReward, d.Reason)
}

func TestSizerDrawdownKillSwitch(t *testing.T) {
	s := NewSizer(baseRiskConfig(), false)
	acct := baseAccount()
	acct.Equity = 90000 // drawdown exactly at the 10% limit
	d := s.Evaluate(longSignal(), acct, 2.0, 100.0, noon())
	assert.False(t, d.Approved)
	assert.Equal(t, models.RejectDrawdownKill, d.Reason)

	acct.Equity = 90001
	d = s.Evaluate(longSignal(), acct, 2.0, 100.0, noon())
	assert.True(t, d.Approved)
}

func TestSizerDailyTradeCap(t *testing.T) {
	s := NewSizer(baseRiskConfig(), false)
	acct := baseAccount()
	acct.TradesToday = 5
	d := s.Evaluate(longSignal(), acct, 2.0, 100.0, noon())
	assert.False(t, d.Approved)
	assert.Equal(t, models.RejectMaxTradesPerDay, d.Reason)
}

func TestSizerPDTRule(t *testing.T) {
	s := NewSizer(baseRiskConfig(), false)
	acct := baseAccount()
	acct.Equity = 20000 // below the 25000 minimum
	acct.Cash = 20000
	acct.BuyingPower = 20000
	acct.PeakEquity = 20000
	now := noon()
	acct.DayTradeDates = []time.Time{
		now.AddDate(0, 0, -1),
		now.AddDate(0, 0, -2),
		now,
	}
	d := s.Evaluate(longSignal(), acct, 2.0, 50.0, now)
	assert.False(t, d.Approved)
	assert.Equal(t, models.RejectPatternDayTrader, d.Reason)

	// above the equity threshold the rule does not apply
	acct.Equity = 30000
	acct.BuyingPower = 30000
	acct.PeakEquity = 30000
	d = s.Evaluate(longSignal(), acct, 2.0, 50.0, now)
	assert.True(t, d.Approved)
}

func TestSizerRejectsShortsWhenDisabled(t *testing.T) {
	s := NewSizer(baseRiskConfig(), false)
	sig := longSignal()
	sig.Direction = models.SideShort
	d := s.Evaluate(sig, baseAccount(), 2.0, 100.0, noon())
	assert.False(t, d.Approved)
	assert.Equal(t, models.RejectShortsDisabled, d.Reason)
}

func TestSizerShortExitLevels(t *testing.T) {
	s := NewSizer(baseRiskConfig(), true)
	sig := longSignal()
	sig.Direction = models.SideShort
	d := s.Evaluate(sig, baseAccount(), 2.0, 100.0, noon())
	require.True(t, d.Approved)
	assert.InDelta(t, 104.0, d.Stop, 1e-9)
	assert.InDelta(t, 94.0, d.TakeProfits[0].Price, 1e-9)
	assert.InDelta(t, 88.0, d.TakeProfits[1].Price, 1e-9)
}

func TestSizerLotRounding(t *testing.T) {
	cfg := baseRiskConfig()
	cfg.LotSize = 100
	s := NewSizer(cfg, false)
	d := s.Evaluate(longSignal(), baseAccount(), 2.0, 100.0, noon())
	require.True(t, d.Approved)
	assert.Equal(t, 200, d.Quantity) // 250 floored to the 100-share lot
}

func TestApprovedDecisionInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	cfg := baseRiskConfig()
	s := NewSizer(cfg, false)

	properties.Property("approvals have positive size within notional cap", prop.ForAll(
		func(equity, atr, price float64) bool {
			acct := models.AccountState{
				Equity:      equity,
				Cash:        equity,
				BuyingPower: equity,
				PeakEquity:  equity,
			}
			d := s.Evaluate(longSignal(), acct, atr, price, noon())
			if !d.Approved {
				return true
			}
			return d.Quantity > 0 &&
				d.Stop < price &&
				d.Notional <= equity*cfg.MaxNotionalPct+1e-6 &&
				d.TakeProfits[0].RMult >= cfg.MinRiskReward
		},
		gen.Float64Range(5000, 500000),
		gen.Float64Range(0.1, 20),
		gen.Float64Range(5, 1000),
	))

	properties.TestingRun(t)
}
