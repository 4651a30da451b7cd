// Package risk converts signals into approved, fully-specified order
// sizes or rejections. Every approval carries a stop and take-profit
// levels; a position is never opened without a predefined exit.
package risk

import (
	"math"
	"time"

	"alpaca-trader/internal/config"
	"alpaca-trader/internal/models"
)

// Sizer applies the account-level risk rules to each signal. It reads
// AccountState but never mutates it.
type Sizer struct {
	cfg         config.RiskConfig
	allowShorts bool
}

// NewSizer returns a Sizer for the given risk configuration.
func NewSizer(cfg config.RiskConfig, allowShorts bool) *Sizer {
	return &Sizer{cfg: cfg, allowShorts: allowShorts}
}

func reject(reason models.RejectReason) models.RiskDecision {
	return models.RiskDecision{Approved: false, Reason: reason}
}

// Evaluate sizes a signal against the account. Checks run in a fixed
// order: stop validity, size and notional bounds, reward/risk, drawdown
// kill-switch, daily trade cap, then the pattern-day-trade rule.
func (s *Sizer) Evaluate(sig models.Signal, acct models.AccountState, atr, price float64, now time.Time) models.RiskDecision {
	if sig.Direction == models.SideFlat {
		return reject(models.RejectNone)
	}
	if sig.Direction == models.SideShort && !s.allowShorts {
		return reject(models.RejectShortsDisabled)
	}

	stopDistance := atr * s.cfg.ATRStopMultiplier
	if sig.Stop > 0 {
		stopDistance = math.Abs(price - sig.Stop)
	} else if atr <= 0 {
		return reject(models.RejectNoATR)
	}
	if stopDistance <= 0 {
		return reject(models.RejectZeroStopDistance)
	}

	riskAmount := acct.Equity * s.cfg.RiskPerTrade
	quantity := int(math.Floor(riskAmount / stopDistance))
	quantity = s.floorToLot(quantity)

	if s.cfg.MaxNotionalPct > 0 && price > 0 {
		maxQty := s.floorToLot(int(math.Floor(acct.Equity * s.cfg.MaxNotionalPct / price)))
		if quantity > maxQty {
			quantity = maxQty
		}
	}

	notional := float64(quantity) * price
	if quantity <= 0 || notional < s.cfg.MinNotional {
		return reject(models.RejectBelowMinNotional)
	}
	if acct.BuyingPower > 0 && notional > acct.BuyingPower {
		return reject(models.RejectInsufficientFunds)
	}

	// The nearest target defines the projected reward, so the first
	// profit target's R-multiple is the reward/risk ratio.
	if s.cfg.ProfitTarget1 < s.cfg.MinRiskReward {
		return reject(models.RejectRiskReward)
	}

	if acct.Drawdown() >= s.cfg.MaxDrawdown {
		return reject(models.RejectDrawdownKill)
	}
	if acct.TradesToday >= s.cfg.MaxTradesPerDay {
		return reject(models.RejectMaxTradesPerDay)
	}
	if s.cfg.PDTRule && acct.Equity < s.cfg.PDTMinEquity {
		if CountDayTrades(acct.DayTradeDates, now) >= 3 {
			return reject(models.RejectPatternDayTrader)
		}
	}

	stop, targets := s.Levels(sig.Direction, price, stopDistance)
	if sig.Stop > 0 {
		stop = sig.Stop
	}

	return models.RiskDecision{
		Approved:    true,
		Quantity:    quantity,
		Stop:        stop,
		TakeProfits: targets,
		Notional:    notional,
		RiskAmount:  float64(quantity) * stopDistance,
	}
}

func (s *Sizer) floorToLot(quantity int) int {
	lot := s.cfg.LotSize
	if lot <= 1 {
		return quantity
	}
	return quantity / lot * lot
}

// Levels derives the protective stop and the ordered take-profit
// ladder from an entry price and stop distance. Also used to rebuild
// exits for positions recovered at startup.
func (s *Sizer) Levels(direction models.Side, price, stopDistance float64) (float64, []models.TakeProfit) {
	sign := 1.0
	if direction == models.SideShort {
		sign = -1.0
	}
	stop := price - sign*stopDistance
	targets := []models.TakeProfit{
		{
			Price:    price + sign*stopDistance*s.cfg.ProfitTarget1,
			RMult:    s.cfg.ProfitTarget1,
			Fraction: s.cfg.ScaleOutFraction,
		},
		{
			Price:    price + sign*stopDistance*s.cfg.ProfitTarget2,
			RMult:    s.cfg.ProfitTarget2,
			Fraction: 1.0,
		},
	}
	return stop, targets
}
