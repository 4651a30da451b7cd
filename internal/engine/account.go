package engine

import (
	"time"

	"alpaca-trader/internal/models"
	"alpaca-trader/internal/risk"
)

// accountTracker layers locally-owned counters (peak equity, daily
// trade count, day-trade history, unsettled funds) over the broker's
// account snapshot. Only the engine mutates it, at well-defined points:
// after fills and after closes.
type accountTracker struct {
	peakEquity     float64
	tradesToday    int
	tradesDay      time.Time
	dayTrades      []time.Time
	settle         *risk.SettlementTracker
	t1Settlement   bool
	cashAccount    bool
	cashReservePct float64
}

func newAccountTracker(t1Settlement, cashAccount bool, cashReservePct float64) *accountTracker {
	return &accountTracker{
		settle:         risk.NewSettlementTracker(),
		t1Settlement:   t1Settlement,
		cashAccount:    cashAccount,
		cashReservePct: cashReservePct,
	}
}

// snapshot merges the broker state with local counters for one tick.
func (t *accountTracker) snapshot(broker models.AccountState, now time.Time) models.AccountState {
	t.rollDay(now)
	if broker.Equity > t.peakEquity {
		t.peakEquity = broker.Equity
	}

	out := broker
	out.PeakEquity = t.peakEquity
	out.TradesToday = t.tradesToday
	out.DayTradeDates = append([]time.Time(nil), t.dayTrades...)

	// Unsettled sale proceeds are held back whenever T+1 settlement
	// applies; a cash account additionally keeps a reserve fraction of
	// equity unspent.
	if t.t1Settlement || t.cashAccount {
		available := t.settle.AvailableCash(broker.Cash, now)
		if t.cashAccount {
			available -= broker.Equity * t.cashReservePct
		}
		if available < 0 {
			available = 0
		}
		if out.BuyingPower == 0 || available < out.BuyingPower {
			out.BuyingPower = available
		}
	}
	return out
}

// rollDay resets the daily counter on the first tick of a new calendar
// day in the session timezone (now is already session-local).
func (t *accountTracker) rollDay(now time.Time) {
	if !sameDay(now, t.tradesDay) {
		t.tradesDay = now
		t.tradesToday = 0
	}
	// prune day-trade history beyond the rolling window
	cutoff := risk.BusinessDaysAgo(now, 4)
	kept := t.dayTrades[:0]
	for _, d := range t.dayTrades {
		if !d.Before(cutoff) {
			kept = append(kept, d)
		}
	}
	t.dayTrades = kept
}

// recordOpen counts an entry against the daily trade cap.
func (t *accountTracker) recordOpen(now time.Time) {
	t.rollDay(now)
	t.tradesToday++
}

// recordClose registers sale proceeds for settlement and, when the
// round-trip opened and closed the same day, a day trade for the PDT
// window.
func (t *accountTracker) recordClose(rec *models.TradeRecord, proceeds float64) {
	t.settle.RecordSale(proceeds, rec.ExitTime)
	if sameDay(rec.EntryTime, rec.ExitTime) {
		t.dayTrades = append(t.dayTrades, rec.ExitTime)
	}
}

// seed restores counters from persisted history after a restart.
func (t *accountTracker) seed(tradesToday int, day time.Time) {
	t.tradesDay = day
	t.tradesToday = tradesToday
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
