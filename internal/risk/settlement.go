package risk

import (
	"sync"
	"time"
)

// NextBusinessDay returns the next weekday after t. Exchange holidays
// are not modeled; the settled date is conservative on holiday weeks
// only in the sense of never releasing funds early on weekends.
func NextBusinessDay(t time.Time) time.Time {
	d := t.AddDate(0, 0, 1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, t.Location())
}

// BusinessDaysAgo returns midnight n weekdays before t.
func BusinessDaysAgo(t time.Time, n int) time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	for n > 0 {
		d = d.AddDate(0, 0, -1)
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			n--
		}
	}
	return d
}

// CountDayTrades counts round-trips within the rolling five-business-day
// window ending at now, the window FINRA's pattern-day-trade rule uses.
func CountDayTrades(dates []time.Time, now time.Time) int {
	cutoff := BusinessDaysAgo(now, 4)
	count := 0
	for _, d := range dates {
		if !d.Before(cutoff) && !d.After(now) {
			count++
		}
	}
	return count
}

type pendingSettle struct {
	amount    float64
	settlesAt time.Time
}

// SettlementTracker models T+1 settlement for cash accounts: proceeds
// from a closed position become spendable the next business day.
type SettlementTracker struct {
	mu      sync.Mutex
	pending []pendingSettle
}

// NewSettlementTracker returns an empty tracker.
func NewSettlementTracker() *SettlementTracker {
	return &SettlementTracker{}
}

// RecordSale registers sale proceeds that settle on the next business
// day after closedAt.
func (t *SettlementTracker) RecordSale(amount float64, closedAt time.Time) {
	if amount <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, pendingSettle{amount: amount, settlesAt: NextBusinessDay(closedAt)})
}

// Unsettled returns the total proceeds not yet settled at now, dropping
// entries that have settled.
func (t *SettlementTracker) Unsettled(now time.Time) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total float64
	remaining := t.pending[:0]
	for _, p := range t.pending {
		if now.Before(p.settlesAt) {
			total += p.amount
			remaining = append(remaining, p)
		}
	}
	t.pending = remaining
	return total
}

// AvailableCash returns cash minus unsettled proceeds, floored at zero.
func (t *SettlementTracker) AvailableCash(cash float64, now time.Time) float64 {
	available := cash - t.Unsettled(now)
	if available < 0 {
		return 0
	}
	return available
}
