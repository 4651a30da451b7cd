package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextBusinessDay(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{
			"weekday settles next day",
			time.Date(2026, 3, 3, 15, 30, 0, 0, time.UTC),
			time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
		},
		{
			"friday settles monday",
			time.Date(2026, 3, 6, 15, 30, 0, 0, time.UTC),
			time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		},
		{
			"saturday settles monday",
			time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, NextBusinessDay(tt.from).Equal(tt.want))
		})
	}
}

func TestBusinessDaysAgo(t *testing.T) {
	// wednesday minus four weekdays crosses the weekend
	wed := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	got := BusinessDaysAgo(wed, 4)
	assert.True(t, got.Equal(time.Date(2026, 2, 26, 0, 0, 0, 0, time.UTC)))
}

func TestCountDayTrades(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	dates := []time.Time{
		now,
		now.AddDate(0, 0, -2),
		now.AddDate(0, 0, -7), // outside the five-business-day window
	}
	assert.Equal(t, 2, CountDayTrades(dates, now))
}

func TestSettlementTracker(t *testing.T) {
	tracker := NewSettlementTracker()
	closed := time.Date(2026, 3, 3, 15, 0, 0, 0, time.UTC)
	tracker.RecordSale(5000, closed)

	sameDay := time.Date(2026, 3, 3, 16, 0, 0, 0, time.UTC)
	assert.InDelta(t, 5000.0, tracker.Unsettled(sameDay), 1e-9)
	assert.InDelta(t, 5000.0, tracker.AvailableCash(10000, sameDay), 1e-9)

	nextDay := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	assert.Zero(t, tracker.Unsettled(nextDay))
	assert.InDelta(t, 10000.0, tracker.AvailableCash(10000, nextDay), 1e-9)
}

func TestAvailableCashNeverNegative(t *testing.T) {
	tracker := NewSettlementTracker()
	closed := time.Date(2026, 3, 3, 15, 0, 0, 0, time.UTC)
	tracker.RecordSale(8000, closed)
	assert.Zero(t, tracker.AvailableCash(5000, closed))
}
