package engine

import (
	"time"

	"alpaca-trader/internal/models"
	"alpaca-trader/internal/store"
)

// sessionStats accumulates one trading day's performance for the
// end-of-session summary. Callers hold the engine mutex; the stats reset
// themselves on the first observation of a new session day.
type sessionStats struct {
	day           time.Time
	openingEquity float64
	closingEquity float64
	trades        int
	winners       int
	losers        int
	pnl           float64
	maxDrawdown   float64
	regimes       map[models.RegimeLabel]int
	vixSum        float64
	vixSamples    int
	flushed       bool
}

func (s *sessionStats) observeTick(acct models.AccountState, reg models.MarketRegime, now time.Time) {
	if !sameDay(now, s.day) {
		*s = sessionStats{day: now, openingEquity: acct.Equity}
	}
	if s.regimes == nil {
		s.regimes = make(map[models.RegimeLabel]int)
	}
	s.closingEquity = acct.Equity
	if dd := acct.Drawdown(); dd > s.maxDrawdown {
		s.maxDrawdown = dd
	}
	s.regimes[reg.Label]++
}

func (s *sessionStats) observeVIX(v float64) {
	if v <= 0 {
		return
	}
	s.vixSum += v
	s.vixSamples++
}

func (s *sessionStats) observeClose(pnl float64) {
	s.trades++
	s.pnl += pnl
	switch {
	case pnl > 0:
		s.winners++
	case pnl < 0:
		s.losers++
	}
}

// summary builds the day's row exactly once; later calls report false
// until a new session day starts.
func (s *sessionStats) summary(now time.Time) (store.SummaryRow, bool) {
	if s.flushed || s.day.IsZero() || !sameDay(now, s.day) {
		return store.SummaryRow{}, false
	}
	s.flushed = true

	avgVIX := 0.0
	if s.vixSamples > 0 {
		avgVIX = s.vixSum / float64(s.vixSamples)
	}
	return store.SummaryRow{
		Date:          time.Date(s.day.Year(), s.day.Month(), s.day.Day(), 0, 0, 0, 0, s.day.Location()),
		OpeningEquity: s.openingEquity,
		ClosingEquity: s.closingEquity,
		Trades:        s.trades,
		Winners:       s.winners,
		Losers:        s.losers,
		PnL:           s.pnl,
		MaxDrawdown:   s.maxDrawdown,
		Regime:        string(s.dominantRegime()),
		AvgVIX:        avgVIX,
	}, true
}

func (s *sessionStats) dominantRegime() models.RegimeLabel {
	var best models.RegimeLabel
	bestN := 0
	for label, n := range s.regimes {
		if n > bestN {
			best, bestN = label, n
		}
	}
	return best
}
