// Package position implements the per-symbol position lifecycle state
// machine: entry submission, stop management, partial profit-taking,
// trailing stops, time-based exits and kill-switch liquidation.
package position

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"alpaca-trader/internal/config"
	apperrors "alpaca-trader/internal/errors"
	"alpaca-trader/internal/models"
)

// ExitAction is an exit the manager wants executed. Full, when false,
// closes only Quantity shares and leaves the position open.
type ExitAction struct {
	Intent   models.OrderIntent
	Reason   models.ExitReason
	Quantity int
	Price    float64 // trigger price, for logging
	Full     bool
	TPIndex  int // take-profit ladder index, -1 otherwise
}

// Manager owns all Position state. No other component mutates a
// Position. All methods are safe for concurrent use, though the engine
// serializes ticks per symbol.
type Manager struct {
	mu        sync.RWMutex
	positions map[string]*models.Position

	risk config.RiskConfig
	exec config.ExecutionConfig
	log  zerolog.Logger
}

// NewManager returns an empty lifecycle manager.
func NewManager(risk config.RiskConfig, exec config.ExecutionConfig, log zerolog.Logger) *Manager {
	return &Manager{
		positions: make(map[string]*models.Position),
		risk:      risk,
		exec:      exec,
		log:       log,
	}
}

// Get returns the live position for symbol, or nil.
func (m *Manager) Get(symbol string) *models.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.positions[symbol]
}

// HasActive reports whether a non-terminal position exists for symbol.
func (m *Manager) HasActive(symbol string) bool {
	return m.Get(symbol) != nil
}

// Open transitions Flat to PendingEntry for an approved decision and
// returns the entry order intent. It refuses while any non-terminal
// position exists for the symbol.
func (m *Manager) Open(sig models.Signal, decision models.RiskDecision, price float64, now time.Time) (models.OrderIntent, error) {
	if !decision.Approved {
		return models.OrderIntent{}, fmt.Errorf("opening %s: decision not approved", sig.Symbol)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.positions[sig.Symbol]; exists {
		return models.OrderIntent{}, apperrors.ErrPositionExists
	}

	orderType := models.OrderTypeMarket
	limitPrice := 0.0
	if m.exec.UseLimitOrders {
		orderType = models.OrderTypeLimit
		limitPrice = price
	}

	side := models.OrderSideBuy
	if sig.Direction == models.SideShort {
		side = models.OrderSideSell
	}

	m.positions[sig.Symbol] = &models.Position{
		Symbol:      sig.Symbol,
		Side:        sig.Direction,
		Quantity:    decision.Quantity,
		Stop:        decision.Stop,
		TakeProfits: append([]models.TakeProfit(nil), decision.TakeProfits...),
		Status:      models.StatusPendingEntry,
		SubmittedAt: now,
	}

	m.log.Info().
		Str("symbol", sig.Symbol).
		Str("side", string(sig.Direction)).
		Int("quantity", decision.Quantity).
		Float64("stop", decision.Stop).
		Msg("entry submitted")

	return models.OrderIntent{
		Symbol:     sig.Symbol,
		Side:       side,
		Type:       orderType,
		Quantity:   decision.Quantity,
		LimitPrice: limitPrice,
		Tag:        "entry",
	}, nil
}

// ApplyEntryFill advances PendingEntry on a broker response. A fill
// opens the position; a rejection returns the symbol to Flat; pending
// leaves state unchanged for the next tick.
func (m *Manager) ApplyEntryFill(symbol string, fill models.Fill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[symbol]
	if !ok || pos.Status != models.StatusPendingEntry {
		return apperrors.ErrPositionNotFound
	}

	switch fill.Status {
	case models.OrderStatusFilled:
		pos.Status = models.StatusOpen
		pos.EntryPrice = fill.Price
		pos.Quantity = fill.Quantity
		pos.EntryQuantity = fill.Quantity
		pos.OpenedAt = fill.FilledAt
		pos.PendingOrderID = ""
		m.log.Info().
			Str("symbol", symbol).
			Float64("price", fill.Price).
			Int("quantity", fill.Quantity).
			Msg("entry filled")
	case models.OrderStatusPending:
		pos.PendingOrderID = fill.OrderID
	case models.OrderStatusRejected, models.OrderStatusCancelled:
		delete(m.positions, symbol)
		m.log.Warn().Str("symbol", symbol).Str("status", string(fill.Status)).Msg("entry not filled")
	}
	return nil
}

// CheckEntryTimeout handles an unfilled limit entry. Past the timeout
// it returns a cancel intent plus, when fallback is configured, a
// market resubmission; otherwise the symbol returns to Flat.
func (m *Manager) CheckEntryTimeout(symbol string, now time.Time) []models.OrderIntent {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[symbol]
	if !ok || pos.Status != models.StatusPendingEntry || pos.PendingOrderID == "" {
		return nil
	}
	if now.Sub(pos.SubmittedAt) < time.Duration(m.exec.LimitOrderTimeout)*time.Second {
		return nil
	}

	intents := []models.OrderIntent{{
		Symbol: symbol,
		Type:   models.OrderTypeMarket,
		Tag:    "cancel:" + pos.PendingOrderID,
	}}

	if m.exec.MarketFallback {
		side := models.OrderSideBuy
		if pos.Side == models.SideShort {
			side = models.OrderSideSell
		}
		pos.PendingOrderID = ""
		pos.SubmittedAt = now
		intents = append(intents, models.OrderIntent{
			Symbol:   symbol,
			Side:     side,
			Type:     models.OrderTypeMarket,
			Quantity: pos.Quantity,
			Tag:      "entry",
		})
		m.log.Info().Str("symbol", symbol).Msg("limit entry timed out, resubmitting as market")
	} else {
		delete(m.positions, symbol)
		m.log.Info().Str("symbol", symbol).Msg("limit entry timed out, cancelled")
	}
	return intents
}

// CheckExits evaluates one bar against an open position. The checks run
// in a fixed order that biases ties toward loss protection: stop first,
// then take-profits, then the trailing update, then the time exit, then
// the kill-switch. A full exit stops further checks.
func (m *Manager) CheckExits(symbol string, bar models.Bar, atr float64, killSwitch bool, now time.Time) []ExitAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[symbol]
	if !ok || (pos.Status != models.StatusOpen && pos.Status != models.StatusLiquidating) {
		return nil
	}

	// a liquidation that failed to execute last tick is retried first
	if pos.Status == models.StatusLiquidating {
		return []ExitAction{m.fullExit(pos, pos.Quantity, bar.Close, models.ExitKillSwitch)}
	}

	var actions []ExitAction
	remaining := pos.Quantity

	// 1. protective stop
	if m.stopHit(pos, bar) {
		reason := models.ExitStopHit
		if pos.TrailingArmed {
			reason = models.ExitTrailingStop
		}
		return []ExitAction{m.fullExit(pos, remaining, pos.Stop, reason)}
	}

	// 2. take-profits
	for i := range pos.TakeProfits {
		tp := &pos.TakeProfits[i]
		if tp.Consumed || !targetReached(pos.Side, bar, tp.Price) {
			continue
		}
		qty := int(math.Round(float64(pos.Quantity) * tp.Fraction))
		if qty >= remaining || i == len(pos.TakeProfits)-1 {
			actions = append(actions, m.fullExit(pos, remaining, tp.Price, models.ExitTakeProfit))
			actions[len(actions)-1].TPIndex = i
			return actions
		}
		if qty > 0 {
			actions = append(actions, ExitAction{
				Intent:   m.closeIntent(pos, qty),
				Reason:   models.ExitTakeProfit,
				Quantity: qty,
				Price:    tp.Price,
				TPIndex:  i,
			})
			remaining -= qty
		}
		break // one target per tick; the rest re-trigger next bar
	}

	// 3. trailing stop, tighten only
	if pos.TrailingArmed {
		m.updateTrail(pos, bar, atr)
	}

	// 4. time-based exit
	if m.risk.MaxHoldTime > 0 && !pos.OpenedAt.IsZero() {
		if now.Sub(pos.OpenedAt) >= time.Duration(m.risk.MaxHoldTime)*time.Second {
			actions = append(actions, m.fullExit(pos, remaining, bar.Close, models.ExitMaxHoldTime))
			return actions
		}
	}

	// 5. drawdown kill-switch
	if killSwitch {
		pos.Status = models.StatusLiquidating
		actions = append(actions, m.fullExit(pos, remaining, bar.Close, models.ExitKillSwitch))
		m.log.Warn().Str("symbol", symbol).Msg("kill-switch liquidation")
	}

	return actions
}

func (m *Manager) stopHit(pos *models.Position, bar models.Bar) bool {
	ref := bar.Low
	if pos.Side == models.SideShort {
		ref = bar.High
	}
	if m.exec.StopOnClose {
		ref = bar.Close
	}
	if pos.Side == models.SideShort {
		return ref >= pos.Stop
	}
	return ref <= pos.Stop
}

func targetReached(side models.Side, bar models.Bar, price float64) bool {
	if side == models.SideShort {
		return bar.Low <= price
	}
	return bar.High >= price
}

func (m *Manager) updateTrail(pos *models.Position, bar models.Bar, atr float64) {
	if atr <= 0 {
		return
	}
	trail := atr * m.risk.ATRStopMultiplier
	if pos.Side == models.SideShort {
		if pos.WaterMark == 0 || bar.Low < pos.WaterMark {
			pos.WaterMark = bar.Low
		}
		if next := pos.WaterMark + trail; next < pos.Stop {
			pos.Stop = next
		}
		return
	}
	if bar.High > pos.WaterMark {
		pos.WaterMark = bar.High
	}
	if next := pos.WaterMark - trail; next > pos.Stop {
		pos.Stop = next
	}
}

func (m *Manager) fullExit(pos *models.Position, qty int, price float64, reason models.ExitReason) ExitAction {
	return ExitAction{
		Intent:   m.closeIntent(pos, qty),
		Reason:   reason,
		Quantity: qty,
		Price:    price,
		Full:     true,
		TPIndex:  -1,
	}
}

func (m *Manager) closeIntent(pos *models.Position, qty int) models.OrderIntent {
	side := models.OrderSideSell
	if pos.Side == models.SideShort {
		side = models.OrderSideBuy
	}
	return models.OrderIntent{
		Symbol:   pos.Symbol,
		Side:     side,
		Type:     models.OrderTypeMarket,
		Quantity: qty,
		Tag:      "exit",
	}
}

// ApplyExitFill applies an executed exit. Partial take-profit fills
// consume their ladder level; the first consumed target moves the stop
// to breakeven and arms the trailing stop. When the position reaches
// zero quantity it closes and the final trade record is returned.
func (m *Manager) ApplyExitFill(symbol string, action ExitAction, fill models.Fill) (*models.TradeRecord, error) {
	if fill.Status != models.OrderStatusFilled {
		return nil, apperrors.ErrOrderRejected
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[symbol]
	if !ok {
		return nil, apperrors.ErrPositionNotFound
	}

	pnl := (fill.Price - pos.EntryPrice) * float64(fill.Quantity)
	if pos.Side == models.SideShort {
		pnl = -pnl
	}
	pos.RealizedPnL += pnl - fill.Commission
	pos.Quantity -= fill.Quantity

	if action.TPIndex >= 0 && action.TPIndex < len(pos.TakeProfits) {
		pos.TakeProfits[action.TPIndex].Consumed = true
		if action.TPIndex == 0 {
			m.moveToBreakeven(pos)
			if m.risk.UseTrailingStop && !pos.TrailingArmed {
				pos.TrailingArmed = true
				pos.WaterMark = fill.Price
			}
		}
	}

	if pos.Quantity > 0 {
		m.log.Info().
			Str("symbol", symbol).
			Int("closed", fill.Quantity).
			Int("remaining", pos.Quantity).
			Float64("pnl", pnl).
			Msg("scaled out")
		return nil, nil
	}

	pos.Status = models.StatusClosed
	pos.ExitReason = action.Reason
	pos.ClosedAt = fill.FilledAt
	delete(m.positions, symbol)

	record := &models.TradeRecord{
		Symbol:     symbol,
		Side:       pos.Side,
		Quantity:   pos.EntryQuantity,
		EntryTime:  pos.OpenedAt,
		ExitTime:   fill.FilledAt,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  fill.Price,
		Stop:       pos.Stop,
		PnL:        pos.RealizedPnL,
		ExitReason: action.Reason,
	}
	if pos.EntryPrice > 0 && pos.EntryQuantity > 0 {
		record.PnLPercent = pos.RealizedPnL / (pos.EntryPrice * float64(pos.EntryQuantity)) * 100
	}
	if !pos.OpenedAt.IsZero() {
		record.HoldMinutes = fill.FilledAt.Sub(pos.OpenedAt).Minutes()
	}

	m.log.Info().
		Str("symbol", symbol).
		Str("reason", string(action.Reason)).
		Float64("pnl", pos.RealizedPnL).
		Msg("position closed")
	return record, nil
}

// moveToBreakeven tightens the stop to the entry price, never loosening.
func (m *Manager) moveToBreakeven(pos *models.Position) {
	if pos.Side == models.SideShort {
		if pos.EntryPrice < pos.Stop {
			pos.Stop = pos.EntryPrice
		}
		return
	}
	if pos.EntryPrice > pos.Stop {
		pos.Stop = pos.EntryPrice
	}
}

// ForceFlat drops local state for symbol, the fail-safe when broker and
// local state cannot be reconciled.
func (m *Manager) ForceFlat(symbol string, reason models.ExitReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.positions[symbol]; ok {
		delete(m.positions, symbol)
		m.log.Warn().Str("symbol", symbol).Str("reason", string(reason)).Msg("forced flat")
	}
}

// Restore seeds a recovered position, used at startup when the broker
// reports holdings the previous run left open.
func (m *Manager) Restore(pos *models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.positions[pos.Symbol]; exists {
		return apperrors.ErrPositionExists
	}
	if pos.EntryQuantity == 0 {
		pos.EntryQuantity = pos.Quantity
	}
	m.positions[pos.Symbol] = pos
	return nil
}

// Symbols returns the symbols with live positions.
func (m *Manager) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.positions))
	for s := range m.positions {
		out = append(out, s)
	}
	return out
}
