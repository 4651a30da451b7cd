// Package engine runs the per-symbol decision loop: fetch bars, compute
// indicators, classify the regime, generate and size signals, advance
// the position lifecycle and hand intents to the executor. One tick
// runs to completion before the next starts; a shutdown signal lets the
// in-flight tick finish.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"alpaca-trader/internal/config"
	apperrors "alpaca-trader/internal/errors"
	"alpaca-trader/internal/executor"
	"alpaca-trader/internal/gateway"
	"alpaca-trader/internal/indicators"
	"alpaca-trader/internal/logging"
	"alpaca-trader/internal/metrics"
	"alpaca-trader/internal/models"
	"alpaca-trader/internal/position"
	"alpaca-trader/internal/regime"
	"alpaca-trader/internal/risk"
	"alpaca-trader/internal/signal"
	"alpaca-trader/internal/store"
)

const (
	barHistory      = 300
	hourlyHistory   = 120
	vixSymbol       = "VIX"
	staleBarAge     = 10 * time.Minute
	recoveryTimeout = 30 * time.Second
)

// Engine wires the decision core together and drives it on a polling
// loop, one worker per symbol.
type Engine struct {
	cfg        *config.Config
	loc        *time.Location
	openClock  config.Clock
	closeClock config.Clock

	gw         gateway.Gateway
	exec       *executor.Executor
	lifecycle  *position.Manager
	sizer      *risk.Sizer
	classifier *regime.Classifier
	generators map[string]signal.Generator
	account    *accountTracker

	db  store.Store
	met *metrics.Metrics
	log zerolog.Logger

	mu      sync.Mutex // serializes account and session mutation across symbol workers
	session sessionStats
	now     func() time.Time
}

// New builds an engine from loaded configuration.
func New(cfg *config.Config, gw gateway.Gateway, db store.Store, met *metrics.Metrics, log zerolog.Logger) (*Engine, error) {
	loc, err := time.LoadLocation(cfg.Session.Timezone)
	if err != nil {
		return nil, apperrors.NewConfigError("session.timezone", cfg.Session.Timezone, err.Error())
	}
	open, err := config.ParseClock(cfg.Session.OpenTime)
	if err != nil {
		return nil, err
	}
	closeAt, err := config.ParseClock(cfg.Session.CloseTime)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:        cfg,
		loc:        loc,
		openClock:  open,
		closeClock: closeAt,
		gw:         gw,
		exec:       executor.New(gw, cfg.Execution, log),
		lifecycle:  position.NewManager(cfg.Risk, cfg.Execution, log),
		sizer:      risk.NewSizer(cfg.Risk, cfg.Strategy.EnableShortSelling),
		classifier: regime.NewClassifier(cfg.Strategy.ADXThreshold, cfg.Strategy.ATRHighVolPercentile, cfg.Strategy.ATRLowVolPercentile),
		generators: make(map[string]signal.Generator),
		account:    newAccountTracker(cfg.Session.T1Settlement, cfg.Session.RequireCashAccount, cfg.Session.CashReservePct),
		db:         db,
		met:        met,
		log:        log,
		now:        time.Now,
	}, nil
}

// Run recovers state, then drives one worker per symbol until ctx is
// cancelled. It returns the first fatal error.
func (e *Engine) Run(ctx context.Context, symbols []string) error {
	recCtx, cancel := context.WithTimeout(ctx, recoveryTimeout)
	err := e.recover(recCtx, symbols)
	cancel()
	if err != nil {
		return err
	}

	// generators are built up front so symbol workers only read the map
	for _, sym := range symbols {
		e.generator(sym)
	}

	fatal := make(chan error, len(symbols))
	var wg sync.WaitGroup
	for _, sym := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			if err := e.runSymbol(ctx, symbol); err != nil {
				fatal <- err
			}
		}(sym)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case err := <-fatal:
		return err
	case <-done:
		return nil
	}
}

// runSymbol is the per-symbol polling loop. Data errors and transient
// gateway errors skip the tick; persistent gateway errors stop the
// loop.
func (e *Engine) runSymbol(ctx context.Context, symbol string) error {
	log := logging.WithSymbol(e.log, symbol)
	log.Info().
		Str("mode", string(e.cfg.Strategy.Mode)).
		Dur("interval", e.cfg.PollDuration()).
		Msg("worker started")

	ticker := time.NewTicker(e.cfg.PollDuration())
	defer ticker.Stop()

	for {
		if err := e.tick(ctx, symbol, log); err != nil {
			var ge *apperrors.GatewayError
			switch {
			case apperrors.As(err, &ge) && !ge.Transient:
				log.Error().Err(err).Msg("persistent gateway failure, stopping")
				return err
			case apperrors.IsTransient(err):
				log.Warn().Err(err).Msg("tick failed, retrying next interval")
				e.met.TickErrors.WithLabelValues(symbol, "gateway").Inc()
			default:
				log.Warn().Err(err).Msg("tick skipped")
				e.met.TickErrors.WithLabelValues(symbol, "data").Inc()
			}
		} else {
			e.met.Ticks.WithLabelValues(symbol).Inc()
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// tick performs one full pass. Either the whole sequence completes or
// state is left as the previous tick committed it.
func (e *Engine) tick(ctx context.Context, symbol string, log zerolog.Logger) error {
	now := e.now().In(e.loc)

	if !e.inSession(now) {
		return e.handleOutOfSession(ctx, symbol, now, log)
	}

	bars, err := e.gw.GetBars(ctx, symbol, e.cfg.BarTimeframe, barHistory)
	if err != nil {
		return err
	}
	if err := validateBars(symbol, bars, now); err != nil {
		return err
	}
	lastBar := bars[len(bars)-1]

	brokerAcct, err := e.gw.GetAccountState(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	acct := e.account.snapshot(brokerAcct, now)
	e.mu.Unlock()

	snap, err := indicators.Compute(bars, indicators.Params{
		ShortWindow: e.cfg.Strategy.ShortWindow,
		LongWindow:  e.cfg.Strategy.LongWindow,
		UseEMA:      e.cfg.Strategy.UseEMA,
		RSIPeriod:   14,
		ATRPeriod:   14,
		ADXPeriod:   14,
	})
	if err != nil {
		return apperrors.NewDataError("indicators", symbol, "insufficient history", err)
	}

	reg := e.classifier.Classify(snap)
	logging.LogRegime(log, symbol, reg)
	e.recordTickState(symbol, lastBar, snap, acct, now)
	e.mu.Lock()
	e.session.observeTick(acct, reg, now)
	e.mu.Unlock()

	if err := e.reconcile(ctx, symbol, log); err != nil {
		return err
	}

	killSwitch := acct.Drawdown() >= e.cfg.Risk.MaxDrawdown

	if pos := e.lifecycle.Get(symbol); pos != nil {
		switch pos.Status {
		case models.StatusPendingEntry:
			return e.managePending(ctx, symbol, now, log)
		case models.StatusOpen, models.StatusLiquidating:
			return e.manageOpen(ctx, symbol, lastBar, snap.ATR, killSwitch, now, log)
		}
		return nil
	}

	return e.seekEntry(ctx, symbol, bars, snap, reg, acct, killSwitch, lastBar.Close, now, log)
}

// seekEntry runs the signal and risk stages for a flat symbol.
func (e *Engine) seekEntry(ctx context.Context, symbol string, bars []models.Bar, snap *indicators.Snapshot, reg models.MarketRegime, acct models.AccountState, killSwitch bool, price float64, now time.Time, log zerolog.Logger) error {
	in := signal.Inputs{
		Symbol:   symbol,
		Bars:     bars,
		Snapshot: snap,
		Regime:   reg,
		Now:      now,
	}
	if e.cfg.Strategy.MultiframeFilter {
		hourly, err := e.gw.GetBars(ctx, symbol, "1Hour", hourlyHistory)
		if err == nil {
			in.HourlyBars = hourly
		}
	}
	if e.cfg.Strategy.UseVIXFilter {
		if q, err := e.gw.GetQuote(ctx, vixSymbol); err == nil {
			in.VIX = q.LastPrice
			e.mu.Lock()
			e.session.observeVIX(q.LastPrice)
			e.mu.Unlock()
		}
	}

	sig := e.generator(symbol).Generate(in)
	if sig.Direction == models.SideFlat {
		return nil
	}
	logging.LogSignal(log, sig)
	e.met.Signals.WithLabelValues(symbol, string(sig.Direction)).Inc()
	e.saveSignal(sig)

	decision := e.sizer.Evaluate(sig, acct, snap.ATR, price, now)
	if killSwitch && decision.Approved {
		decision = models.RiskDecision{Approved: false, Reason: models.RejectDrawdownKill}
	}
	if !decision.Approved {
		if decision.Reason != models.RejectNone {
			logging.LogRiskReject(log, symbol, decision.Reason)
			e.met.RiskRejections.WithLabelValues(symbol, string(decision.Reason)).Inc()
		}
		return nil
	}

	intent, err := e.lifecycle.Open(sig, decision, price, now)
	if err != nil {
		return err
	}
	fill, err := e.exec.Execute(ctx, intent)
	if err != nil {
		e.lifecycle.ForceFlat(symbol, models.ExitEntryTimeout)
		return err
	}
	if err := e.lifecycle.ApplyEntryFill(symbol, fill); err != nil {
		return err
	}

	if fill.Status == models.OrderStatusFilled {
		e.onEntered(symbol, now, log)
	}
	return nil
}

func (e *Engine) onEntered(symbol string, now time.Time, log zerolog.Logger) {
	e.mu.Lock()
	e.account.recordOpen(now)
	e.mu.Unlock()
	if g, ok := e.generators[symbol].(*signal.ORFVG); ok {
		g.Consume(now)
	}
	logging.LogEntry(log, e.lifecycle.Get(symbol))
}

// managePending polls an unfilled entry order and applies the limit
// timeout policy.
func (e *Engine) managePending(ctx context.Context, symbol string, now time.Time, log zerolog.Logger) error {
	pos := e.lifecycle.Get(symbol)
	if pos == nil || pos.PendingOrderID == "" {
		return nil
	}

	entrySide := models.OrderSideBuy
	if pos.Side == models.SideShort {
		entrySide = models.OrderSideSell
	}
	fill, err := e.exec.PollOrder(ctx, pos.PendingOrderID, models.OrderIntent{Symbol: symbol, Side: entrySide, Quantity: pos.Quantity})
	if err != nil {
		return err
	}
	if err := e.lifecycle.ApplyEntryFill(symbol, fill); err != nil {
		return err
	}
	if fill.Status == models.OrderStatusFilled {
		e.onEntered(symbol, now, log)
		return nil
	}

	for _, intent := range e.lifecycle.CheckEntryTimeout(symbol, now) {
		fill, err := e.exec.Execute(ctx, intent)
		if err != nil {
			return err
		}
		if intent.Tag == "entry" {
			if err := e.lifecycle.ApplyEntryFill(symbol, fill); err != nil {
				return err
			}
			if fill.Status == models.OrderStatusFilled {
				e.onEntered(symbol, now, log)
			}
		}
	}
	return nil
}

// manageOpen runs the fixed-order exit checks and executes any
// resulting intents.
func (e *Engine) manageOpen(ctx context.Context, symbol string, bar models.Bar, atr float64, killSwitch bool, now time.Time, log zerolog.Logger) error {
	actions := e.lifecycle.CheckExits(symbol, bar, atr, killSwitch, now)
	for _, action := range actions {
		if err := e.executeExit(ctx, symbol, action, log); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) executeExit(ctx context.Context, symbol string, action position.ExitAction, log zerolog.Logger) error {
	fill, err := e.exec.Execute(ctx, action.Intent)
	if err != nil {
		return err
	}
	record, err := e.lifecycle.ApplyExitFill(symbol, action, fill)
	if err != nil {
		return err
	}
	if record == nil {
		logging.LogExit(log, symbol, action.Reason, fill.Quantity, fill.Price, 0)
		return nil
	}
	logging.LogExit(log, symbol, action.Reason, fill.Quantity, fill.Price, record.PnL)

	e.mu.Lock()
	e.account.recordClose(record, fill.Price*float64(fill.Quantity))
	e.session.observeClose(record.PnL)
	e.mu.Unlock()

	e.met.TradesClosed.WithLabelValues(symbol, string(record.ExitReason)).Inc()
	if err := e.db.SaveTrade(store.TradeRowFrom(record)); err != nil {
		log.Warn().Err(err).Msg("saving trade record")
	}
	return nil
}

// handleOutOfSession liquidates any open position once the session has
// closed, writes the day's performance summary, then idles until the
// next open.
func (e *Engine) handleOutOfSession(ctx context.Context, symbol string, now time.Time, log zerolog.Logger) error {
	if now.Before(e.closeClock.On(now)) {
		return nil
	}

	if pos := e.lifecycle.Get(symbol); pos != nil && pos.Status == models.StatusOpen {
		quote, err := e.gw.GetQuote(ctx, symbol)
		if err != nil {
			return err
		}
		action := position.ExitAction{
			Intent: models.OrderIntent{
				Symbol:   symbol,
				Side:     closeSide(pos.Side),
				Type:     models.OrderTypeMarket,
				Quantity: pos.Quantity,
			},
			Reason:   models.ExitSessionEnd,
			Quantity: pos.Quantity,
			Price:    quote.LastPrice,
			Full:     true,
			TPIndex:  -1,
		}
		log.Info().Msg("session closed, liquidating")
		return e.executeExit(ctx, symbol, action, log)
	}

	e.flushSessionSummary(now, log)
	return nil
}

// flushSessionSummary writes the end-of-day summary once per session,
// after the close and once all positions are flat.
func (e *Engine) flushSessionSummary(now time.Time, log zerolog.Logger) {
	e.mu.Lock()
	row, ok := e.session.summary(now)
	e.mu.Unlock()
	if !ok {
		return
	}

	log.Info().
		Float64("opening_equity", row.OpeningEquity).
		Float64("closing_equity", row.ClosingEquity).
		Int("trades", row.Trades).
		Int("winners", row.Winners).
		Int("losers", row.Losers).
		Float64("pnl", row.PnL).
		Float64("max_drawdown", row.MaxDrawdown).
		Str("regime", row.Regime).
		Float64("avg_vix", row.AvgVIX).
		Msg("session summary")

	if err := e.db.SaveSessionSummary(row); err != nil {
		log.Warn().Err(err).Msg("saving session summary")
	}
}

func closeSide(side models.Side) models.OrderSide {
	if side == models.SideShort {
		return models.OrderSideBuy
	}
	return models.OrderSideSell
}

// inSession reports whether now falls inside regular trading hours on a
// weekday.
func (e *Engine) inSession(now time.Time) bool {
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}
	return !now.Before(e.openClock.On(now)) && now.Before(e.closeClock.On(now))
}

// generator returns (building on first use) the signal generator for a
// symbol. OR/FVG machines are per-symbol because they carry session
// state.
func (e *Engine) generator(symbol string) signal.Generator {
	if g, ok := e.generators[symbol]; ok {
		return g
	}
	g := signal.New(e.cfg, e.loc)
	if or, ok := g.(*signal.ORFVG); ok {
		or.OnTransition = func(from, to signal.ORState, at time.Time) {
			logging.LogSessionState(e.log, symbol, string(from), string(to))
			if err := e.db.SaveSessionTransition(store.SessionRow{
				Timestamp: at,
				Symbol:    symbol,
				FromState: string(from),
				ToState:   string(to),
			}); err != nil {
				e.log.Warn().Err(err).Msg("saving session transition")
			}
		}
	}
	e.generators[symbol] = g
	return g
}

// recover rebuilds local state after a restart: daily trade counters
// from the store and open positions from the broker.
func (e *Engine) recover(ctx context.Context, symbols []string) error {
	now := e.now().In(e.loc)
	if count, err := e.db.TradesTodayCount(now); err == nil {
		e.account.seed(count, now)
	}

	brokerPositions, err := e.gw.GetPositions(ctx)
	if err != nil {
		return apperrors.Wrap(err, "recovering positions")
	}
	watched := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		watched[s] = true
	}

	for _, bp := range brokerPositions {
		if !watched[bp.Symbol] {
			continue
		}
		bars, err := e.gw.GetBars(ctx, bp.Symbol, e.cfg.BarTimeframe, barHistory)
		if err != nil {
			return apperrors.Wrap(err, "recovering "+bp.Symbol)
		}
		atrSeries, err := indicators.ATR(bars, 14)
		if err != nil {
			return apperrors.NewDataError("atr", bp.Symbol, "insufficient history for recovery", err)
		}
		stopDistance := atrSeries[len(atrSeries)-1] * e.cfg.Risk.ATRStopMultiplier
		stop, targets := e.sizer.Levels(bp.Side, bp.EntryPrice, stopDistance)

		pos := &models.Position{
			Symbol:      bp.Symbol,
			Side:        bp.Side,
			Quantity:    bp.Quantity,
			EntryPrice:  bp.EntryPrice,
			Stop:        stop,
			TakeProfits: targets,
			Status:      models.StatusOpen,
			OpenedAt:    now,
		}
		if err := e.lifecycle.Restore(pos); err != nil {
			return err
		}
		e.log.Info().
			Str("symbol", bp.Symbol).
			Int("quantity", bp.Quantity).
			Float64("entry", bp.EntryPrice).
			Msg("recovered open position")
	}
	return nil
}

// reconcile checks local position state against the broker. A local
// position the broker no longer reports is dropped; fail safe toward
// flat rather than risking a duplicate order.
func (e *Engine) reconcile(ctx context.Context, symbol string, log zerolog.Logger) error {
	pos := e.lifecycle.Get(symbol)
	if pos == nil || pos.Status != models.StatusOpen {
		return nil
	}

	brokerPositions, err := e.gw.GetPositions(ctx)
	if err != nil {
		return err
	}
	for _, bp := range brokerPositions {
		if bp.Symbol != symbol {
			continue
		}
		if bp.Quantity != pos.Quantity {
			log.Warn().
				Int("local", pos.Quantity).
				Int("remote", bp.Quantity).
				Msg("position quantity drift, adopting broker state")
			pos.Quantity = bp.Quantity
		}
		return nil
	}

	log.Warn().Msg("broker reports no position, forcing flat")
	e.lifecycle.ForceFlat(symbol, models.ExitReconciliation)
	return nil
}

// recordTickState persists the per-tick audit rows and updates gauges.
func (e *Engine) recordTickState(symbol string, bar models.Bar, snap *indicators.Snapshot, acct models.AccountState, now time.Time) {
	e.met.Equity.Set(acct.Equity)
	e.met.Drawdown.Set(acct.Drawdown())
	e.met.OpenPositions.Set(float64(len(e.lifecycle.Symbols())))

	if err := e.db.SaveIndicators(store.IndicatorRow{
		Timestamp: now,
		Symbol:    symbol,
		Close:     bar.Close,
		RSI:       snap.RSI,
		ATR:       snap.ATR,
		ADX:       snap.ADX,
		ATRPct:    snap.ATRPct,
		SMA200:    snap.SMA200,
	}); err != nil {
		e.log.Warn().Err(err).Msg("saving indicators")
	}
	if err := e.db.SavePerformance(store.PerformanceRow{
		Timestamp:   now,
		Equity:      acct.Equity,
		Drawdown:    acct.Drawdown(),
		TradesToday: acct.TradesToday,
	}); err != nil {
		e.log.Warn().Err(err).Msg("saving performance")
	}
}

func (e *Engine) saveSignal(sig models.Signal) {
	if err := e.db.SaveSignal(store.SignalRow{
		Timestamp: sig.At,
		Symbol:    sig.Symbol,
		Direction: string(sig.Direction),
		Strength:  sig.Strength,
		Reasons:   joinReasons(sig.Reasons),
		Regime:    string(sig.Regime.Label),
	}); err != nil {
		e.log.Warn().Err(err).Msg("saving signal")
	}
}

func joinReasons(reasons []models.ReasonCode) string {
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += ","
		}
		out += string(r)
	}
	return out
}

// validateBars rejects empty, unordered, or stale bar data.
func validateBars(symbol string, bars []models.Bar, now time.Time) error {
	if len(bars) == 0 {
		return apperrors.NewDataError("bars", symbol, "empty series", apperrors.ErrNoBars)
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return apperrors.NewDataError("bars", symbol, "timestamps not strictly increasing", nil)
		}
	}
	if age := now.Sub(bars[len(bars)-1].Timestamp); age > staleBarAge {
		return apperrors.NewDataError("bars", symbol, "stale data: "+age.String(), apperrors.ErrStaleBars)
	}
	return nil
}
