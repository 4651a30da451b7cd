// Package logging provides structured logging for the trading engine.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"alpaca-trader/internal/models"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "alpaca-trader", "logs", "trader.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// New creates a logger with the specified configuration.
func New(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	if cfg.File {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stdout
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	return zerolog.New(writer).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithSymbol adds a symbol field to the logger context.
func WithSymbol(logger zerolog.Logger, symbol string) zerolog.Logger {
	return logger.With().Str("symbol", symbol).Logger()
}

// LogSignal logs an emitted trade signal.
func LogSignal(logger zerolog.Logger, sig models.Signal) {
	reasons := make([]string, 0, len(sig.Reasons))
	for _, r := range sig.Reasons {
		reasons = append(reasons, string(r))
	}
	logger.Info().
		Str("event", "signal").
		Str("symbol", sig.Symbol).
		Str("direction", string(sig.Direction)).
		Float64("strength", sig.Strength).
		Strs("reasons", reasons).
		Str("regime", string(sig.Regime.Label)).
		Msg("Signal emitted")
}

// LogRiskReject logs a risk sizer rejection. Rejections are normal Flat
// outcomes, not errors.
func LogRiskReject(logger zerolog.Logger, symbol string, reason models.RejectReason) {
	logger.Info().
		Str("event", "risk_reject").
		Str("symbol", symbol).
		Str("reason", string(reason)).
		Msg("Signal rejected by risk sizer")
}

// LogEntry logs a position entry.
func LogEntry(logger zerolog.Logger, pos *models.Position) {
	logger.Info().
		Str("event", "entry").
		Str("symbol", pos.Symbol).
		Str("side", string(pos.Side)).
		Int("quantity", pos.Quantity).
		Float64("entry_price", pos.EntryPrice).
		Float64("stop", pos.Stop).
		Msg("Position opened")
}

// LogExit logs a full or partial position exit.
func LogExit(logger zerolog.Logger, symbol string, reason models.ExitReason, qty int, price, pnl float64) {
	logger.Info().
		Str("event", "exit").
		Str("symbol", symbol).
		Str("reason", string(reason)).
		Int("quantity", qty).
		Float64("price", price).
		Float64("pnl", pnl).
		Msg("Position exit")
}

// LogRegime logs a regime classification change.
func LogRegime(logger zerolog.Logger, symbol string, regime models.MarketRegime) {
	logger.Debug().
		Str("event", "regime").
		Str("symbol", symbol).
		Str("label", string(regime.Label)).
		Bool("trending", regime.Trending).
		Float64("confidence", regime.Confidence).
		Msg("Regime classified")
}

// LogSessionState logs an opening-range strategy state transition.
func LogSessionState(logger zerolog.Logger, symbol, from, to string) {
	logger.Info().
		Str("event", "session_state").
		Str("symbol", symbol).
		Str("from", from).
		Str("to", to).
		Msg("Opening-range state transition")
}
