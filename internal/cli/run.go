package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"alpaca-trader/internal/engine"
	apperrors "alpaca-trader/internal/errors"
	"alpaca-trader/internal/gateway"
	"alpaca-trader/internal/metrics"
	"alpaca-trader/internal/store"
)

func newRunCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the trading loop",
		Long: `Start the trading daemon.

The daemon will:
- Poll bars for the configured symbol
- Classify the market regime and score entry signals
- Size approved entries against account risk limits
- Manage stops, take-profits and trailing exits until flat

It runs until interrupted. On startup it recovers any open broker
position and resumes managing it. API credentials are required even in
paper mode: market data and the paper trading endpoint both need them.`,
		Example: `  trader run
  trader run --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd.Context(), app)
		},
	}
}

func runEngine(parent context.Context, app *App) error {
	cfg := app.Config
	log := app.Logger

	if cfg.Credentials.APIKeyID == "" || cfg.Credentials.APISecretKey == "" {
		return apperrors.Wrap(apperrors.ErrNotAuthenticated,
			"APCA_API_KEY_ID and APCA_API_SECRET_KEY must be set (paper trading keys work)")
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.NewSQLiteStore(cfg.Logging.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	gw := gateway.NewAlpaca(cfg.Credentials, log)
	defer gw.Close()

	met := metrics.New(log)
	if cfg.Metrics.Enabled {
		go func() {
			if err := met.Serve(ctx, cfg.Metrics.Listen); err != nil {
				log.Warn().Err(err).Msg("metrics listener stopped")
			}
		}()
	}

	eng, err := engine.New(cfg, gw, db, met, log)
	if err != nil {
		return err
	}

	log.Info().
		Str("symbol", cfg.Symbol).
		Str("mode", string(cfg.Strategy.Mode)).
		Bool("paper", cfg.Execution.Paper).
		Msg("starting trading loop")

	return eng.Run(ctx, []string{cfg.Symbol})
}
