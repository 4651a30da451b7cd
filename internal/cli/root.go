// Package cli provides the command-line interface for the trading engine.
package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"alpaca-trader/internal/config"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies shared across commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "Alpaca Trader - single-instrument decision and risk engine",
		Long: `Alpaca Trader is an automated trading daemon for a single instrument.

It polls market data, classifies the market regime, scores entry signals,
sizes positions against account risk limits and manages the full position
lifecycle from entry to exit.

Use 'trader run' to start the trading loop.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/alpaca-trader)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newExportCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Alpaca Trader v%s\n", Version)
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(config.DefaultConfigDir())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Config.Validate(); err != nil {
				return err
			}
			fmt.Println("configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(cfg *config.Config) error {
	fmt.Println("Trading")
	fmt.Printf("  Symbol:          %s\n", cfg.Symbol)
	fmt.Printf("  Timeframe:       %s\n", cfg.BarTimeframe)
	fmt.Printf("  Poll Interval:   %ds\n", cfg.PollInterval)
	fmt.Printf("  Mode:            %s\n", cfg.Strategy.Mode)
	fmt.Println()

	fmt.Println("Risk")
	fmt.Printf("  Risk Per Trade:  %.2f%%\n", cfg.Risk.RiskPerTrade*100)
	fmt.Printf("  ATR Stop Mult:   %.1f\n", cfg.Risk.ATRStopMultiplier)
	fmt.Printf("  Min Risk/Reward: %.1f\n", cfg.Risk.MinRiskReward)
	fmt.Printf("  Max Drawdown:    %.1f%%\n", cfg.Risk.MaxDrawdown*100)
	fmt.Printf("  Max Trades/Day:  %d\n", cfg.Risk.MaxTradesPerDay)
	fmt.Println()

	fmt.Println("Execution")
	fmt.Printf("  Paper:           %v\n", cfg.Execution.Paper)
	fmt.Printf("  Limit Orders:    %v\n", cfg.Execution.UseLimitOrders)
	fmt.Printf("  Slippage:        %.4f%%\n", cfg.Execution.SlippagePct)
	fmt.Println()

	fmt.Println("Session")
	fmt.Printf("  Timezone:        %s\n", cfg.Session.Timezone)
	fmt.Printf("  Hours:           %s - %s\n", cfg.Session.OpenTime, cfg.Session.CloseTime)

	return nil
}
