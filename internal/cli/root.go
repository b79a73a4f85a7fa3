package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"macro-trader/internal/config"
	"macro-trader/internal/logging"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2024-06-01"
)

// App holds the application dependencies. Components are built on first use
// so that commands such as version never open the store.
type App struct {
	Config    *config.Config
	ConfigDir string
	Logger    zerolog.Logger

	eng *engine
}

// NewRootCmd creates the root command for the CLI. When cfg is nil the
// configuration is loaded from --config before any command runs.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "Macro Trader - economic calendar event trading engine",
		Long: `Macro Trader watches the economic calendar, scores upcoming releases
against their own history and turns confident forecasts into forex signals.

Signals are logged, or placed through the configured broker in DIRECTIONAL
mode, after the risk guardian has cleared them.

Use 'trader help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/macro-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addAnalysisCommands(rootCmd, app)
	addRiskCommands(rootCmd, app)
	addEventCommands(rootCmd, app)
	rootCmd.AddCommand(newMonitorCmd(app))
	addHelpCommands(rootCmd)

	return rootCmd
}

func (a *App) init(cmd *cobra.Command) error {
	dir, _ := cmd.Flags().GetString("config")
	if dir == "" {
		dir = config.DefaultConfigDir()
	}
	a.ConfigDir = dir

	if a.Config == nil {
		cfg, err := config.Load(dir)
		if err != nil {
			return err
		}
		a.Config = cfg
		if cfg.Log.File {
			if err := os.MkdirAll(filepath.Dir(cfg.Log.FilePath), 0755); err != nil {
				return fmt.Errorf("creating log directory: %w", err)
			}
		}
		a.Logger = logging.NewLoggerWithConfig(cfg.Log)
	}

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logging.SetDebugLevel()
		a.Logger = a.Logger.Level(zerolog.DebugLevel)
	}
	return nil
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("Macro Trader v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
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
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(redacted(app.Config))
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": app.ConfigDir})
			}
			output.Println(app.ConfigDir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	return cmd
}

// redacted returns a copy of cfg with secrets masked.
func redacted(cfg *config.Config) config.Config {
	c := *cfg
	if c.Gateway.APIKey != "" {
		c.Gateway.APIKey = "***"
	}
	if c.Notifications.Telegram.BotToken != "" {
		c.Notifications.Telegram.BotToken = "***"
	}
	return c
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Engine")
	output.Printf("  Principal:        %s\n", cfg.Engine.Principal)
	output.Printf("  Symbols:          %s\n", strings.Join(cfg.Engine.Symbols, ", "))
	output.Printf("  Lookback:         %d releases\n", cfg.Engine.Lookback)
	output.Printf("  Entry timeframe:  %s (RSI %d)\n", cfg.Engine.EntryTimeframe, cfg.Engine.RSIPeriod)
	output.Println()

	output.Bold("Risk")
	output.Printf("  Daily loss limit: %.1f%% of equity\n", cfg.Risk.DailyLossLimit*100)
	output.Printf("  Max exposure:     %.2f lots per symbol\n", cfg.Risk.MaxSymbolExposure)
	output.Printf("  Max correlation:  %.2f\n", cfg.Risk.MaxCorrelation)
	output.Println()

	output.Bold("Trading")
	output.Printf("  Mode:             %s\n", cfg.Trading.Mode)
	output.Printf("  Broker:           %s\n", cfg.Trading.Broker)
	if cfg.Trading.Broker == "gateway" {
		output.Printf("  Gateway:          %s\n", cfg.Gateway.BaseURL)
	}
	output.Println()

	output.Bold("Monitor")
	output.Printf("  Interval:         %s\n", cfg.Monitor.Interval)
	output.Printf("  Event throttle:   %s\n", cfg.Monitor.EventThrottle)
	output.Printf("  Horizon:          %s\n", cfg.Monitor.Horizon)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Enabled:          %v\n", cfg.Notifications.Enabled)
	output.Printf("  Level:            %s\n", cfg.Notifications.Level)
	output.Printf("  Webhook:          %v\n", cfg.Notifications.Webhook.Enabled)
	output.Printf("  Telegram:         %v\n", cfg.Notifications.Telegram.Enabled)
	output.Printf("  Kafka:            %v\n", cfg.Notifications.Kafka.Enabled)
}
