package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"macro-trader/internal/agents"
	"macro-trader/internal/broker"
	"macro-trader/internal/config"
	"macro-trader/internal/models"
	"macro-trader/internal/trading"
	"macro-trader/pkg/utils"
)

// addRiskCommands adds risk and trading-mode commands.
func addRiskCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newRiskCmd(app))
	rootCmd.AddCommand(newModeCmd(app))
}

// tradeCheck gathers the account snapshot a risk verdict needs.
func tradeCheck(ctx context.Context, app *App, eng *engine, symbol string) (agents.TradeCheck, error) {
	positions, err := eng.broker.OpenPositions(ctx)
	if err != nil {
		return agents.TradeCheck{}, fmt.Errorf("listing open positions: %w", err)
	}
	symbol = strings.ToUpper(symbol)
	return agents.TradeCheck{
		Principal:      app.Config.Engine.Principal,
		Symbol:         symbol,
		SymbolExposure: broker.ExposureBySymbol(positions)[symbol],
		Equity:         eng.equity(ctx, app.Config.Trading.PaperEquity),
		OpenPositions:  positions,
	}, nil
}

func newRiskCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Risk guardian state and checks",
	}

	report := &cobra.Command{
		Use:   "report",
		Short: "Show daily P&L, exposure and limits",
		Example: `  trader risk report
  trader risk report --symbol GBPUSD`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol, _ := cmd.Flags().GetString("symbol")

			eng, err := app.Engine()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			tc, err := tradeCheck(ctx, app, eng, symbol)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			r := eng.guardian.RiskReport(ctx, tc)

			if output.IsJSON() {
				return output.JSON(r)
			}
			output.Bold("Risk report for %s", r.Principal)
			output.Printf("  Equity:          %s (start of day %s)\n", utils.FormatMoney(r.Equity), utils.FormatMoney(r.StartOfDayEquity))
			output.Printf("  Daily P&L:       %s (%.2f%%)\n", output.FormatPnL(r.DailyPnL), r.DailyPnLPct)
			output.Printf("  Open exposure:   %s\n", utils.FormatLots(r.TotalExposure))
			output.Printf("  Limits:          loss %.1f%%, %s per symbol, correlation %.2f\n",
				r.DailyLossLimit*100, utils.FormatLots(r.MaxSymbolExposure), r.MaxCorrelation)
			if r.CircuitBreaker {
				output.Error("  Daily loss limit reached: new trades are blocked")
			}
			if r.CorrelationWarning != "" {
				output.Warning("  %s", r.CorrelationWarning)
			}
			return nil
		},
	}
	report.Flags().String("symbol", "", "also check correlation of this pair against open positions")

	check := &cobra.Command{
		Use:     "check <symbol>",
		Short:   "Would a new trade on symbol pass the guardian?",
		Example: `  trader risk check EURUSD`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			eng, err := app.Engine()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			tc, err := tradeCheck(ctx, app, eng, args[0])
			if err != nil {
				output.Error("%v", err)
				return err
			}
			verdict := eng.guardian.CheckTradeSafety(ctx, tc)

			if output.IsJSON() {
				return output.JSON(verdict)
			}
			if verdict.Safe {
				output.Success("%s: %s", tc.Symbol, verdict.Reason)
				return nil
			}
			output.Error("%s blocked by %s: %s", tc.Symbol, verdict.Rule, verdict.Reason)
			return nil
		},
	}

	cmd.AddCommand(report, check)
	return cmd
}

func newModeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mode",
		Short: "Show or change the trading mode",
		Long: `SIGNAL_ONLY logs signals, DIRECTIONAL places orders through the broker
after risk checks, STRADDLE is reserved.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the configured trading mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			mode := app.Config.TradingMode()
			if output.IsJSON() {
				return output.JSON(map[string]string{"mode": string(mode)})
			}
			output.Println(string(mode))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "set <mode>",
		Short:   "Persist a new trading mode",
		Example: `  trader mode set directional
  trader mode set signal-only`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			mode, err := trading.ParseMode(args[0])
			if err != nil {
				output.Error("%v", err)
				return err
			}
			previous := app.Config.TradingMode()
			if err := config.SaveTradingMode(app.ConfigDir, mode); err != nil {
				return err
			}
			app.Config.Trading.Mode = string(mode)
			if app.Config.Audit.Enabled {
				if trail, err := openTrail(app.Config); err == nil {
					if err := trail.RecordModeChange(cmd.Context(), previous, mode); err != nil {
						app.Logger.Warn().Err(err).Msg("Failed to audit mode change")
					}
					trail.Close()
				}
			}

			if output.IsJSON() {
				return output.JSON(map[string]string{"previous": string(previous), "mode": string(mode)})
			}
			output.Success("Trading mode %s -> %s", previous, mode)
			if mode == models.ModeDirectional {
				output.Warning("Orders will be placed through the %s broker", app.Config.Trading.Broker)
			}
			return nil
		},
	})

	return cmd
}
