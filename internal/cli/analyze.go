package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"macro-trader/internal/agents"
	"macro-trader/internal/analysis"
	"macro-trader/internal/analysis/indicators"
	apperrors "macro-trader/internal/errors"
	"macro-trader/internal/models"
	"macro-trader/internal/store"
	"macro-trader/internal/trading"
	"macro-trader/pkg/utils"
)

// addAnalysisCommands adds the statistics and prediction commands.
func addAnalysisCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newStatsCmd(app))
	rootCmd.AddCommand(newPredictCmd(app))
	rootCmd.AddCommand(newClassifyCmd())
	rootCmd.AddCommand(newReleaseCmd(app))
}

// parseAsOf reads the optional --as-of flag.
func parseAsOf(cmd *cobra.Command) (*time.Time, error) {
	raw, _ := cmd.Flags().GetString("as-of")
	if raw == "" {
		return nil, nil
	}
	t, err := store.ParseImportTime(raw)
	if err != nil {
		return nil, apperrors.NewValidationError("as-of", raw, err.Error())
	}
	return &t, nil
}

func requireCurrency(cmd *cobra.Command) (string, error) {
	currency, _ := cmd.Flags().GetString("currency")
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return "", apperrors.NewValidationError("currency", currency, "must be a 3-letter code")
	}
	return currency, nil
}

func newStatsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <event>",
		Short: "Historical deviation statistics for an event",
		Long: `Aggregate the most recent released history of an event: mean and
standard deviation of the surprise, how often it beat, outcome categories and
the typical pip move on the currency's primary pair.

With --as-of only releases strictly before that instant are considered.`,
		Example: `  trader stats "Non-Farm Payrolls" --currency USD
  trader stats "CPI y/y" --currency GBP --as-of 2024-03-20T07:00:00Z --unweighted`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			currency, err := requireCurrency(cmd)
			if err != nil {
				return err
			}
			asOf, err := parseAsOf(cmd)
			if err != nil {
				return err
			}
			lookback, _ := cmd.Flags().GetInt("lookback")
			unweighted, _ := cmd.Flags().GetBool("unweighted")

			eng, err := app.Engine()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			stats, err := eng.analyzer.DeviationStats(ctx, args[0], currency, analysis.StatsOptions{
				Lookback: lookback,
				Weighted: !unweighted,
				AsOf:     asOf,
			})
			if err != nil {
				output.Error("Failed to compute statistics: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(stats)
			}
			printStats(output, stats)
			return nil
		},
	}

	cmd.Flags().StringP("currency", "c", "", "event currency (required)")
	cmd.Flags().String("as-of", "", "only use releases before this time")
	cmd.Flags().Int("lookback", analysis.DefaultLookback, "number of past releases")
	cmd.Flags().Bool("unweighted", false, "disable recency weighting")
	_ = cmd.MarkFlagRequired("currency")

	return cmd
}

// pct renders a 0..1 rate as a percentage.
func pct(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate*100)
}

func printStats(output *Output, s models.DeviationStats) {
	output.Bold("%s (%s)", s.EventName, s.Currency)
	if !s.SufficientData {
		output.Warning("Only %d releases on record, not enough for statistics", s.SampleSize)
		return
	}
	weighting := "recency weighted"
	if !s.Weighted {
		weighting = "unweighted"
	}
	output.Printf("  Releases:        %d (effective %.1f, %s)\n", s.SampleSize, s.EffectiveSample, weighting)
	output.Printf("  Mean deviation:  %.4f\n", s.MeanDeviation)
	output.Printf("  Std deviation:   %.4f\n", s.StdDeviation)
	output.Printf("  Beat rate:       %s\n", pct(s.PositiveRate))
	output.Printf("  Avg move:        %s\n", utils.FormatPips(s.AvgPips))
	output.Println()

	table := NewTable(output, "CATEGORY", "COUNT")
	for _, c := range models.AllCategories() {
		table.AddRow(string(c), fmt.Sprintf("%d", s.Categories[c]))
	}
	table.Render()
}

func newPredictCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict <event>",
		Short: "Forecast the outcome of an upcoming release",
		Long: `Score an unreleased event against its own history and show the signal
the engine would generate for it. Nothing is journaled or placed.`,
		Example: `  trader predict "Non-Farm Payrolls" --currency USD --forecast 200 --previous 180
  trader predict "CPI y/y" -c GBP --forecast 3.5 --symbol EURGBP`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			currency, err := requireCurrency(cmd)
			if err != nil {
				return err
			}
			asOf, err := parseAsOf(cmd)
			if err != nil {
				return err
			}
			forecast, _ := cmd.Flags().GetFloat64("forecast")
			previous := forecast
			if cmd.Flags().Changed("previous") {
				previous, _ = cmd.Flags().GetFloat64("previous")
			}
			symbol, _ := cmd.Flags().GetString("symbol")

			eng, err := app.Engine()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			pred, err := eng.predictor.Predict(ctx, agents.PredictRequest{
				EventName: args[0],
				Currency:  currency,
				Forecast:  forecast,
				Previous:  previous,
				AsOf:      asOf,
			})
			if err != nil {
				output.Error("Prediction failed: %v", err)
				return err
			}

			if symbol == "" {
				symbol = trading.PickSymbol(currency, app.Config.Engine.Symbols)
			}
			proposer := trading.NewExecutor(eng.executor.Mode(), eng.guardian, app.Config.Engine.Principal, app.Logger)
			tech := technicalsFor(ctx, eng, app, symbol)
			sig, err := proposer.GenerateSignal(ctx, pred, symbol, tech, eng.equity(ctx, app.Config.Trading.PaperEquity))
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"prediction": pred,
					"signal":     sig,
				})
			}
			printPrediction(output, pred, sig)
			return nil
		},
	}

	cmd.Flags().StringP("currency", "c", "", "event currency (required)")
	cmd.Flags().Float64("forecast", 0, "consensus forecast (required)")
	cmd.Flags().Float64("previous", 0, "previous print (default: forecast)")
	cmd.Flags().String("symbol", "", "pair to trade (default: primary pair for the currency)")
	cmd.Flags().String("as-of", "", "evaluate history as it stood at this time")
	_ = cmd.MarkFlagRequired("currency")
	_ = cmd.MarkFlagRequired("forecast")

	return cmd
}

// technicalsFor is best-effort, like the monitor's.
func technicalsFor(ctx context.Context, eng *engine, app *App, symbol string) *models.Technicals {
	tf := app.Config.Engine.EntryTimeframe
	period := app.Config.Engine.RSIPeriod
	candles, err := eng.market.FetchCandles(ctx, symbol, tf, period*3+1)
	if err != nil {
		app.Logger.Debug().Err(err).Str("symbol", symbol).Msg("No technicals")
		return nil
	}
	tech, err := indicators.Snapshot(candles, tf, period)
	if err != nil {
		return nil
	}
	return tech
}

func printPrediction(output *Output, p *models.EventPrediction, sig *models.EventSignal) {
	output.Bold("%s (%s)", p.EventName, p.Currency)
	output.Printf("  Forecast:     %g (previous %g, %s)\n", p.Forecast, p.Previous, p.TrendForecast)
	output.Printf("  Prediction:   %s with %s probability\n", output.Outcome(p.PredictedOutcome), pct(p.Probability))
	output.Printf("  Confidence:   %s (%d releases, beat rate %s)\n", p.Confidence, p.HistoricalSample, pct(p.BeatRate))
	output.Printf("  Bias:         %s (score %+d)\n", p.ExpectedDirection, p.BiasScore)
	output.Printf("  Avg move:     %s\n", utils.FormatPips(p.AvgPips))
	output.Dim("  %s", p.Recommendation)
	output.Println()

	if sig == nil {
		return
	}
	lines := []string{
		fmt.Sprintf("%s %s  %s", output.Direction(sig.Direction), sig.Symbol, utils.FormatLots(sig.Volume)),
		fmt.Sprintf("SL %s / TP %s  (RR %.1f)", utils.FormatPips(sig.StopLossPips), utils.FormatPips(sig.TakeProfitPips), sig.RiskReward),
		fmt.Sprintf("Entry: %s, %s", sig.EntryStyle, sig.EntryLogic),
		fmt.Sprintf("Mode:  %s", sig.Mode),
	}
	if sig.PriceHint > 0 {
		lines = append(lines, fmt.Sprintf("Price: %.5f", sig.PriceHint))
	}
	output.Box("Proposed signal", lines)
}

func newClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a release against its forecast",
		Example: `  trader classify --forecast 200 --actual 275 --previous 229
  trader classify --forecast 0 --actual 0.1 --previous -0.2 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			forecast, _ := cmd.Flags().GetFloat64("forecast")
			actual, _ := cmd.Flags().GetFloat64("actual")
			previous := forecast
			if cmd.Flags().Changed("previous") {
				previous, _ = cmd.Flags().GetFloat64("previous")
			}

			outcome := analysis.ClassifyOutcome(forecast, actual, previous)
			if output.IsJSON() {
				return output.JSON(outcome)
			}
			output.Printf("Deviation:  %+g (%+.2f%%)\n", outcome.Deviation, outcome.DeviationPct*100)
			output.Printf("Momentum:   %+g\n", outcome.Momentum)
			output.Printf("Category:   %s\n", outcome.Category)
			return nil
		},
	}

	cmd.Flags().Float64("forecast", 0, "consensus forecast (required)")
	cmd.Flags().Float64("actual", 0, "released value (required)")
	cmd.Flags().Float64("previous", 0, "previous print (default: forecast)")
	_ = cmd.MarkFlagRequired("forecast")
	_ = cmd.MarkFlagRequired("actual")

	return cmd
}

func newReleaseCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release <event>",
		Short: "Grade the latest release of an event",
		Long: `Classify the most recent released print of an event and measure its
surprise against the history that preceded it.`,
		Example: `  trader release "Non-Farm Payrolls" --currency USD`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			currency, err := requireCurrency(cmd)
			if err != nil {
				return err
			}

			eng, err := app.Engine()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			latest, err := eng.store.QueryEvents(ctx, store.HistoryQuery(args[0], currency, 1, nil))
			if err != nil {
				return err
			}
			if len(latest) == 0 {
				output.Warning("No released %s (%s) on record", args[0], currency)
				return apperrors.ErrDataNotFound
			}

			ra, err := eng.analyzer.AnalyzeRelease(ctx, latest[0])
			if err != nil {
				output.Error("Analysis failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(ra)
			}
			output.Bold("%s (%s) on %s", ra.Event.Name, ra.Event.Currency, ra.Event.Time.Format("2006-01-02 15:04 MST"))
			output.Printf("  Actual %g vs forecast %g\n", *ra.Event.Actual, *ra.Event.Forecast)
			output.Printf("  Category:   %s (%+.2f%%)\n", ra.Outcome.Category, ra.Outcome.DeviationPct*100)
			output.Printf("  Z-score:    %.2f (%s)\n", ra.ZScore, ra.Tier)
			output.Printf("  History:    %d prior releases\n", ra.Stats.SampleSize)
			return nil
		},
	}

	cmd.Flags().StringP("currency", "c", "", "event currency (required)")
	_ = cmd.MarkFlagRequired("currency")

	return cmd
}
