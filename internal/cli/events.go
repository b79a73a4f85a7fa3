package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"macro-trader/internal/broker"
	"macro-trader/internal/models"
	"macro-trader/internal/store"
	"macro-trader/pkg/utils"
)

// addEventCommands adds calendar, price and signal journal commands.
func addEventCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newEventsCmd(app))
	rootCmd.AddCommand(newPricesCmd(app))
	rootCmd.AddCommand(newSignalsCmd(app))
}

// readEventsFile picks the decoder from the file extension.
func readEventsFile(path string) ([]models.CalendarEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return store.ReadEventsCSV(f)
	case ".json":
		return store.ReadEventsJSON(f)
	default:
		return nil, fmt.Errorf("unsupported calendar file %q: use .csv or .json", path)
	}
}

func newEventsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Economic calendar",
	}

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load calendar rows from CSV or JSON",
		Long: `Upsert calendar events. Rows are matched on name, date, time and
currency. A release's actual value is recorded once; later imports do not
overwrite it.

CSV header: name,currency,time,impact,forecast,previous,actual`,
		Example: `  trader events import calendar.csv
  trader events import week.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			events, err := readEventsFile(args[0])
			if err != nil {
				output.Error("%v", err)
				return err
			}

			eng, err := app.Engine()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			res, err := eng.store.SaveEvents(ctx, events)
			if err != nil {
				output.Error("Import failed: %v", err)
				return err
			}
			eng.analyzer.InvalidateRefs(res.Touched)

			if output.IsJSON() {
				rejected := make([]string, 0, len(res.Rejected))
				for _, e := range res.Rejected {
					rejected = append(rejected, e.Error())
				}
				return output.JSON(map[string]interface{}{
					"read":     len(events),
					"inserted": res.Inserted,
					"released": res.Released,
					"rejected": rejected,
				})
			}
			output.Success("Imported %d events (%d new, %d newly released)", len(events)-len(res.Rejected), res.Inserted, res.Released)
			for _, e := range res.Rejected {
				output.Warning("  rejected: %v", e)
			}
			return nil
		},
	}

	upcoming := &cobra.Command{
		Use:   "upcoming",
		Short: "List releases due soon",
		Example: `  trader events upcoming
  trader events upcoming --hours 72`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			hours, _ := cmd.Flags().GetInt("hours")

			eng, err := app.Engine()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			now := time.Now().UTC()
			q := store.UpcomingQuery(now, now.Add(time.Duration(hours)*time.Hour))
			q.RequireForecast = false
			events, err := eng.store.QueryEvents(ctx, q)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(events)
			}

			session := utils.GetForexSession(now)
			if utils.IsForexOpen(now) {
				output.Dim("Session: %s", session)
			} else {
				output.Dim("Market closed, opens %s", utils.FormatCountdown(now, utils.NextForexOpen(now)))
			}
			if len(events) == 0 {
				output.Info("No releases in the next %d hours", hours)
				return nil
			}

			table := NewTable(output, "IN", "TIME (UTC)", "CCY", "IMPACT", "EVENT", "FORECAST", "PREVIOUS")
			for _, e := range events {
				table.AddRow(
					utils.FormatCountdown(now, e.Time),
					e.Time.UTC().Format("Mon 15:04"),
					e.Currency,
					impactText(output, e.Impact),
					e.Name,
					optional(e.Forecast),
					optional(e.Previous),
				)
			}
			table.Render()
			return nil
		},
	}
	upcoming.Flags().Int("hours", 24, "look-ahead window")

	cmd.AddCommand(importCmd, upcoming)
	return cmd
}

func impactText(output *Output, impact models.ImpactLevel) string {
	switch impact {
	case models.ImpactHigh:
		return output.Red(string(impact))
	case models.ImpactMedium:
		return output.Yellow(string(impact))
	}
	return string(impact)
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}

func newPricesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prices",
		Short: "Local price history",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import <symbol> <timeframe> <file.csv>",
		Short: "Load OHLCV bars into the store",
		Long: `Store bars used for pip statistics, technicals, correlation and paper
fills. CSV header: time,open,high,low,close,volume`,
		Example: `  trader prices import USDJPY H1 usdjpy_h1.csv`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol := strings.ToUpper(args[0])
			if _, _, ok := models.SplitSymbol(symbol); !ok {
				return fmt.Errorf("invalid symbol %q", args[0])
			}
			timeframe := strings.ToUpper(args[1])
			if _, err := broker.TimeframeDuration(timeframe); err != nil {
				return err
			}

			f, err := os.Open(args[2])
			if err != nil {
				return err
			}
			defer f.Close()
			candles, err := store.ReadCandlesCSV(f)
			if err != nil {
				output.Error("%v", err)
				return err
			}

			eng, err := app.Engine()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			if err := eng.store.SaveCandles(ctx, symbol, timeframe, candles); err != nil {
				return err
			}
			// Pip averages depend on stored bars.
			eng.analyzer.InvalidateAll()

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"symbol": symbol, "timeframe": timeframe, "bars": len(candles)})
			}
			output.Success("Stored %d %s %s bars", len(candles), symbol, timeframe)
			return nil
		},
	})

	return cmd
}

func newSignalsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signals",
		Short: "Signal journal",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List journaled signals, newest first",
		Example: `  trader signals list
  trader signals list --symbol USDJPY --executed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol, _ := cmd.Flags().GetString("symbol")
			event, _ := cmd.Flags().GetString("event")
			limit, _ := cmd.Flags().GetInt("limit")
			executed, _ := cmd.Flags().GetBool("executed")
			pending, _ := cmd.Flags().GetBool("pending")
			if executed && pending {
				return fmt.Errorf("--executed and --pending are mutually exclusive")
			}

			filter := store.SignalFilter{
				Symbol:    strings.ToUpper(symbol),
				EventName: event,
				Limit:     limit,
			}
			if executed || pending {
				filter.Executed = &executed
			}

			eng, err := app.Engine()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			signals, err := eng.store.ListSignals(ctx, filter)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(signals)
			}
			if len(signals) == 0 {
				output.Dim("No signals recorded")
				return nil
			}

			table := NewTable(output, "CREATED", "EVENT", "SIDE", "SYMBOL", "LOTS", "PROB", "MODE", "EXECUTED")
			for _, s := range signals {
				done := "-"
				if s.Executed {
					done = output.Green(s.ExecutionID)
				}
				table.AddRow(
					s.CreatedAt.Format("01-02 15:04"),
					s.EventName,
					output.Direction(s.Direction),
					s.Symbol,
					fmt.Sprintf("%.2f", s.Volume),
					pct(s.Probability),
					string(s.Mode),
					done,
				)
			}
			table.Render()
			return nil
		},
	}
	list.Flags().String("symbol", "", "filter by pair")
	list.Flags().String("event", "", "filter by event name")
	list.Flags().Int("limit", 20, "maximum rows")
	list.Flags().Bool("executed", false, "only executed signals")
	list.Flags().Bool("pending", false, "only signals not executed")

	cmd.AddCommand(list)
	return cmd
}
