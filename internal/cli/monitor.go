package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"macro-trader/internal/broker"
	"macro-trader/internal/notify"
	"macro-trader/internal/resilience"
	"macro-trader/internal/trading"
	"macro-trader/pkg/utils"
)

func newMonitorCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch the calendar and act on upcoming releases",
		Long: `Poll the economic calendar and run every release due within the horizon
through prediction, signal generation, risk checks and dispatch. Each event is
handled once per process.

Signals are printed to the terminal and sent to the configured notification
channels. Orders are only placed in DIRECTIONAL mode.`,
		Example: `  trader monitor
  trader monitor --once
  trader monitor --interval 30s --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			once, _ := cmd.Flags().GetBool("once")
			interval, _ := cmd.Flags().GetDuration("interval")

			eng, err := app.Engine()
			if err != nil {
				output.Error("Failed to start engine: %v", err)
				return err
			}

			if !output.IsJSON() {
				eng.notifier.AddChannel(notify.NewTerminalNotifier(output.Writer(), output.ColorEnabled()))
			}

			mon, err := newEventMonitor(app, eng, interval)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			now := time.Now()
			app.Logger.Info().
				Str("session", string(utils.GetForexSession(now))).
				Bool("market_open", utils.IsForexOpen(now)).
				Str("mode", string(eng.executor.Mode().Get())).
				Msg("Starting event monitor")

			if once {
				report := mon.Tick(ctx)
				return printTickReport(output, report)
			}

			if app.Config.Metrics.Enabled {
				srv := serveMetrics(app, eng)
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			if err := mon.Start(ctx); err != nil {
				return err
			}
			if !output.IsJSON() {
				output.Info("Monitoring %s ahead every %s. Press Ctrl+C to stop.",
					app.Config.Monitor.Horizon, app.Config.Monitor.Interval)
			}

			<-ctx.Done()
			if err := mon.Stop(); err != nil {
				app.Logger.Debug().Err(err).Msg("Monitor already stopped")
			}

			status := mon.Status()
			breakers := gatewayBreakers(eng)
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"ticks":    status.Ticks,
					"seen":     status.Seen,
					"breakers": breakers,
				})
			}
			output.Dim("Stopped after %d ticks, %d events handled", status.Ticks, status.Seen)
			for _, b := range breakers {
				if b.TotalRequests == 0 {
					continue
				}
				output.Dim("  %-32s %-9s %d calls, %.1f%% failed, %d rejected",
					b.Name, b.State, b.TotalRequests, b.FailureRate(), b.TotalRejected)
			}
			return nil
		},
	}

	cmd.Flags().Bool("once", false, "run a single pass and exit")
	cmd.Flags().Duration("interval", 0, "poll interval (default from config)")

	return cmd
}

func newEventMonitor(app *App, eng *engine, interval time.Duration) (*trading.Monitor, error) {
	cfg := app.Config
	if interval <= 0 {
		interval = cfg.Monitor.Interval
	}

	mon, err := trading.NewMonitor(trading.MonitorConfig{
		Interval:       interval,
		Throttle:       cfg.Monitor.EventThrottle,
		Horizon:        cfg.Monitor.Horizon,
		EntryTimeframe: cfg.Engine.EntryTimeframe,
		RSIPeriod:      cfg.Engine.RSIPeriod,
		Symbols:        cfg.Engine.Symbols,
		FallbackEquity: cfg.Trading.PaperEquity,
	}, trading.MonitorDeps{
		Source:    eng.store,
		Predictor: eng.predictor,
		Executor:  eng.executor,
		Market:    eng.market,
		Presenter: eng.notifier,
		Callback:  trading.CallbackFor(eng.broker),
	}, app.Logger)
	if err != nil {
		return nil, err
	}
	mon.SetMetrics(eng.metrics)
	return mon, nil
}

func serveMetrics(app *App, eng *engine) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", eng.metrics.Handler())
	srv := &http.Server{
		Addr:              app.Config.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Error().Err(err).Str("addr", srv.Addr).Msg("Metrics server failed")
		}
	}()
	app.Logger.Info().Str("addr", srv.Addr).Msg("Serving metrics")
	return srv
}

type outcomeView struct {
	Key       string  `json:"key"`
	Status    string  `json:"status"`
	Symbol    string  `json:"symbol,omitempty"`
	Direction string  `json:"direction,omitempty"`
	Volume    float64 `json:"volume,omitempty"`
	Message   string  `json:"message,omitempty"`
	Error     string  `json:"error,omitempty"`
}

func printTickReport(output *Output, report trading.TickReport) error {
	views := make([]outcomeView, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		v := outcomeView{Key: o.Key, Status: o.Status}
		if o.Signal != nil {
			v.Symbol = o.Signal.Symbol
			v.Direction = string(o.Signal.Direction)
			v.Volume = o.Signal.Volume
		}
		if o.Result != nil {
			v.Message = o.Result.Message
		}
		if o.Err != nil {
			v.Error = o.Err.Error()
		}
		views = append(views, v)
	}

	if output.IsJSON() {
		data := map[string]interface{}{
			"found":    report.Found,
			"skipped":  report.Skipped,
			"outcomes": views,
		}
		if report.Err != nil {
			data["error"] = report.Err.Error()
		}
		if err := output.JSON(data); err != nil {
			return err
		}
		return report.Err
	}

	if report.Err != nil {
		output.Error("Tick failed: %v", report.Err)
		return report.Err
	}
	if len(views) == 0 {
		output.Dim("No events due (%d found, %d already handled)", report.Found, report.Skipped)
		return nil
	}

	table := NewTable(output, "EVENT", "STATUS", "SYMBOL", "SIDE", "LOTS", "DETAIL")
	for _, v := range views {
		detail := v.Message
		if v.Error != "" {
			detail = v.Error
		}
		lots := ""
		if v.Volume > 0 {
			lots = utils.FormatLots(v.Volume)
		}
		table.AddRow(v.Key, v.Status, v.Symbol, v.Direction, lots, detail)
	}
	table.Render()
	return nil
}

// gatewayBreakers reports the gateway's circuit breakers. The paper broker
// has none.
func gatewayBreakers(eng *engine) []resilience.CircuitBreakerStats {
	gw, ok := eng.broker.(*broker.GatewayClient)
	if !ok {
		return nil
	}
	return gw.Breakers().AllStats()
}
