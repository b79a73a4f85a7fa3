// Package integration runs the event pipeline end to end against a real
// store and the paper broker.
package integration

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macro-trader/internal/agents"
	"macro-trader/internal/analysis"
	"macro-trader/internal/audit"
	"macro-trader/internal/broker"
	"macro-trader/internal/config"
	"macro-trader/internal/models"
	"macro-trader/internal/store"
	"macro-trader/internal/trading"
)

var now = time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

// history is twenty monthly releases that all beat forecast.
func history(name, currency string, forecast, actual float64) []models.CalendarEvent {
	start := time.Date(2022, 6, 3, 13, 30, 0, 0, time.UTC)
	events := make([]models.CalendarEvent, 0, 20)
	for i := 0; i < 20; i++ {
		events = append(events, models.CalendarEvent{
			Name:     name,
			Currency: currency,
			Time:     start.AddDate(0, i, 0),
			Impact:   models.ImpactHigh,
			Forecast: ptr(forecast),
			Previous: ptr(forecast),
			Actual:   ptr(actual),
		})
	}
	return events
}

// risingBars returns hourly bars ending an hour before now whose closes climb
// by step from base.
func risingBars(base, step float64) []models.Candle {
	const n = 30
	first := now.Add(-n * time.Hour)
	candles := make([]models.Candle, 0, n)
	for i := 0; i < n; i++ {
		c := base + step*float64(i)
		candles = append(candles, models.Candle{
			Time:   first.Add(time.Duration(i) * time.Hour),
			Open:   c - step/2,
			High:   c + step,
			Low:    c - step,
			Close:  c,
			Volume: 1000,
		})
	}
	return candles
}

type pipeline struct {
	db       *store.SQLiteStore
	paper    *broker.PaperBroker
	executor *trading.Executor
	monitor  *trading.Monitor
	trail    *audit.Trail
}

func newPipeline(t *testing.T, mode models.TradingMode) *pipeline {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	logger := zerolog.Nop()

	db, err := store.NewSQLiteStore(filepath.Join(dir, "trader.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.SaveEvents(ctx, append(
		history("Non-Farm Payrolls", "USD", 200, 250),
		history("CPI y/y", "GBP", 3.0, 3.4)...))
	require.NoError(t, err)
	require.NoError(t, db.SaveCandles(ctx, "EURUSD", "H1", risingBars(1.0800, 0.0005)))
	require.NoError(t, db.SaveCandles(ctx, "GBPUSD", "H1", risingBars(1.2600, 0.0007)))

	paper := broker.NewPaperBroker(broker.PaperBrokerConfig{Candles: db, InitialBalance: 10000}, logger)
	paper.SetClock(func() time.Time { return now })

	stats := analysis.NewStatsCache(time.Hour)
	t.Cleanup(func() { stats.Close() })
	analyzer := analysis.NewAnalyzer(db, stats, logger,
		analysis.WithPriceHistory(db),
		analysis.WithClock(func() time.Time { return now }))
	predictor := agents.NewPredictor(analyzer, 0, logger)

	pairs := agents.NewCorrelationCache(time.Hour)
	t.Cleanup(func() { pairs.Close() })
	riskCfg := config.Default().Risk
	correlation := agents.NewCorrelationChecker(paper, pairs, riskCfg.CorrelationLookback, riskCfg.MinCorrelationPoints, logger)
	guardian := agents.NewGuardian(riskCfg, correlation, logger)
	guardian.SetClock(func() time.Time { return now })

	trail, err := audit.NewTrail(audit.Config{Dir: filepath.Join(dir, "audit"), MaxSize: 1}, "default")
	require.NoError(t, err)
	t.Cleanup(func() { trail.Close() })

	executor := trading.NewExecutor(trading.NewModeState(mode), guardian, "default", logger)
	executor.SetAccount(paper)
	executor.SetJournal(db)
	executor.SetAudit(trail)
	executor.SetClock(func() time.Time { return now })

	monitor, err := trading.NewMonitor(trading.MonitorConfig{
		Interval: time.Minute,
		Horizon:  24 * time.Hour,
		Symbols:  []string{"EURUSD", "GBPUSD"},
	}, trading.MonitorDeps{
		Source:    db,
		Predictor: predictor,
		Executor:  executor,
		Market:    paper,
		Callback:  trading.CallbackFor(paper),
	}, logger)
	require.NoError(t, err)
	monitor.SetClock(func() time.Time { return now })

	return &pipeline{db: db, paper: paper, executor: executor, monitor: monitor, trail: trail}
}

func (p *pipeline) schedule(t *testing.T) {
	t.Helper()
	_, err := p.db.SaveEvents(context.Background(), []models.CalendarEvent{
		{Name: "Non-Farm Payrolls", Currency: "USD", Time: now.Add(time.Hour), Impact: models.ImpactHigh,
			Forecast: ptr(200), Previous: ptr(180)},
		{Name: "CPI y/y", Currency: "GBP", Time: now.Add(2 * time.Hour), Impact: models.ImpactHigh,
			Forecast: ptr(3.0), Previous: ptr(3.1)},
	})
	require.NoError(t, err)
}

func readAudit(t *testing.T, path string) []audit.Event {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []audit.Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e audit.Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		events = append(events, e)
	}
	return events
}

// TestDirectionalPipelineBlocksCorrelatedSecondTrade runs two due releases
// through one tick. The first fills on the paper account and the second is
// refused because its pair moves with the position just opened.
func TestDirectionalPipelineBlocksCorrelatedSecondTrade(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, models.ModeDirectional)
	p.schedule(t)

	report := p.monitor.Tick(ctx)
	require.NoError(t, report.Err)
	require.Len(t, report.Outcomes, 2)

	nfp := report.Outcomes[0]
	require.NotNil(t, nfp.Signal)
	assert.Equal(t, string(models.StatusExecuted), nfp.Status)
	assert.Equal(t, "EURUSD", nfp.Signal.Symbol)
	assert.Equal(t, models.DirectionSell, nfp.Signal.Direction)
	assert.Equal(t, models.OrderTypeMarket, nfp.Signal.OrderType)
	assert.Greater(t, nfp.Signal.Volume, 0.0)

	cpi := report.Outcomes[1]
	require.NotNil(t, cpi.Signal)
	assert.Equal(t, string(models.StatusBlocked), cpi.Status)
	assert.Equal(t, "GBPUSD", cpi.Signal.Symbol)
	assert.Equal(t, models.DirectionBuy, cpi.Signal.Direction)
	assert.Contains(t, cpi.Result.Message, "EURUSD")

	positions, err := p.paper.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "EURUSD", positions[0].Symbol)
	assert.Equal(t, nfp.Result.Ticket, positions[0].Ticket)

	executed := true
	journaled, err := p.db.ListSignals(ctx, store.SignalFilter{Executed: &executed})
	require.NoError(t, err)
	require.Len(t, journaled, 1)
	assert.Equal(t, nfp.Signal.ID, journaled[0].ID)
	assert.Equal(t, nfp.Result.Ticket, journaled[0].ExecutionID)

	all, err := p.db.ListSignals(ctx, store.SignalFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, p.trail.Close())
	entries := readAudit(t, p.trail.Path())
	require.Len(t, entries, 2)
	assert.Equal(t, audit.OrderPlaced, entries[0].EventType)
	assert.Equal(t, audit.OrderBlocked, entries[1].EventType)

	// Both releases are remembered; nothing runs twice.
	again := p.monitor.Tick(ctx)
	assert.Empty(t, again.Outcomes)
	assert.Equal(t, 2, again.Skipped)
}

// TestSignalOnlyPipelineNeverTouchesAccount checks that the same releases
// only produce journaled signals when trading is not directional.
func TestSignalOnlyPipelineNeverTouchesAccount(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, models.ModeSignalOnly)
	p.schedule(t)

	report := p.monitor.Tick(ctx)
	require.Len(t, report.Outcomes, 2)
	for _, out := range report.Outcomes {
		assert.Equal(t, string(models.StatusLogged), out.Status)
		assert.False(t, out.Signal.Executed)
	}

	positions, err := p.paper.OpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)

	pending := false
	journaled, err := p.db.ListSignals(ctx, store.SignalFilter{Executed: &pending})
	require.NoError(t, err)
	assert.Len(t, journaled, 2)
}
