package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"macro-trader/internal/agents"
	"macro-trader/internal/analysis"
	"macro-trader/internal/audit"
	"macro-trader/internal/broker"
	"macro-trader/internal/config"
	"macro-trader/internal/metrics"
	"macro-trader/internal/models"
	"macro-trader/internal/notify"
	"macro-trader/internal/store"
	"macro-trader/internal/trading"
)

// engine is the wired set of components commands work with.
type engine struct {
	store     *store.SQLiteStore
	broker    broker.Broker
	market    broker.MarketData
	metrics   *metrics.Recorder
	stats     *analysis.StatsCache
	pairs     *agents.CorrelationCache
	analyzer  *analysis.Analyzer
	predictor *agents.Predictor
	guardian  *agents.Guardian
	executor  *trading.Executor
	notifier  *notify.MultiNotifier
	trail     *audit.Trail
}

// syncedMarket serves candles through the local store and everything else
// from the live gateway.
type syncedMarket struct {
	broker.MarketData
	candles *store.CandleSync
}

func (s syncedMarket) FetchCandles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error) {
	return s.candles.FetchCandles(ctx, symbol, timeframe, count)
}

// Engine returns the application components, building them on first use.
func (a *App) Engine() (*engine, error) {
	if a.eng != nil {
		return a.eng, nil
	}
	cfg := a.Config
	logger := a.Logger

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	rec := metrics.New()

	b, err := broker.NewFromConfig(cfg, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	var market broker.MarketData = b
	if gw, ok := b.(*broker.GatewayClient); ok {
		gw.SetMetrics(rec)
		fresh, err := broker.TimeframeDuration(cfg.Engine.EntryTimeframe)
		if err != nil {
			db.Close()
			return nil, err
		}
		market = syncedMarket{MarketData: gw, candles: store.NewCandleSync(db, gw, fresh, logger)}
	}

	statsCache := analysis.NewStatsCache(cfg.Cache.StatsTTL)
	analyzer := analysis.NewAnalyzer(db, statsCache, logger,
		analysis.WithPriceHistory(db),
		analysis.WithMetrics(rec),
	)
	predictor := agents.NewPredictor(analyzer, cfg.Engine.Lookback, logger)

	pairCache := agents.NewCorrelationCache(cfg.Cache.CorrelationTTL)
	correlation := agents.NewCorrelationChecker(market, pairCache,
		cfg.Risk.CorrelationLookback, cfg.Risk.MinCorrelationPoints, logger)
	correlation.SetMetrics(rec)

	guardian := agents.NewGuardian(cfg.Risk, correlation, logger)
	guardian.SetMetrics(rec)

	executor := trading.NewExecutor(trading.NewModeState(cfg.TradingMode()), guardian, cfg.Engine.Principal, logger)
	executor.SetAccount(b)
	executor.SetJournal(db)
	executor.SetMetrics(rec)

	var trail *audit.Trail
	if cfg.Audit.Enabled {
		trail, err = openTrail(cfg)
		if err != nil {
			db.Close()
			return nil, err
		}
		executor.SetAudit(trail)
	}

	a.eng = &engine{
		store:     db,
		broker:    b,
		market:    market,
		metrics:   rec,
		stats:     statsCache,
		pairs:     pairCache,
		analyzer:  analyzer,
		predictor: predictor,
		guardian:  guardian,
		executor:  executor,
		notifier:  notify.NewMultiNotifier(cfg.Notifications, logger),
		trail:     trail,
	}
	return a.eng, nil
}

// Close releases whatever Engine opened.
func (a *App) Close() error {
	if a.eng == nil {
		return nil
	}
	e := a.eng
	a.eng = nil

	e.stats.Close()
	e.pairs.Close()
	var errs []string
	if err := e.notifier.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if e.trail != nil {
		if err := e.trail.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown: %s", strings.Join(errs, "; "))
	}
	return nil
}

func openTrail(cfg *config.Config) (*audit.Trail, error) {
	return audit.NewTrail(audit.Config{
		Dir:        cfg.Audit.Dir,
		MaxSize:    cfg.Audit.MaxSize,
		MaxBackups: cfg.Audit.MaxBackups,
		MaxAge:     cfg.Audit.MaxAge,
	}, cfg.Engine.Principal)
}

// equity asks the broker, falling back to the configured paper equity.
func (e *engine) equity(ctx context.Context, fallback float64) float64 {
	eq, err := e.broker.GetAccountEquity(ctx)
	if err != nil || eq <= 0 {
		return fallback
	}
	return eq
}
