package trading

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"macro-trader/internal/agents"
	"macro-trader/internal/analysis/indicators"
	"macro-trader/internal/broker"
	apperrors "macro-trader/internal/errors"
	"macro-trader/internal/logging"
	"macro-trader/internal/metrics"
	"macro-trader/internal/models"
	"macro-trader/internal/notify"
	"macro-trader/internal/store"
)

// Outcome statuses for events that never reached dispatch.
const (
	OutcomeInvalid = "INVALID"
	OutcomeError   = "ERROR"
	OutcomePanic   = "PANIC"
)

// Forecaster predicts the outcome of an unreleased event.
type Forecaster interface {
	Predict(ctx context.Context, req agents.PredictRequest) (*models.EventPrediction, error)
}

// MonitorConfig holds the scheduler settings.
type MonitorConfig struct {
	Interval time.Duration
	// Throttle is the pause after each processed event.
	Throttle time.Duration
	Horizon  time.Duration

	EntryTimeframe string
	RSIPeriod      int
	Symbols        []string
	// FallbackEquity sizes signals when market data cannot report equity.
	FallbackEquity float64
}

// DefaultMonitorConfig returns the production cadence.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:       60 * time.Second,
		Throttle:       2 * time.Second,
		Horizon:        24 * time.Hour,
		EntryTimeframe: "H1",
		RSIPeriod:      14,
		FallbackEquity: 10000,
	}
}

// MonitorDeps are the collaborators a monitor drives. Market, Presenter and
// Callback are optional.
type MonitorDeps struct {
	Source    store.EventSource
	Predictor Forecaster
	Executor  *Executor
	Market    broker.MarketData
	Presenter notify.Presenter
	Callback  TradeCallback
}

// EventOutcome is what happened to one event in a tick.
type EventOutcome struct {
	Key    string
	Status string
	Signal *models.EventSignal
	Result *models.ExecutionResult
	Err    error
}

// TickReport aggregates one pass over the event source.
type TickReport struct {
	Started  time.Time
	Found    int
	Skipped  int
	Outcomes []EventOutcome
	Err      error
	Stopped  bool
}

// MonitorStatus represents the current state of the monitor.
type MonitorStatus struct {
	Running   bool
	Ticks     int
	Seen      int
	LastTick  time.Time
	LastError error
}

// Monitor polls the event source and runs due events through prediction and
// dispatch, once per event identity.
type Monitor struct {
	cfg     MonitorConfig
	deps    MonitorDeps
	metrics *metrics.Recorder
	logger  zerolog.Logger
	now     func() time.Time

	// pipeline is swapped in tests to count entries.
	pipeline func(ctx context.Context, ev models.CalendarEvent) EventOutcome

	seenMu sync.RWMutex
	seen   map[string]struct{}

	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	done     chan struct{}
	ticks    int
	lastTick time.Time
	lastErr  error
}

// NewMonitor creates a monitor. Zero durations in cfg fall back to defaults,
// except Throttle which may be zero.
func NewMonitor(cfg MonitorConfig, deps MonitorDeps, logger zerolog.Logger) (*Monitor, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("%w: event source", apperrors.ErrConfigMissing)
	}
	if deps.Predictor == nil || deps.Executor == nil {
		return nil, fmt.Errorf("%w: predictor and executor are required", apperrors.ErrConfigMissing)
	}

	def := DefaultMonitorConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Throttle < 0 {
		cfg.Throttle = 0
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = def.Horizon
	}
	if cfg.EntryTimeframe == "" {
		cfg.EntryTimeframe = def.EntryTimeframe
	}
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = def.RSIPeriod
	}
	if cfg.FallbackEquity <= 0 {
		cfg.FallbackEquity = def.FallbackEquity
	}

	m := &Monitor{
		cfg:    cfg,
		deps:   deps,
		logger: logging.WithComponent(logger, "monitor"),
		now:    time.Now,
		seen:   make(map[string]struct{}),
	}
	m.pipeline = m.processEvent
	return m, nil
}

// SetMetrics attaches a metrics recorder.
func (m *Monitor) SetMetrics(r *metrics.Recorder) { m.metrics = r }

// SetClock overrides the time source. Used by tests.
func (m *Monitor) SetClock(now func() time.Time) { m.now = now }

// Start launches the polling loop. The first tick runs immediately.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopCh != nil {
		return fmt.Errorf("monitor already running")
	}

	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	m.running = true
	go m.run(ctx, m.stopCh, m.done)

	m.logger.Info().
		Dur("interval", m.cfg.Interval).
		Dur("throttle", m.cfg.Throttle).
		Dur("horizon", m.cfg.Horizon).
		Msg("Event monitor started")
	return nil
}

// Stop ends the loop. An event already in the pipeline is allowed to finish;
// Stop returns once it has.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.stopCh == nil {
		m.mu.Unlock()
		return fmt.Errorf("monitor not running")
	}
	close(m.stopCh)
	done := m.done
	m.stopCh, m.done = nil, nil
	m.mu.Unlock()

	<-done
	m.logger.Info().Msg("Event monitor stopped")
	return nil
}

// Running reports whether the loop is alive.
func (m *Monitor) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Status returns a snapshot of the monitor state.
func (m *Monitor) Status() MonitorStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MonitorStatus{
		Running:   m.running,
		Ticks:     m.ticks,
		Seen:      m.SeenCount(),
		LastTick:  m.lastTick,
		LastError: m.lastErr,
	}
}

// SeenCount returns how many event identities have been processed.
func (m *Monitor) SeenCount() int {
	m.seenMu.RLock()
	defer m.seenMu.RUnlock()
	return len(m.seen)
}

func (m *Monitor) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		m.mu.Lock()
		m.running = false
		// A cancelled ctx ends the loop without Stop; release the slot so
		// Start works again.
		if m.stopCh == stop {
			m.stopCh, m.done = nil, nil
		}
		m.mu.Unlock()
	}()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		report := m.tick(ctx, stop)
		if report.Err != nil {
			m.logger.Error().Err(report.Err).Msg("Tick ended early")
		}

		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick runs one pass over the events due within the horizon.
func (m *Monitor) Tick(ctx context.Context) TickReport {
	return m.tick(ctx, nil)
}

func (m *Monitor) tick(ctx context.Context, stop <-chan struct{}) TickReport {
	now := m.now()
	report := TickReport{Started: now}
	m.metrics.RecordTick()

	defer func() {
		m.mu.Lock()
		m.ticks++
		m.lastTick = now
		m.lastErr = report.Err
		m.mu.Unlock()
	}()

	events, err := m.deps.Source.QueryEvents(ctx, store.UpcomingQuery(now, now.Add(m.cfg.Horizon)))
	if err != nil {
		m.metrics.RecordCollaboratorError("event_source", "query_events")
		report.Err = apperrors.NewCollaboratorError("event_source", "query_events", err)
		return report
	}
	report.Found = len(events)

	processed := 0
	for _, ev := range events {
		if stopped(ctx, stop) {
			report.Stopped = true
			break
		}

		key := ev.Key()
		if m.isSeen(key) {
			report.Skipped++
			continue
		}

		if processed > 0 && !m.throttle(ctx, stop) {
			report.Stopped = true
			break
		}

		started := time.Now()
		out := m.pipeline(context.WithoutCancel(ctx), ev)
		out.Key = key
		m.markSeen(key)
		processed++

		m.metrics.RecordEvent(out.Status, time.Since(started))
		report.Outcomes = append(report.Outcomes, out)
	}

	m.logger.Debug().
		Int("found", report.Found).
		Int("skipped", report.Skipped).
		Int("processed", len(report.Outcomes)).
		Msg("Tick complete")
	return report
}

// throttle waits between events. It returns false when the monitor is
// stopping.
func (m *Monitor) throttle(ctx context.Context, stop <-chan struct{}) bool {
	if m.cfg.Throttle <= 0 {
		return true
	}
	timer := time.NewTimer(m.cfg.Throttle)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func stopped(ctx context.Context, stop <-chan struct{}) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

func (m *Monitor) isSeen(key string) bool {
	m.seenMu.RLock()
	defer m.seenMu.RUnlock()
	_, ok := m.seen[key]
	return ok
}

func (m *Monitor) markSeen(key string) {
	m.seenMu.Lock()
	m.seen[key] = struct{}{}
	m.seenMu.Unlock()
}

// processEvent runs one event through prediction, signal generation,
// dispatch and presentation.
func (m *Monitor) processEvent(ctx context.Context, ev models.CalendarEvent) (out EventOutcome) {
	logger := logging.WithEvent(m.logger, ev.Name, ev.Currency)

	defer func() {
		if r := recover(); r != nil {
			out.Status = OutcomePanic
			out.Err = fmt.Errorf("panic processing %s: %v", ev.Name, r)
			logger.Error().Interface("panic", r).Msg("Recovered from panic in event pipeline")
		}
	}()

	if err := store.ValidateEvent(ev); err != nil {
		logger.Warn().Err(err).Msg("Skipping invalid event")
		return EventOutcome{Status: OutcomeInvalid, Err: err}
	}
	if ev.Forecast == nil {
		err := apperrors.NewValidationError("forecast", nil, "required for prediction")
		logger.Warn().Err(err).Msg("Skipping invalid event")
		return EventOutcome{Status: OutcomeInvalid, Err: err}
	}
	previous := *ev.Forecast
	if ev.Previous != nil {
		previous = *ev.Previous
	}

	pred, err := m.deps.Predictor.Predict(ctx, agents.PredictRequest{
		EventName: ev.Name,
		Currency:  ev.Currency,
		Forecast:  *ev.Forecast,
		Previous:  previous,
		EventTime: ev.Time,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Prediction failed")
		return EventOutcome{Status: OutcomeError, Err: err}
	}
	logging.LogPrediction(logger, *pred)

	symbol := PickSymbol(ev.Currency, m.cfg.Symbols)
	equity := m.equity(ctx, logger)
	technicals := m.technicals(ctx, symbol, logger)

	sig, err := m.deps.Executor.GenerateSignal(ctx, pred, symbol, technicals, equity)
	if err != nil {
		logger.Error().Err(err).Str("symbol", symbol).Msg("Signal generation failed")
		return EventOutcome{Status: OutcomeError, Err: err}
	}

	res := m.deps.Executor.ExecuteSignal(ctx, sig, m.deps.Callback)

	if m.deps.Presenter != nil {
		if err := m.deps.Presenter.Present(ctx, notify.NewSignalDocument(sig, res)); err != nil {
			m.metrics.RecordCollaboratorError("presentation", "present")
			logger.Warn().Err(err).Str("signal_id", sig.ID).Msg("Failed to present signal")
		}
	}

	return EventOutcome{Status: string(res.Status), Signal: sig, Result: &res}
}

func (m *Monitor) equity(ctx context.Context, logger zerolog.Logger) float64 {
	if m.deps.Market == nil {
		return m.cfg.FallbackEquity
	}
	start := time.Now()
	eq, err := m.deps.Market.GetAccountEquity(ctx)
	if err == nil && eq <= 0 {
		err = fmt.Errorf("non-positive equity %.2f", eq)
	}
	if err != nil {
		m.metrics.RecordCollaboratorError(broker.CollabMarketData, "get_account_equity")
		logging.LogCollaboratorCall(logger, broker.CollabMarketData, "get_account_equity", time.Since(start), err)
		return m.cfg.FallbackEquity
	}
	return eq
}

// technicals is best-effort: any failure yields nil.
func (m *Monitor) technicals(ctx context.Context, symbol string, logger zerolog.Logger) *models.Technicals {
	if m.deps.Market == nil {
		return nil
	}
	candles, err := m.deps.Market.FetchCandles(ctx, symbol, m.cfg.EntryTimeframe, m.cfg.RSIPeriod*3+1)
	if err != nil {
		m.metrics.RecordCollaboratorError(broker.CollabMarketData, "fetch_candles")
		logger.Debug().Err(err).Str("symbol", symbol).Msg("No technicals, continuing without")
		return nil
	}
	tech, err := indicators.Snapshot(candles, m.cfg.EntryTimeframe, m.cfg.RSIPeriod)
	if err != nil {
		logger.Debug().Err(err).Str("symbol", symbol).Msg("No technicals, continuing without")
		return nil
	}
	return tech
}
