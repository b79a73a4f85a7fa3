package trading

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macro-trader/internal/agents"
	"macro-trader/internal/analysis"
	apperrors "macro-trader/internal/errors"
	"macro-trader/internal/models"
	"macro-trader/internal/notify"
	"macro-trader/internal/store"
)

var monNow = time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)

// memSource is an in-memory calendar honouring the query filters.
type memSource struct {
	mu        sync.Mutex
	events    []models.CalendarEvent
	err       error
	failFirst int
	queries   int
}

func (s *memSource) QueryEvents(ctx context.Context, q store.EventQuery) ([]models.CalendarEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if s.err != nil {
		return nil, s.err
	}
	if s.failFirst > 0 {
		s.failFirst--
		return nil, errors.New("calendar offline")
	}

	var out []models.CalendarEvent
	for _, e := range s.events {
		if q.EventName != "" && e.Name != q.EventName {
			continue
		}
		if q.Currency != "" && !strings.EqualFold(e.Currency, q.Currency) {
			continue
		}
		if q.RequireForecast && e.Forecast == nil {
			continue
		}
		if q.RequireActual && e.Actual == nil {
			continue
		}
		if q.After != nil && e.Time.Before(*q.After) {
			continue
		}
		if q.Before != nil && !e.Time.Before(*q.Before) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if q.Ascending {
			return out[i].Time.Before(out[j].Time)
		}
		return out[i].Time.After(out[j].Time)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// stubForecaster predicts a beat for everything except "Explode", which
// panics.
type stubForecaster struct{}

func (stubForecaster) Predict(ctx context.Context, req agents.PredictRequest) (*models.EventPrediction, error) {
	if req.EventName == "Explode" {
		panic("corrupt history")
	}
	return &models.EventPrediction{
		EventName:        req.EventName,
		Currency:         req.Currency,
		EventTime:        req.EventTime,
		Forecast:         req.Forecast,
		Previous:         req.Previous,
		PredictedOutcome: models.OutcomeBeat,
		Probability:      0.7,
		Confidence:       models.ConfidenceMedium,
	}, nil
}

// blockingForecaster holds every prediction until release is closed.
type blockingForecaster struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingForecaster) Predict(ctx context.Context, req agents.PredictRequest) (*models.EventPrediction, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	return stubForecaster{}.Predict(ctx, req)
}

type recordingPresenter struct {
	mu   sync.Mutex
	docs []notify.SignalDocument
}

func (p *recordingPresenter) Present(ctx context.Context, doc notify.SignalDocument) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.docs = append(p.docs, doc)
	return nil
}

func (p *recordingPresenter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.docs)
}

type stubMarket struct {
	equity     float64
	candles    []models.Candle
	candleErr  error
	lastCount  int
	lastSymbol string
}

func (m *stubMarket) FetchCandles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error) {
	m.lastCount = count
	m.lastSymbol = symbol
	if m.candleErr != nil {
		return nil, m.candleErr
	}
	return m.candles, nil
}

func (m *stubMarket) GetSymbolPrice(ctx context.Context, symbol string) (*models.Quote, error) {
	return nil, errors.New("not used")
}

func (m *stubMarket) GetAccountEquity(ctx context.Context) (float64, error) {
	return m.equity, nil
}

func upcoming(name, currency string, in time.Duration, forecast, previous float64) models.CalendarEvent {
	return models.CalendarEvent{
		Name:     name,
		Currency: currency,
		Time:     monNow.Add(in),
		Impact:   models.ImpactHigh,
		Forecast: models.Float(forecast),
		Previous: models.Float(previous),
	}
}

func newTestMonitor(t *testing.T, cfg MonitorConfig, deps MonitorDeps) *Monitor {
	t.Helper()
	if deps.Executor == nil {
		deps.Executor = newTestExecutor(models.ModeSignalOnly)
	}
	if deps.Predictor == nil {
		deps.Predictor = stubForecaster{}
	}
	m, err := NewMonitor(cfg, deps, zerolog.Nop())
	require.NoError(t, err)
	m.SetClock(func() time.Time { return monNow })
	return m
}

func TestNewMonitor_RequiresCollaborators(t *testing.T) {
	_, err := NewMonitor(MonitorConfig{}, MonitorDeps{}, zerolog.Nop())
	assert.ErrorIs(t, err, apperrors.ErrConfigMissing)

	_, err = NewMonitor(MonitorConfig{}, MonitorDeps{Source: &memSource{}}, zerolog.Nop())
	assert.ErrorIs(t, err, apperrors.ErrConfigMissing)
}

func TestMonitor_DedupAcrossTicks(t *testing.T) {
	src := &memSource{events: []models.CalendarEvent{
		upcoming("Non-Farm Payrolls", "USD", time.Hour, 200, 180),
		upcoming("CPI y/y", "EUR", 2*time.Hour, 2.4, 2.6),
		upcoming("Retail Sales m/m", "GBP", 3*time.Hour, 0.3, 0.1),
	}}
	m := newTestMonitor(t, MonitorConfig{Throttle: 0}, MonitorDeps{Source: src})

	var mu sync.Mutex
	calls := make(map[string]int)
	inner := m.pipeline
	m.pipeline = func(ctx context.Context, ev models.CalendarEvent) EventOutcome {
		mu.Lock()
		calls[ev.Key()]++
		mu.Unlock()
		return inner(ctx, ev)
	}

	var reports []TickReport
	for i := 0; i < 3; i++ {
		reports = append(reports, m.Tick(context.Background()))
	}

	require.Len(t, calls, 3)
	for key, n := range calls {
		assert.Equal(t, 1, n, key)
	}
	assert.Len(t, reports[0].Outcomes, 3)
	for _, r := range reports[1:] {
		assert.Equal(t, 3, r.Found)
		assert.Equal(t, 3, r.Skipped)
		assert.Empty(t, r.Outcomes)
	}
	assert.Equal(t, 3, m.SeenCount())
	assert.Equal(t, 3, m.Status().Ticks)
}

func TestMonitor_HorizonAndForecastFilter(t *testing.T) {
	noForecast := upcoming("Trade Balance", "USD", time.Hour, 0, 0)
	noForecast.Forecast = nil
	src := &memSource{events: []models.CalendarEvent{
		upcoming("Past", "USD", -time.Hour, 1, 1),
		upcoming("Tomorrow", "USD", 23*time.Hour, 1, 1),
		upcoming("Too Far", "USD", 25*time.Hour, 1, 1),
		noForecast,
	}}
	m := newTestMonitor(t, MonitorConfig{}, MonitorDeps{Source: src})

	report := m.Tick(context.Background())
	require.Len(t, report.Outcomes, 1)
	assert.Contains(t, report.Outcomes[0].Key, "Tomorrow|")
}

func TestMonitor_FailureIsolation(t *testing.T) {
	bad := upcoming("Bad Currency", "US", time.Hour, 1, 1)
	src := &memSource{events: []models.CalendarEvent{
		bad,
		upcoming("Explode", "USD", 2*time.Hour, 1, 1),
		upcoming("Non-Farm Payrolls", "USD", 3*time.Hour, 200, 180),
	}}
	pres := &recordingPresenter{}
	m := newTestMonitor(t, MonitorConfig{}, MonitorDeps{Source: src, Presenter: pres})

	report := m.Tick(context.Background())
	require.NoError(t, report.Err)
	require.Len(t, report.Outcomes, 3)

	assert.Equal(t, OutcomeInvalid, report.Outcomes[0].Status)
	assert.ErrorIs(t, report.Outcomes[0].Err, apperrors.ErrInvalidEvent)

	assert.Equal(t, OutcomePanic, report.Outcomes[1].Status)
	assert.Contains(t, report.Outcomes[1].Err.Error(), "corrupt history")

	assert.Equal(t, string(models.StatusLogged), report.Outcomes[2].Status)
	require.NotNil(t, report.Outcomes[2].Signal)
	assert.Equal(t, 1, pres.count())

	// Failed events are marked seen too.
	assert.Equal(t, 3, m.SeenCount())
	assert.Empty(t, m.Tick(context.Background()).Outcomes)
}

func TestMonitor_SourceFailureEndsTick(t *testing.T) {
	src := &memSource{err: errors.New("connection refused")}
	m := newTestMonitor(t, MonitorConfig{}, MonitorDeps{Source: src})

	report := m.Tick(context.Background())
	assert.ErrorIs(t, report.Err, apperrors.ErrCollaboratorUnavailable)
	assert.Empty(t, report.Outcomes)
	assert.Error(t, m.Status().LastError)
}

func TestMonitor_TechnicalsDegradeGracefully(t *testing.T) {
	src := &memSource{events: []models.CalendarEvent{upcoming("Non-Farm Payrolls", "USD", time.Hour, 200, 180)}}
	market := &stubMarket{equity: 20000, candleErr: errors.New("timeout")}
	m := newTestMonitor(t, MonitorConfig{Symbols: []string{"USDJPY"}}, MonitorDeps{Source: src, Market: market})

	report := m.Tick(context.Background())
	require.Len(t, report.Outcomes, 1)
	sig := report.Outcomes[0].Signal
	require.NotNil(t, sig)
	assert.Equal(t, models.OrderTypeMarket, sig.OrderType)
	assert.Zero(t, sig.PriceHint)
	// 20000 * 1.0% / (7 * 50)
	assert.Equal(t, 0.57, sig.Volume)
	assert.Equal(t, "USDJPY", market.lastSymbol)
	assert.Equal(t, 43, market.lastCount)
}

func TestMonitor_TechnicalsShapeEntry(t *testing.T) {
	candles := make([]models.Candle, 43)
	for i := range candles {
		c := 149.0 + float64(i)*0.05
		candles[i] = models.Candle{Time: monNow.Add(time.Duration(i-43) * time.Hour), Open: c - 0.05, High: c, Low: c - 0.05, Close: c}
	}
	src := &memSource{events: []models.CalendarEvent{upcoming("Non-Farm Payrolls", "USD", time.Hour, 200, 180)}}
	market := &stubMarket{equity: 10000, candles: candles}
	m := newTestMonitor(t, MonitorConfig{Symbols: []string{"USDJPY"}}, MonitorDeps{Source: src, Market: market})

	report := m.Tick(context.Background())
	require.Len(t, report.Outcomes, 1)
	sig := report.Outcomes[0].Signal
	require.NotNil(t, sig)
	assert.Equal(t, models.DirectionBuy, sig.Direction)
	assert.Equal(t, models.OrderTypeLimitPullback, sig.OrderType)
	assert.Contains(t, sig.EntryLogic, "overbought")
}

func TestMonitor_StartStop(t *testing.T) {
	src := &memSource{
		failFirst: 1,
		events:    []models.CalendarEvent{upcoming("Non-Farm Payrolls", "USD", time.Hour, 200, 180)},
	}
	m := newTestMonitor(t, MonitorConfig{Interval: 10 * time.Millisecond}, MonitorDeps{Source: src})

	assert.Error(t, m.Stop())
	require.NoError(t, m.Start(context.Background()))
	assert.Error(t, m.Start(context.Background()))
	assert.True(t, m.Running())

	// The first tick fails at the source; the loop keeps going.
	assert.Eventually(t, func() bool { return m.SeenCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, m.Stop())
	assert.False(t, m.Running())
	assert.GreaterOrEqual(t, m.Status().Ticks, 2)
}

func TestMonitor_StopWaitsForInFlightEvent(t *testing.T) {
	fc := &blockingForecaster{entered: make(chan struct{}, 1), release: make(chan struct{})}
	src := &memSource{events: []models.CalendarEvent{
		upcoming("Non-Farm Payrolls", "USD", time.Hour, 200, 180),
		upcoming("CPI y/y", "EUR", 2*time.Hour, 2.4, 2.6),
	}}
	m := newTestMonitor(t, MonitorConfig{Interval: time.Hour}, MonitorDeps{Source: src, Predictor: fc})

	require.NoError(t, m.Start(context.Background()))
	select {
	case <-fc.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline never started")
	}

	stopped := make(chan struct{})
	go func() {
		assert.NoError(t, m.Stop())
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while an event was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(fc.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	assert.Equal(t, 1, m.SeenCount())
	assert.False(t, m.Running())
}

func TestMonitor_ContextCancelEndsLoop(t *testing.T) {
	src := &memSource{}
	m := newTestMonitor(t, MonitorConfig{Interval: 5 * time.Millisecond}, MonitorDeps{Source: src})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool { return !m.Running() }, 2*time.Second, 5*time.Millisecond)
	assert.Error(t, m.Stop())

	// The monitor can be started again once the loop has exited.
	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.Running())
	require.NoError(t, m.Stop())
	assert.False(t, m.Running())
}

// nfpHistory returns 20 released prints, 14 of them above forecast, all old
// enough to carry base weight.
func nfpHistory() []models.CalendarEvent {
	events := make([]models.CalendarEvent, 0, 20)
	for i := 0; i < 20; i++ {
		actual := 180.0
		if i < 14 {
			actual = 220.0
		}
		events = append(events, models.CalendarEvent{
			Name:     "Non-Farm Payrolls",
			Currency: "USD",
			Time:     monNow.AddDate(0, -(13 + i), 0),
			Impact:   models.ImpactHigh,
			Forecast: models.Float(200),
			Previous: models.Float(190),
			Actual:   models.Float(actual),
		})
	}
	return events
}

func TestMonitor_NFPEndToEnd(t *testing.T) {
	src := &memSource{events: append(nfpHistory(),
		upcoming("Non-Farm Payrolls", "USD", 90*time.Minute, 200, 180))}

	analyzer := analysis.NewAnalyzer(src, analysis.NewStatsCache(time.Hour), zerolog.Nop(),
		analysis.WithClock(func() time.Time { return monNow }))
	predictor := agents.NewPredictor(analyzer, 0, zerolog.Nop())

	exec := newTestExecutor(models.ModeDirectional)
	exec.SetAccount(&fakeAccount{equity: 10000})
	cb := &recordingCallback{}
	pres := &recordingPresenter{}

	m := newTestMonitor(t, MonitorConfig{Symbols: []string{"USDJPY"}, FallbackEquity: 10000}, MonitorDeps{
		Source:    src,
		Predictor: predictor,
		Executor:  exec,
		Presenter: pres,
		Callback:  cb.place,
	})

	report := m.Tick(context.Background())
	require.NoError(t, report.Err)
	require.Len(t, report.Outcomes, 1)

	out := report.Outcomes[0]
	require.NoError(t, out.Err)
	assert.Equal(t, string(models.StatusExecuted), out.Status)

	sig := out.Signal
	require.NotNil(t, sig)
	assert.Equal(t, 0.8, sig.Probability)
	assert.Equal(t, models.ConfidenceHigh, sig.Confidence)
	assert.Equal(t, models.DirectionBuy, sig.Direction)
	assert.Equal(t, "USDJPY", sig.Symbol)
	assert.Equal(t, 50.0, sig.StopLossPips)
	assert.Equal(t, 100.0, sig.TakeProfitPips)
	assert.Equal(t, 2.0, sig.RiskReward)
	assert.True(t, sig.Executed)

	require.Equal(t, 1, cb.count())
	assert.Equal(t, models.DirectionBuy, cb.orders[0].Direction)

	require.Equal(t, 1, pres.count())
	doc := pres.docs[0]
	assert.Equal(t, 80.0, doc.ConfidencePct)
	assert.Equal(t, "USDJPY", doc.Symbol)
	assert.Equal(t, models.StatusExecuted, doc.Status)
}
