package analysis

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"macro-trader/internal/cache"
	apperrors "macro-trader/internal/errors"
	"macro-trader/internal/metrics"
	"macro-trader/internal/models"
	"macro-trader/internal/store"
)

// DefaultLookback is the number of past releases considered.
const DefaultLookback = 50

// StatsCache holds computed statistics keyed by event, currency and weighting.
type StatsCache = cache.TTLCache[cache.StatsKey, models.DeviationStats]

// NewStatsCache creates a statistics cache with the given lifetime.
func NewStatsCache(ttl time.Duration, opts ...cache.Option) *StatsCache {
	return cache.NewTTLCache[cache.StatsKey, models.DeviationStats](ttl, opts...)
}

// StatsOptions controls a statistics computation.
type StatsOptions struct {
	Lookback int
	Weighted bool
	// AsOf restricts history to releases strictly before it. Point-in-time
	// queries neither read nor write the cache.
	AsOf *time.Time
}

// DefaultStatsOptions returns the live, weighted configuration.
func DefaultStatsOptions() StatsOptions {
	return StatsOptions{Lookback: DefaultLookback, Weighted: true}
}

// Analyzer computes per-event historical statistics.
type Analyzer struct {
	source  store.EventSource
	cache   *StatsCache
	prices  PriceHistory
	metrics *metrics.Recorder
	logger  zerolog.Logger
	now     func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithPriceHistory enables avg_pips computation from stored hourly candles.
func WithPriceHistory(p PriceHistory) Option {
	return func(a *Analyzer) { a.prices = p }
}

// WithMetrics records cache lookups.
func WithMetrics(m *metrics.Recorder) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithClock overrides the reference time used for recency weighting.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// NewAnalyzer creates an analyzer reading history from source.
func NewAnalyzer(source store.EventSource, statsCache *StatsCache, logger zerolog.Logger, opts ...Option) *Analyzer {
	a := &Analyzer{
		source: source,
		cache:  statsCache,
		logger: logger.With().Str("component", "analyzer").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DeviationStats aggregates the most recent released history of an event.
// Fewer than MinSamples releases produce a neutral result with
// SufficientData false; that is not an error.
func (a *Analyzer) DeviationStats(ctx context.Context, name, currency string, opts StatsOptions) (models.DeviationStats, error) {
	if opts.Lookback <= 0 {
		opts.Lookback = DefaultLookback
	}
	currency = strings.ToUpper(currency)
	key := cache.StatsKey{EventName: name, Currency: currency, Weighted: opts.Weighted}

	if opts.AsOf == nil && a.cache != nil {
		stats, ok := a.cache.Get(key)
		a.metrics.RecordCacheLookup("stats", ok)
		if ok {
			return stats, nil
		}
	}

	history, err := a.source.QueryEvents(ctx, store.HistoryQuery(name, currency, opts.Lookback, opts.AsOf))
	if err != nil {
		return models.DeviationStats{}, apperrors.NewCollaboratorError("event_source", "query_events", err)
	}

	ref := a.now()
	if opts.AsOf != nil {
		ref = *opts.AsOf
	}

	stats := a.aggregate(ctx, name, currency, history, opts.Weighted, ref)

	if stats.SufficientData && opts.AsOf == nil && a.cache != nil {
		a.cache.Set(key, stats)
	}

	a.logger.Debug().
		Str("event_name", name).
		Str("currency", currency).
		Int("sample_size", stats.SampleSize).
		Float64("positive_rate", stats.PositiveRate).
		Bool("weighted", stats.Weighted).
		Bool("point_in_time", opts.AsOf != nil).
		Msg("Computed deviation stats")

	return stats, nil
}

func (a *Analyzer) aggregate(ctx context.Context, name, currency string, history []models.CalendarEvent, weighted bool, ref time.Time) models.DeviationStats {
	stats := models.DeviationStats{
		EventName:  name,
		Currency:   currency,
		Categories: make(map[models.OutcomeCategory]int, len(models.AllCategories())),
		Weighted:   weighted,
		ComputedAt: a.now(),
	}
	for _, c := range models.AllCategories() {
		stats.Categories[c] = 0
	}

	var deviations, weights []float64
	var released []models.CalendarEvent
	for _, e := range history {
		if e.Forecast == nil || e.Actual == nil {
			continue
		}
		prev := *e.Forecast
		if e.Previous != nil {
			prev = *e.Previous
		}
		out := ClassifyOutcome(*e.Forecast, *e.Actual, prev)
		stats.Categories[out.Category]++

		w := BaseWeight
		if weighted && ref.Sub(e.Time) <= RecencyWindow {
			w = RecentWeight
		}
		deviations = append(deviations, out.Deviation)
		weights = append(weights, w)
		released = append(released, e)
	}

	stats.SampleSize = len(deviations)
	for _, w := range weights {
		stats.EffectiveSample += w
	}

	if stats.SampleSize < MinSamples {
		stats.PositiveRate = 0.5
		return stats
	}

	var sumW, sumWD, sumWPos float64
	for i, d := range deviations {
		w := weights[i]
		sumW += w
		sumWD += w * d
		if d > 0 {
			sumWPos += w
		}
	}
	mean := sumWD / sumW

	var sumWSq float64
	for i, d := range deviations {
		diff := d - mean
		sumWSq += weights[i] * diff * diff
	}

	stats.MeanDeviation = mean
	stats.StdDeviation = math.Sqrt(sumWSq / sumW)
	stats.PositiveRate = sumWPos / sumW
	stats.SufficientData = true
	stats.AvgPips = a.avgPips(ctx, currency, released)
	return stats
}

// avgPips averages the size of the hourly bar containing each release on the
// currency's primary symbol. It is best effort and returns 0 when no candles
// are available.
func (a *Analyzer) avgPips(ctx context.Context, currency string, events []models.CalendarEvent) float64 {
	symbol := models.PrimarySymbol(currency)
	if a.prices == nil || symbol == "" {
		return 0
	}
	pip := models.PipSize(symbol)

	var total float64
	var n int
	for _, e := range events {
		bar := e.Time.UTC().Truncate(time.Hour)
		candles, err := a.prices.GetCandlesRange(ctx, symbol, "H1", bar, bar)
		if err != nil {
			a.logger.Debug().Err(err).Str("symbol", symbol).Msg("avg_pips candle lookup failed")
			return 0
		}
		if len(candles) == 0 {
			continue
		}
		c := candles[0]
		total += math.Abs(c.Close-c.Open) / pip
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Round(total/float64(n)*10) / 10
}

// Invalidate drops cached statistics for one event in both weighting modes.
func (a *Analyzer) Invalidate(name, currency string) {
	if a.cache == nil {
		return
	}
	currency = strings.ToUpper(currency)
	a.cache.Delete(
		cache.StatsKey{EventName: name, Currency: currency, Weighted: true},
		cache.StatsKey{EventName: name, Currency: currency, Weighted: false},
	)
}

// InvalidateAll drops every cached statistic.
func (a *Analyzer) InvalidateAll() {
	if a.cache != nil {
		a.cache.Purge()
	}
}

// InvalidateRefs drops cached statistics for every series touched by an
// ingestion batch.
func (a *Analyzer) InvalidateRefs(refs []store.EventRef) {
	for _, r := range refs {
		a.Invalidate(r.Name, r.Currency)
	}
}

// AnalyzeRelease classifies a released event against the history that
// preceded it.
func (a *Analyzer) AnalyzeRelease(ctx context.Context, e models.CalendarEvent) (*models.ReleaseAnalysis, error) {
	if e.Forecast == nil {
		return nil, apperrors.NewValidationError("forecast", nil, "release has no forecast")
	}
	if e.Actual == nil {
		return nil, apperrors.NewValidationError("actual", nil, "event has not been released")
	}
	prev := *e.Forecast
	if e.Previous != nil {
		prev = *e.Previous
	}

	at := e.Time
	stats, err := a.DeviationStats(ctx, e.Name, e.Currency, StatsOptions{
		Lookback: DefaultLookback,
		Weighted: true,
		AsOf:     &at,
	})
	if err != nil {
		return nil, err
	}

	outcome := ClassifyOutcome(*e.Forecast, *e.Actual, prev)
	z := ZScore(outcome.Deviation, stats.StdDeviation)
	return &models.ReleaseAnalysis{
		Event:   e,
		Outcome: outcome,
		ZScore:  z,
		Tier:    SignificanceTier(z),
		Stats:   stats,
	}, nil
}
