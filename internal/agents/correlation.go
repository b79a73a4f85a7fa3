package agents

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"macro-trader/internal/cache"
	"macro-trader/internal/metrics"
	"macro-trader/internal/models"
)

// Correlation defaults.
const (
	DefaultCorrelationLookback = 100
	DefaultMinCorrelationPts   = 10
	correlationTimeframe       = "H1"
)

// PriceSeries supplies candle history for correlation.
type PriceSeries interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error)
}

// CorrelationCache holds pair scores keyed by the unordered symbol pair.
type CorrelationCache = cache.TTLCache[cache.PairKey, float64]

// NewCorrelationCache creates a pair cache with the given lifetime.
func NewCorrelationCache(ttl time.Duration, opts ...cache.Option) *CorrelationCache {
	return cache.NewTTLCache[cache.PairKey, float64](ttl, opts...)
}

// CorrelationHit is an open position whose price moves with the candidate.
type CorrelationHit struct {
	Symbol      string  `json:"symbol"`
	Correlation float64 `json:"correlation"`
}

func (h CorrelationHit) String() string {
	return fmt.Sprintf("%s (r=%.2f)", h.Symbol, h.Correlation)
}

// CorrelationChecker computes Pearson correlation between symbols from
// hourly closes.
type CorrelationChecker struct {
	prices    PriceSeries
	cache     *CorrelationCache
	lookback  int
	minPoints int
	metrics   *metrics.Recorder
	logger    zerolog.Logger
}

// NewCorrelationChecker creates a checker. A nil cache disables caching.
func NewCorrelationChecker(prices PriceSeries, pairCache *CorrelationCache, lookback, minPoints int, logger zerolog.Logger) *CorrelationChecker {
	if lookback <= 0 {
		lookback = DefaultCorrelationLookback
	}
	if minPoints <= 1 {
		minPoints = DefaultMinCorrelationPts
	}
	return &CorrelationChecker{
		prices:    prices,
		cache:     pairCache,
		lookback:  lookback,
		minPoints: minPoints,
		logger:    logger.With().Str("component", "correlation").Logger(),
	}
}

// SetMetrics attaches a metrics recorder.
func (c *CorrelationChecker) SetMetrics(m *metrics.Recorder) {
	c.metrics = m
}

// Correlation returns the Pearson coefficient of the trailing common hourly
// closes of a and b. Fewer than the minimum common points yields 0.
func (c *CorrelationChecker) Correlation(ctx context.Context, a, b string) (float64, error) {
	key := cache.NewPairKey(a, b)
	if c.cache != nil {
		r, ok := c.cache.Get(key)
		c.metrics.RecordCacheLookup("correlation", ok)
		if ok {
			return r, nil
		}
	}

	series := make([][]models.Candle, 2)
	p := pool.New().WithContext(ctx).WithCancelOnError()
	for i, sym := range []string{key.A, key.B} {
		i, sym := i, sym
		p.Go(func(ctx context.Context) error {
			candles, err := c.prices.FetchCandles(ctx, sym, correlationTimeframe, c.lookback)
			if err != nil {
				return fmt.Errorf("fetch %s candles: %w", sym, err)
			}
			series[i] = candles
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return 0, err
	}

	xs, ys := alignCloses(series[0], series[1], c.lookback)
	if len(xs) < c.minPoints {
		c.logger.Debug().Str("pair", key.String()).Int("points", len(xs)).
			Msg("Not enough common points, treating pair as uncorrelated")
		return 0, nil
	}

	r := Pearson(xs, ys)
	if c.cache != nil {
		c.cache.Set(key, r)
	}
	return r, nil
}

// Check returns the open positions whose correlation with symbol is at or
// above threshold in absolute value. Positions on symbol itself are skipped.
// Pairs whose history cannot be fetched are treated as uncorrelated.
func (c *CorrelationChecker) Check(ctx context.Context, symbol string, open []models.OpenPosition, threshold float64) []CorrelationHit {
	symbol = strings.ToUpper(symbol)
	seen := make(map[string]bool)
	var hits []CorrelationHit

	for _, pos := range open {
		other := strings.ToUpper(pos.Symbol)
		if other == symbol || seen[other] {
			continue
		}
		seen[other] = true

		r, err := c.Correlation(ctx, symbol, other)
		if err != nil {
			c.metrics.RecordCollaboratorError("market_data", "fetch_candles")
			c.logger.Warn().Err(err).Str("symbol", symbol).Str("other", other).
				Msg("Correlation unavailable, treating pair as uncorrelated")
			continue
		}
		if math.Abs(r) >= threshold {
			hits = append(hits, CorrelationHit{Symbol: other, Correlation: r})
		}
	}
	return hits
}

// alignCloses pairs closes with identical timestamps and keeps the trailing
// limit points.
func alignCloses(a, b []models.Candle, limit int) ([]float64, []float64) {
	byTime := make(map[int64]float64, len(b))
	for _, cb := range b {
		byTime[cb.Time.Unix()] = cb.Close
	}

	var xs, ys []float64
	for _, ca := range a {
		if y, ok := byTime[ca.Time.Unix()]; ok {
			xs = append(xs, ca.Close)
			ys = append(ys, y)
		}
	}
	if limit > 0 && len(xs) > limit {
		xs = xs[len(xs)-limit:]
		ys = ys[len(ys)-limit:]
	}
	return xs, ys
}

// Pearson returns the sample correlation coefficient of x and y. Series of
// unequal length, fewer than two points or zero variance yield 0.
func Pearson(x, y []float64) float64 {
	n := len(x)
	if n != len(y) || n < 2 {
		return 0
	}

	var sx, sy float64
	for i := 0; i < n; i++ {
		sx += x[i]
		sy += y[i]
	}
	mx, my := sx/float64(n), sy/float64(n)

	var cov, vx, vy float64
	for i := 0; i < n; i++ {
		dx, dy := x[i]-mx, y[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	return cov / math.Sqrt(vx*vy)
}
