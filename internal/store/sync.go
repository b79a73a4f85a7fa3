package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"macro-trader/internal/models"
)

// CandleFetcher is the live price-history collaborator.
type CandleFetcher interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error)
}

// CandleSync serves candles from the local store while they are fresh and
// refreshes them from the live fetcher otherwise. When the fetcher fails and
// stored candles exist, the stored copy is returned.
type CandleSync struct {
	store    CandleStore
	live     CandleFetcher
	freshFor time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	lastSync map[string]time.Time
}

// NewCandleSync creates a read-through candle provider.
func NewCandleSync(store CandleStore, live CandleFetcher, freshFor time.Duration, logger zerolog.Logger) *CandleSync {
	return &CandleSync{
		store:    store,
		live:     live,
		freshFor: freshFor,
		logger:   logger.With().Str("component", "candle_sync").Logger(),
		now:      time.Now,
		lastSync: make(map[string]time.Time),
	}
}

func syncKey(symbol, timeframe string) string {
	return strings.ToUpper(symbol) + "|" + timeframe
}

// FetchCandles returns up to count of the most recent candles, ascending.
func (cs *CandleSync) FetchCandles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error) {
	key := syncKey(symbol, timeframe)

	cached, err := cs.store.GetCandles(ctx, symbol, timeframe, count)
	if err != nil {
		return nil, fmt.Errorf("failed to get cached candles: %w", err)
	}

	if cs.IsFresh(symbol, timeframe) && len(cached) >= count {
		return cached, nil
	}

	candles, err := cs.live.FetchCandles(ctx, symbol, timeframe, count)
	if err != nil {
		if len(cached) > 0 {
			cs.logger.Warn().Err(err).Str("symbol", symbol).Str("timeframe", timeframe).
				Int("cached", len(cached)).Msg("live candle fetch failed, serving stored candles")
			return cached, nil
		}
		return nil, fmt.Errorf("failed to fetch candles and no cache available: %w", err)
	}

	if err := cs.store.SaveCandles(ctx, symbol, timeframe, candles); err != nil {
		// We have the data; a failed write only costs a refetch.
		cs.logger.Warn().Err(err).Str("symbol", symbol).Msg("failed to cache candles")
	} else {
		cs.mu.Lock()
		cs.lastSync[key] = cs.now()
		cs.mu.Unlock()
	}

	return candles, nil
}

// IsFresh reports whether the stored series was synced within the freshness window.
func (cs *CandleSync) IsFresh(symbol, timeframe string) bool {
	cs.mu.RLock()
	last, ok := cs.lastSync[syncKey(symbol, timeframe)]
	cs.mu.RUnlock()
	return ok && cs.now().Sub(last) < cs.freshFor
}

// LastSync returns when the series was last refreshed from the live fetcher.
func (cs *CandleSync) LastSync(symbol, timeframe string) time.Time {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.lastSync[syncKey(symbol, timeframe)]
}

// FormatFreshness returns a human-readable age for a sync time.
func FormatFreshness(last time.Time, now time.Time) string {
	if last.IsZero() {
		return "Never synced"
	}

	age := now.Sub(last)
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(age.Hours()))
	default:
		return fmt.Sprintf("%d days ago", int(age.Hours()/24))
	}
}
