package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macro-trader/internal/models"
)

type stubFetcher struct {
	candles []models.Candle
	err     error
	calls   int
}

func (f *stubFetcher) FetchCandles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if count < len(f.candles) {
		return f.candles[len(f.candles)-count:], nil
	}
	return f.candles, nil
}

func TestCandleSyncServesFreshStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	live := &stubFetcher{candles: generateTestCandles(12, 1.25, 500)}
	cs := NewCandleSync(s, live, time.Hour, zerolog.Nop())

	got, err := cs.FetchCandles(ctx, "GBPUSD", "H1", 10)
	require.NoError(t, err)
	assert.Len(t, got, 10)
	assert.Equal(t, 1, live.calls)
	assert.True(t, cs.IsFresh("gbpusd", "H1"))

	got, err = cs.FetchCandles(ctx, "GBPUSD", "H1", 10)
	require.NoError(t, err)
	assert.Len(t, got, 10)
	assert.Equal(t, 1, live.calls, "second read served from store")
}

func TestCandleSyncFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.SaveCandles(ctx, "USDJPY", "H1", generateTestCandles(5, 150, 100)))

	live := &stubFetcher{err: errors.New("gateway down")}
	cs := NewCandleSync(s, live, time.Hour, zerolog.Nop())

	got, err := cs.FetchCandles(ctx, "USDJPY", "H1", 10)
	require.NoError(t, err)
	assert.Len(t, got, 5)

	_, err = cs.FetchCandles(ctx, "AUDUSD", "H1", 10)
	assert.Error(t, err, "no stored candles to fall back on")
}

func TestFormatFreshness(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "Never synced", FormatFreshness(time.Time{}, now))
	assert.Equal(t, "just now", FormatFreshness(now.Add(-10*time.Second), now))
	assert.Equal(t, "5 minutes ago", FormatFreshness(now.Add(-5*time.Minute), now))
	assert.Equal(t, "3 hours ago", FormatFreshness(now.Add(-3*time.Hour), now))
	assert.Equal(t, "2 days ago", FormatFreshness(now.Add(-49*time.Hour), now))
}
