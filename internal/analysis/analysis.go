// Package analysis computes historical statistics for economic calendar
// events and classifies individual releases against them.
package analysis

import (
	"context"
	"time"

	"macro-trader/internal/models"
)

// PriceHistory serves stored candles for a time window. It is used to
// measure how far price moved after past releases.
type PriceHistory interface {
	GetCandlesRange(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error)
}

// Category thresholds on deviation_pct, expressed as fractions.
const (
	BigThreshold   = 0.15
	SmallThreshold = 0.05
)

// MinSamples is the smallest history that produces usable statistics.
const MinSamples = 3

// RecencyWindow is how far back a release counts as recent.
const RecencyWindow = 6 * 30 * 24 * time.Hour

// Recency weights.
const (
	RecentWeight = 2.0
	BaseWeight   = 1.0
)
