// Package agents turns event statistics into forecasts and gates the
// resulting trades.
package agents

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"macro-trader/internal/analysis"
	apperrors "macro-trader/internal/errors"
	"macro-trader/internal/models"
)

// Prediction thresholds on the historical beat rate.
const (
	beatThreshold  = 0.65
	missThreshold  = 0.35
	momentumBonus  = 0.10
	maxProbability = 0.95

	highConfidenceSample = 20
	medConfidenceSample  = 10
	highConfidenceEdge   = 0.2

	// Boundary tolerance so that a beat rate of exactly 0.70 or 0.30
	// counts as a full edge.
	edgeEpsilon = 1e-9
)

// StatsProvider supplies historical statistics for an event.
type StatsProvider interface {
	DeviationStats(ctx context.Context, name, currency string, opts analysis.StatsOptions) (models.DeviationStats, error)
}

// PredictRequest describes an unreleased event.
type PredictRequest struct {
	EventName string
	Currency  string
	Forecast  float64
	Previous  float64
	EventTime time.Time
	// AsOf evaluates history as it stood at that instant.
	AsOf *time.Time
}

// Predictor forecasts the outcome of unreleased events.
type Predictor struct {
	stats    StatsProvider
	lookback int
	logger   zerolog.Logger
	now      func() time.Time
}

// NewPredictor creates a predictor backed by stats.
func NewPredictor(stats StatsProvider, lookback int, logger zerolog.Logger) *Predictor {
	if lookback <= 0 {
		lookback = analysis.DefaultLookback
	}
	return &Predictor{
		stats:    stats,
		lookback: lookback,
		logger:   logger.With().Str("component", "predictor").Logger(),
		now:      time.Now,
	}
}

// Predict produces a probability-scored forecast for the next release.
func (p *Predictor) Predict(ctx context.Context, req PredictRequest) (*models.EventPrediction, error) {
	if strings.TrimSpace(req.EventName) == "" {
		return nil, apperrors.NewValidationError("event_name", req.EventName, "required")
	}
	if len(req.Currency) != 3 {
		return nil, apperrors.NewValidationError("currency", req.Currency, "must be a 3-letter code")
	}

	stats, err := p.stats.DeviationStats(ctx, req.EventName, req.Currency, analysis.StatsOptions{
		Lookback: p.lookback,
		Weighted: true,
		AsOf:     req.AsOf,
	})
	if err != nil {
		return nil, fmt.Errorf("deviation stats for %s: %w", req.EventName, err)
	}

	beatRate := stats.PositiveRate
	momentum := req.Forecast - req.Previous

	outcome, probability := classifyBeatRate(beatRate)
	if momentumAgrees(outcome, momentum) {
		probability = math.Min(probability+momentumBonus, maxProbability)
	}
	probability = math.Round(probability*1e4) / 1e4

	score := biasScore(momentum, beatRate)
	conf := confidenceFor(stats.SampleSize, beatRate)

	pred := &models.EventPrediction{
		EventName:         req.EventName,
		Currency:          strings.ToUpper(req.Currency),
		EventTime:         req.EventTime,
		Forecast:          req.Forecast,
		Previous:          req.Previous,
		PredictedOutcome:  outcome,
		Probability:       probability,
		Confidence:        conf,
		ExpectedDirection: directionFromScore(score),
		BiasScore:         score,
		BeatRate:          beatRate,
		HistoricalSample:  stats.SampleSize,
		AvgPips:           stats.AvgPips,
		TrendForecast:     TrendForecast(req.Forecast, req.Previous),
		CreatedAt:         p.now(),
	}
	pred.Recommendation = recommendation(pred)

	return pred, nil
}

func classifyBeatRate(beatRate float64) (models.PredictedOutcome, float64) {
	switch {
	case beatRate > beatThreshold:
		return models.OutcomeBeat, beatRate
	case beatRate < missThreshold:
		return models.OutcomeMiss, 1 - beatRate
	default:
		return models.OutcomeNeutral, 0.5
	}
}

func momentumAgrees(outcome models.PredictedOutcome, momentum float64) bool {
	return (outcome == models.OutcomeBeat && momentum > 0) ||
		(outcome == models.OutcomeMiss && momentum < 0)
}

func confidenceFor(sample int, beatRate float64) models.Confidence {
	edge := math.Abs(beatRate - 0.5)
	switch {
	case sample >= highConfidenceSample && edge > highConfidenceEdge-edgeEpsilon:
		return models.ConfidenceHigh
	case sample >= medConfidenceSample:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

func biasScore(momentum, beatRate float64) int {
	score := 0
	switch {
	case momentum > 0:
		score++
	case momentum < 0:
		score--
	}
	switch {
	case beatRate > 0.55:
		score++
	case beatRate < 0.45:
		score--
	}
	switch {
	case beatRate > 0.7:
		score++
	case beatRate < 0.3:
		score--
	}
	return score
}

func directionFromScore(score int) models.Bias {
	switch {
	case score > 0:
		return models.BiasBullish
	case score < 0:
		return models.BiasBearish
	default:
		return models.BiasNeutral
	}
}

// TrendForecast compares forecast to previous. It is advisory only.
func TrendForecast(forecast, previous float64) string {
	switch {
	case forecast > previous:
		return "bullish, 3-day horizon"
	case forecast < previous:
		return "bearish, 3-day horizon"
	default:
		return "neutral, 3-day horizon"
	}
}

func recommendation(p *models.EventPrediction) string {
	switch p.PredictedOutcome {
	case models.OutcomeBeat:
		return fmt.Sprintf("Expect %s to beat (%.0f%% historical beat rate, %s confidence); favour %s strength",
			p.EventName, p.BeatRate*100, p.Confidence, p.Currency)
	case models.OutcomeMiss:
		return fmt.Sprintf("Expect %s to miss (%.0f%% historical beat rate, %s confidence); favour %s weakness",
			p.EventName, p.BeatRate*100, p.Confidence, p.Currency)
	default:
		return fmt.Sprintf("No historical edge on %s (%.0f%% beat rate over %d releases); stand aside",
			p.EventName, p.BeatRate*100, p.HistoricalSample)
	}
}

// SymbolImpact maps a currency outcome onto a symbol. A beat strengthens the
// currency, so the symbol rises when the currency is its base and falls when
// it is its quote. NONE is returned when the currency is not part of the
// symbol or the outcome is neutral.
func SymbolImpact(currency string, outcome models.PredictedOutcome, symbol string) models.Bias {
	base, quote, ok := models.SplitSymbol(symbol)
	if !ok {
		return models.BiasNone
	}
	currency = strings.ToUpper(currency)

	var strong bool
	switch outcome {
	case models.OutcomeBeat:
		strong = true
	case models.OutcomeMiss:
		strong = false
	default:
		return models.BiasNone
	}

	switch currency {
	case base:
		if strong {
			return models.BiasBullish
		}
		return models.BiasBearish
	case quote:
		if strong {
			return models.BiasBearish
		}
		return models.BiasBullish
	default:
		return models.BiasNone
	}
}
