package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macro-trader/internal/analysis"
	apperrors "macro-trader/internal/errors"
	"macro-trader/internal/models"
)

type stubStats struct {
	stats models.DeviationStats
	err   error
	last  analysis.StatsOptions
}

func (s *stubStats) DeviationStats(ctx context.Context, name, currency string, opts analysis.StatsOptions) (models.DeviationStats, error) {
	s.last = opts
	if s.err != nil {
		return models.DeviationStats{}, s.err
	}
	st := s.stats
	st.EventName, st.Currency = name, currency
	return st, nil
}

func statsWith(beatRate float64, sample int) *stubStats {
	return &stubStats{stats: models.DeviationStats{
		SampleSize:     sample,
		PositiveRate:   beatRate,
		SufficientData: sample >= 3,
		AvgPips:        42,
		Weighted:       true,
	}}
}

func TestPredictBeatWithMomentum(t *testing.T) {
	stats := statsWith(14.0/20.0, 20)
	p := NewPredictor(stats, 50, zerolog.Nop())

	pred, err := p.Predict(context.Background(), PredictRequest{
		EventName: "Non-Farm Payrolls", Currency: "USD", Forecast: 200, Previous: 180,
	})
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeBeat, pred.PredictedOutcome)
	assert.Equal(t, models.ConfidenceHigh, pred.Confidence)
	assert.InDelta(t, 0.80, pred.Probability, 1e-9)
	assert.Equal(t, 2, pred.BiasScore)
	assert.Equal(t, models.BiasBullish, pred.ExpectedDirection)
	assert.Equal(t, "bullish, 3-day horizon", pred.TrendForecast)
	assert.Equal(t, 20, pred.HistoricalSample)
	assert.Equal(t, 42.0, pred.AvgPips)
	assert.True(t, stats.last.Weighted)
	assert.Equal(t, 50, stats.last.Lookback)
}

func TestPredictThresholds(t *testing.T) {
	tests := []struct {
		name     string
		beatRate float64
		sample   int
		forecast float64
		previous float64
		outcome  models.PredictedOutcome
		prob     float64
		conf     models.Confidence
		score    int
	}{
		{"beat without momentum", 0.70, 25, 100, 100, models.OutcomeBeat, 0.70, models.ConfidenceHigh, 1},
		{"beat against momentum", 0.70, 25, 90, 100, models.OutcomeBeat, 0.70, models.ConfidenceHigh, 0},
		{"boost capped", 0.90, 30, 110, 100, models.OutcomeBeat, 0.95, models.ConfidenceHigh, 3},
		{"miss with momentum", 0.25, 12, 90, 100, models.OutcomeMiss, 0.85, models.ConfidenceMedium, -3},
		{"miss against momentum", 0.30, 25, 110, 100, models.OutcomeMiss, 0.70, models.ConfidenceHigh, 0},
		{"neutral band", 0.50, 40, 110, 100, models.OutcomeNeutral, 0.5, models.ConfidenceMedium, 1},
		{"upper neutral edge", 0.65, 40, 100, 100, models.OutcomeNeutral, 0.5, models.ConfidenceMedium, 1},
		{"degraded history", 0.5, 2, 110, 100, models.OutcomeNeutral, 0.5, models.ConfidenceLow, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPredictor(statsWith(tt.beatRate, tt.sample), 50, zerolog.Nop())
			pred, err := p.Predict(context.Background(), PredictRequest{
				EventName: "CPI m/m", Currency: "usd", Forecast: tt.forecast, Previous: tt.previous,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, pred.PredictedOutcome)
			assert.InDelta(t, tt.prob, pred.Probability, 1e-9)
			assert.Equal(t, tt.conf, pred.Confidence)
			assert.Equal(t, tt.score, pred.BiasScore)
			assert.Equal(t, "USD", pred.Currency)
			assert.NotEmpty(t, pred.Recommendation)
		})
	}
}

func TestPredictErrors(t *testing.T) {
	p := NewPredictor(&stubStats{err: errors.New("db down")}, 50, zerolog.Nop())
	_, err := p.Predict(context.Background(), PredictRequest{EventName: "CPI", Currency: "USD"})
	assert.Error(t, err)

	_, err = p.Predict(context.Background(), PredictRequest{EventName: "", Currency: "USD"})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidEvent))

	_, err = p.Predict(context.Background(), PredictRequest{EventName: "CPI", Currency: "US"})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidEvent))
}

func TestTrendForecast(t *testing.T) {
	assert.Equal(t, "bullish, 3-day horizon", TrendForecast(2, 1))
	assert.Equal(t, "bearish, 3-day horizon", TrendForecast(1, 2))
	assert.Equal(t, "neutral, 3-day horizon", TrendForecast(1, 1))
}

func TestSymbolImpact(t *testing.T) {
	assert.Equal(t, models.BiasBullish, SymbolImpact("USD", models.OutcomeBeat, "USDJPY"))
	assert.Equal(t, models.BiasBearish, SymbolImpact("USD", models.OutcomeBeat, "EURUSD"))
	assert.Equal(t, models.BiasBearish, SymbolImpact("usd", models.OutcomeMiss, "USD/CAD"))
	assert.Equal(t, models.BiasBullish, SymbolImpact("USD", models.OutcomeMiss, "GBPUSD"))
	assert.Equal(t, models.BiasNone, SymbolImpact("AUD", models.OutcomeBeat, "EURUSD"))
	assert.Equal(t, models.BiasNone, SymbolImpact("USD", models.OutcomeNeutral, "EURUSD"))
	assert.Equal(t, models.BiasNone, SymbolImpact("USD", models.OutcomeBeat, "GOLD"))
}

// Property: probability stays in [0.5, 1], a momentum boost never exceeds the
// cap, and the bias score stays in [-3, 3].
func TestProperty_PredictionBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("prediction fields stay within bounds", prop.ForAll(
		func(beatRate float64, sample int, forecast, previous float64) bool {
			p := NewPredictor(statsWith(beatRate, sample), 50, zerolog.Nop())
			pred, err := p.Predict(context.Background(), PredictRequest{
				EventName: "PMI", Currency: "EUR", Forecast: forecast, Previous: previous,
			})
			if err != nil {
				return false
			}
			base := 0.5
			switch pred.PredictedOutcome {
			case models.OutcomeBeat:
				base = beatRate
			case models.OutcomeMiss:
				base = 1 - beatRate
			}
			if pred.Probability > base+1e-4 && pred.Probability > maxProbability {
				return false
			}
			return pred.Probability >= 0.5 && pred.Probability <= 1 &&
				pred.BiasScore >= -3 && pred.BiasScore <= 3
		},
		gen.Float64Range(0, 1),
		gen.IntRange(0, 60),
		gen.Float64Range(-100, 100),
		gen.Float64Range(-100, 100),
	))

	properties.TestingRun(t)
}
