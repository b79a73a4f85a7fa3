package indicators

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macro-trader/internal/models"
)

func candlesFromCloses(closes []float64) []models.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, len(closes))
	for i, c := range closes {
		candles[i] = models.Candle{
			Time:  base.Add(time.Duration(i) * time.Hour),
			Open:  c,
			High:  c * 1.0005,
			Low:   c * 0.9995,
			Close: c,
		}
	}
	return candles
}

func TestRSIInsufficientData(t *testing.T) {
	_, err := NewRSI(14).Calculate(candlesFromCloses(make([]float64, 14)))
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = NewRSI(0).Calculate(candlesFromCloses(make([]float64, 30)))
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestRSIExtremes(t *testing.T) {
	rising := make([]float64, 30)
	falling := make([]float64, 30)
	flat := make([]float64, 30)
	for i := range rising {
		rising[i] = 1.1000 + float64(i)*0.001
		falling[i] = 1.1000 - float64(i)*0.001
		flat[i] = 1.1
	}

	v, err := NewRSI(14).Latest(candlesFromCloses(rising))
	require.NoError(t, err)
	assert.Equal(t, 100.0, v)

	v, err = NewRSI(14).Latest(candlesFromCloses(falling))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, v, 1e-9)

	v, err = NewRSI(14).Latest(candlesFromCloses(flat))
	require.NoError(t, err)
	assert.Equal(t, 50.0, v)
}

func TestRSIAlternating(t *testing.T) {
	closes := []float64{1.0, 1.1, 1.0, 1.1, 1.0}
	values, err := NewRSI(2).Calculate(candlesFromCloses(closes))
	require.NoError(t, err)
	assert.InDelta(t, 50.0, values[2], 1e-6)
}

func TestSnapshot(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 150 + float64(i)*0.1
	}
	tech, err := Snapshot(candlesFromCloses(closes), "M15", 14)
	require.NoError(t, err)
	assert.Equal(t, "M15", tech.Timeframe)
	assert.Equal(t, 100.0, tech.RSI)
	assert.InDelta(t, 151.9, tech.Close, 1e-9)

	_, err = Snapshot(candlesFromCloses(closes[:5]), "M15", 14)
	assert.Error(t, err)
}

// Property: RSI values are within [0, 100] for any price path.
func TestProperty_RSIWithinBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("RSI values are within [0, 100]", prop.ForAll(
		func(steps []float64) bool {
			closes := make([]float64, len(steps))
			price := 1.2
			for i, s := range steps {
				price *= 1 + s
				closes[i] = price
			}
			rsi := NewRSI(14)
			values, err := rsi.Calculate(candlesFromCloses(closes))
			if err != nil {
				return len(closes) < 15
			}
			for i, v := range values {
				if i < rsi.Period() {
					continue
				}
				if v < 0 || v > 100 {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(60, gen.Float64Range(-0.01, 0.01)),
	))

	properties.TestingRun(t)
}
