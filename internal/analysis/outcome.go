package analysis

import (
	"math"

	"macro-trader/internal/models"
)

// ClassifyOutcome measures a release against its forecast and previous value.
// When forecast is zero, deviation_pct is 0 for a zero actual and otherwise
// +1 or -1 following the sign of actual.
func ClassifyOutcome(forecast, actual, previous float64) models.HistoricalOutcome {
	deviation := actual - forecast

	var pct float64
	if forecast == 0 {
		switch {
		case actual > 0:
			pct = 1
		case actual < 0:
			pct = -1
		}
	} else {
		pct = deviation / math.Abs(forecast)
	}

	return models.HistoricalOutcome{
		Deviation:    deviation,
		DeviationPct: pct,
		Momentum:     forecast - previous,
		Category:     categorize(pct),
	}
}

func categorize(pct float64) models.OutcomeCategory {
	switch {
	case pct > BigThreshold:
		return models.BigBeat
	case pct > SmallThreshold:
		return models.SmallBeat
	case pct < -BigThreshold:
		return models.BigMiss
	case pct < -SmallThreshold:
		return models.SmallMiss
	default:
		return models.InLine
	}
}

// ZScore returns deviation expressed in standard deviations. A zero std
// yields zero.
func ZScore(deviation, std float64) float64 {
	if std == 0 {
		return 0
	}
	return deviation / std
}

// SignificanceTier grades the magnitude of a z-score.
func SignificanceTier(z float64) models.SignificanceTier {
	az := math.Abs(z)
	switch {
	case az >= 2.0:
		return models.TierVeryStrong
	case az >= 1.5:
		return models.TierStrong
	case az >= 1.0:
		return models.TierModerate
	case az >= 0.5:
		return models.TierWeak
	default:
		return models.TierNoise
	}
}
