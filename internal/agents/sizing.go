package agents

import (
	"math"

	"github.com/shopspring/decimal"

	"macro-trader/internal/models"
)

// Lot limits.
const (
	MinLots = 0.01
	MaxLots = 5.0

	// Dampening never cuts risk below this share of the base fraction.
	minRiskShare = 0.10
)

// riskFractions maps confidence to the share of equity risked per trade.
var riskFractions = map[models.Confidence]float64{
	models.ConfidenceHigh:   0.015,
	models.ConfidenceMedium: 0.010,
	models.ConfidenceLow:    0.005,
}

// RiskFraction returns the base risk fraction for a confidence level.
func RiskFraction(c models.Confidence) float64 {
	if f, ok := riskFractions[c]; ok {
		return f
	}
	return riskFractions[models.ConfidenceLow]
}

// quotePipValues approximates the USD value of one pip per standard lot by
// quote currency.
var quotePipValues = map[string]float64{
	"JPY": 7.0,
	"CAD": 7.5,
	"GBP": 10.0,
	"CHF": 10.0,
}

// PipValuePerLot returns the approximate pip value of one lot of symbol.
func PipValuePerLot(symbol string) float64 {
	if _, quote, ok := models.SplitSymbol(symbol); ok {
		if v, ok := quotePipValues[quote]; ok {
			return v
		}
	}
	return 10.0
}

// dampenedFraction scales base down by the share of the daily loss budget
// already used.
func dampenedFraction(base, realizedPnL, equity, dailyLossLimit float64) float64 {
	if realizedPnL >= 0 || equity <= 0 || dailyLossLimit <= 0 {
		return base
	}
	used := -realizedPnL / (equity * dailyLossLimit)
	share := math.Max(1-used, minRiskShare)
	return base * share
}

// lotsFor converts a risk amount into lots, rounded to 2 decimals and
// clamped to [MinLots, MaxLots].
func lotsFor(equity, riskFraction, pipValue, stopLossPips float64) float64 {
	if equity <= 0 || pipValue <= 0 || stopLossPips <= 0 {
		return MinLots
	}
	raw := decimal.NewFromFloat(equity).
		Mul(decimal.NewFromFloat(riskFraction)).
		Div(decimal.NewFromFloat(pipValue).Mul(decimal.NewFromFloat(stopLossPips)))

	lots := raw.Round(2).InexactFloat64()
	return math.Min(math.Max(lots, MinLots), MaxLots)
}
