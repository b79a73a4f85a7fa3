package models

import "time"

// PredictedOutcome is the forecast result of an unreleased event.
type PredictedOutcome string

const (
	OutcomeBeat    PredictedOutcome = "BEAT"
	OutcomeMiss    PredictedOutcome = "MISS"
	OutcomeNeutral PredictedOutcome = "NEUTRAL"
)

// Confidence grades how much history backs a prediction.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Bias is an expected directional reaction.
type Bias string

const (
	BiasBullish Bias = "BULLISH"
	BiasBearish Bias = "BEARISH"
	BiasNeutral Bias = "NEUTRAL"
	BiasNone    Bias = "NONE"
)

// EventPrediction is a probability-scored forecast for an unreleased event.
type EventPrediction struct {
	EventName         string           `json:"event_name"`
	Currency          string           `json:"currency"`
	EventTime         time.Time        `json:"event_time,omitempty"`
	Forecast          float64          `json:"forecast"`
	Previous          float64          `json:"previous"`
	PredictedOutcome  PredictedOutcome `json:"predicted_outcome"`
	Probability       float64          `json:"probability"`
	Confidence        Confidence       `json:"confidence"`
	ExpectedDirection Bias             `json:"expected_direction"`
	BiasScore         int              `json:"bias_score"`
	BeatRate          float64          `json:"beat_rate"`
	HistoricalSample  int              `json:"historical_sample"`
	Recommendation    string           `json:"recommendation"`
	AvgPips           float64          `json:"avg_pips"`
	TrendForecast     string           `json:"trend_forecast"`
	CreatedAt         time.Time        `json:"created_at"`
}

// RiskReport is an advisory snapshot of a principal's risk state.
type RiskReport struct {
	Principal          string    `json:"principal"`
	DailyPnL           float64   `json:"daily_pnl"`
	DailyPnLPct        float64   `json:"daily_pnl_pct"`
	TotalExposure      float64   `json:"total_exposure"`
	Equity             float64   `json:"equity"`
	StartOfDayEquity   float64   `json:"start_of_day_equity"`
	CorrelationWarning string    `json:"correlation_warning,omitempty"`
	DailyLossLimit     float64   `json:"daily_loss_limit"`
	MaxSymbolExposure  float64   `json:"max_symbol_exposure"`
	MaxCorrelation     float64   `json:"max_correlation"`
	CircuitBreaker     bool      `json:"circuit_breaker"`
	GeneratedAt        time.Time `json:"generated_at"`
}

// DailyRiskState is the per-principal running state reset each UTC day.
type DailyRiskState struct {
	StartOfDayEquity float64   `json:"start_of_day_equity"`
	RealizedPnL      float64   `json:"realized_pnl"`
	ResetDate        time.Time `json:"reset_date"`
}
