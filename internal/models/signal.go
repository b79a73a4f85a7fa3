package models

import "time"

// TradingMode selects how signals are dispatched.
type TradingMode string

const (
	ModeSignalOnly  TradingMode = "SIGNAL_ONLY"
	ModeStraddle    TradingMode = "STRADDLE"
	ModeDirectional TradingMode = "DIRECTIONAL"
)

// Valid reports whether m is a known mode.
func (m TradingMode) Valid() bool {
	switch m {
	case ModeSignalOnly, ModeStraddle, ModeDirectional:
		return true
	}
	return false
}

// EntryStyle labels how aggressively a signal should be taken.
type EntryStyle string

const (
	EntryAggressive   EntryStyle = "AGGRESSIVE"
	EntryModerate     EntryStyle = "MODERATE"
	EntryConservative EntryStyle = "CONSERVATIVE"
)

// EventSignal is a tradable instruction derived from a prediction.
type EventSignal struct {
	ID             string      `json:"id"`
	EventName      string      `json:"event_name"`
	EventKey       string      `json:"event_key,omitempty"`
	Currency       string      `json:"currency"`
	Symbol         string      `json:"symbol"`
	Direction      Direction   `json:"direction"`
	Probability    float64     `json:"probability"`
	Confidence     Confidence  `json:"confidence"`
	EntryStyle     EntryStyle  `json:"entry_style"`
	EntryLogic     string      `json:"entry_logic"`
	StopLossPips   float64     `json:"stop_loss_pips"`
	TakeProfitPips float64     `json:"take_profit_pips"`
	RiskReward     float64     `json:"risk_reward"`
	AvgPips        float64     `json:"avg_pips"`
	TrendForecast  string      `json:"trend_forecast"`
	OrderType      OrderType   `json:"order_type"`
	Mode           TradingMode `json:"mode"`
	Volume         float64     `json:"volume"`
	PriceHint      float64     `json:"price_hint,omitempty"`
	Reasoning      string      `json:"reasoning"`
	Executed       bool        `json:"executed"`
	ExecutionID    string      `json:"execution_id,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// MarkExecuted records a successful dispatch. It only takes effect once.
func (s *EventSignal) MarkExecuted(executionID string) bool {
	if s.Executed {
		return false
	}
	s.Executed = true
	s.ExecutionID = executionID
	return true
}

// ExecutionStatus is the outcome of dispatching a signal.
type ExecutionStatus string

const (
	StatusLogged         ExecutionStatus = "LOGGED"
	StatusExecuted       ExecutionStatus = "EXECUTED"
	StatusSkipped        ExecutionStatus = "SKIPPED"
	StatusBlocked        ExecutionStatus = "BLOCKED"
	StatusFailed         ExecutionStatus = "FAILED"
	StatusNotImplemented ExecutionStatus = "NOT_IMPLEMENTED"
)

// ExecutionResult is returned by every dispatch path.
type ExecutionResult struct {
	Status    ExecutionStatus `json:"status"`
	Mode      TradingMode     `json:"mode"`
	Executed  bool            `json:"executed"`
	Ticket    string          `json:"ticket,omitempty"`
	FillPrice float64         `json:"fill_price,omitempty"`
	Message   string          `json:"message"`
}
