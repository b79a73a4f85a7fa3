package trading

import (
	"strings"

	"macro-trader/internal/models"
)

// StopTarget is a stop-loss and take-profit distance in pips.
type StopTarget struct {
	StopLossPips   float64 `json:"stop_loss_pips"`
	TakeProfitPips float64 `json:"take_profit_pips"`
}

// RiskReward returns take profit over stop loss.
func (st StopTarget) RiskReward() float64 {
	if st.StopLossPips <= 0 {
		return 0
	}
	return st.TakeProfitPips / st.StopLossPips
}

// eventLevels is matched in order against the event name, case-insensitively.
var eventLevels = []struct {
	match  string
	levels StopTarget
}{
	{"NFP", StopTarget{50, 100}},
	{"Non-Farm", StopTarget{50, 100}},
	{"CPI", StopTarget{40, 80}},
	{"FOMC", StopTarget{60, 120}},
	{"Interest Rate", StopTarget{50, 100}},
	{"GDP", StopTarget{40, 80}},
	{"Retail Sales", StopTarget{35, 70}},
	{"PMI", StopTarget{25, 50}},
	{"Unemployment", StopTarget{35, 70}},
}

var defaultLevels = StopTarget{30, 60}

// LevelsFor returns the stop and target distances for an event type.
func LevelsFor(eventName string) StopTarget {
	name := strings.ToLower(eventName)
	for _, l := range eventLevels {
		if strings.Contains(name, strings.ToLower(l.match)) {
			return l.levels
		}
	}
	return defaultLevels
}

// EntryStyleFor labels how aggressively a signal should be taken.
func EntryStyleFor(probability float64, confidence models.Confidence) models.EntryStyle {
	switch {
	case probability >= 0.7 && confidence == models.ConfidenceHigh:
		return models.EntryAggressive
	case probability >= 0.6:
		return models.EntryModerate
	default:
		return models.EntryConservative
	}
}

// ResolveDirection maps a predicted outcome to a trade side on symbol. A beat
// buys when currency is the base and sells otherwise; a miss does the reverse.
func ResolveDirection(outcome models.PredictedOutcome, currency, symbol string) models.Direction {
	base, _, _ := models.SplitSymbol(symbol)
	var dir models.Direction
	switch outcome {
	case models.OutcomeBeat:
		dir = models.DirectionSell
		if strings.EqualFold(base, currency) {
			dir = models.DirectionBuy
		}
	case models.OutcomeMiss:
		dir = models.DirectionBuy
		if strings.EqualFold(base, currency) {
			dir = models.DirectionSell
		}
	default:
		dir = models.DirectionHold
	}
	return dir
}

// Overextended reports whether RSI argues against entering at market: above
// 70 for a buy or below 30 for a sell.
func Overextended(dir models.Direction, rsi float64) bool {
	switch dir {
	case models.DirectionBuy:
		return rsi > 70
	case models.DirectionSell:
		return rsi < 30
	}
	return false
}

// PickSymbol chooses the pair to trade for a currency: the first watched
// symbol containing it, else its most liquid pair.
func PickSymbol(currency string, watched []string) string {
	for _, s := range watched {
		base, quote, ok := models.SplitSymbol(s)
		if ok && (strings.EqualFold(base, currency) || strings.EqualFold(quote, currency)) {
			return strings.ToUpper(s)
		}
	}
	return models.PrimarySymbol(currency)
}
