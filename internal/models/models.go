// Package models provides domain models for the event trading engine.
package models

import (
	"strings"
	"time"
)

// Direction represents the side of a signal or order.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionHold Direction = "HOLD"
)

// Opposite returns the reverse side. HOLD stays HOLD.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionBuy:
		return DirectionSell
	case DirectionSell:
		return DirectionBuy
	default:
		return DirectionHold
	}
}

// OrderType represents how a signal should be entered.
type OrderType string

const (
	OrderTypeMarket        OrderType = "MARKET"
	OrderTypeLimitPullback OrderType = "LIMIT_PULLBACK"
)

// Candle represents OHLCV data for a time period.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Quote represents a two-sided price.
type Quote struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Time   time.Time `json:"time"`
}

// Mid returns the midpoint between bid and ask.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// OpenPosition is a position currently held by a principal.
type OpenPosition struct {
	Ticket    string    `json:"ticket,omitempty"`
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	Volume    float64   `json:"volume"`
	OpenPrice float64   `json:"open_price"`
	OpenedAt  time.Time `json:"opened_at,omitempty"`
}

// OrderRequest is an order sent to the execution collaborator. Stops are
// distances in pips from the fill; the collaborator converts them to prices.
type OrderRequest struct {
	Symbol         string    `json:"symbol"`
	Direction      Direction `json:"direction"`
	Volume         float64   `json:"volume"`
	StopLossPips   float64   `json:"stop_loss_pips"`
	TakeProfitPips float64   `json:"take_profit_pips"`
	OrderType      OrderType `json:"order_type"`
	LimitPrice     float64   `json:"limit_price,omitempty"`
	Comment        string    `json:"comment,omitempty"`
}

// OrderFill is returned by the execution collaborator on success.
type OrderFill struct {
	Ticket     string    `json:"ticket"`
	FillPrice  float64   `json:"fill_price"`
	StopLoss   float64   `json:"stop_loss,omitempty"`
	TakeProfit float64   `json:"take_profit,omitempty"`
	FilledAt   time.Time `json:"filled_at,omitempty"`
}

// AccountInfo is the execution collaborator's view of the account.
type AccountInfo struct {
	Balance  float64 `json:"balance"`
	Equity   float64 `json:"equity"`
	Currency string  `json:"currency"`
}

// Technicals holds indicator readings for the entry timeframe.
type Technicals struct {
	Timeframe string  `json:"timeframe"`
	RSI       float64 `json:"rsi"`
	Close     float64 `json:"close"`
}

// SplitSymbol returns the base and quote currency of a six-letter FX symbol.
// Separators such as "/" or "_" are ignored. ok is false when the symbol
// cannot be split.
func SplitSymbol(symbol string) (base, quote string, ok bool) {
	s := strings.ToUpper(symbol)
	s = strings.NewReplacer("/", "", "_", "", "-", "").Replace(s)
	if len(s) < 6 {
		return "", "", false
	}
	return s[:3], s[3:6], true
}

// PipSize returns the price increment of one pip for symbol.
func PipSize(symbol string) float64 {
	_, quote, ok := SplitSymbol(symbol)
	if ok && quote == "JPY" {
		return 0.01
	}
	return 0.0001
}

var primarySymbols = map[string]string{
	"USD": "EURUSD",
	"EUR": "EURUSD",
	"GBP": "GBPUSD",
	"JPY": "USDJPY",
	"AUD": "AUDUSD",
	"NZD": "NZDUSD",
	"CAD": "USDCAD",
	"CHF": "USDCHF",
	"CNY": "USDCNH",
}

// PrimarySymbol returns the most liquid pair quoted against currency, or ""
// when none is known.
func PrimarySymbol(currency string) string {
	return primarySymbols[strings.ToUpper(currency)]
}
