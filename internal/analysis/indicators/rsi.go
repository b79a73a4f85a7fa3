// Package indicators computes the entry-timeframe readings used to shape
// event signals.
package indicators

import (
	"errors"

	"macro-trader/internal/models"
)

var (
	// ErrInsufficientData is returned when fewer than period+1 candles are given.
	ErrInsufficientData = errors.New("insufficient candles for indicator")
	// ErrInvalidPeriod is returned for a non-positive period.
	ErrInvalidPeriod = errors.New("indicator period must be positive")
)

// RSI is Wilder's Relative Strength Index over closing prices.
type RSI struct {
	period int
}

// NewRSI creates an RSI over period bars.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

// Period returns the smoothing period.
func (r *RSI) Period() int { return r.period }

// wilder keeps the smoothed average gain and loss.
type wilder struct {
	period float64
	gain   float64
	loss   float64
}

func (w *wilder) seed(gains, losses float64) {
	w.gain = gains / w.period
	w.loss = losses / w.period
}

func (w *wilder) push(change float64) {
	up, down := 0.0, 0.0
	if change > 0 {
		up = change
	} else {
		down = -change
	}
	w.gain = (w.gain*(w.period-1) + up) / w.period
	w.loss = (w.loss*(w.period-1) + down) / w.period
}

// value is 50 on a flat series and 100 when nothing was lost.
func (w *wilder) value() float64 {
	switch {
	case w.loss == 0 && w.gain == 0:
		return 50
	case w.loss == 0:
		return 100
	}
	return 100 - 100/(1+w.gain/w.loss)
}

// Calculate returns one reading per candle. Readings before index period
// are zero.
func (r *RSI) Calculate(candles []models.Candle) ([]float64, error) {
	if r.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) <= r.period {
		return nil, ErrInsufficientData
	}

	out := make([]float64, len(candles))
	var ups, downs float64
	for i := 1; i <= r.period; i++ {
		if d := candles[i].Close - candles[i-1].Close; d > 0 {
			ups += d
		} else {
			downs -= d
		}
	}

	w := &wilder{period: float64(r.period)}
	w.seed(ups, downs)
	out[r.period] = w.value()

	for i := r.period + 1; i < len(candles); i++ {
		w.push(candles[i].Close - candles[i-1].Close)
		out[i] = w.value()
	}
	return out, nil
}

// Latest returns the reading on the last candle.
func (r *RSI) Latest(candles []models.Candle) (float64, error) {
	values, err := r.Calculate(candles)
	if err != nil {
		return 0, err
	}
	return values[len(values)-1], nil
}

// Snapshot builds the entry-timeframe readings used when shaping a signal.
func Snapshot(candles []models.Candle, timeframe string, rsiPeriod int) (*models.Technicals, error) {
	rsi, err := NewRSI(rsiPeriod).Latest(candles)
	if err != nil {
		return nil, err
	}
	return &models.Technicals{
		Timeframe: timeframe,
		RSI:       rsi,
		Close:     candles[len(candles)-1].Close,
	}, nil
}
