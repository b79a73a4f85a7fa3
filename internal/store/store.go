// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"macro-trader/internal/models"
)

// EventSource is the read side of the economic calendar.
type EventSource interface {
	QueryEvents(ctx context.Context, q EventQuery) ([]models.CalendarEvent, error)
}

// CandleStore persists and serves price history.
type CandleStore interface {
	SaveCandles(ctx context.Context, symbol, timeframe string, candles []models.Candle) error
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error)
	GetCandlesRange(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error)
}

// SignalJournal records generated signals.
type SignalJournal interface {
	SaveSignal(ctx context.Context, signal *models.EventSignal) error
	ListSignals(ctx context.Context, filter SignalFilter) ([]models.EventSignal, error)
	MarkSignalExecuted(ctx context.Context, id, executionID string) error
}

// DataStore defines the interface for data persistence.
type DataStore interface {
	EventSource
	CandleStore
	SignalJournal

	SaveEvents(ctx context.Context, events []models.CalendarEvent) (SaveResult, error)

	// Lifecycle
	Close() error
}

// EventQuery filters calendar rows. Before is exclusive, After inclusive.
type EventQuery struct {
	Currency        string
	EventName       string
	Before          *time.Time
	After           *time.Time
	Limit           int
	RequireForecast bool
	RequireActual   bool
	// Ascending orders by time ascending (look-ahead); default is
	// descending (history).
	Ascending bool
}

// HistoryQuery returns the query used to pull released history for an event.
func HistoryQuery(name, currency string, limit int, before *time.Time) EventQuery {
	return EventQuery{
		Currency:        currency,
		EventName:       name,
		Before:          before,
		Limit:           limit,
		RequireForecast: true,
		RequireActual:   true,
	}
}

// UpcomingQuery returns the query used by the monitor to find due events.
func UpcomingQuery(from, to time.Time) EventQuery {
	return EventQuery{
		After:           &from,
		Before:          &to,
		RequireForecast: true,
		Ascending:       true,
	}
}

// SaveResult reports what an ingestion batch changed.
type SaveResult struct {
	Inserted int
	Released int // rows whose actual value went from absent to present
	Rejected []error
	// Touched lists the (name, currency) pairs whose history changed.
	Touched []EventRef
}

// EventRef names an event series.
type EventRef struct {
	Name     string
	Currency string
}

// SignalFilter represents filters for querying signals.
type SignalFilter struct {
	Symbol    string
	EventName string
	Since     time.Time
	Executed  *bool
	Limit     int
}
