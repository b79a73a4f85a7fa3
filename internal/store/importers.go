package store

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"macro-trader/internal/models"
)

// Accepted timestamp layouts for imported rows. Zone-less values are UTC.
var importTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// eventRow is one line of a calendar CSV export.
type eventRow struct {
	Name     string `csv:"name"`
	Currency string `csv:"currency"`
	Time     string `csv:"time"`
	Impact   string `csv:"impact"`
	Forecast string `csv:"forecast"`
	Previous string `csv:"previous"`
	Actual   string `csv:"actual"`
}

// candleRow is one line of an OHLCV CSV export.
type candleRow struct {
	Time   string  `csv:"time"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume int64   `csv:"volume"`
}

// ParseImportTime parses a timestamp from an import file.
func ParseImportTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range importTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

// optionalFloat parses an empty cell as nil.
func optionalFloat(field, s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", field, s, err)
	}
	return &v, nil
}

// ReadEventsCSV reads calendar rows with the header
// name,currency,time,impact,forecast,previous,actual. Empty value cells are
// treated as unknown.
func ReadEventsCSV(r io.Reader) ([]models.CalendarEvent, error) {
	var rows []*eventRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("reading events csv: %w", err)
	}

	events := make([]models.CalendarEvent, 0, len(rows))
	for i, row := range rows {
		ev, err := row.event()
		if err != nil {
			return nil, fmt.Errorf("events csv line %d: %w", i+2, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func (row *eventRow) event() (models.CalendarEvent, error) {
	t, err := ParseImportTime(row.Time)
	if err != nil {
		return models.CalendarEvent{}, err
	}
	ev := models.CalendarEvent{
		Name:     strings.TrimSpace(row.Name),
		Currency: strings.ToUpper(strings.TrimSpace(row.Currency)),
		Time:     t,
		Impact:   models.ImpactLevel(strings.ToUpper(strings.TrimSpace(row.Impact))),
	}
	if ev.Forecast, err = optionalFloat("forecast", row.Forecast); err != nil {
		return ev, err
	}
	if ev.Previous, err = optionalFloat("previous", row.Previous); err != nil {
		return ev, err
	}
	if ev.Actual, err = optionalFloat("actual", row.Actual); err != nil {
		return ev, err
	}
	return ev, nil
}

// ReadEventsJSON reads a JSON array of calendar events.
func ReadEventsJSON(r io.Reader) ([]models.CalendarEvent, error) {
	var events []models.CalendarEvent
	if err := json.NewDecoder(r).Decode(&events); err != nil {
		return nil, fmt.Errorf("reading events json: %w", err)
	}
	for i := range events {
		events[i].Time = events[i].Time.UTC()
		events[i].Currency = strings.ToUpper(strings.TrimSpace(events[i].Currency))
	}
	return events, nil
}

// ReadCandlesCSV reads bars with the header time,open,high,low,close,volume
// and returns them in ascending time order.
func ReadCandlesCSV(r io.Reader) ([]models.Candle, error) {
	var rows []*candleRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("reading candles csv: %w", err)
	}

	candles := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		t, err := ParseImportTime(row.Time)
		if err != nil {
			return nil, fmt.Errorf("candles csv line %d: %w", i+2, err)
		}
		if row.High < row.Low {
			return nil, fmt.Errorf("candles csv line %d: high %.5f below low %.5f", i+2, row.High, row.Low)
		}
		candles = append(candles, models.Candle{
			Time:   t,
			Open:   row.Open,
			High:   row.High,
			Low:    row.Low,
			Close:  row.Close,
			Volume: row.Volume,
		})
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	return candles, nil
}
