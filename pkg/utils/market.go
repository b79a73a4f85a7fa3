package utils

import "time"

// ForexSession names the trading session active at a given time.
type ForexSession string

const (
	SessionClosed   ForexSession = "CLOSED"
	SessionSydney   ForexSession = "SYDNEY"
	SessionTokyo    ForexSession = "TOKYO"
	SessionLondon   ForexSession = "LONDON"
	SessionNewYork  ForexSession = "NEW_YORK"
	SessionOverlap  ForexSession = "LONDON_NY_OVERLAP"
	forexWeekOpenH  = 22 // Sunday, UTC
	forexWeekCloseH = 22 // Friday, UTC
)

// IsForexOpen reports whether the spot FX market trades at t. The week runs
// from Sunday 22:00 UTC to Friday 22:00 UTC.
func IsForexOpen(t time.Time) bool {
	t = t.UTC()
	switch t.Weekday() {
	case time.Saturday:
		return false
	case time.Sunday:
		return t.Hour() >= forexWeekOpenH
	case time.Friday:
		return t.Hour() < forexWeekCloseH
	default:
		return true
	}
}

// GetForexSession returns the most liquid session at t.
func GetForexSession(t time.Time) ForexSession {
	if !IsForexOpen(t) {
		return SessionClosed
	}
	h := t.UTC().Hour()
	switch {
	case h >= 12 && h < 16:
		return SessionOverlap
	case h >= 7 && h < 12:
		return SessionLondon
	case h >= 16 && h < 21:
		return SessionNewYork
	case h >= 0 && h < 7:
		return SessionTokyo
	default:
		return SessionSydney
	}
}

// NextForexOpen returns the next weekly open at or after t.
func NextForexOpen(t time.Time) time.Time {
	if IsForexOpen(t) {
		return t
	}
	t = t.UTC()
	days := (int(time.Sunday) - int(t.Weekday()) + 7) % 7
	open := time.Date(t.Year(), t.Month(), t.Day()+days, forexWeekOpenH, 0, 0, 0, time.UTC)
	if open.Before(t) {
		open = open.AddDate(0, 0, 7)
	}
	return open
}
