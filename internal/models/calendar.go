package models

import (
	"fmt"
	"strings"
	"time"
)

// ImpactLevel is the expected market impact of a calendar release.
type ImpactLevel string

const (
	ImpactHigh    ImpactLevel = "HIGH"
	ImpactMedium  ImpactLevel = "MEDIUM"
	ImpactLow     ImpactLevel = "LOW"
	ImpactHoliday ImpactLevel = "HOLIDAY"
)

// CalendarEvent is a scheduled economic release. Actual is nil until the
// number prints and is set exactly once afterwards.
type CalendarEvent struct {
	ID       int64       `json:"id,omitempty"`
	Name     string      `json:"name" validate:"required"`
	Currency string      `json:"currency" validate:"required,len=3,alpha"`
	Time     time.Time   `json:"time" validate:"required"`
	Impact   ImpactLevel `json:"impact" validate:"omitempty,oneof=HIGH MEDIUM LOW HOLIDAY"`
	Forecast *float64    `json:"forecast,omitempty"`
	Previous *float64    `json:"previous,omitempty"`
	Actual   *float64    `json:"actual,omitempty"`
}

// Key returns the stable identity of the event: name, date, time and currency.
func (e CalendarEvent) Key() string {
	t := e.Time.UTC()
	return fmt.Sprintf("%s|%s|%s|%s",
		strings.TrimSpace(e.Name), t.Format("2006-01-02"), t.Format("15:04"), strings.ToUpper(e.Currency))
}

// Released reports whether the actual value is known.
func (e CalendarEvent) Released() bool {
	return e.Actual != nil
}

// Float returns a pointer to v. Handy for building events in code.
func Float(v float64) *float64 {
	return &v
}

// OutcomeCategory buckets a release by its percentage surprise.
type OutcomeCategory string

const (
	BigBeat   OutcomeCategory = "BIG_BEAT"
	SmallBeat OutcomeCategory = "SMALL_BEAT"
	InLine    OutcomeCategory = "IN_LINE"
	SmallMiss OutcomeCategory = "SMALL_MISS"
	BigMiss   OutcomeCategory = "BIG_MISS"
)

// AllCategories lists categories from strongest beat to strongest miss.
func AllCategories() []OutcomeCategory {
	return []OutcomeCategory{BigBeat, SmallBeat, InLine, SmallMiss, BigMiss}
}

// HistoricalOutcome is the classification of a single released event.
type HistoricalOutcome struct {
	Deviation    float64         `json:"deviation"`
	DeviationPct float64         `json:"deviation_pct"`
	Momentum     float64         `json:"momentum"`
	Category     OutcomeCategory `json:"category"`
}

// DeviationStats summarises how an event has historically resolved.
type DeviationStats struct {
	EventName       string                  `json:"event_name"`
	Currency        string                  `json:"currency"`
	SampleSize      int                     `json:"sample_size"`
	EffectiveSample float64                 `json:"effective_sample"`
	MeanDeviation   float64                 `json:"mean_deviation"`
	StdDeviation    float64                 `json:"std_deviation"`
	PositiveRate    float64                 `json:"positive_rate"`
	AvgPips         float64                 `json:"avg_pips"`
	Categories      map[OutcomeCategory]int `json:"categories"`
	Weighted        bool                    `json:"weighted"`
	SufficientData  bool                    `json:"sufficient_data"`
	ComputedAt      time.Time               `json:"computed_at"`
}

// SignificanceTier grades a z-score.
type SignificanceTier string

const (
	TierVeryStrong SignificanceTier = "VERY_STRONG"
	TierStrong     SignificanceTier = "STRONG"
	TierModerate   SignificanceTier = "MODERATE"
	TierWeak       SignificanceTier = "WEAK"
	TierNoise      SignificanceTier = "NOISE"
)

// ReleaseAnalysis describes a released event against its own history.
type ReleaseAnalysis struct {
	Event   CalendarEvent     `json:"event"`
	Outcome HistoricalOutcome `json:"outcome"`
	ZScore  float64           `json:"z_score"`
	Tier    SignificanceTier  `json:"tier"`
	Stats   DeviationStats    `json:"stats"`
}
