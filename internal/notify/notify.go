// Package notify delivers dispatched signals to people and downstream systems.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"macro-trader/internal/config"
	"macro-trader/internal/models"
)

// SignalDocument is the flat document pushed for every dispatched signal.
type SignalDocument struct {
	EventName      string                 `json:"event_name"`
	Direction      models.Direction       `json:"direction"`
	Symbol         string                 `json:"symbol"`
	PriceHint      float64                `json:"price_hint"`
	StopLossPips   float64                `json:"stop_loss_pips"`
	TakeProfitPips float64                `json:"take_profit_pips"`
	ConfidencePct  float64                `json:"confidence_pct"`
	Reasoning      string                 `json:"reasoning"`
	Timestamp      time.Time              `json:"timestamp"`
	ForecastPips   float64                `json:"forecast_pips"`
	TrendBias      string                 `json:"trend_bias"`
	OrderType      models.OrderType       `json:"order_type"`
	Volume         float64                `json:"volume"`
	Status         models.ExecutionStatus `json:"status,omitempty"`
}

// NewSignalDocument flattens a signal and its dispatch result.
func NewSignalDocument(sig *models.EventSignal, res models.ExecutionResult) SignalDocument {
	return SignalDocument{
		EventName:      sig.EventName,
		Direction:      sig.Direction,
		Symbol:         sig.Symbol,
		PriceHint:      sig.PriceHint,
		StopLossPips:   sig.StopLossPips,
		TakeProfitPips: sig.TakeProfitPips,
		ConfidencePct:  math.Round(sig.Probability*1000) / 10,
		Reasoning:      sig.Reasoning,
		Timestamp:      sig.CreatedAt,
		ForecastPips:   sig.AvgPips,
		TrendBias:      sig.TrendForecast,
		OrderType:      sig.OrderType,
		Volume:         sig.Volume,
		Status:         res.Status,
	}
}

// Presenter receives signal documents.
type Presenter interface {
	Present(ctx context.Context, doc SignalDocument) error
}

// Channel is one delivery route. Disabled channels are skipped.
type Channel interface {
	Name() string
	IsEnabled() bool
	Send(ctx context.Context, n Notification) error
}

// NotificationType classifies a notification for level filtering.
type NotificationType string

const (
	NotificationSignal NotificationType = "signal"
	NotificationError  NotificationType = "error"
	NotificationInfo   NotificationType = "info"
)

// Notification is what channels deliver. Signal is set for
// NotificationSignal.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Signal    *SignalDocument
	Timestamp time.Time
}

// NotificationLevel selects which types reach the channels.
type NotificationLevel string

const (
	LevelAll         NotificationLevel = "all"
	LevelSignalsOnly NotificationLevel = "signals_only"
	LevelErrorsOnly  NotificationLevel = "errors_only"
)

// MultiNotifier fans notifications out to its channels and is the engine's
// Presenter.
type MultiNotifier struct {
	level NotificationLevel
	now   func() time.Time

	mu       sync.RWMutex
	channels []Channel
}

// NewMultiNotifier builds the channels enabled in cfg behind a log channel,
// which is always present.
func NewMultiNotifier(cfg config.NotificationConfig, logger zerolog.Logger) *MultiNotifier {
	level := NotificationLevel(cfg.Level)
	if level == "" {
		level = LevelAll
	}
	mn := &MultiNotifier{level: level, now: time.Now, channels: []Channel{NewLogNotifier(logger)}}
	if !cfg.Enabled {
		return mn
	}

	if cfg.Webhook.Enabled {
		mn.AddChannel(NewWebhookNotifier(cfg.Webhook))
	}
	if cfg.Telegram.Enabled {
		mn.AddChannel(NewTelegramNotifier(cfg.Telegram))
	}
	if cfg.Kafka.Enabled {
		mn.AddChannel(NewKafkaNotifier(cfg.Kafka))
	}
	return mn
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch Channel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// Channels names the enabled channels in delivery order.
func (mn *MultiNotifier) Channels() []string {
	var names []string
	for _, ch := range mn.snapshot() {
		if ch.IsEnabled() {
			names = append(names, ch.Name())
		}
	}
	return names
}

func (mn *MultiNotifier) snapshot() []Channel {
	mn.mu.RLock()
	defer mn.mu.RUnlock()
	return append([]Channel(nil), mn.channels...)
}

// admits applies the level filter.
func (mn *MultiNotifier) admits(t NotificationType) bool {
	switch mn.level {
	case LevelSignalsOnly:
		return t == NotificationSignal
	case LevelErrorsOnly:
		return t == NotificationError
	}
	return true
}

// Send delivers n on every enabled channel that the level admits. A failing
// channel does not stop the others.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.admits(n.Type) {
		return nil
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = mn.now()
	}

	var errs []error
	for _, ch := range mn.snapshot() {
		if !ch.IsEnabled() {
			continue
		}
		if err := ch.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Present implements Presenter.
func (mn *MultiNotifier) Present(ctx context.Context, doc SignalDocument) error {
	return mn.Send(ctx, Notification{
		Type:      NotificationSignal,
		Title:     fmt.Sprintf("%s %s on %s", doc.Direction, doc.Symbol, doc.EventName),
		Message:   FormatSignal(doc),
		Signal:    &doc,
		Timestamp: doc.Timestamp,
	})
}

// SendError sends an error notification.
func (mn *MultiNotifier) SendError(ctx context.Context, err error, errContext string) error {
	return mn.Send(ctx, Notification{
		Type:    NotificationError,
		Title:   "Error",
		Message: fmt.Sprintf("Context: %s\nError: %v", errContext, err),
	})
}

// Close releases channels that hold connections, such as the Kafka writer.
func (mn *MultiNotifier) Close() error {
	var errs []error
	for _, ch := range mn.snapshot() {
		if c, ok := ch.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing %s: %w", ch.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// FormatSignal renders a signal document as plain text.
func FormatSignal(doc SignalDocument) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Event: %s\n", doc.EventName)
	fmt.Fprintf(&sb, "Action: %s %.2f lots %s (%s)\n", doc.Direction, doc.Volume, doc.Symbol, doc.OrderType)
	if doc.PriceHint > 0 {
		fmt.Fprintf(&sb, "Price: %.5f\n", doc.PriceHint)
	}
	fmt.Fprintf(&sb, "SL/TP: %.0f / %.0f pips\n", doc.StopLossPips, doc.TakeProfitPips)
	fmt.Fprintf(&sb, "Confidence: %.1f%%\n", doc.ConfidencePct)
	if doc.ForecastPips > 0 {
		fmt.Fprintf(&sb, "Typical move: %.1f pips\n", doc.ForecastPips)
	}
	if doc.TrendBias != "" {
		fmt.Fprintf(&sb, "Trend: %s\n", doc.TrendBias)
	}
	if doc.Status != "" {
		fmt.Fprintf(&sb, "Status: %s\n", doc.Status)
	}
	if doc.Reasoning != "" {
		fmt.Fprintf(&sb, "\n%s", doc.Reasoning)
	}
	return strings.TrimRight(sb.String(), "\n")
}
