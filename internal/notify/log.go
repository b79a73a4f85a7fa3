package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (l *LogNotifier) Name() string    { return "log" }
func (l *LogNotifier) IsEnabled() bool { return true }

// Send logs errors at error level and everything else at info.
func (l *LogNotifier) Send(ctx context.Context, n Notification) error {
	ev := l.logger.Info()
	if n.Type == NotificationError {
		ev = l.logger.Error()
	}
	ev.Str("type", string(n.Type)).Str("title", n.Title)
	if s := n.Signal; s != nil {
		ev.Str("symbol", s.Symbol).
			Str("direction", string(s.Direction)).
			Float64("volume", s.Volume).
			Float64("confidence_pct", s.ConfidencePct).
			Str("status", string(s.Status))
	}
	ev.Msg("Notification")
	return nil
}
