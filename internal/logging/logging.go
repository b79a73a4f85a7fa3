// Package logging configures zerolog for the engine and holds the
// structured log helpers shared by its components.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"macro-trader/internal/models"
)

// LogConfig controls where logs go. Console output is human readable on
// stderr and the file holds JSON lines rotated by lumberjack.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	NoColor    bool   `mapstructure:"no_color"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// DefaultLogConfig logs info and above to the console and to
// ~/.config/macro-trader/logs/trader.log.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "macro-trader", "logs", "trader.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLoggerWithConfig builds the process logger and sets the global level.
// Console output goes to stderr so that --json command output stays clean.
// A log directory that cannot be created disables the file sink.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	sinks := make([]io.Writer, 0, 2)
	if cfg.Console {
		sinks = append(sinks, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339, NoColor: cfg.NoColor})
	}
	if cfg.File && cfg.FilePath != "" && os.MkdirAll(filepath.Dir(cfg.FilePath), 0755) == nil {
		sinks = append(sinks, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   true,
		})
	}

	var out io.Writer = os.Stderr
	if len(sinks) == 1 {
		out = sinks[0]
	} else if len(sinks) > 1 {
		out = zerolog.MultiLevelWriter(sinks...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	return zerolog.New(out).With().Timestamp().Str("app", "macro-trader").Logger()
}

// parseLevel accepts zerolog level names and falls back to info.
func parseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// SetDebugLevel lowers the global level to debug, for --verbose.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// WithLogger attaches logger to ctx.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return logger.WithContext(ctx)
}

// FromContext returns the logger attached to ctx, or a disabled logger.
func FromContext(ctx context.Context) zerolog.Logger {
	return *zerolog.Ctx(ctx)
}

// WithEvent adds a calendar event name and currency to the logger context.
func WithEvent(logger zerolog.Logger, name, currency string) zerolog.Logger {
	return logger.With().Str("event_name", name).Str("currency", currency).Logger()
}

// WithComponent adds an engine component name to the logger context.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// LogPrediction logs a forecast for an unreleased event.
func LogPrediction(logger zerolog.Logger, p models.EventPrediction) {
	logger.Info().
		Str("event", "prediction").
		Str("event_name", p.EventName).
		Str("currency", p.Currency).
		Str("outcome", string(p.PredictedOutcome)).
		Float64("probability", p.Probability).
		Str("confidence", string(p.Confidence)).
		Int("bias_score", p.BiasScore).
		Int("sample", p.HistoricalSample).
		Msg("Event prediction")
}

// LogSignal logs a generated signal together with its dispatch result.
func LogSignal(logger zerolog.Logger, s models.EventSignal, res models.ExecutionResult) {
	logger.Info().
		Str("event", "signal").
		Str("signal_id", s.ID).
		Str("symbol", s.Symbol).
		Str("direction", string(s.Direction)).
		Float64("probability", s.Probability).
		Float64("volume", s.Volume).
		Float64("sl_pips", s.StopLossPips).
		Float64("tp_pips", s.TakeProfitPips).
		Str("order_type", string(s.OrderType)).
		Str("mode", string(res.Mode)).
		Str("status", string(res.Status)).
		Msg("Signal dispatched")
}

// LogRiskBlock logs a trade rejected by the risk guardian.
func LogRiskBlock(logger zerolog.Logger, principal, symbol, reason string) {
	logger.Warn().
		Str("event", "risk_block").
		Str("principal", principal).
		Str("symbol", symbol).
		Str("reason", reason).
		Msg("Trade blocked by risk guardian")
}

// LogCollaboratorCall logs a call to an external collaborator.
func LogCollaboratorCall(logger zerolog.Logger, collaborator, operation string, duration time.Duration, err error) {
	event := logger.Debug().
		Str("event", "collaborator_call").
		Str("collaborator", collaborator).
		Str("operation", operation).
		Dur("duration", duration)

	if err != nil {
		event.Err(err).Msg("Collaborator call failed")
	} else {
		event.Msg("Collaborator call completed")
	}
}
