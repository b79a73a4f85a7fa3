// Package audit keeps an append-only trail of order dispatches and trading
// mode changes.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"macro-trader/internal/models"
	"macro-trader/pkg/utils"
)

// EventType represents the type of audit event.
type EventType string

const (
	OrderPlaced   EventType = "ORDER_PLACED"
	OrderBlocked  EventType = "ORDER_BLOCKED"
	OrderRejected EventType = "ORDER_REJECTED"
	ModeChanged   EventType = "MODE_CHANGED"
)

// Event represents a single audit log entry.
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType EventType              `json:"event_type"`
	Principal string                 `json:"principal,omitempty"`
	Symbol    string                 `json:"symbol,omitempty"`
	SignalID  string                 `json:"signal_id,omitempty"`
	Ticket    string                 `json:"ticket,omitempty"`
	Action    string                 `json:"action,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Success   bool                   `json:"success"`
	ErrorMsg  string                 `json:"error,omitempty"`
	SessionID string                 `json:"session_id"`
}

// Config holds audit trail settings.
type Config struct {
	Dir        string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// Trail writes audit events as JSON lines to a rotated file.
type Trail struct {
	writer    *lumberjack.Logger
	mu        sync.Mutex
	sessionID string
	principal string
	now       func() time.Time
}

// NewTrail opens the trail under cfg.Dir.
func NewTrail(cfg Config, principal string) (*Trail, error) {
	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}
	return &Trail{
		writer: &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, "audit.log"),
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   true,
		},
		sessionID: utils.NewID(),
		principal: principal,
		now:       time.Now,
	}, nil
}

// Path returns the active log file.
func (t *Trail) Path() string {
	return t.writer.Filename
}

// Log appends an event. Error text is masked before it is written.
func (t *Trail) Log(ctx context.Context, event Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	event.Timestamp = t.now().UTC()
	event.SessionID = t.sessionID
	if event.Principal == "" {
		event.Principal = t.principal
	}
	event.ErrorMsg = MaskSecrets(event.ErrorMsg)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serializing audit event: %w", err)
	}
	if _, err := t.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

// RecordDispatch logs the outcome of a directional dispatch.
func (t *Trail) RecordDispatch(ctx context.Context, sig models.EventSignal, res models.ExecutionResult) error {
	event := Event{
		Symbol:   sig.Symbol,
		SignalID: sig.ID,
		Ticket:   res.Ticket,
		Action:   string(sig.Direction),
		Details: map[string]interface{}{
			"event":      sig.EventName,
			"volume":     sig.Volume,
			"order_type": sig.OrderType,
			"sl_pips":    sig.StopLossPips,
			"tp_pips":    sig.TakeProfitPips,
			"mode":       res.Mode,
		},
	}
	switch res.Status {
	case models.StatusExecuted:
		event.EventType = OrderPlaced
		event.Success = true
		event.Details["fill_price"] = res.FillPrice
	case models.StatusBlocked:
		event.EventType = OrderBlocked
		event.ErrorMsg = res.Message
	default:
		event.EventType = OrderRejected
		event.ErrorMsg = res.Message
	}
	return t.Log(ctx, event)
}

// RecordModeChange logs a trading mode switch.
func (t *Trail) RecordModeChange(ctx context.Context, from, to models.TradingMode) error {
	return t.Log(ctx, Event{
		EventType: ModeChanged,
		Action:    string(to),
		Details:   map[string]interface{}{"previous": from},
		Success:   true,
	})
}

// Close flushes and closes the log file.
func (t *Trail) Close() error {
	return t.writer.Close()
}

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|secret|token|bearer|password)([=:\s]+)["']?([^\s"'&]+)`),
	regexp.MustCompile(`(bot)(\d+:)([A-Za-z0-9_-]{20,})`),
}

// MaskSecrets hides credential values that leak into error text, such as
// query parameters or Authorization headers echoed by a collaborator.
func MaskSecrets(s string) string {
	for _, p := range secretPatterns {
		s = p.ReplaceAllStringFunc(s, func(match string) string {
			m := p.FindStringSubmatch(match)
			return m[1] + m[2] + MaskCredential(m[3])
		})
	}
	return s
}

// MaskCredential keeps at most the first and last four characters.
func MaskCredential(value string) string {
	switch {
	case value == "":
		return ""
	case len(value) <= 4:
		return strings.Repeat("*", len(value))
	case len(value) <= 8:
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}
