package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"macro-trader/internal/models"
)

// TerminalNotifier prints notifications as one-line summaries for an
// attended monitor session.
type TerminalNotifier struct {
	mu  sync.Mutex
	out io.Writer

	buy  *color.Color
	sell *color.Color
	hold *color.Color
	err  *color.Color
	dim  *color.Color
}

// NewTerminalNotifier writes to out. Colors are dropped when colorEnabled is
// false.
func NewTerminalNotifier(out io.Writer, colorEnabled bool) *TerminalNotifier {
	tn := &TerminalNotifier{
		out:  out,
		buy:  color.New(color.FgGreen, color.Bold),
		sell: color.New(color.FgRed, color.Bold),
		hold: color.New(color.FgYellow),
		err:  color.New(color.FgRed),
		dim:  color.New(color.Faint),
	}
	for _, c := range []*color.Color{tn.buy, tn.sell, tn.hold, tn.err, tn.dim} {
		if colorEnabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return tn
}

// Name returns the name of the notifier.
func (tn *TerminalNotifier) Name() string { return "terminal" }

// IsEnabled returns whether the notifier is enabled.
func (tn *TerminalNotifier) IsEnabled() bool { return tn.out != nil }

// Send prints the notification.
func (tn *TerminalNotifier) Send(ctx context.Context, n Notification) error {
	line := tn.Format(n)
	tn.mu.Lock()
	defer tn.mu.Unlock()
	_, err := fmt.Fprintln(tn.out, line)
	return err
}

// Format renders a notification on one line.
func (tn *TerminalNotifier) Format(n Notification) string {
	ts := tn.dim.Sprintf("[%s]", n.Timestamp.UTC().Format("15:04:05"))

	if n.Type == NotificationError {
		return fmt.Sprintf("%s %s %s", ts, tn.err.Sprint("ERROR"), strings.ReplaceAll(n.Message, "\n", " | "))
	}
	s := n.Signal
	if s == nil {
		return fmt.Sprintf("%s %s", ts, n.Title)
	}

	var side string
	switch s.Direction {
	case models.DirectionBuy:
		side = tn.buy.Sprint("BUY ")
	case models.DirectionSell:
		side = tn.sell.Sprint("SELL")
	default:
		side = tn.hold.Sprint("HOLD")
	}

	parts := []string{
		fmt.Sprintf("%s %s %s", ts, side, s.Symbol),
		fmt.Sprintf("%.2f lots", s.Volume),
		fmt.Sprintf("SL %.0f / TP %.0f", s.StopLossPips, s.TakeProfitPips),
		fmt.Sprintf("%.1f%%", s.ConfidencePct),
		s.EventName,
	}
	if s.OrderType == models.OrderTypeLimitPullback {
		parts = append(parts, fmt.Sprintf("limit %.5f", s.PriceHint))
	}
	if s.Status != "" {
		parts = append(parts, string(s.Status))
	}
	return strings.Join(parts, " | ")
}
