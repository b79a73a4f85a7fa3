package utils

import (
	"fmt"
	"strings"
	"time"
)

// FormatMoney formats an account-currency amount with thousands separators.
func FormatMoney(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}
	str := fmt.Sprintf("%.2f", amount)
	intPart, decPart, _ := strings.Cut(str, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	result := "$" + b.String() + "." + decPart
	if negative {
		result = "-" + result
	}
	return result
}

// FormatPnL formats P&L with an explicit sign.
func FormatPnL(pnl float64) string {
	formatted := FormatMoney(pnl)
	if pnl > 0 {
		return "+" + formatted
	}
	return formatted
}

// FormatPips formats a pip distance.
func FormatPips(pips float64) string {
	return fmt.Sprintf("%.1f pips", pips)
}

// FormatLots formats a position size.
func FormatLots(lots float64) string {
	return fmt.Sprintf("%.2f lots", lots)
}

// FormatCountdown renders the time left until t, e.g. "2h05m" or "overdue".
func FormatCountdown(now, t time.Time) string {
	d := t.Sub(now)
	if d < 0 {
		return "overdue"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
