// Package cli wires the engine components into the trader command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"macro-trader/internal/models"
	"macro-trader/pkg/utils"
)

// Output writes command results either as indented JSON (--json) or as
// human text, colored only when stdout is a terminal.
type Output struct {
	w     io.Writer
	json  bool
	color bool
}

// NewOutput reads the --json flag of cmd.
func NewOutput(cmd *cobra.Command) *Output {
	asJSON, _ := cmd.Flags().GetBool("json")
	w := cmd.OutOrStdout()
	return &Output{w: w, json: asJSON, color: !asJSON && isTerminal(w)}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func (o *Output) IsJSON() bool       { return o.json }
func (o *Output) ColorEnabled() bool { return o.color }
func (o *Output) Writer() io.Writer  { return o.w }

// JSON encodes v with two-space indentation.
func (o *Output) JSON(v interface{}) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (o *Output) Println(args ...interface{})               { fmt.Fprintln(o.w, args...) }
func (o *Output) Printf(format string, args ...interface{}) { fmt.Fprintf(o.w, format, args...) }

// Status lines, one per call.
func (o *Output) Success(format string, args ...interface{}) { o.line(color.FgGreen, format, args...) }
func (o *Output) Error(format string, args ...interface{})   { o.line(color.FgRed, format, args...) }
func (o *Output) Warning(format string, args ...interface{}) { o.line(color.FgYellow, format, args...) }
func (o *Output) Info(format string, args ...interface{})    { o.line(color.FgCyan, format, args...) }
func (o *Output) Bold(format string, args ...interface{})    { o.line(color.Bold, format, args...) }
func (o *Output) Dim(format string, args ...interface{})     { o.line(color.Faint, format, args...) }

func (o *Output) line(attr color.Attribute, format string, args ...interface{}) {
	o.Println(o.paint(fmt.Sprintf(format, args...), attr))
}

// paint applies attrs when color is on. fatih/color's global NoColor is
// bypassed so that tests and pipes get plain text.
func (o *Output) paint(text string, attrs ...color.Attribute) string {
	c := color.New(attrs...)
	if o.color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c.Sprint(text)
}

// Inline colorizers for table cells.
func (o *Output) Green(text string) string    { return o.paint(text, color.FgGreen) }
func (o *Output) Red(text string) string      { return o.paint(text, color.FgRed) }
func (o *Output) Yellow(text string) string   { return o.paint(text, color.FgYellow) }
func (o *Output) Cyan(text string) string     { return o.paint(text, color.FgCyan) }
func (o *Output) BoldText(text string) string { return o.paint(text, color.Bold) }
func (o *Output) DimText(text string) string  { return o.paint(text, color.Faint) }

// FormatPnL colors realized or floating P&L by sign.
func (o *Output) FormatPnL(pnl float64) string {
	formatted := utils.FormatPnL(pnl)
	switch {
	case pnl > 0:
		return o.Green(formatted)
	case pnl < 0:
		return o.Red(formatted)
	}
	return formatted
}

// Direction colors a trade side.
func (o *Output) Direction(d models.Direction) string {
	switch d {
	case models.DirectionBuy:
		return o.Green("BUY")
	case models.DirectionSell:
		return o.Red("SELL")
	}
	return o.Yellow(string(d))
}

// Outcome colors a predicted outcome.
func (o *Output) Outcome(p models.PredictedOutcome) string {
	switch p {
	case models.OutcomeBeat:
		return o.Green("BEAT")
	case models.OutcomeMiss:
		return o.Red("MISS")
	}
	return o.Yellow(string(p))
}

// Status colors an execution status.
func (o *Output) Status(s models.ExecutionStatus) string {
	switch s {
	case models.StatusExecuted:
		return o.Green(string(s))
	case models.StatusBlocked, models.StatusFailed:
		return o.Red(string(s))
	case models.StatusSkipped, models.StatusNotImplemented:
		return o.Yellow(string(s))
	}
	return string(s)
}

// Table buffers rows and prints them in aligned columns. Widths ignore
// color escapes.
type Table struct {
	out     *Output
	headers []string
	rows    [][]string
}

// NewTable creates a table with the given column headers.
func NewTable(out *Output, headers ...string) *Table {
	return &Table{out: out, headers: headers}
}

// AddRow appends a row. Cells beyond the header count are dropped.
func (t *Table) AddRow(cells ...string) {
	if len(cells) > len(t.headers) {
		cells = cells[:len(t.headers)]
	}
	t.rows = append(t.rows, cells)
}

// Render prints the header, a rule and every row.
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}
	widths := make([]int, len(t.headers))
	for _, row := range append([][]string{t.headers}, t.rows...) {
		for i, cell := range row {
			widths[i] = max(widths[i], visibleLen(cell))
		}
	}

	header := make([]string, len(t.headers))
	rule := make([]string, len(t.headers))
	for i, h := range t.headers {
		header[i] = t.out.BoldText(pad(h, widths[i]))
		rule[i] = strings.Repeat("-", widths[i])
	}
	t.out.Println(strings.TrimRight(strings.Join(header, "  "), " "))
	t.out.Println(t.out.DimText(strings.Join(rule, "  ")))

	for _, row := range t.rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = pad(cell, widths[i])
		}
		t.out.Println(strings.TrimRight(strings.Join(cells, "  "), " "))
	}
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func visibleLen(s string) int { return len(ansiPattern.ReplaceAllString(s, "")) }

func pad(s string, width int) string {
	if n := width - visibleLen(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}

// Box frames content under a bold title.
func (o *Output) Box(title string, content []string) {
	inner := len(title)
	for _, line := range content {
		inner = max(inner, visibleLen(line))
	}
	rule := "+" + strings.Repeat("-", inner+2) + "+"

	o.Println(rule)
	o.Printf("| %s |\n", o.BoldText(pad(title, inner)))
	o.Println(rule)
	for _, line := range content {
		o.Printf("| %s |\n", pad(line, inner))
	}
	o.Println(rule)
}
