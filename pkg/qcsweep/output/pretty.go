package output

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PrettyFormatter renders a styled report for terminals.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Report) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")
	w.WriteString(f.formatTable(r))
	w.WriteString(f.formatFooter(r))
	w.WriteString("\n")

	if len(r.Warnings) > 0 {
		w.WriteString(formatList("Warnings:", r.Warnings, WarningStyle))
	}
	if len(r.Errors) > 0 {
		w.WriteString(formatList("Errors:", r.Errors, ErrorStyle))
	}
	return nil
}

func (f *PrettyFormatter) formatHeader(r *Report) string {
	lines := []string{TitleStyle.Render("qcsweep " + r.Command)}
	for _, p := range r.Params {
		lines = append(lines, fmt.Sprintf("%s %s", LabelStyle.Render(p.Label+":"), ValueStyle.Render(p.Value)))
	}
	if r.Interrupted {
		lines = append(lines, WarningStyle.Bold(true).Render("Run interrupted by shutdown request"))
	}
	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatTable(r *Report) string {
	if len(r.Rows) == 0 {
		return MutedStyle.Render("  No results") + "\n"
	}

	widths := columnWidths(r)
	numeric := numericColumns(r)

	var sb strings.Builder
	sb.WriteString(" ")
	for i, col := range r.Columns {
		sb.WriteString(" ")
		sb.WriteString(TableHeaderStyle.Render(pad(col, widths[i], numeric[i])))
	}
	sb.WriteString("\n")

	for _, row := range r.Rows {
		sb.WriteString(" ")
		for i := range r.Columns {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			style := TableCellStyle
			if s, ok := statusStyles[cell]; ok {
				style = s
			}
			sb.WriteString(" ")
			sb.WriteString(style.Render(pad(cell, widths[i], numeric[i])))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (f *PrettyFormatter) formatFooter(r *Report) string {
	var parts []string
	for _, s := range r.Summary {
		parts = append(parts, fmt.Sprintf("%s %s", LabelStyle.Render(s.Label+":"), ValueStyle.Render(s.Value)))
	}
	if r.Elapsed > 0 {
		parts = append(parts, fmt.Sprintf("%s %s", LabelStyle.Render("Time:"), ValueStyle.Render(formatDuration(r.Elapsed))))
	}
	parts = append(parts, MutedStyle.Render("Use -o plain for unformatted output"))
	return FooterBox.Render(strings.Join(parts, "  "))
}

func formatList(title string, items []string, style interface{ Render(...string) string }) string {
	var sb strings.Builder
	sb.WriteString(TitleStyle.Render(title))
	sb.WriteString("\n")
	for _, item := range items {
		sb.WriteString(style.Render("  " + item))
		sb.WriteString("\n")
	}
	return sb.String()
}

func columnWidths(r *Report) []int {
	widths := make([]int, len(r.Columns))
	for i, col := range r.Columns {
		widths[i] = len(col)
	}
	for _, row := range r.Rows {
		for i := range widths {
			if i < len(row) {
				widths[i] = max(widths[i], len(row[i]))
			}
		}
	}
	return widths
}

// numericColumns marks columns whose every non-empty cell is a number.
func numericColumns(r *Report) []bool {
	numeric := make([]bool, len(r.Columns))
	for i := range numeric {
		numeric[i] = len(r.Rows) > 0
		for _, row := range r.Rows {
			if i >= len(row) || row[i] == "" {
				continue
			}
			if _, err := strconv.ParseFloat(row[i], 64); err != nil {
				numeric[i] = false
				break
			}
		}
	}
	return numeric
}

func pad(s string, width int, right bool) string {
	if len(s) >= width {
		return s
	}
	fill := strings.Repeat(" ", width-len(s))
	if right {
		return fill + s
	}
	return s + fill
}

func formatDuration(d time.Duration) string {
	sec := d.Seconds()
	switch {
	case sec < 1:
		return fmt.Sprintf("%.0fms", sec*1000)
	case sec < 60:
		return fmt.Sprintf("%.1fs", sec)
	}
	minutes := int(sec) / 60
	seconds := int(sec) % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

var _ Formatter = (*PrettyFormatter)(nil)
