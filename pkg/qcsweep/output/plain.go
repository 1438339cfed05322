package output

import (
	"bytes"
	"strings"
	"text/tabwriter"
)

// PlainFormatter writes an aligned table without colour, followed by the
// summary and any warnings and errors as plain lines.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Report) error {
	for _, p := range r.Params {
		w.WriteString(p.Label + ": " + p.Value + "\n")
	}
	if len(r.Params) > 0 {
		w.WriteString("\n")
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := tw.Write([]byte(strings.Join(r.Columns, "\t") + "\n")); err != nil {
		return err
	}
	for _, row := range r.Rows {
		if _, err := tw.Write([]byte(strings.Join(row, "\t") + "\n")); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Summary) > 0 {
		w.WriteString("\n")
		for _, s := range r.Summary {
			w.WriteString(s.Label + ": " + s.Value + "\n")
		}
	}
	if r.Interrupted {
		w.WriteString("interrupted: shutdown requested\n")
	}
	for _, warning := range r.Warnings {
		w.WriteString("warning: " + warning + "\n")
	}
	for _, e := range r.Errors {
		w.WriteString("error: " + e + "\n")
	}
	return nil
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

var _ Formatter = (*PlainFormatter)(nil)
