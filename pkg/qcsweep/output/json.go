package output

import (
	"bytes"
	"encoding/json"
)

// document is the structure shared by the JSON and YAML formatters.
type document struct {
	Command     string              `json:"command" yaml:"command"`
	Params      []Field             `json:"params,omitempty" yaml:"params,omitempty"`
	Columns     []string            `json:"columns" yaml:"columns"`
	Rows        []map[string]string `json:"rows" yaml:"rows"`
	Summary     []Field             `json:"summary,omitempty" yaml:"summary,omitempty"`
	Warnings    []string            `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Errors      []string            `json:"errors,omitempty" yaml:"errors,omitempty"`
	Interrupted bool                `json:"interrupted" yaml:"interrupted"`
	Elapsed     string              `json:"elapsed,omitempty" yaml:"elapsed,omitempty"`
}

func buildDocument(r *Report) document {
	d := document{
		Command:     r.Command,
		Params:      r.Params,
		Columns:     r.Columns,
		Rows:        r.Records(),
		Summary:     r.Summary,
		Warnings:    r.Warnings,
		Errors:      r.Errors,
		Interrupted: r.Interrupted,
	}
	if r.Elapsed > 0 {
		d.Elapsed = r.Elapsed.String()
	}
	if d.Columns == nil {
		d.Columns = []string{}
	}
	return d
}

// JSONFormatter writes the report as one indented JSON object.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(buildDocument(r))
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

var _ Formatter = (*JSONFormatter)(nil)
