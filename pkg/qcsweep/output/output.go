// Package output renders command reports in the formats selectable with
// --output (pretty, plain, json, yaml, tsv, csv, markdown, template).
//
// Formatters are looked up in a registry:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, report); err != nil {
//	    return err
//	}
package output

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/qcsweep/pkg/qcsweep/logging"
)

var logger = logging.Get("output")

// ErrUnknownFormatter is returned by Get for an unregistered name.
var ErrUnknownFormatter = errors.New("unknown formatter")

// Field is a labelled value shown in a report header or summary.
type Field struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
}

// Report is the formatter-independent result of a command.
type Report struct {
	// Command is the name of the command that produced the report.
	Command string

	// Params describe how the run was configured (temperature, threads...).
	Params []Field

	// Columns are the table headers; every row has one cell per column.
	Columns []string

	// Rows hold the table cells as display strings.
	Rows [][]string

	// Summary holds totals shown after the table.
	Summary []Field

	Warnings    []string
	Errors      []string
	Interrupted bool
	Elapsed     time.Duration
}

// AddParam appends a header field.
func (r *Report) AddParam(label string, value interface{}) {
	r.Params = append(r.Params, Field{Label: label, Value: fmt.Sprint(value)})
}

// AddSummary appends a summary field.
func (r *Report) AddSummary(label string, value interface{}) {
	r.Summary = append(r.Summary, Field{Label: label, Value: fmt.Sprint(value)})
}

// Records returns the rows as column-keyed maps.
func (r *Report) Records() []map[string]string {
	out := make([]map[string]string, len(r.Rows))
	for i, row := range r.Rows {
		m := make(map[string]string, len(r.Columns))
		for j, col := range r.Columns {
			if j < len(row) {
				m[col] = row[j]
			}
		}
		out[i] = m
	}
	return out
}

// Formatter renders a report.
type Formatter interface {
	Format(w *bytes.Buffer, r *Report) error
}

// FormatterFactory creates a Formatter.
type FormatterFactory func() Formatter

// Registry maps formatter names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]FormatterFactory)}
}

// Register adds or replaces a formatter factory.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormatter, name)
	}
	return factory(), nil
}

// Available returns the registered names, sorted.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry holds the built-in formatters.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a formatter from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available lists the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}

// Render formats r with the named formatter.
func Render(name string, r *Report) ([]byte, error) {
	f, err := Get(name)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := f.Format(&buf, r); err != nil {
		return nil, fmt.Errorf("formatting %s output: %w", name, err)
	}
	logger.Debug("rendered report", "format", name, "command", r.Command, "rows", len(r.Rows))
	return buf.Bytes(), nil
}

// IsMachineReadable reports whether a format is meant for other programs,
// so progress and decoration should stay off stdout.
func IsMachineReadable(name string) bool {
	switch name {
	case "json", "yaml", "tsv", "csv":
		return true
	}
	return false
}
