// Package errsink collects warnings and errors reported by concurrent
// workers. Records are kept in append order and never deduplicated.
package errsink

import (
	"fmt"
	"sync"
)

// Severity classifies a record.
type Severity int

const (
	Warning Severity = iota
	Error
)

// String returns "warning" or "error".
func (s Severity) String() string {
	if s == Error {
		return "error"
	}
	return "warning"
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Record is one reported message.
type Record struct {
	Message  string   `json:"message" yaml:"message"`
	Severity Severity `json:"severity" yaml:"severity"`
}

// Sink is safe for concurrent use. The zero value is ready to use.
type Sink struct {
	mu      sync.Mutex
	records []Record
	errors  int
}

// New returns an empty sink.
func New() *Sink {
	return &Sink{}
}

// AddWarning records a warning.
func (s *Sink) AddWarning(msg string) { s.add(Record{Message: msg, Severity: Warning}) }

// AddError records an error.
func (s *Sink) AddError(msg string) { s.add(Record{Message: msg, Severity: Error}) }

// Warningf records a formatted warning.
func (s *Sink) Warningf(format string, args ...interface{}) {
	s.AddWarning(fmt.Sprintf(format, args...))
}

// Errorf records a formatted error.
func (s *Sink) Errorf(format string, args ...interface{}) {
	s.AddError(fmt.Sprintf(format, args...))
}

func (s *Sink) add(r Record) {
	s.mu.Lock()
	s.records = append(s.records, r)
	if r.Severity == Error {
		s.errors++
	}
	s.mu.Unlock()
}

// Snapshot returns a copy of all records in append order.
func (s *Sink) Snapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Errors returns the messages of all error records.
func (s *Sink) Errors() []string { return s.messages(Error) }

// Warnings returns the messages of all warning records.
func (s *Sink) Warnings() []string { return s.messages(Warning) }

func (s *Sink) messages(sev Severity) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for _, r := range s.records {
		if r.Severity == sev {
			out = append(out, r.Message)
		}
	}
	return out
}

// HasErrors reports whether any error was recorded. Warnings do not count.
func (s *Sink) HasErrors() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errors > 0
}

// Len returns the total number of records.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
