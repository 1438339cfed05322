// Package types provides the value types shared by qcsweep commands:
// job statuses, per-command summaries and size parsing/formatting helpers.
package types

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Size constants for binary (IEC) units.
const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
	TiB int64 = 1024 * GiB
)

// JobStatus is the completion state of a Gaussian job as read from its log.
type JobStatus int

const (
	StatusUnknown JobStatus = iota
	StatusCompleted
	StatusError
	StatusPCMFailed
	StatusRunning
	StatusImaginary
)

// String returns the lowercase name of the status.
func (s JobStatus) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusError:
		return "error"
	case StatusPCMFailed:
		return "pcm_failed"
	case StatusRunning:
		return "running"
	case StatusImaginary:
		return "imaginary_freq"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so statuses render by name
// in JSON and YAML reports.
func (s JobStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CheckSummary is the outcome of a job-status check run.
type CheckSummary struct {
	TotalFiles    int           `json:"total_files" yaml:"total_files"`
	Processed     int           `json:"processed" yaml:"processed"`
	Matched       int           `json:"matched" yaml:"matched"`
	Moved         int           `json:"moved" yaml:"moved"`
	FailedMoves   int           `json:"failed_moves" yaml:"failed_moves"`
	Skipped       int           `json:"skipped" yaml:"skipped"`
	ExecutionTime time.Duration `json:"execution_time" yaml:"execution_time"`
	Errors        []string      `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// CoordSummary is the outcome of a coordinate extraction run.
type CoordSummary struct {
	TotalFiles    int           `json:"total_files" yaml:"total_files"`
	Extracted     int           `json:"extracted" yaml:"extracted"`
	Final         int           `json:"final" yaml:"final"`
	Running       int           `json:"running" yaml:"running"`
	Failed        int           `json:"failed" yaml:"failed"`
	Skipped       int           `json:"skipped" yaml:"skipped"`
	ExecutionTime time.Duration `json:"execution_time" yaml:"execution_time"`
}

// CreateSummary is the outcome of an input-deck generation run.
type CreateSummary struct {
	TotalFiles    int           `json:"total_files" yaml:"total_files"`
	Processed     int           `json:"processed" yaml:"processed"`
	Created       int           `json:"created" yaml:"created"`
	Failed        int           `json:"failed" yaml:"failed"`
	Skipped       int           `json:"skipped" yaml:"skipped"`
	ExecutionTime time.Duration `json:"execution_time" yaml:"execution_time"`
	Errors        []string      `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// ExtractSummary is the outcome of an energy extraction run.
type ExtractSummary struct {
	TotalFiles    int           `json:"total_files" yaml:"total_files"`
	Processed     int           `json:"processed" yaml:"processed"`
	Extracted     int           `json:"extracted" yaml:"extracted"`
	Failed        int           `json:"failed" yaml:"failed"`
	Skipped       int           `json:"skipped" yaml:"skipped"`
	ExecutionTime time.Duration `json:"execution_time" yaml:"execution_time"`
	Errors        []string      `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// sizePattern matches size strings like "100M", "2G", "500K", "1.5GB", "4gb".
var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([KMGT]?(?:i?B)?)\s*$`)

// ErrInvalidSize indicates that the size string could not be parsed.
var ErrInvalidSize = errors.New("invalid size format")

// ErrNegativeSize indicates that a negative size value was provided.
var ErrNegativeSize = errors.New("size cannot be negative")

// ParseSize parses a human-readable size string and returns the size in bytes.
// Bare numbers are bytes; K, M, G and T suffixes (optionally followed by B or
// iB, any case) are binary multiples.
func ParseSize(s string) (int64, error) {
	return ParseSizeUnit(s, 1)
}

// ParseSizeUnit is ParseSize with a caller-chosen unit for bare numbers.
// Schedulers disagree on this: Slurm reports plain megabytes while PBS
// reports plain bytes.
func ParseSizeUnit(s string, bareUnit int64) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidSize)
	}
	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeSize
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	suffix := strings.ToUpper(matches[2])
	explicitBytes := suffix == "B"
	suffix = strings.TrimSuffix(suffix, "IB")
	suffix = strings.TrimSuffix(suffix, "B")

	var multiplier int64
	switch suffix {
	case "":
		multiplier = bareUnit
		if explicitBytes {
			multiplier = 1
		}
	case "K":
		multiplier = KiB
	case "M":
		multiplier = MiB
	case "G":
		multiplier = GiB
	case "T":
		multiplier = TiB
	default:
		return 0, fmt.Errorf("%w: unknown suffix %q", ErrInvalidSize, suffix)
	}

	return int64(value * float64(multiplier)), nil
}

// FormatSize converts a size in bytes to a human-readable IEC string.
func FormatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

// FormatMB formats a size given in megabytes.
func FormatMB(mb uint64) string {
	return humanize.IBytes(mb * uint64(MiB))
}
