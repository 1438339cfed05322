package types

import (
	"errors"
	"testing"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "plain bytes", input: "1024", want: 1024},
		{name: "zero", input: "0", want: 0},
		{name: "bytes with B suffix", input: "512B", want: 512},
		{name: "kilobytes", input: "100k", want: 100 * KiB},
		{name: "megabytes with iB", input: "50MiB", want: 50 * MiB},
		{name: "gigabytes lowercase gb", input: "4gb", want: 4 * GiB},
		{name: "terabytes", input: "1T", want: TiB},
		{name: "decimal truncated", input: "1.5G", want: 1610612736},
		{name: "whitespace", input: "  100M  ", want: 100 * MiB},
		{name: "empty", input: "", wantErr: true},
		{name: "invalid suffix", input: "100X", wantErr: true},
		{name: "negative", input: "-100M", wantErr: true},
		{name: "letters only", input: "abc", wantErr: true},
		{name: "suffix only", input: "M", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseSizeUnit(t *testing.T) {
	tests := []struct {
		name  string
		input string
		unit  int64
		want  int64
	}{
		{name: "bare number in MB", input: "4000", unit: MiB, want: 4000 * MiB},
		{name: "explicit bytes ignore unit", input: "512B", unit: MiB, want: 512},
		{name: "suffix overrides unit", input: "2G", unit: MiB, want: 2 * GiB},
		{name: "bare number in bytes", input: "2048", unit: 1, want: 2048},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSizeUnit(tt.input, tt.unit)
			if err != nil {
				t.Fatalf("ParseSizeUnit(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseSizeUnit(%q, %d) = %d, want %d", tt.input, tt.unit, got, tt.want)
			}
		})
	}
}

func TestParseSizeNegativeSentinel(t *testing.T) {
	_, err := ParseSize("-1")
	if !errors.Is(err, ErrNegativeSize) {
		t.Errorf("ParseSize(-1) error = %v, want ErrNegativeSize", err)
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		input int64
		want  string
	}{
		{0, "0 B"},
		{1024, "1.0 KiB"},
		{1536 * 1024, "1.5 MiB"},
		{-5, "0 B"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.input); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestJobStatusString(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   string
	}{
		{StatusCompleted, "completed"},
		{StatusError, "error"},
		{StatusPCMFailed, "pcm_failed"},
		{StatusRunning, "running"},
		{StatusImaginary, "imaginary_freq"},
		{StatusUnknown, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("JobStatus(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}
