package gaussian

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/qcsweep/pkg/qcsweep/types"
)

func TestClassifyTail(t *testing.T) {
	tests := []struct {
		name    string
		tail    []string
		full    string
		want    types.JobStatus
		message string
	}{
		{
			name: "normal termination",
			tail: []string{" Job cpu time: 0 days", " Normal termination of Gaussian 16"},
			want: types.StatusCompleted,
		},
		{
			name:    "error termination",
			tail:    []string{" Error termination via Lnk1e in l9999.exe", " Error termination request processed by link 9999."},
			want:    types.StatusError,
			message: "Error termination request processed by link 9999.",
		},
		{
			name: "error on line is not a failure",
			tail: []string{" Error on total polarization charges =  0.01", " Error in something"},
			want: types.StatusRunning,
		},
		{
			name:    "pcm failure in full log",
			tail:    []string{" still going"},
			full:    "line\n Inv3 failed in PCMMkU.\nmore\n",
			want:    types.StatusPCMFailed,
			message: "failed in PCMMkU",
		},
		{
			name: "running",
			tail: []string{" Step number 4 out of a maximum of 300"},
			full: "nothing interesting\n",
			want: types.StatusRunning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ClassifyTail(tt.tail, strings.NewReader(tt.full))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.message, got.Message)
		})
	}
}

func TestClassifyTailNilFull(t *testing.T) {
	got, err := ClassifyTail([]string{"x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRunning, got.Status)
}

func writeLines(t *testing.T, path string, n int, last ...string) {
	t.Helper()
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	for _, l := range last {
		b.WriteString(l + "\n")
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func TestTailFile(t *testing.T) {
	dir := t.TempDir()

	long := filepath.Join(dir, "long.log")
	writeLines(t, long, 5000)
	lines, err := TailFile(long, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"line 4997", "line 4998", "line 4999"}, lines)

	short := filepath.Join(dir, "short.log")
	writeLines(t, short, 2)
	lines, err = TailFile(short, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"line 0", "line 1"}, lines)

	empty := filepath.Join(dir, "empty.log")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	lines, err = TailFile(empty, 10)
	require.NoError(t, err)
	assert.Empty(t, lines)

	_, err = TailFile(filepath.Join(dir, "missing.log"), 10)
	assert.Error(t, err)
}

func TestReadTail(t *testing.T) {
	lines, err := ReadTail(strings.NewReader("a\nb\nc\nd\n"), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, lines)

	lines, err = ReadTail(strings.NewReader("a\n"), 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, lines)
}

func TestCheckFile(t *testing.T) {
	dir := t.TempDir()

	done := filepath.Join(dir, "done.log")
	writeLines(t, done, 50, " Normal termination of Gaussian 16")
	c, err := CheckFile(done)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, c.Status)

	pcm := filepath.Join(dir, "pcm.log")
	writeLines(t, pcm, 5, " failed in PCMMkU")
	for i := 0; i < 20; i++ {
		f, err := os.OpenFile(pcm, os.O_APPEND|os.O_WRONLY, 0)
		require.NoError(t, err)
		_, err = f.WriteString("padding\n")
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	c, err = CheckFile(pcm)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPCMFailed, c.Status)
}

func TestRelatedFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"mol.log", "mol.gau", "mol.chk", "other.gau"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	got := RelatedFiles(filepath.Join(dir, "mol.log"))
	assert.Equal(t, []string{filepath.Join(dir, "mol.gau"), filepath.Join(dir, "mol.chk")}, got)

	assert.Equal(t, filepath.Join(dir, "mol"), JobStem(filepath.Join(dir, "mol.log.gz")))
}

func TestLowestFrequency(t *testing.T) {
	log := " Frequencies --   120.5  -45.1  300.0\n Frequencies --   -12.0  500.0  600.0\n"
	v, found, err := LowestFrequency(strings.NewReader(log))
	require.NoError(t, err)
	assert.True(t, found)
	assert.InDelta(t, -45.1, v, 1e-9)

	_, found, err = LowestFrequency(strings.NewReader(" SCF Done\n"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCheckImaginary(t *testing.T) {
	dir := t.TempDir()

	ts := filepath.Join(dir, "ts.log")
	writeLines(t, ts, 3, " Frequencies --   -410.2310   35.1000   80.0000", " Normal termination of Gaussian 16")
	c, err := CheckImaginary(ts)
	require.NoError(t, err)
	assert.Equal(t, types.StatusImaginary, c.Status)
	assert.Equal(t, "imaginary frequency -410.2310", c.Message)

	minimum := filepath.Join(dir, "min.log")
	writeLines(t, minimum, 3, " Frequencies --   35.1000   80.0000   90.0000", " Normal termination of Gaussian 16")
	c, err = CheckImaginary(minimum)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, c.Status)
}
