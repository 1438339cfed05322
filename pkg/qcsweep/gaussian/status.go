package gaussian

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jamesainslie/qcsweep/pkg/qcsweep/types"
)

// StatusTailLines is how many trailing lines a status check reads.
const StatusTailLines = 10

const pcmFailure = "failed in PCMMkU"

// Classification is the outcome of a job status check.
type Classification struct {
	Status types.JobStatus
	// Message is the last error line for StatusError, or the PCM marker.
	Message string
}

// ClassifyTail decides the status of a job from the last lines of its log.
// full is only read when the tail is inconclusive, to look for a PCM
// failure anywhere in the log; it may be nil.
//
// A job is completed when "Normal termination" appears in the tail. It
// failed when the tail has "Error" lines and none of them is an
// "Error on" line. Otherwise a PCMMkU failure anywhere marks it, and a
// job with no marker at all is still running.
func ClassifyTail(tail []string, full io.Reader) (Classification, error) {
	for _, l := range tail {
		if strings.Contains(l, "Normal termination") {
			return Classification{Status: types.StatusCompleted}, nil
		}
	}

	var lastErr string
	errorOn := false
	for _, l := range tail {
		if !strings.Contains(l, "Error") {
			continue
		}
		lastErr = strings.TrimSpace(l)
		if strings.Contains(l, "Error on") {
			errorOn = true
		}
	}
	if lastErr != "" && !errorOn {
		return Classification{Status: types.StatusError, Message: lastErr}, nil
	}

	for _, l := range tail {
		if strings.Contains(l, pcmFailure) {
			return Classification{Status: types.StatusPCMFailed, Message: pcmFailure}, nil
		}
	}
	if full != nil {
		found, err := containsLine(full, pcmFailure)
		if err != nil {
			return Classification{}, err
		}
		if found {
			return Classification{Status: types.StatusPCMFailed, Message: pcmFailure}, nil
		}
	}

	return Classification{Status: types.StatusRunning}, nil
}

func containsLine(r io.Reader, needle string) (bool, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if strings.Contains(sc.Text(), needle) {
			return true, nil
		}
	}
	return false, sc.Err()
}

// CheckFile classifies the job whose log is at path.
func CheckFile(path string) (Classification, error) {
	tail, err := TailFile(path, StatusTailLines)
	if err != nil {
		return Classification{}, err
	}

	rc, err := Open(path)
	if err != nil {
		return Classification{}, err
	}
	defer rc.Close()

	c, err := ClassifyTail(tail, rc)
	if err != nil {
		return Classification{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return c, nil
}

// ReadTail returns the last n lines of r.
func ReadTail(r io.Reader, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	ring := make([]string, 0, n)
	next := 0

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(ring) < n {
			ring = append(ring, sc.Text())
			continue
		}
		ring[next] = sc.Text()
		next = (next + 1) % n
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if len(ring) < n {
		return ring, nil
	}
	return append(ring[next:], ring[:next]...), nil
}

// tailChunk is the read size when seeking backwards through a log.
const tailChunk = 8 * 1024

// TailFile returns the last n lines of the log at path. Plain files are
// read backwards from the end; compressed logs are streamed.
func TailFile(path string, n int) ([]string, error) {
	if IsCompressed(path) {
		rc, err := Open(path)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return ReadTail(rc, n)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines, err := tailSeek(f, n)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return lines, nil
}

func tailSeek(f io.ReadSeeker, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}

	var buf []byte
	pos := size
	for pos > 0 && bytes.Count(buf, []byte{'\n'}) <= n {
		step := min(int64(tailChunk), pos)
		pos -= step
		chunk := make([]byte, step)
		if _, err := f.Seek(pos, io.SeekStart); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(f, chunk); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, err
		}
		buf = append(chunk, buf...)
	}

	text := strings.TrimRight(string(buf), "\n")
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// LowestFrequency returns the lowest vibrational frequency printed in a
// log, and false when the log has no frequencies.
func LowestFrequency(r io.Reader) (float64, bool, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lowest, found := 0.0, false
	for sc.Scan() {
		m := freqPattern.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		for _, f := range strings.Fields(m[1]) {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				continue
			}
			if !found || v < lowest {
				lowest, found = v, true
			}
		}
	}
	return lowest, found, sc.Err()
}

// CheckImaginary classifies the job at path as StatusImaginary when its
// lowest frequency is negative. Other jobs get their usual classification.
func CheckImaginary(path string) (Classification, error) {
	rc, err := Open(path)
	if err != nil {
		return Classification{}, err
	}
	lowest, found, err := LowestFrequency(rc)
	rc.Close()
	if err != nil {
		return Classification{}, fmt.Errorf("reading %s: %w", path, err)
	}

	if found && lowest < 0 {
		return Classification{
			Status:  types.StatusImaginary,
			Message: fmt.Sprintf("imaginary frequency %.4f", lowest),
		}, nil
	}
	return CheckFile(path)
}
