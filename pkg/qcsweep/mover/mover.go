// Package mover relocates finished Gaussian jobs into sorting
// directories. A job is its log plus sibling input and checkpoint files.
package mover

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jamesainslie/qcsweep/pkg/qcsweep/gaussian"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/logging"
)

var logger = logging.Get("mover")

// Move moves path into destDir, creating destDir when needed. An existing
// file of the same name is replaced. Moves across filesystems fall back
// to copy and remove.
func Move(path, destDir string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("cannot move %q: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("cannot move %q: not a regular file", path)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", destDir, err)
	}

	dest := filepath.Join(destDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		var linkErr *os.LinkError
		if !errors.As(err, &linkErr) || !crossDevice(linkErr.Err) {
			return "", fmt.Errorf("moving %q: %w", path, err)
		}
		if err := copyAndRemove(path, dest, info.Mode().Perm()); err != nil {
			return "", err
		}
	}
	return dest, nil
}

func copyAndRemove(src, dest string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dest + ".partial"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("copying %q: %w", src, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copying %q: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("copying %q: %w", src, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("copying %q: %w", src, err)
	}
	return os.Remove(src)
}

// MoveJob moves a log and its related files into destDir. The log is
// moved first; a failure there leaves the job untouched. Failures moving
// related files are returned joined after the rest were attempted.
func MoveJob(logPath, destDir string) ([]string, error) {
	related := gaussian.RelatedFiles(logPath)

	dest, err := Move(logPath, destDir)
	if err != nil {
		return nil, err
	}
	moved := []string{dest}

	var errs []error
	for _, p := range related {
		d, err := Move(p, destDir)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		moved = append(moved, d)
	}

	logger.Debug("moved job", "log", logPath, "dest", destDir, "files", len(moved))
	return moved, errors.Join(errs...)
}

// Destinations are the sorting directories of a check run.
type Destinations struct {
	Done      string
	Error     string
	PCM       string
	Imaginary string
}

// All returns every sorting directory.
func (d Destinations) All() []string {
	return []string{d.Done, d.Error, d.PCM, d.Imaginary}
}

// DefaultDestinations returns the directories inside dir: "<dir>-<doneSuffix>"
// for completed jobs, errorDir, pcmDir and "<dir>-<imagSuffix>" for jobs
// with an imaginary frequency.
func DefaultDestinations(dir, doneSuffix, errorDir, pcmDir, imagSuffix string) (Destinations, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Destinations{}, err
	}
	base := filepath.Base(abs)
	return Destinations{
		Done:      filepath.Join(abs, base+"-"+doneSuffix),
		Error:     filepath.Join(abs, errorDir),
		PCM:       filepath.Join(abs, pcmDir),
		Imaginary: filepath.Join(abs, base+"-"+imagSuffix),
	}, nil
}

// CoordDestinations returns the directories inside dir that receive
// coordinates of finished and unfinished jobs.
func CoordDestinations(dir string) (final, running string, err error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", "", err
	}
	base := filepath.Base(abs)
	return filepath.Join(abs, base+"_final_coord"), filepath.Join(abs, base+"_running_coord"), nil
}
