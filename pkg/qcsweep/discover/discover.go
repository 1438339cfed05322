// Package discover finds the input files of a batch run.
package discover

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/qcsweep/pkg/qcsweep/logging"
)

var logger = logging.Get("discover")

// ErrInterrupted is returned when discovery stops on a shutdown request.
var ErrInterrupted = errors.New("discovery interrupted")

var errStop = errors.New("stop walk")

// compressedSuffixes are stripped before matching the extension, so
// "job.log.gz" matches ".log".
var compressedSuffixes = []string{".gz", ".zst"}

// Stopper reports a pending shutdown.
type Stopper interface {
	Requested() bool
}

// Options configures a search.
type Options struct {
	// Dir is the directory to search. Empty means ".".
	Dir string

	// Extensions are matched case-insensitively, e.g. ".log".
	Extensions []string

	// MaxFileSize excludes larger files when positive.
	MaxFileSize int64

	// Recursive descends into subdirectories, skipping hidden ones.
	Recursive bool

	// Compressed also matches .gz and .zst variants of each extension.
	Compressed bool

	// Shutdown stops the search early when raised.
	Shutdown Stopper
}

// File is a matched input file.
type File struct {
	Path string
	Size int64
}

// Result holds the matched files sorted by path.
type Result struct {
	Files     []File
	Oversized []string
}

// Paths returns the matched paths in order.
func (r Result) Paths() []string {
	out := make([]string, len(r.Files))
	for i, f := range r.Files {
		out[i] = f.Path
	}
	return out
}

// Find lists files matching opts.
func Find(ctx context.Context, opts Options) (Result, error) {
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	if len(opts.Extensions) == 0 {
		return Result{}, errors.New("no extensions to match")
	}

	info, err := os.Stat(dir)
	if err != nil {
		return Result{}, fmt.Errorf("reading %s: %w", dir, err)
	}
	if !info.IsDir() {
		return Result{}, fmt.Errorf("%s is not a directory", dir)
	}

	c := &collector{opts: opts}
	if opts.Recursive {
		err = c.walk(ctx, dir)
	} else {
		err = c.list(ctx, dir)
	}
	if err != nil {
		return Result{}, err
	}

	sort.Slice(c.res.Files, func(i, j int) bool { return c.res.Files[i].Path < c.res.Files[j].Path })
	sort.Strings(c.res.Oversized)

	logger.Debug("discovery finished",
		"dir", dir, "matched", len(c.res.Files), "oversized", len(c.res.Oversized), "recursive", opts.Recursive)
	return c.res, nil
}

type collector struct {
	opts Options
	mu   sync.Mutex
	res  Result
}

func (c *collector) stopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return c.opts.Shutdown != nil && c.opts.Shutdown.Requested()
}

func (c *collector) list(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}

	for _, e := range entries {
		if c.stopped(ctx) {
			return ErrInterrupted
		}
		if !e.Type().IsRegular() || !c.matches(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		c.add(joinClean(dir, e.Name()), info.Size())
	}
	return nil
}

func (c *collector) walk(ctx context.Context, root string) error {
	conf := fastwalk.Config{Follow: false}

	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if c.stopped(ctx) {
			return errStop
		}
		if err != nil {
			logger.Warn("walk error", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return fastwalk.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !c.matches(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		c.add(filepath.Clean(path), info.Size())
		return nil
	})

	if errors.Is(err, errStop) {
		return ErrInterrupted
	}
	if err != nil {
		return fmt.Errorf("walking %s: %w", root, err)
	}
	return nil
}

func (c *collector) add(path string, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opts.MaxFileSize > 0 && size > c.opts.MaxFileSize {
		c.res.Oversized = append(c.res.Oversized, path)
		return
	}
	c.res.Files = append(c.res.Files, File{Path: path, Size: size})
}

func (c *collector) matches(name string) bool {
	lower := strings.ToLower(name)
	if c.opts.Compressed {
		for _, s := range compressedSuffixes {
			if strings.HasSuffix(lower, s) {
				lower = strings.TrimSuffix(lower, s)
				break
			}
		}
	}
	return MatchExtension(lower, c.opts.Extensions)
}

// MatchExtension reports whether name ends in one of exts, ignoring case.
func MatchExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	for _, want := range exts {
		if ext == NormalizeExtension(want) {
			return true
		}
	}
	return false
}

// NormalizeExtension lowercases ext and ensures a leading dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func joinClean(dir, name string) string {
	if dir == "." {
		return name
	}
	return filepath.Join(dir, name)
}
