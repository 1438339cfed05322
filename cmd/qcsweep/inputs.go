package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/jamesainslie/qcsweep/pkg/qcsweep/discover"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/engine"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/gaussian"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/output"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/types"
)

// findInputs discovers the files a command processes. Oversized files
// become warnings. An interrupted search returns no files and marks the
// report interrupted.
func findInputs(ctx context.Context, ec *engine.Context, r *output.Report, dir string, exts []string, recursive bool) ([]string, error) {
	res, err := discover.Find(ctx, discover.Options{
		Dir:         dir,
		Extensions:  exts,
		MaxFileSize: ec.MaxFileSizeBytes(),
		Recursive:   recursive,
		Compressed:  true,
		Shutdown:    ec.Shutdown,
	})
	if errors.Is(err, discover.ErrInterrupted) {
		r.Interrupted = true
		r.Warnings = append(r.Warnings, "file discovery interrupted: "+ec.Shutdown.Reason())
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	for _, p := range res.Oversized {
		ec.Errors.AddWarning(fmt.Sprintf("%s: skipped: larger than %s", p, types.FormatSize(ec.MaxFileSizeBytes())))
	}
	printVerbose("found %d files in %s (%d oversized)", len(res.Files), dir, len(res.Oversized))
	return res.Paths(), nil
}

// finishReport copies run statistics and the error sink into r.
func finishReport(r *output.Report, ec *engine.Context, stats engine.Stats) {
	r.Warnings = append(r.Warnings, ec.Errors.Warnings()...)
	r.Errors = append(r.Errors, ec.Errors.Errors()...)
	r.Interrupted = r.Interrupted || stats.Interrupted
	r.Elapsed = stats.Elapsed
}

// parseLog reads one log, plain or compressed, to the end. Parser warnings
// go to the run's error sink.
func parseLog(ec *engine.Context, path string, opts gaussian.ParseOptions) (gaussian.Result, error) {
	rc, err := gaussian.Open(path)
	if err != nil {
		return gaussian.Result{}, err
	}
	defer rc.Close()

	res, warnings, err := gaussian.Parse(rc, filepath.Base(path), opts)
	for _, w := range warnings {
		ec.Errors.AddWarning(path + ": " + w)
	}
	return res, err
}
