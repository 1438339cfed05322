package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/qcsweep/pkg/qcsweep/config"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/engine"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/gaussian"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/mover"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/output"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/shutdown"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/tuner"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/types"
)

var xyzCmd = &cobra.Command{
	Use:   "xyz [dir]",
	Short: "Write the last geometry of each Gaussian log as an XYZ file",
	Long: `Write the last standard (or input) orientation of every Gaussian log as an
XYZ file. Coordinates of finished jobs go to <dir>/<dir>_final_coord, those
of unfinished jobs to <dir>/<dir>_running_coord.

Each file is named after its job. When two logs share a job name, such as
a.log and a.out, the log's full name is kept: a.log.xyz and a.out.xyz.
Logs without a complete orientation block are skipped with a warning.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runXYZ,
}

func init() {
	rootCmd.AddCommand(xyzCmd)
}

func runXYZ(cmd *cobra.Command, args []string) error {
	dir := dirArg(args)
	return runCommand("extracting coordinates", func(ctrl *shutdown.Controller, opts ...engine.Option) (*output.Report, error) {
		ctx, cancel := ctrl.Context(cmd.Context())
		defer cancel()
		return xyzReport(ctx, cfg, dir, opts...)
	})
}

// xyzReport writes the final geometry of every log under dir.
func xyzReport(ctx context.Context, c *config.Config, dir string, opts ...engine.Option) (*output.Report, error) {
	finalDir, runningDir, err := mover.CoordDestinations(dir)
	if err != nil {
		return nil, err
	}

	ec, err := newEngine(c, tuner.WorkloadExtract, opts...)
	if err != nil {
		return nil, err
	}

	r := &output.Report{Command: "xyz"}
	found, err := findInputs(ctx, ec, r, dir, ec.Opts.Extensions, c.Recursive)
	if err != nil {
		return nil, err
	}
	paths := withoutDirs(found, finalDir, runningDir)
	names := xyzNames(paths)

	rows := make([][]string, len(paths))
	var final, running atomic.Int64
	stats := ec.Run(ctx, paths, func(_ context.Context, it engine.Item) error {
		g, err := readOrientation(it.Path)
		if errors.Is(err, gaussian.ErrNoOrientation) {
			return fmt.Errorf("%w: %v", engine.ErrSkipped, err)
		}
		if err != nil {
			return err
		}
		g.Comment = filepath.Base(gaussian.JobStem(it.Path))

		tail, err := gaussian.TailFile(it.Path, gaussian.StatusTailLines)
		if err != nil {
			return err
		}
		state, dest := gaussian.StateUndone, runningDir
		if finished(tail) {
			state, dest = gaussian.StateDone, finalDir
		}

		out := filepath.Join(dest, names[it.Index])
		if err := writeGeometry(out, g); err != nil {
			return err
		}
		if state == gaussian.StateDone {
			final.Add(1)
		} else {
			running.Add(1)
		}
		rows[it.Index] = []string{it.Path, string(state), strconv.Itoa(len(g.Atoms)),
			filepath.Join(filepath.Base(dest), names[it.Index])}
		return nil
	})

	r.AddParam("Directory", dir)
	r.AddParam("Final coordinates", finalDir)
	r.AddParam("Running coordinates", runningDir)
	r.AddParam("Workers", stats.Workers)

	r.Columns = []string{"File", "Status", "Atoms", "Output"}
	for _, row := range rows {
		if row != nil {
			r.Rows = append(r.Rows, row)
		}
	}

	summary := types.CoordSummary{
		TotalFiles:    stats.Total,
		Extracted:     int(final.Load() + running.Load()),
		Final:         int(final.Load()),
		Running:       int(running.Load()),
		Failed:        stats.Failed,
		Skipped:       stats.Skipped,
		ExecutionTime: stats.Elapsed,
	}
	r.AddSummary("Files", summary.TotalFiles)
	r.AddSummary("Extracted", summary.Extracted)
	r.AddSummary("Final", summary.Final)
	r.AddSummary("Running", summary.Running)
	r.AddSummary("Failed", summary.Failed)
	r.AddSummary("Skipped", summary.Skipped)
	r.AddSummary("Time", summary.ExecutionTime.Round(time.Millisecond).String())

	finishReport(r, ec, stats)
	return r, nil
}

func readOrientation(path string) (gaussian.Geometry, error) {
	rc, err := gaussian.Open(path)
	if err != nil {
		return gaussian.Geometry{}, err
	}
	defer rc.Close()
	return gaussian.LastOrientation(rc)
}

func finished(tail []string) bool {
	for _, l := range tail {
		if strings.Contains(l, "Normal termination") {
			return true
		}
	}
	return false
}

// writeGeometry writes g to path through a temporary file so a failed
// write never leaves a partial XYZ file behind.
func writeGeometry(path string, g gaussian.Geometry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gaussian.WriteXYZ(f, g); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

// xyzNames picks the output name of each log: "<job>.xyz", or
// "<file>.xyz" when two logs share a job name. Logs of the same file name
// found in different directories are prefixed with their directory.
func xyzNames(paths []string) []string {
	jobs := make(map[string]int, len(paths))
	for _, p := range paths {
		jobs[filepath.Base(gaussian.JobStem(p))]++
	}

	names := make([]string, len(paths))
	seen := make(map[string]int, len(paths))
	for i, p := range paths {
		job := filepath.Base(gaussian.JobStem(p))
		names[i] = job + ".xyz"
		if jobs[job] > 1 {
			names[i] = filepath.Base(p) + ".xyz"
		}
		seen[names[i]]++
	}
	for i, p := range paths {
		if seen[names[i]] > 1 {
			names[i] = filepath.Base(filepath.Dir(p)) + "_" + names[i]
		}
	}
	return names
}
