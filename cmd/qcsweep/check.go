package main

import (
	"context"
	"fmt"
	"path/filepath"
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

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Classify jobs and sort them into directories",
	Long: `Classify Gaussian jobs from the end of their logs and move each matching
job (the log plus its .gau, .gjf, .com, .chk and .fchk files) into a
directory next to the others:

  done    completed jobs             -> <dir>/<dir>-done
  errors  failed jobs                -> <dir>/errorJobs
  pcm     PCMMkU failures            -> <dir>/PCMMkU
  all     done, errors and pcm
  imode   imaginary lowest frequency -> <dir>/<dir>-imaginary_freqs

Jobs that are still running are left in place.`,
}

// checkMode is one check subcommand.
type checkMode struct {
	use     string
	short   string
	targets []types.JobStatus
	// classify defaults to gaussian.CheckFile.
	classify func(path string) (gaussian.Classification, error)
}

var checkModes = []checkMode{
	{use: "done", short: "Move completed jobs", targets: []types.JobStatus{types.StatusCompleted}},
	{use: "errors", short: "Move failed jobs", targets: []types.JobStatus{types.StatusError}},
	{use: "pcm", short: "Move jobs that failed in PCMMkU", targets: []types.JobStatus{types.StatusPCMFailed}},
	{use: "all", short: "Move completed, failed and PCMMkU jobs",
		targets: []types.JobStatus{types.StatusCompleted, types.StatusError, types.StatusPCMFailed}},
	{use: "imode", short: "Move jobs with an imaginary lowest frequency",
		targets: []types.JobStatus{types.StatusImaginary}, classify: gaussian.CheckImaginary},
}

func init() {
	checkCmd.PersistentFlags().Bool("dry-run", false, "show what would be moved without moving")
	_ = vip.BindPFlag("check.dry_run", checkCmd.PersistentFlags().Lookup("dry-run"))

	for _, m := range checkModes {
		checkCmd.AddCommand(&cobra.Command{
			Use:   m.use + " [dir]",
			Short: m.short,
			Args:  cobra.MaximumNArgs(1),
			RunE:  checkRunner(m),
		})
	}
	rootCmd.AddCommand(checkCmd)
}

func checkRunner(m checkMode) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		dir := dirArg(args)
		return runCommand("checking", func(ctrl *shutdown.Controller, opts ...engine.Option) (*output.Report, error) {
			ctx, cancel := ctrl.Context(cmd.Context())
			defer cancel()
			return checkReport(ctx, cfg, dir, m, opts...)
		})
	}
}

// checkReport classifies every log under dir and moves the jobs whose
// status is one of m's targets.
func checkReport(ctx context.Context, c *config.Config, dir string, m checkMode, opts ...engine.Option) (*output.Report, error) {
	dests, err := mover.DefaultDestinations(dir, c.Check.DoneSuffix, c.Check.ErrorSuffix, c.Check.PCMSuffix, c.Check.ImagSuffix)
	if err != nil {
		return nil, err
	}
	destFor := map[types.JobStatus]string{
		types.StatusCompleted: dests.Done,
		types.StatusError:     dests.Error,
		types.StatusPCMFailed: dests.PCM,
		types.StatusImaginary: dests.Imaginary,
	}
	classify := m.classify
	if classify == nil {
		classify = gaussian.CheckFile
	}
	targets := make(map[types.JobStatus]bool, len(m.targets))
	for _, s := range m.targets {
		targets[s] = true
	}

	ec, err := newEngine(c, tuner.WorkloadCheck, opts...)
	if err != nil {
		return nil, err
	}

	r := &output.Report{Command: "check " + m.use}
	found, err := findInputs(ctx, ec, r, dir, ec.Opts.Extensions, c.Recursive)
	if err != nil {
		return nil, err
	}
	paths := withoutDirs(found, dests.All()...)

	rows := make([][]string, len(paths))
	var matched, moved, failedMoves atomic.Int64
	stats := ec.Run(ctx, paths, func(_ context.Context, it engine.Item) error {
		cls, err := classify(it.Path)
		if err != nil {
			return err
		}

		action := "none"
		if targets[cls.Status] {
			matched.Add(1)
			dest := destFor[cls.Status]
			if c.Check.DryRun {
				action = "would move to " + filepath.Base(dest)
			} else {
				files, err := mover.MoveJob(it.Path, dest)
				if err != nil {
					failedMoves.Add(1)
					rows[it.Index] = []string{it.Path, cls.Status.String(), "move failed", cls.Message}
					return fmt.Errorf("moving job: %w", err)
				}
				moved.Add(1)
				action = fmt.Sprintf("moved %d files to %s", len(files), filepath.Base(dest))
			}
		}
		rows[it.Index] = []string{it.Path, cls.Status.String(), action, cls.Message}
		return nil
	})

	r.AddParam("Directory", dir)
	r.AddParam("Mode", m.use)
	r.AddParam("Dry run", c.Check.DryRun)
	r.AddParam("Workers", stats.Workers)

	r.Columns = []string{"File", "Status", "Action", "Message"}
	for _, row := range rows {
		if row != nil {
			r.Rows = append(r.Rows, row)
		}
	}

	summary := types.CheckSummary{
		TotalFiles:    stats.Total,
		Processed:     stats.Processed,
		Matched:       int(matched.Load()),
		Moved:         int(moved.Load()),
		FailedMoves:   int(failedMoves.Load()),
		Skipped:       stats.Skipped,
		ExecutionTime: stats.Elapsed,
	}
	r.AddSummary("Files", summary.TotalFiles)
	r.AddSummary("Matched", summary.Matched)
	r.AddSummary("Moved", summary.Moved)
	r.AddSummary("Failed moves", summary.FailedMoves)
	r.AddSummary("Skipped", summary.Skipped)
	r.AddSummary("Time", summary.ExecutionTime.Round(time.Millisecond).String())

	finishReport(r, ec, stats)
	return r, nil
}

// withoutDirs drops logs that already sit in one of dirs, which a
// recursive search would otherwise pick up again.
func withoutDirs(paths []string, dirs ...string) []string {
	out := paths[:0:0]
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			out = append(out, p)
			continue
		}
		inside := false
		for _, dir := range dirs {
			if strings.HasPrefix(abs, dir+string(filepath.Separator)) {
				inside = true
				break
			}
		}
		if !inside {
			out = append(out, p)
		}
	}
	return out
}
