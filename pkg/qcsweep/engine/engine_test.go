package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/qcsweep/pkg/qcsweep/budget"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/cluster"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/handles"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/shutdown"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/tuner"
)

func fixedHost(cpus int) DetectFunc {
	return func() (tuner.SystemResources, error) {
		return tuner.SystemResources{CPUCores: cpus, TotalRAM: 16 << 30, AvailableRAM: 8 << 30}, nil
	}
}

func newTestContext(t *testing.T, opts Options, extra ...Option) *Context {
	t.Helper()
	base := []Option{
		WithEnvironment(cluster.MapEnvironment{}),
		WithDetector(fixedHost(4)),
	}
	c, err := New(opts, append(base, extra...)...)
	require.NoError(t, err)
	return c
}

func makeFiles(t *testing.T, n, size int) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, n)
	for i := range paths {
		paths[i] = filepath.Join(dir, fmt.Sprintf("job%03d.log", i))
		require.NoError(t, os.WriteFile(paths[i], []byte(strings.Repeat("x", size)), 0o644))
	}
	return paths
}

func TestNewRejectsNegativeOptions(t *testing.T) {
	tests := []Options{
		{RequestedThreads: -1},
		{MaxFileSizeMB: -5},
		{MaxHandles: -1},
		{HandleMargin: -1},
		{AcquireRetries: -2},
		{RateLimit: -1},
	}
	for _, opts := range tests {
		_, err := New(opts, WithEnvironment(cluster.MapEnvironment{}), WithDetector(fixedHost(4)))
		assert.ErrorIs(t, err, ErrInvalidOptions, "%+v", opts)
	}
}

func TestNewDefaults(t *testing.T) {
	c := newTestContext(t, Options{})

	assert.Equal(t, DefaultMaxHandles, c.Opts.MaxHandles)
	assert.Equal(t, DefaultAcquireRetries, c.Opts.AcquireRetries)
	assert.Equal(t, tuner.WorkloadCheck, c.Opts.Workload)
	assert.Len(t, c.RunID, 36)
	assert.Equal(t, cluster.None, c.Grant.Scheduler)
	assert.NotNil(t, c.Errors)
	assert.NotNil(t, c.Shutdown)
}

func TestNewToleratesDetectionFailure(t *testing.T) {
	c, err := New(Options{},
		WithEnvironment(cluster.MapEnvironment{}),
		WithDetector(func() (tuner.SystemResources, error) {
			return tuner.SystemResources{CPUCores: 2}, tuner.ErrNoSystemInfo
		}))
	require.NoError(t, err)
	assert.Equal(t, uint64(tuner.DefaultMemoryMB), c.MemoryLimitMB())
	assert.Equal(t, 2, c.PlanWorkers(10))
}

func TestPlanWorkersWithoutScheduler(t *testing.T) {
	c, err := New(Options{}, WithEnvironment(cluster.MapEnvironment{}), WithDetector(fixedHost(8)))
	require.NoError(t, err)

	assert.Equal(t, cluster.None, c.Grant.Scheduler)
	assert.Zero(t, c.Grant.AllocatedCPUs)
	assert.Zero(t, c.Grant.AllocatedMemoryMB)
	assert.Equal(t, 8, c.PlanWorkers(100))
	assert.Equal(t, 3, c.PlanWorkers(3))
	assert.Equal(t, 1, c.PlanWorkers(0))
}

func TestPlanWorkersMemoryCeiling(t *testing.T) {
	c, err := New(Options{MemoryLimitMB: 1024, Workload: tuner.WorkloadExtract},
		WithEnvironment(cluster.MapEnvironment{}), WithDetector(fixedHost(16)))
	require.NoError(t, err)

	// 1024 MB / 256 MB per extraction worker.
	assert.Equal(t, 4, c.PlanWorkers(100))
}

func TestPlanWorkersHonoursGrant(t *testing.T) {
	env := cluster.MapEnvironment{
		"SLURM_JOB_ID":        "77",
		"SLURM_CPUS_PER_TASK": "2",
		"SLURM_MEM_PER_NODE":  "2048",
	}
	c, err := New(Options{RequestedThreads: 12}, WithEnvironment(env), WithDetector(fixedHost(32)))
	require.NoError(t, err)

	assert.Equal(t, cluster.Slurm, c.Grant.Scheduler)
	assert.Equal(t, 2, c.PlanWorkers(100))
	assert.LessOrEqual(t, c.MemoryLimitMB(), uint64(2048*95/100))
}

func TestRunProcessesEveryItem(t *testing.T) {
	paths := makeFiles(t, 25, 128)

	var calls atomic.Int64
	var progress atomic.Int64
	c := newTestContext(t, Options{}, WithProgress(func(done, total int) {
		progress.Add(1)
		assert.Equal(t, 25, total)
	}))

	stats := c.Run(context.Background(), paths, func(ctx context.Context, it Item) error {
		calls.Add(1)
		assert.Equal(t, paths[it.Index], it.Path)
		assert.Equal(t, int64(128), it.Size)
		return nil
	})

	assert.Equal(t, 25, stats.Total)
	assert.Equal(t, 25, stats.Processed)
	assert.Zero(t, stats.Failed)
	assert.Zero(t, stats.Skipped)
	assert.False(t, stats.Interrupted)
	assert.Equal(t, c.RunID, stats.RunID)
	assert.Equal(t, int64(25), calls.Load())
	assert.Equal(t, int64(25), progress.Load())
	assert.Zero(t, c.Errors.Len())

	assert.Zero(t, c.Memory.Usage(), "memory reservations leaked")
	assert.Zero(t, c.Handles.InUse(), "handle permits leaked")
	assert.GreaterOrEqual(t, stats.PeakMemory, uint64(128))
}

func TestRunEmpty(t *testing.T) {
	c := newTestContext(t, Options{})
	stats := c.Run(context.Background(), nil, func(context.Context, Item) error { return nil })
	assert.Zero(t, stats.Total)
	assert.Equal(t, 1, stats.Workers)
}

func TestRunBoundsConcurrency(t *testing.T) {
	paths := makeFiles(t, 40, 1)
	c := newTestContext(t, Options{RequestedThreads: 3})

	var cur, peak atomic.Int64
	stats := c.Run(context.Background(), paths, func(context.Context, Item) error {
		n := cur.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		cur.Add(-1)
		return nil
	})

	assert.Equal(t, 3, stats.Workers)
	assert.Equal(t, 40, stats.Processed)
	assert.LessOrEqual(t, peak.Load(), int64(3))
}

func TestRunRecordsErrors(t *testing.T) {
	paths := makeFiles(t, 10, 1)
	c := newTestContext(t, Options{})

	stats := c.Run(context.Background(), paths, func(_ context.Context, it Item) error {
		if it.Index%2 == 1 {
			return errors.New("boom")
		}
		return nil
	})

	assert.Equal(t, 5, stats.Processed)
	assert.Equal(t, 5, stats.Failed)
	assert.True(t, c.Errors.HasErrors())

	errs := c.Errors.Errors()
	require.Len(t, errs, 5)
	assert.Equal(t, paths[1]+": boom", errs[0])
	assert.Zero(t, c.Memory.Usage())
	assert.Zero(t, c.Handles.InUse())
}

func TestRunMissingFileIsError(t *testing.T) {
	paths := append(makeFiles(t, 1, 1), filepath.Join(t.TempDir(), "gone.log"))
	c := newTestContext(t, Options{})

	stats := c.Run(context.Background(), paths, func(context.Context, Item) error { return nil })

	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Failed)
	require.Len(t, c.Errors.Errors(), 1)
	assert.Contains(t, c.Errors.Errors()[0], "gone.log")
}

func TestRunContainsPanics(t *testing.T) {
	paths := makeFiles(t, 6, 1)
	c := newTestContext(t, Options{})

	stats := c.Run(context.Background(), paths, func(_ context.Context, it Item) error {
		if it.Index == 2 {
			panic("bad geometry")
		}
		return nil
	})

	assert.Equal(t, 5, stats.Processed)
	assert.Equal(t, 1, stats.Failed)
	require.Len(t, c.Errors.Errors(), 1)
	assert.Contains(t, c.Errors.Errors()[0], paths[2])
	assert.Contains(t, c.Errors.Errors()[0], "bad geometry")
	assert.Zero(t, c.Handles.InUse(), "permit not released after panic")
	assert.Zero(t, c.Memory.Usage(), "reservation not released after panic")
}

func TestRunSkipsWithoutHandle(t *testing.T) {
	paths := makeFiles(t, 4, 1)
	gov := handles.NewGovernor(1)
	held, ok := gov.TryAcquire()
	require.True(t, ok)
	defer held.Release()

	c := newTestContext(t, Options{AcquireRetries: 1}, WithHandles(gov))

	var calls atomic.Int64
	stats := c.Run(context.Background(), paths, func(context.Context, Item) error {
		calls.Add(1)
		return nil
	})

	assert.Zero(t, calls.Load())
	assert.Equal(t, 4, stats.Skipped)
	assert.False(t, stats.Interrupted)
	assert.Len(t, c.Errors.Warnings(), 4)
	assert.Contains(t, c.Errors.Warnings()[0], "no file handle available")
	assert.False(t, c.Errors.HasErrors(), "skips must not count as errors")
}

func TestRunSkipsOverMemoryLimit(t *testing.T) {
	dir := t.TempDir()
	small := filepath.Join(dir, "small.log")
	big := filepath.Join(dir, "big.log")
	require.NoError(t, os.WriteFile(small, make([]byte, 100), 0o644))
	require.NoError(t, os.WriteFile(big, make([]byte, 5000), 0o644))

	c := newTestContext(t, Options{})
	c.Memory = budget.NewMonitor(1000)

	stats := c.Run(context.Background(), []string{small, big}, func(context.Context, Item) error { return nil })

	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Skipped)
	require.Len(t, c.Errors.Warnings(), 1)
	assert.Contains(t, c.Errors.Warnings()[0], big)
	assert.Contains(t, c.Errors.Warnings()[0], "memory limit")
	assert.Zero(t, c.Memory.Usage())
}

func TestRunStopsDispatchOnShutdown(t *testing.T) {
	paths := makeFiles(t, 60, 1)
	ctrl := shutdown.New()
	c := newTestContext(t, Options{RequestedThreads: 2}, WithShutdown(ctrl))

	var started, finished atomic.Int64
	stats := c.Run(context.Background(), paths, func(context.Context, Item) error {
		if started.Add(1) == 5 {
			ctrl.Trigger("test")
		}
		time.Sleep(10 * time.Millisecond)
		finished.Add(1)
		return nil
	})

	assert.True(t, stats.Interrupted)
	assert.Equal(t, started.Load(), finished.Load(), "dispatched items must complete")
	assert.Equal(t, int(finished.Load()), stats.Processed, "completed items are recorded")
	assert.GreaterOrEqual(t, stats.Processed, 5)
	assert.LessOrEqual(t, stats.Processed, 5+2)
	assert.Equal(t, stats.Total, stats.Processed+stats.Failed+stats.Skipped)
	assert.False(t, c.Errors.HasErrors())

	warnings := c.Errors.Warnings()
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[len(warnings)-1], "after shutdown request: test")
}

func TestRunAfterShutdownSkipsEverything(t *testing.T) {
	paths := makeFiles(t, 5, 1)
	ctrl := shutdown.New()
	ctrl.Trigger("early")
	c := newTestContext(t, Options{}, WithShutdown(ctrl))

	stats := c.Run(context.Background(), paths, func(context.Context, Item) error {
		t.Error("no item should run")
		return nil
	})

	assert.Equal(t, 5, stats.Skipped)
	assert.True(t, stats.Interrupted)
}

func TestRunItemSkip(t *testing.T) {
	paths := makeFiles(t, 3, 1)
	c := newTestContext(t, Options{})

	stats := c.Run(context.Background(), paths, func(_ context.Context, it Item) error {
		if it.Index == 1 {
			return fmt.Errorf("%w: output exists", ErrSkipped)
		}
		return nil
	})

	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Skipped)
	assert.False(t, stats.Interrupted)
	assert.Equal(t, []string{paths[1] + ": skipped: output exists"}, c.Errors.Warnings())
	assert.False(t, c.Errors.HasErrors())
}

func TestRunBareSkipHasNoReason(t *testing.T) {
	paths := makeFiles(t, 1, 1)
	c := newTestContext(t, Options{})

	stats := c.Run(context.Background(), paths, func(context.Context, Item) error {
		return ErrSkipped
	})

	assert.Equal(t, 1, stats.Skipped)
	assert.False(t, stats.Interrupted)
	assert.Equal(t, []string{paths[0] + ": skipped"}, c.Errors.Warnings())
}

func TestRunCancelledContextNamesReason(t *testing.T) {
	paths := makeFiles(t, 3, 1)
	c := newTestContext(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats := c.Run(ctx, paths, func(context.Context, Item) error {
		t.Error("no item should run")
		return nil
	})

	assert.Equal(t, 3, stats.Skipped)
	assert.True(t, stats.Interrupted)
	assert.False(t, c.Shutdown.Requested())
	require.Len(t, c.Errors.Warnings(), 1)
	assert.Equal(t, "3 items skipped after shutdown request: context canceled", c.Errors.Warnings()[0])
}

func TestRunRecordsItemInFlightAtShutdown(t *testing.T) {
	paths := makeFiles(t, 3, 1)
	ctrl := shutdown.New()
	c := newTestContext(t, Options{RequestedThreads: 1}, WithShutdown(ctrl))

	results := make([]string, len(paths))
	stats := c.Run(context.Background(), paths, func(_ context.Context, it Item) error {
		ctrl.Trigger("interrupt")
		time.Sleep(5 * time.Millisecond)
		results[it.Index] = "parsed"
		return nil
	})

	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 2, stats.Skipped)
	assert.True(t, stats.Interrupted)
	assert.Equal(t, "parsed", results[0])
	assert.False(t, c.Errors.HasErrors())
}

func TestReservationChargesCompressedLogs(t *testing.T) {
	assert.Equal(t, uint64(100), reservation("a.log", 100))
	assert.Equal(t, uint64(100*compressedRatio), reservation("a.log.gz", 100))
	assert.Equal(t, uint64(100*compressedRatio), reservation("a.LOG.ZST", 100))
	assert.Zero(t, reservation("a.log", -1))

	dir := t.TempDir()
	plain := filepath.Join(dir, "plain.log")
	packed := filepath.Join(dir, "packed.log.gz")
	require.NoError(t, os.WriteFile(plain, make([]byte, 200), 0o644))
	require.NoError(t, os.WriteFile(packed, make([]byte, 200), 0o644))

	c := newTestContext(t, Options{})
	c.Memory = budget.NewMonitor(1000)

	stats := c.Run(context.Background(), []string{plain, packed}, func(context.Context, Item) error { return nil })

	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Skipped)
	require.Len(t, c.Errors.Warnings(), 1)
	assert.Contains(t, c.Errors.Warnings()[0], packed)
}
