// Package engine composes the resource governors of a batch run and
// drives every command's per-file work through one worker pool.
//
// A Context is built once per command invocation:
//
//	ec, err := engine.New(engine.Options{RequestedThreads: 8, Workload: tuner.WorkloadCheck})
//	stats := ec.Run(ctx, paths, func(ctx context.Context, it engine.Item) error {
//		return check(it.Path)
//	})
//
// Each item holds a file-handle permit and a memory reservation of its
// size while fn runs. Items that cannot get either are skipped with a
// warning. Errors returned by fn, and panics, are recorded in the error
// sink as "<path>: <err>".
package engine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jamesainslie/qcsweep/pkg/qcsweep/budget"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/cluster"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/errsink"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/handles"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/logging"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/shutdown"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/tuner"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/types"
)

var logger = logging.Get("engine")

// ErrInvalidOptions wraps every configuration error returned by New.
var ErrInvalidOptions = errors.New("invalid engine options")

// Options are the scalar settings of a run.
type Options struct {
	// RequestedThreads is a hard worker ceiling when positive. Zero means auto.
	RequestedThreads int

	// Extensions lists the input file extensions for discovery.
	Extensions []string

	// MaxFileSizeMB excludes larger inputs during discovery. Zero disables.
	MaxFileSizeMB int64

	// MemoryLimitMB overrides the computed memory ceiling when positive.
	MemoryLimitMB uint64

	// MaxHandles caps concurrently open input files. Zero uses the default.
	MaxHandles int

	// HandleMargin descriptors are kept free below the process limit.
	HandleMargin int

	// AcquireRetries bounds the retries for a handle permit before an
	// item is skipped.
	AcquireRetries int

	// RateLimit caps task starts per second. Zero disables.
	RateLimit float64

	// Workload selects the per-worker memory estimate.
	Workload tuner.Workload
}

func (o Options) validate() error {
	switch {
	case o.RequestedThreads < 0:
		return fmt.Errorf("%w: threads must not be negative (got %d)", ErrInvalidOptions, o.RequestedThreads)
	case o.MaxFileSizeMB < 0:
		return fmt.Errorf("%w: max file size must not be negative (got %d)", ErrInvalidOptions, o.MaxFileSizeMB)
	case o.MaxHandles < 0:
		return fmt.Errorf("%w: max handles must not be negative (got %d)", ErrInvalidOptions, o.MaxHandles)
	case o.HandleMargin < 0:
		return fmt.Errorf("%w: handle margin must not be negative (got %d)", ErrInvalidOptions, o.HandleMargin)
	case o.AcquireRetries < 0:
		return fmt.Errorf("%w: acquire retries must not be negative (got %d)", ErrInvalidOptions, o.AcquireRetries)
	case o.RateLimit < 0:
		return fmt.Errorf("%w: rate limit must not be negative (got %g)", ErrInvalidOptions, o.RateLimit)
	}
	return nil
}

// Defaults applied by New for zero-valued options.
const (
	DefaultMaxHandles     = 20
	DefaultHandleMargin   = 64
	DefaultAcquireRetries = 3
)

// DetectFunc reports host resources.
type DetectFunc func() (tuner.SystemResources, error)

// ProgressFunc is called after each item finishes, from worker goroutines.
type ProgressFunc func(done, total int)

// Option customises New.
type Option func(*builder)

type builder struct {
	env      cluster.Environment
	detect   DetectFunc
	ctrl     *shutdown.Controller
	sink     *errsink.Sink
	progress ProgressFunc
	handles  *handles.Governor
}

// WithEnvironment replaces the process environment for scheduler probing.
func WithEnvironment(env cluster.Environment) Option {
	return func(b *builder) { b.env = env }
}

// WithDetector replaces host resource detection.
func WithDetector(fn DetectFunc) Option {
	return func(b *builder) { b.detect = fn }
}

// WithShutdown shares a cancellation token with the run.
func WithShutdown(c *shutdown.Controller) Option {
	return func(b *builder) { b.ctrl = c }
}

// WithSink shares an error sink across runs.
func WithSink(s *errsink.Sink) Option {
	return func(b *builder) { b.sink = s }
}

// WithProgress registers a per-item progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(b *builder) { b.progress = fn }
}

// WithHandles replaces the handle governor derived from the options.
func WithHandles(g *handles.Governor) Option {
	return func(b *builder) { b.handles = g }
}

// Context owns the shared resources of one command invocation.
type Context struct {
	RunID    string
	Opts     Options
	Grant    cluster.Grant
	System   tuner.SystemResources
	Memory   *budget.Monitor
	Handles  *handles.Governor
	Errors   *errsink.Sink
	Shutdown *shutdown.Controller

	progress ProgressFunc
	log      *logging.Logger
}

// New validates opts, probes the scheduler and host, and builds the
// governors. Any error is a configuration error and no work has started.
func New(opts Options, options ...Option) (*Context, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	b := builder{env: cluster.OSEnvironment, detect: tuner.Detect}
	for _, o := range options {
		o(&b)
	}
	if b.ctrl == nil {
		b.ctrl = shutdown.New()
	}
	if b.sink == nil {
		b.sink = errsink.New()
	}

	if opts.MaxHandles == 0 {
		opts.MaxHandles = DefaultMaxHandles
	}
	if opts.HandleMargin == 0 {
		opts.HandleMargin = DefaultHandleMargin
	}
	if opts.AcquireRetries == 0 {
		opts.AcquireRetries = DefaultAcquireRetries
	}
	if opts.Workload.PerWorkerMemoryMB == 0 {
		opts.Workload = tuner.WorkloadCheck
	}

	runID := uuid.NewString()
	log := logger.With("run", runID[:8])

	grant := cluster.Probe(b.env)

	sys, err := b.detect()
	if err != nil {
		log.Warn("host resource detection incomplete", "error", err)
	}

	// Memory scales with the worker count, so size it for the widest
	// plan the run could get.
	widest := tuner.Plan(tuner.PlanInput{
		RequestedThreads:    opts.RequestedThreads,
		ItemCount:           max(sys.CPUCores, 1),
		HardwareConcurrency: sys.CPUCores,
		Grant:               grant,
	})
	limitMB := tuner.MemoryLimitMB(opts.MemoryLimitMB, widest, sys.TotalMB(), grant)

	gov := b.handles
	if gov == nil {
		gov = handles.NewFromLimits(opts.MaxHandles, opts.HandleMargin)
	}

	c := &Context{
		RunID:    runID,
		Opts:     opts,
		Grant:    grant,
		System:   sys,
		Memory:   budget.NewMonitorMB(limitMB),
		Handles:  gov,
		Errors:   b.sink,
		Shutdown: b.ctrl,
		progress: b.progress,
		log:      log,
	}

	log.Info("engine ready",
		"grant", grant.String(),
		"cpus", sys.CPUCores,
		"memory_limit", types.FormatSize(int64(c.Memory.Limit())),
		"handles", gov.Capacity(),
		"workload", opts.Workload.Name)
	return c, nil
}

// MemoryLimitMB returns the memory ceiling of the run.
func (c *Context) MemoryLimitMB() uint64 {
	return c.Memory.Limit() / (1024 * 1024)
}

// PlanWorkers returns the worker count for n items.
func (c *Context) PlanWorkers(n int) int {
	avail := c.MemoryLimitMB()
	if sysAvail := c.System.AvailableMB(); sysAvail > 0 && sysAvail < avail {
		avail = sysAvail
	}
	return tuner.Plan(tuner.PlanInput{
		RequestedThreads:    c.Opts.RequestedThreads,
		ItemCount:           n,
		HardwareConcurrency: c.System.CPUCores,
		Grant:               c.Grant,
		AvailableMemoryMB:   avail,
		Workload:            c.Opts.Workload,
	})
}

// MaxFileSizeBytes returns the discovery size ceiling in bytes, or zero.
func (c *Context) MaxFileSizeBytes() int64 {
	return c.Opts.MaxFileSizeMB * types.MiB
}
