package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jamesainslie/qcsweep/pkg/qcsweep/handles"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/pool"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/types"
)

// ErrSkipped may be wrapped by an ItemFunc error to skip an item with a
// warning instead of failing it.
var ErrSkipped = errors.New("skipped")

// acquireBackoff is the first wait between permit attempts; it doubles
// on every retry.
const acquireBackoff = time.Millisecond

// Item is one unit of work handed to an ItemFunc.
type Item struct {
	Index int
	Path  string
	Size  int64
}

// ItemFunc processes one item. It runs concurrently with other items and
// must only touch index-keyed or synchronised state.
type ItemFunc func(ctx context.Context, it Item) error

// Stats summarises a run. Processed+Failed+Skipped always equals Total.
type Stats struct {
	RunID       string
	Total       int
	Processed   int
	Failed      int
	Skipped     int
	Workers     int
	Elapsed     time.Duration
	Interrupted bool
	PeakMemory  uint64
}

type outcomeKind uint8

const (
	processed outcomeKind = iota + 1
	failed
	skipped
	interrupted
)

type outcome struct {
	kind   outcomeKind
	reason string
}

// Run processes items on a pool sized by PlanWorkers. It returns once
// every dispatched item has finished. Errors and warnings go to c.Errors.
func (c *Context) Run(ctx context.Context, items []string, fn ItemFunc) Stats {
	start := time.Now()
	stats := Stats{RunID: c.RunID, Total: len(items)}
	if len(items) == 0 {
		stats.Workers = 1
		return stats
	}

	workers := c.PlanWorkers(len(items))
	stats.Workers = workers
	c.log.Info("run starting", "items", len(items), "workers", workers)

	p := pool.New(workers,
		pool.WithShutdown(c.Shutdown),
		pool.WithRateLimit(c.Opts.RateLimit),
		pool.WithQueueHint(len(items)),
		pool.WithContext(ctx))

	outcomes := make([]outcome, len(items))
	futures := make([]*pool.Future, len(items))
	var done atomic.Int64

	for i, path := range items {
		it := Item{Index: i, Path: path}
		f, err := p.Submit(func(ctx context.Context) error {
			defer c.reportProgress(&done, len(items))
			return c.process(ctx, it, fn, &outcomes[it.Index])
		})
		if err != nil {
			break
		}
		futures[i] = f
	}

	p.Wait()
	p.Shutdown()

	stopped := 0
	for i, path := range items {
		f := futures[i]
		if f == nil {
			stopped++
			continue
		}

		err := f.Err()
		var pe *pool.PanicError
		switch {
		case errors.Is(err, pool.ErrAbandoned):
			stopped++
		case errors.As(err, &pe):
			stats.Failed++
			c.Errors.AddError(fmt.Sprintf("%s: %v", path, pe))
		case err != nil:
			stats.Failed++
			c.Errors.AddError(fmt.Sprintf("%s: %v", path, err))
		default:
			switch o := outcomes[i]; {
			case o.kind == interrupted:
				stopped++
			case o.kind == skipped && o.reason == "":
				stats.Skipped++
				c.Errors.AddWarning(path + ": skipped")
			case o.kind == skipped:
				stats.Skipped++
				c.Errors.AddWarning(fmt.Sprintf("%s: skipped: %s", path, o.reason))
			default:
				stats.Processed++
			}
		}
	}

	if stopped > 0 {
		stats.Skipped += stopped
		stats.Interrupted = true
		c.Errors.AddWarning(fmt.Sprintf("%d items skipped after shutdown request: %s",
			stopped, c.stopReason(ctx)))
	}
	stats.Interrupted = stats.Interrupted || c.Shutdown.Requested()
	stats.Elapsed = time.Since(start)
	stats.PeakMemory = c.Memory.Peak()

	c.log.Info("run finished",
		"processed", stats.Processed,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"interrupted", stats.Interrupted,
		"peak_memory", types.FormatSize(int64(stats.PeakMemory)),
		"elapsed", stats.Elapsed.Round(time.Millisecond))
	return stats
}

// process runs fn for one item while holding a handle permit and a memory
// reservation. Skips are recorded in out; fn's error is returned.
func (c *Context) process(ctx context.Context, it Item, fn ItemFunc, out *outcome) error {
	if c.Shutdown.Requested() || ctx.Err() != nil {
		out.kind = interrupted
		return nil
	}

	permit, ok := c.acquire(ctx)
	if !ok {
		if c.Shutdown.Requested() || ctx.Err() != nil {
			out.kind = interrupted
			return nil
		}
		out.kind = skipped
		out.reason = fmt.Sprintf("no file handle available (capacity %d)", c.Handles.Capacity())
		return nil
	}
	defer permit.Release()

	info, err := os.Stat(it.Path)
	if err != nil {
		out.kind = failed
		return err
	}
	it.Size = info.Size()

	size := reservation(it.Path, it.Size)
	if !c.Memory.TryReserve(size) {
		out.kind = skipped
		out.reason = fmt.Sprintf("%s would exceed memory limit (%s in use of %s)",
			types.FormatSize(int64(size)),
			types.FormatSize(int64(c.Memory.Usage())),
			types.FormatSize(int64(c.Memory.Limit())))
		return nil
	}
	defer c.Memory.Release(size)

	if err := fn(ctx, it); err != nil {
		if errors.Is(err, ErrSkipped) {
			out.kind = skipped
			out.reason = skipReason(err)
			return nil
		}
		out.kind = failed
		return err
	}
	out.kind = processed
	return nil
}

// skipReason strips the ErrSkipped text from err. A bare ErrSkipped has
// no reason.
func skipReason(err error) string {
	if err == ErrSkipped {
		return ""
	}
	msg := err.Error()
	msg = strings.TrimPrefix(msg, ErrSkipped.Error()+": ")
	return strings.TrimSuffix(msg, ": "+ErrSkipped.Error())
}

// compressedRatio is the assumed expansion of a gzip or zstd log. Gaussian
// output is repetitive text and typically compresses eight to tenfold.
const compressedRatio = 8

// reservation is the memory charged for an item of the given on-disk
// size. Compressed logs are charged their estimated expanded size.
func reservation(path string, size int64) uint64 {
	n := uint64(max(size, 0))
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".gz") || strings.HasSuffix(lower, ".zst") {
		n *= compressedRatio
	}
	return n
}

// stopReason describes why a run stopped dispatching: the shutdown reason,
// or the caller's context error when only the context was cancelled.
func (c *Context) stopReason(ctx context.Context) string {
	if r := c.Shutdown.Reason(); r != "" {
		return r
	}
	if err := ctx.Err(); err != nil {
		return err.Error()
	}
	return "cancelled"
}

// acquire takes a handle permit, retrying with exponential backoff up to
// AcquireRetries times. It gives up early on shutdown or cancellation.
func (c *Context) acquire(ctx context.Context) (*handles.Permit, bool) {
	for attempt := 0; ; attempt++ {
		if p, ok := c.Handles.TryAcquire(); ok {
			return p, true
		}
		if attempt >= c.Opts.AcquireRetries {
			return nil, false
		}

		timer := time.NewTimer(acquireBackoff << attempt)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, false
		case <-c.Shutdown.Done():
			timer.Stop()
			return nil, false
		}
	}
}

func (c *Context) reportProgress(done *atomic.Int64, total int) {
	n := done.Add(1)
	if c.progress != nil {
		c.progress(int(n), total)
	}
}
