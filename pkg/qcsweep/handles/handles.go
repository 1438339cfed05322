// Package handles bounds the number of files open at once across all
// workers. Acquisition never blocks: a caller that gets no permit skips or
// retries the file instead of stalling the pool.
package handles

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/jamesainslie/qcsweep/pkg/qcsweep/logging"
)

var logger = logging.Get("handles")

// Governor hands out at most Capacity() permits at a time.
type Governor struct {
	sem      *semaphore.Weighted
	capacity int
	inUse    atomic.Int64
	denied   atomic.Int64
}

// NewGovernor returns a governor with a fixed capacity (minimum 1).
func NewGovernor(capacity int) *Governor {
	capacity = max(capacity, 1)
	return &Governor{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}
}

// NewFromLimits returns a governor whose capacity is maxHandles clamped to
// the process descriptor limit minus margin.
func NewFromLimits(maxHandles, margin int) *Governor {
	capacity := Capacity(maxHandles, margin)
	logger.Debug("handle governor sized", "capacity", capacity, "requested", maxHandles, "margin", margin)
	return NewGovernor(capacity)
}

// Capacity computes the permit count for maxHandles under the current
// RLIMIT_NOFILE soft limit, keeping margin descriptors free. A
// non-positive maxHandles means "as many as the limit allows".
func Capacity(maxHandles, margin int) int {
	soft, ok := softLimit()
	if !ok {
		return max(maxHandles, 1)
	}
	return capacityFor(maxHandles, margin, soft)
}

func capacityFor(maxHandles, margin int, soft uint64) int {
	const ceiling = 1 << 16

	room := 1
	if margin < 0 {
		margin = 0
	}
	if soft > uint64(margin) {
		room = int(min(soft-uint64(margin), ceiling))
	}
	if maxHandles <= 0 {
		return max(room, 1)
	}
	return max(min(maxHandles, room), 1)
}

// TryAcquire returns a permit if one is free. It never blocks.
func (g *Governor) TryAcquire() (*Permit, bool) {
	if !g.sem.TryAcquire(1) {
		g.denied.Add(1)
		return nil, false
	}
	g.inUse.Add(1)
	return &Permit{g: g}, true
}

// Capacity returns the maximum number of outstanding permits.
func (g *Governor) Capacity() int { return g.capacity }

// InUse returns the number of outstanding permits.
func (g *Governor) InUse() int { return int(g.inUse.Load()) }

// Denied returns how many acquisitions found no free permit.
func (g *Governor) Denied() int64 { return g.denied.Load() }

// Permit is one unit of open-file capacity. Release is idempotent and a
// nil permit is safe to release.
type Permit struct {
	g    *Governor
	once sync.Once
}

// Release returns the permit to its governor. Further calls do nothing.
func (p *Permit) Release() {
	if p == nil || p.g == nil {
		return
	}
	p.once.Do(func() {
		p.g.inUse.Add(-1)
		p.g.sem.Release(1)
	})
}
