// Package pool runs independent tasks on a fixed number of goroutines.
//
// Tasks are dispatched in submission order from a single queue. A panicking
// task is converted into an error on its Future; it never takes down a
// worker or the pool. When a shutdown token is attached, workers stop
// taking new tasks once it is raised and queued tasks are abandoned.
//
//	p := pool.New(4, pool.WithShutdown(ctrl))
//	f, err := p.Submit(func(ctx context.Context) error { return work(ctx) })
//	p.Wait()
//	p.Shutdown()
package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jamesainslie/qcsweep/pkg/qcsweep/logging"
)

var logger = logging.Get("pool")

// ErrShuttingDown is returned by Submit once the pool stops accepting work.
var ErrShuttingDown = errors.New("pool shutting down")

// ErrAbandoned resolves futures of tasks dropped after a shutdown request.
var ErrAbandoned = errors.New("task abandoned: shutdown requested")

// State is the lifecycle stage of a pool.
type State int

const (
	Running State = iota
	Draining
	Stopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Task is a unit of work.
type Task func(ctx context.Context) error

// PanicError is the error recorded for a task that panicked.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panic: %v", e.Value)
}

// Stopper is a cooperative cancellation token.
type Stopper interface {
	Requested() bool
	Done() <-chan struct{}
}

// Stats counts task outcomes.
type Stats struct {
	Workers   int
	Submitted int64
	Completed int64
	Failed    int64
	Panicked  int64
	Abandoned int64
}

type job struct {
	task   Task
	future *Future
}

// Pool is a fixed-size worker pool.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*job
	state  State
	active int
	stats  Stats

	ctx      context.Context
	cancel   context.CancelFunc
	stopper  Stopper
	limiter  *rate.Limiter
	group    errgroup.Group
	quit     chan struct{}
	shutOnce sync.Once
}

// Option configures a pool.
type Option func(*Pool)

// WithShutdown attaches a cancellation token polled before every dispatch.
func WithShutdown(s Stopper) Option {
	return func(p *Pool) { p.stopper = s }
}

// WithRateLimit caps task starts per second across all workers.
// Zero or negative disables the limit.
func WithRateLimit(perSecond float64) Option {
	return func(p *Pool) {
		if perSecond > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithQueueHint preallocates the queue for n tasks.
func WithQueueHint(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.queue = make([]*job, 0, n)
		}
	}
}

// WithContext sets the context passed to tasks. It is not cancelled by a
// shutdown request, so dispatched tasks run to completion.
func WithContext(ctx context.Context) Option {
	return func(p *Pool) {
		if ctx != nil {
			p.ctx = ctx
		}
	}
}

// New starts a pool with the given number of workers (minimum 1).
func New(workers int, opts ...Option) *Pool {
	workers = max(workers, 1)

	p := &Pool{
		ctx:  context.Background(),
		quit: make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}
	p.ctx, p.cancel = context.WithCancel(p.ctx)
	p.stats.Workers = workers

	if p.stopper != nil {
		go p.watchStopper()
	}
	for i := 0; i < workers; i++ {
		p.group.Go(p.worker)
	}

	logger.Debug("pool started", "workers", workers, "rate_limited", p.limiter != nil)
	return p
}

// Submit enqueues a task. It fails with ErrShuttingDown once the pool is
// draining or a shutdown was requested.
func (p *Pool) Submit(task Task) (*Future, error) {
	if task == nil {
		return nil, errors.New("nil task")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Running || p.stopRequested() {
		return nil, ErrShuttingDown
	}

	f := newFuture()
	p.queue = append(p.queue, &job{task: task, future: f})
	p.stats.Submitted++
	p.cond.Broadcast()
	return f, nil
}

// Wait blocks until the queue is empty and no task is running.
func (p *Pool) Wait() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) > 0 || p.active > 0 {
		p.cond.Wait()
	}
}

// Shutdown stops accepting tasks, lets queued tasks finish (or be
// abandoned if a shutdown was requested) and joins the workers.
// It is safe to call more than once.
func (p *Pool) Shutdown() {
	p.shutOnce.Do(func() {
		p.mu.Lock()
		if p.state == Running {
			p.state = Draining
		}
		p.cond.Broadcast()
		p.mu.Unlock()

		_ = p.group.Wait()

		p.mu.Lock()
		p.state = Stopped
		stats := p.stats
		p.mu.Unlock()

		close(p.quit)
		p.cancel()
		logger.Debug("pool stopped",
			"completed", stats.Completed, "failed", stats.Failed,
			"panicked", stats.Panicked, "abandoned", stats.Abandoned)
	})
}

// State returns the current lifecycle state.
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns a snapshot of task counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int { return p.stats.Workers }

func (p *Pool) worker() error {
	for {
		j, ok := p.next()
		if !ok {
			return nil
		}

		if p.limiter != nil {
			if err := p.waitRate(); err != nil {
				p.finish(j, ErrAbandoned)
				continue
			}
		}

		p.finish(j, p.run(j))
	}
}

// next blocks until a task is available or the pool has nothing left to do.
func (p *Pool) next() (*job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.stopRequested() && len(p.queue) > 0 {
			p.abandonLocked()
		}
		if len(p.queue) > 0 {
			j := p.queue[0]
			p.queue[0] = nil
			p.queue = p.queue[1:]
			p.active++
			return j, true
		}
		if p.state != Running {
			return nil, false
		}
		p.cond.Wait()
	}
}

// waitRate waits for the limiter, giving up when shutdown is requested.
func (p *Pool) waitRate() error {
	if p.stopper == nil {
		return p.limiter.Wait(p.ctx)
	}
	ctx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	go func() {
		select {
		case <-p.stopper.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return p.limiter.Wait(ctx)
}

// run executes one task, converting a panic into a *PanicError.
func (p *Pool) run(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = &PanicError{Value: r, Stack: buf[:n]}
			logger.Error("task panicked", "panic", r)
		}
	}()
	return j.task(p.ctx)
}

func (p *Pool) finish(j *job, err error) {
	j.future.resolve(err)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.active--
	var pe *PanicError
	switch {
	case err == nil:
		p.stats.Completed++
	case errors.Is(err, ErrAbandoned):
		p.stats.Abandoned++
	case errors.As(err, &pe):
		p.stats.Panicked++
	default:
		p.stats.Failed++
	}
	p.cond.Broadcast()
}

// abandonLocked resolves every queued task with ErrAbandoned. Must hold p.mu.
func (p *Pool) abandonLocked() {
	n := len(p.queue)
	for i, j := range p.queue {
		j.future.resolve(ErrAbandoned)
		p.queue[i] = nil
	}
	p.queue = p.queue[:0]
	p.stats.Abandoned += int64(n)
	p.cond.Broadcast()
	logger.Info("abandoned queued tasks after shutdown request", "count", n)
}

func (p *Pool) stopRequested() bool {
	return p.stopper != nil && p.stopper.Requested()
}

// watchStopper wakes idle workers and waiters when shutdown is requested.
func (p *Pool) watchStopper() {
	select {
	case <-p.stopper.Done():
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	case <-p.quit:
	}
}
