package pool

import (
	"context"
	"sync"
)

// Future is the eventual outcome of a submitted task.
type Future struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done returns a channel closed when the task has settled.
func (f *Future) Done() <-chan struct{} { return f.done }

// Ready reports whether the task has settled.
func (f *Future) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Err blocks until the task settles and returns its error.
func (f *Future) Err() error {
	<-f.done
	return f.err
}

// Await is Err bounded by ctx.
func (f *Future) Await(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
