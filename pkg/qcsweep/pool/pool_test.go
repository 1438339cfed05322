package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/qcsweep/pkg/qcsweep/shutdown"
)

// gauge tracks concurrent executions and their maximum.
type gauge struct {
	current atomic.Int64
	peak    atomic.Int64
}

func (g *gauge) enter() {
	n := g.current.Add(1)
	for {
		old := g.peak.Load()
		if n <= old || g.peak.CompareAndSwap(old, n) {
			return
		}
	}
}

func (g *gauge) leave() { g.current.Add(-1) }

func TestBoundedConcurrency(t *testing.T) {
	p := New(4)
	defer p.Shutdown()

	var (
		g   gauge
		ran atomic.Int64
	)
	for i := 0; i < 100; i++ {
		_, err := p.Submit(func(context.Context) error {
			g.enter()
			defer g.leave()
			time.Sleep(10 * time.Millisecond)
			ran.Add(1)
			return nil
		})
		require.NoError(t, err)
	}

	p.Wait()

	assert.Equal(t, int64(100), ran.Load(), "Wait returned before all tasks ran")
	assert.LessOrEqual(t, g.peak.Load(), int64(4))
	assert.Equal(t, int64(100), p.Stats().Completed)
}

func TestFIFODispatch(t *testing.T) {
	p := New(1)
	defer p.Shutdown()

	var (
		mu    sync.Mutex
		order []int
	)
	for i := 0; i < 20; i++ {
		i := i
		_, err := p.Submit(func(context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
	}
	p.Wait()

	want := make([]int, 20)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, order)
}

func TestFutureCarriesTaskError(t *testing.T) {
	p := New(2)
	defer p.Shutdown()

	boom := errors.New("parse failed")
	fail, err := p.Submit(func(context.Context) error { return boom })
	require.NoError(t, err)
	ok, err := p.Submit(func(context.Context) error { return nil })
	require.NoError(t, err)

	assert.ErrorIs(t, fail.Err(), boom)
	assert.NoError(t, ok.Err())
	assert.True(t, fail.Ready())

	p.Wait()
	assert.Equal(t, int64(1), p.Stats().Failed)
}

func TestPanicIsContained(t *testing.T) {
	p := New(2)
	defer p.Shutdown()

	bad, err := p.Submit(func(context.Context) error { panic("corrupt log") })
	require.NoError(t, err)

	var siblings atomic.Int64
	for i := 0; i < 10; i++ {
		_, err := p.Submit(func(context.Context) error {
			siblings.Add(1)
			return nil
		})
		require.NoError(t, err)
	}
	p.Wait()

	var pe *PanicError
	require.ErrorAs(t, bad.Err(), &pe)
	assert.Equal(t, "corrupt log", pe.Value)
	assert.NotEmpty(t, pe.Stack)
	assert.Equal(t, int64(10), siblings.Load())
	assert.Equal(t, int64(1), p.Stats().Panicked)
}

func TestSubmitAfterShutdown(t *testing.T) {
	p := New(2)
	p.Shutdown()

	assert.Equal(t, Stopped, p.State())
	_, err := p.Submit(func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrShuttingDown)
	assert.EqualError(t, err, "pool shutting down")

	p.Shutdown()
}

func TestShutdownDrainsQueue(t *testing.T) {
	p := New(1)

	var ran atomic.Int64
	for i := 0; i < 10; i++ {
		_, err := p.Submit(func(context.Context) error {
			time.Sleep(time.Millisecond)
			ran.Add(1)
			return nil
		})
		require.NoError(t, err)
	}
	p.Shutdown()

	assert.Equal(t, int64(10), ran.Load())
	assert.Equal(t, Stopped, p.State())
}

func TestShutdownRequestStopsDispatch(t *testing.T) {
	const workers, total = 2, 60

	ctrl := shutdown.New()
	p := New(workers, WithShutdown(ctrl))
	defer p.Shutdown()

	var (
		started   atomic.Int64
		completed atomic.Int64
		futures   []*Future
	)
	for i := 0; i < total; i++ {
		f, err := p.Submit(func(context.Context) error {
			started.Add(1)
			time.Sleep(15 * time.Millisecond)
			completed.Add(1)
			return nil
		})
		require.NoError(t, err)
		futures = append(futures, f)
	}

	require.Eventually(t, func() bool { return started.Load() >= 4 }, 2*time.Second, time.Millisecond)
	ctrl.Trigger("test")
	atTrigger := started.Load()

	p.Wait()

	assert.LessOrEqual(t, started.Load(), atTrigger+workers, "tasks kept starting after shutdown")
	assert.Equal(t, started.Load(), completed.Load(), "dispatched tasks must finish")

	var ok, abandoned int
	for _, f := range futures {
		switch err := f.Err(); {
		case err == nil:
			ok++
		case errors.Is(err, ErrAbandoned):
			abandoned++
		default:
			t.Fatalf("unexpected future error: %v", err)
		}
	}
	assert.Equal(t, int(completed.Load()), ok)
	assert.Equal(t, total, ok+abandoned)
	assert.Greater(t, abandoned, 0)

	_, err := p.Submit(func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestShutdownRequestWakesIdlePool(t *testing.T) {
	ctrl := shutdown.New()
	p := New(2, WithShutdown(ctrl))

	ctrl.Trigger("idle")
	done := make(chan struct{})
	go func() {
		p.Wait()
		p.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("idle pool did not stop after shutdown request")
	}
}

func TestRateLimit(t *testing.T) {
	p := New(4, WithRateLimit(50))
	defer p.Shutdown()

	start := time.Now()
	for i := 0; i < 6; i++ {
		_, err := p.Submit(func(context.Context) error { return nil })
		require.NoError(t, err)
	}
	p.Wait()

	// Burst of one, then 20ms per task.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestWaitOnEmptyPool(t *testing.T) {
	p := New(3)
	defer p.Shutdown()

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait blocked on an empty pool")
	}
}

func TestFutureAwait(t *testing.T) {
	p := New(1)
	defer p.Shutdown()

	release := make(chan struct{})
	f, err := p.Submit(func(context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.Await(ctx), context.DeadlineExceeded)

	close(release)
	assert.NoError(t, f.Await(context.Background()))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "draining", Draining.String())
	assert.Equal(t, "stopped", Stopped.String())
}

func TestMinimumOneWorker(t *testing.T) {
	p := New(0)
	defer p.Shutdown()
	assert.Equal(t, 1, p.Workers())
}
