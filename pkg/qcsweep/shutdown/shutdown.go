// Package shutdown provides a one-way cancellation token. Once triggered it
// stays triggered; workers poll it between files.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/jamesainslie/qcsweep/pkg/qcsweep/logging"
)

var logger = logging.Get("shutdown")

// Controller is a cancellation token shared by reference. Create it with New.
type Controller struct {
	requested atomic.Bool
	once      sync.Once
	done      chan struct{}
	reason    atomic.Value
}

// New returns an untriggered controller.
func New() *Controller {
	return &Controller{done: make(chan struct{})}
}

// Trigger raises the flag. Only the first call's reason is kept.
func (c *Controller) Trigger(reason string) {
	c.once.Do(func() {
		c.reason.Store(reason)
		c.requested.Store(true)
		close(c.done)
		logger.Info("shutdown requested", "reason", reason)
	})
}

// Requested reports whether the flag is raised. A nil controller is never
// triggered.
func (c *Controller) Requested() bool {
	return c != nil && c.requested.Load()
}

// Reason returns the first trigger reason, or "" if untriggered.
func (c *Controller) Reason() string {
	if c == nil {
		return ""
	}
	if r, ok := c.reason.Load().(string); ok {
		return r
	}
	return ""
}

// Done returns a channel closed when the flag is raised.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Context returns a child of parent that is cancelled on trigger.
func (c *Controller) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// NotifySignals triggers c on SIGINT or SIGTERM. The returned function
// stops signal delivery; it does not reset c.
func NotifySignals(c *Controller) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	quit := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			c.Trigger("received " + sig.String())
		case <-quit:
		}
	}()

	var stopOnce sync.Once
	return func() {
		stopOnce.Do(func() {
			signal.Stop(sigCh)
			close(quit)
		})
	}
}
