// Package coalesce collapses bursts of updates into a single delivery of
// the latest value.
package coalesce

import (
	"sync"
	"time"
)

// Mode selects how the delivery timer reacts to new values.
type Mode int

const (
	// Throttle delivers once per window, starting at the first push.
	Throttle Mode = iota
	// Debounce restarts the window on every push and delivers once
	// pushes have been quiet for the full window.
	Debounce
)

// Coalescer delivers only the most recent value pushed within a window.
// Deliveries happen on a timer goroutine, never concurrently with each
// other.
type Coalescer[T any] struct {
	window  time.Duration
	mode    Mode
	deliver func(T)

	mu      sync.Mutex
	latest  T
	pending bool
	stopped bool
	timer   *time.Timer

	deliverMu sync.Mutex
}

// New creates a coalescer calling deliver with the latest value.
func New[T any](window time.Duration, mode Mode, deliver func(T)) *Coalescer[T] {
	return &Coalescer[T]{window: window, mode: mode, deliver: deliver}
}

// Push records v as the latest value and schedules a delivery.
func (c *Coalescer[T]) Push(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.latest = v
	c.pending = true

	if c.timer == nil {
		c.timer = time.AfterFunc(c.window, c.fire)
		return
	}
	if c.mode == Debounce {
		c.timer.Reset(c.window)
	}
}

// Flush delivers a pending value immediately on the caller's goroutine.
func (c *Coalescer[T]) Flush() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	v, ok := c.take()
	c.mu.Unlock()
	if ok {
		c.run(v)
	}
}

// Stop cancels any pending delivery and ignores later pushes. It returns
// once a delivery already in progress has finished, so deliver is never
// called after Stop returns. Stop must not be called from deliver.
func (c *Coalescer[T]) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.pending = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	// Wait out a delivery in progress; queued ones see stopped and skip.
	c.deliverMu.Lock()
	c.deliverMu.Unlock() //nolint:staticcheck // empty critical section is the barrier
}

// Pending reports whether a value is waiting to be delivered.
func (c *Coalescer[T]) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

func (c *Coalescer[T]) fire() {
	c.mu.Lock()
	c.timer = nil
	v, ok := c.take()
	c.mu.Unlock()
	if ok {
		c.run(v)
	}
}

// take must be called with mu held.
func (c *Coalescer[T]) take() (T, bool) {
	var zero T
	if !c.pending || c.stopped {
		return zero, false
	}
	v := c.latest
	c.latest = zero
	c.pending = false
	return v, true
}

func (c *Coalescer[T]) run(v T) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	if c.isStopped() {
		return
	}
	c.deliver(v)
}

func (c *Coalescer[T]) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}
