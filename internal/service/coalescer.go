package service

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultGracePeriod is how long a settled result stays shared.
const DefaultGracePeriod = 3 * time.Second

// DefaultCallTimeout bounds a single factory run.
const DefaultCallTimeout = 10 * time.Second

type call[T any] struct {
	done      chan struct{}
	val       T
	err       error
	settled   bool
	settledAt time.Time
}

// Coalescer deduplicates concurrent calls by key. While a call for a key is
// in flight, later callers wait for its result instead of running their own
// factory. A settled result, success or failure, keeps being handed out
// until the grace period has elapsed.
//
// Expiry is checked on access and by Sweep, against the injected clock.
type Coalescer[T any] struct {
	mu    sync.Mutex
	calls map[string]*call[T]
	grace   time.Duration
	timeout time.Duration
	clock   Clock
}

// NewCoalescer creates a Coalescer. A non-positive grace uses
// DefaultGracePeriod; a nil clock uses SystemClock.
func NewCoalescer[T any](grace time.Duration, clock Clock) *Coalescer[T] {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Coalescer[T]{
		calls:   make(map[string]*call[T]),
		grace:   grace,
		timeout: DefaultCallTimeout,
		clock:   clock,
	}
}

// SetCallTimeout bounds how long a factory may run before its context is
// cancelled. A non-positive d restores DefaultCallTimeout.
func (c *Coalescer[T]) SetCallTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultCallTimeout
	}
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

// Do runs factory once per key at a time and returns its result to every
// caller. The factory does not observe the cancellation of any single
// caller; a caller whose ctx ends stops waiting and gets ctx.Err(). The
// factory's own context expires after the call timeout, and that failure
// settles like any other.
func (c *Coalescer[T]) Do(ctx context.Context, key string, factory func(ctx context.Context) (T, error)) (T, error) {
	c.mu.Lock()
	cl, ok := c.calls[key]
	if ok && cl.settled && c.expiredLocked(cl) {
		delete(c.calls, key)
		ok = false
	}
	if !ok {
		cl = &call[T]{done: make(chan struct{})}
		c.calls[key] = cl
		go c.run(context.WithoutCancel(ctx), c.timeout, cl, factory)
	}
	c.mu.Unlock()

	select {
	case <-cl.done:
		return cl.val, cl.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Forget drops the entry for key so the next call runs the factory again.
// A call still in flight keeps serving its current waiters.
func (c *Coalescer[T]) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.calls, key)
}

// Sweep removes every settled entry whose grace period has elapsed and
// returns how many were removed.
func (c *Coalescer[T]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, cl := range c.calls {
		if cl.settled && c.expiredLocked(cl) {
			delete(c.calls, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys, in flight or in grace.
func (c *Coalescer[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *Coalescer[T]) run(
	ctx context.Context, timeout time.Duration, cl *call[T], factory func(ctx context.Context) (T, error),
) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		val T
		err error
	)

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("coalesced call panicked: %v", r)
			}
		}()
		val, err = factory(ctx)
	}()

	c.mu.Lock()
	cl.val = val
	cl.err = err
	cl.settled = true
	cl.settledAt = c.clock.Now()
	c.mu.Unlock()

	close(cl.done)
}

func (c *Coalescer[T]) expiredLocked(cl *call[T]) bool {
	return c.clock.Now().Sub(cl.settledAt) >= c.grace
}
