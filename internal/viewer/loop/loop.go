// Package loop provides a single-goroutine scheduler. Every piece of viewer
// state is owned by one Loop: callbacks posted to it run one at a time in FIFO
// order, blocking work runs on worker goroutines and posts its continuation
// back. Callers never need a mutex for state that is only touched from loop
// callbacks.
package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStopped is returned when work is submitted to a loop that has exited.
var ErrStopped = errors.New("loop stopped")

// Loop is a cooperative event loop. The zero value is not usable; call New.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	pending int           // queued callbacks + running workers + armed timers
	idle    chan struct{} // closed when pending drops to zero
	stopped bool
}

// New creates a loop. Nothing runs until Run is called.
func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Run drains the queue until ctx is cancelled. Pending callbacks are
// discarded when Run returns.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			l.stop()
			return err
		}

		if fn, ok := l.next(); ok {
			fn()
			l.release()
			continue
		}

		select {
		case <-ctx.Done():
			l.stop()
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Post schedules fn to run on the loop. It reports false if the loop has
// stopped. Post never blocks and is safe to call from the loop itself.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.pending++
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Go runs work on a new goroutine. If work returns a non-nil continuation it
// is posted to the loop. The loop is not idle until the continuation has run.
// Go reports false, without starting work, if the loop has stopped.
func (l *Loop) Go(work func() func()) bool {
	if !l.acquire() {
		return false
	}
	go func() {
		defer l.release()
		if next := work(); next != nil {
			l.Post(next)
		}
	}()
	return true
}

// Call posts fn and waits for it to finish. It must not be called from the
// loop goroutine.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		fn()
		close(done)
	}) {
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitIdle blocks until no callbacks are queued, no workers started with Go
// are running and no timers are armed.
func (l *Loop) WaitIdle(ctx context.Context) error {
	l.mu.Lock()
	if l.pending == 0 {
		l.mu.Unlock()
		return nil
	}
	if l.idle == nil {
		l.idle = make(chan struct{})
	}
	ch := l.idle
	l.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Timer is a one-shot callback scheduled with AfterFunc.
type Timer struct {
	loop    *Loop
	timer   *time.Timer
	claimed atomic.Bool
}

// AfterFunc posts fn to the loop after d. A callback that has already been
// posted is not recalled by Stop, so fn must tolerate running late.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	t := &Timer{loop: l}
	if !l.acquire() {
		t.claimed.Store(true)
		return t
	}
	t.timer = time.AfterFunc(d, func() {
		if !t.claimed.CompareAndSwap(false, true) {
			return
		}
		l.Post(fn)
		l.release()
	})
	return t
}

// Stop disarms the timer. It reports whether the callback was prevented.
func (t *Timer) Stop() bool {
	if t == nil || !t.claimed.CompareAndSwap(false, true) {
		return false
	}
	t.timer.Stop()
	t.loop.release()
	return true
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

func (l *Loop) acquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return false
	}
	l.pending++
	return true
}

func (l *Loop) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending > 0 {
		l.pending--
	}
	if l.pending == 0 && l.idle != nil {
		close(l.idle)
		l.idle = nil
	}
}

func (l *Loop) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
	l.queue = nil
	l.pending = 0
	if l.idle != nil {
		close(l.idle)
		l.idle = nil
	}
}
