// Package scheduler provides the two execution contexts the login pipeline
// runs on: a single main [Loop] that owns all mutable pipeline state, and a
// worker [Pool] for blocking work such as network fetches and signature
// verification.
//
// # Threading Contract
//
// Work submitted to a [Pool] is a [Task]. Its Run method executes on a
// worker goroutine and must only touch the task's own fields. Once Run
// returns, the pool posts the task's Complete method to the main loop,
// where it runs exactly once. Values cross the boundary by being written
// into the task struct before Run returns; the loop's queue provides the
// happens-before edge, so no further synchronization is needed.
//
// Completion callbacks therefore always run on the loop goroutine, which
// is the only goroutine allowed to mutate state such as the cached key
// ring or a session's login state.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
)

// Poster queues a function for execution on the main loop.
type Poster interface {
	// Post queues fn and reports whether it was accepted. It returns false
	// once the loop has stopped.
	Post(fn func()) bool
}

// DefaultLoopQueue is the buffer size of the loop's queue.
const DefaultLoopQueue = 256

// Loop runs queued functions one at a time on a single goroutine.
type Loop struct {
	queue  chan func()
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// NewLoop creates a loop with the given queue size. A size below one uses
// [DefaultLoopQueue]. A nil logger uses [slog.Default].
func NewLoop(size int, logger *slog.Logger) *Loop {
	if size < 1 {
		size = DefaultLoopQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		queue:  make(chan func(), size),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Post queues fn. It blocks while the queue is full and returns false if
// the loop stops first.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do posts fn and waits for it to run on the loop.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	if !l.Post(func() {
		defer close(ran)
		fn()
	}) {
		return sserr.New(sserr.CodeUnavailable, "scheduler: loop stopped")
	}
	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return sserr.Wrap(ctx.Err(), sserr.CodeTimeout, "scheduler: waiting for loop")
	case <-l.done:
		return sserr.New(sserr.CodeUnavailable, "scheduler: loop stopped")
	}
}

// After posts fn to the loop once d has elapsed. The returned function
// cancels the timer and reports whether it stopped it before it fired.
func (l *Loop) After(d time.Duration, fn func()) (cancel func() bool) {
	t := time.AfterFunc(d, func() { l.Post(fn) })
	return t.Stop
}

// Run processes queued functions until ctx is cancelled or [Loop.Stop] is
// called. A panicking function is logged and does not stop the loop.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.queue:
			l.run(fn)
		}
	}
}

// Stop makes Run return and rejects further posts. Functions still queued
// are dropped.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.done) })
}

// Done is closed when the loop stops.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("scheduler: panic on main loop", "panic", r)
		}
	}()
	fn()
}
