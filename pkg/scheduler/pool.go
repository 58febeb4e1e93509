package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
)

// Task is a unit of work for a [Pool].
type Task interface {
	// Run executes on a worker goroutine.
	Run(ctx context.Context)
	// Complete executes on the main loop after Run returns.
	Complete()
}

// Recoverer is implemented by tasks that want to record a panic raised by
// Run. Recovered is called on the worker goroutine before Complete is
// posted.
type Recoverer interface {
	Recovered(err error)
}

// Submitter accepts tasks for asynchronous execution.
type Submitter interface {
	Submit(task Task) error
}

// Default pool sizing.
const (
	DefaultQueueSize = 1024
)

// Pool runs tasks on a fixed set of worker goroutines and delivers their
// completions to a [Poster]. The pool does not own the poster.
type Pool struct {
	loop    Poster
	workers int
	logger  *slog.Logger

	mu      sync.Mutex
	tasks   chan Task
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	state   poolState
	pending int
}

type poolState int

const (
	poolIdle poolState = iota
	poolRunning
	poolStopped
)

// PoolOption configures a [Pool].
type PoolOption func(*Pool)

// WithWorkers sets the number of worker goroutines. The default is
// runtime.NumCPU().
func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithQueueSize sets how many tasks may wait for a worker before Submit
// starts failing.
func WithQueueSize(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.tasks = make(chan Task, n)
		}
	}
}

// WithLogger sets the pool's logger.
func WithLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPool creates a pool delivering completions to loop. Call
// [Pool.Start] before submitting.
func NewPool(loop Poster, opts ...PoolOption) *Pool {
	p := &Pool{
		loop:    loop,
		workers: runtime.NumCPU(),
		logger:  slog.Default(),
		tasks:   make(chan Task, DefaultQueueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. Their context derives from ctx; cancelling
// it is visible to running tasks. Starting twice is an error.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != poolIdle {
		return sserr.Internal("scheduler: pool already started")
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.state = poolRunning
	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.work()
	}
	p.logger.Debug("scheduler: pool started", "workers", p.workers)
	return nil
}

// Submit queues task. It never blocks: a full queue or a pool that is not
// running yields a CodeUnavailable error and the task will not complete.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != poolRunning {
		return sserr.New(sserr.CodeUnavailable, "scheduler: pool not running")
	}
	select {
	case p.tasks <- task:
		p.pending++
		return nil
	default:
		return sserr.New(sserr.CodeUnavailable, "scheduler: worker queue full")
	}
}

// Pending returns the number of submitted tasks whose Run has not yet
// returned.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// Shutdown stops accepting tasks, cancels the worker context and waits for
// workers to exit or ctx to expire. Queued tasks that have not started are
// dropped. Shutdown is idempotent.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.state != poolRunning {
		p.state = poolStopped
		p.mu.Unlock()
		return nil
	}
	p.state = poolStopped
	p.cancel()
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return sserr.Wrap(ctx.Err(), sserr.CodeTimeout, "scheduler: waiting for workers")
	}
}

func (p *Pool) work() {
	defer p.wg.Done()
	for task := range p.tasks {
		if p.ctx.Err() != nil {
			p.mu.Lock()
			p.pending--
			p.mu.Unlock()
			continue
		}
		p.execute(task)
	}
}

func (p *Pool) execute(task Task) {
	defer func() {
		p.mu.Lock()
		p.pending--
		p.mu.Unlock()
		if !p.loop.Post(task.Complete) {
			p.logger.Warn("scheduler: completion dropped, loop stopped",
				"task", fmt.Sprintf("%T", task))
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err := sserr.Internalf("scheduler: task panicked: %v", r)
			p.logger.Error("scheduler: task panicked",
				"task", fmt.Sprintf("%T", task),
				"panic", r,
			)
			if rec, ok := task.(Recoverer); ok {
				rec.Recovered(err)
			}
		}
	}()
	task.Run(p.ctx)
}
