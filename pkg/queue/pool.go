// Package queue provides the fixed-size worker pool that execution drivers
// offload collaborator runs onto, keeping CPU-bound work off the goroutines
// serving streams and heartbeats.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrStopped is returned by Do after the pool has been stopped.
var ErrStopped = errors.New("worker pool stopped")

type job struct {
	fn   func()
	done chan struct{}
}

// Pool is a fixed-size worker pool. Jobs are executed by at most
// WorkerCount goroutines; Do blocks the caller until its job finishes.
type Pool struct {
	size     int
	jobs     chan job
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

// NewPool creates a pool with the given number of workers.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		size: size,
		jobs: make(chan job),
		quit: make(chan struct{}),
	}
}

// Start spawns the worker goroutines. It is safe to call multiple times;
// subsequent calls are no-ops.
func (p *Pool) Start() {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call")
		return
	}
	p.started = true

	slog.Info("Starting worker pool", "worker_count", p.size)
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run()
	}
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		select {
		case j := <-p.jobs:
			j.fn()
			close(j.done)
		case <-p.quit:
			return
		}
	}
}

// Do submits fn and blocks until it has run to completion. If ctx is
// cancelled before a worker picks the job up, Do returns ctx.Err() and the
// job never runs. Once a worker has started the job, Do waits for it even
// if ctx is cancelled — callers own cancellation inside fn.
func (p *Pool) Do(ctx context.Context, fn func()) error {
	j := job{fn: fn, done: make(chan struct{})}

	select {
	case p.jobs <- j:
	case <-p.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	<-j.done
	return nil
}

// Stop signals all workers to stop and waits for them to finish their
// current jobs. Safe to call multiple times.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.quit) })
	p.wg.Wait()
	slog.Info("Worker pool stopped")
}

// Size returns the configured worker count.
func (p *Pool) Size() int {
	return p.size
}
