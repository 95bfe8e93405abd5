// Package executor runs asynchronous work on a shared pool of goroutines.
//
// An [Executor] is the execution engine that every dispatched request of one
// or more client contexts runs on. It is created explicitly, outlives the
// client contexts bound to it, and is torn down with either [Executor.Shutdown]
// (graceful) or [Executor.Dispose] (abrupt).
package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"code.hybscloud.com/atomix"
)

// ErrClosed is returned when work is submitted to, or a shutdown is requested
// on, an Executor that no longer accepts tasks.
var ErrClosed = errors.New("executor closed")

// WorkFunc is the signature for a unit of asynchronous work. ctx is cancelled
// when the Executor is disposed.
type WorkFunc func(ctx context.Context)

// Executor manages a set of concurrently running tasks.
type Executor struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	wg       sync.WaitGroup
	mu       sync.Mutex
	sem      chan struct{}
	shutdown atomic.Bool
	spawned  atomix.Uint32
	running  atomic.Int64
}

// New creates an Executor. By default the number of concurrently running
// tasks is unbounded.
func New(optFns ...Option) *Executor {
	var opts options
	for _, opt := range optFns {
		opt(&opts)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		ctx:    ctx,
		cancel: cancel,
		logger: slog.Default(),
	}

	if opts.logger != nil {
		e.logger = opts.logger
	}
	if opts.maxConcurrent > 0 {
		e.sem = make(chan struct{}, opts.maxConcurrent)
	}

	return e
}

// Spawn launches fn in a new goroutine managed by the Executor and returns a
// Task for tracking it. It returns ErrClosed once Shutdown or Dispose has been
// called; in that case fn never runs.
//
// When a concurrency limit is configured, fn waits for a free slot. If the
// Executor is disposed while waiting, fn still runs with a cancelled context
// so it can report its own termination.
func (e *Executor) Spawn(fn WorkFunc) (*Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.shutdown.Load() {
		return nil, ErrClosed
	}

	t := &Task{
		id:   e.spawned.Add(1),
		done: make(chan struct{}),
	}

	e.wg.Add(1)
	go func() {
		defer func() {
			e.running.Add(-1)
			close(t.done)
			e.wg.Done()
		}()
		e.running.Add(1)

		if e.sem != nil {
			select {
			case e.sem <- struct{}{}:
				defer func() {
					<-e.sem
				}()
			case <-e.ctx.Done():
			}
		}

		fn(e.ctx)
	}()

	return t, nil
}

// Running reports the number of tasks that have been spawned and not yet finished.
func (e *Executor) Running() int {
	return int(e.running.Load())
}

// Shutdown stops accepting new tasks and blocks until every running task has
// finished or ctx ends. Running tasks are not cancelled.
func (e *Executor) Shutdown(ctx context.Context) error {
	if !e.close() {
		return ErrClosed
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		e.logger.Debug("executor shut down", "tasks", e.spawned.Add(0))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispose stops accepting new tasks, cancels every running task and waits
// for them to return. Tasks observe the cancellation at their next
// suspension point. Calling Dispose more than once is a no-op.
func (e *Executor) Dispose() {
	e.close()
	e.cancel()
	e.wg.Wait()
	e.logger.Debug("executor disposed", "tasks", e.spawned.Add(0))
}

// close flips the shutdown flag under the spawn lock so no Spawn can race
// past it and call wg.Add after Wait has started.
func (e *Executor) close() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.shutdown.CompareAndSwap(false, true)
}
