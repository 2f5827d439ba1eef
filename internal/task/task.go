// Package task manages the lifecycle of the goroutines owned by a session: the supervisor
// worker and the event delivery loop.
//
// Example Usage:
//
//	mgr := task.NewManager(ctx, logger)
//
//	// run the loop until it returns false or the manager is stopped
//	_ = mgr.Start("worker", func(ctx context.Context) bool {
//	    // ... one iteration ...
//	    return true
//	}, func() {
//	    // ... runs once when the loop exits ...
//	})
//
//	mgr.Stop() // cancel the context seen by every task
//	mgr.Wait() // wait for termination; the manager can be started again afterwards
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-tether/logger"
)

// ErrStopped is returned by Start when the manager was stopped and not yet re-armed by Wait,
// or when its parent context is done.
var ErrStopped = errors.New("task: manager stopped")

// Func is one iteration of a task loop. It returns true to run another iteration and false to
// end the task. ctx is cancelled when the manager is stopped.
type Func func(ctx context.Context) bool

// ExitFunc is invoked exactly once after a task loop ends, whatever the reason.
type ExitFunc func()

// Manager runs named task loops in goroutines and supports stop / wait / restart cycles.
type Manager struct {
	pctx   context.Context
	mu     sync.RWMutex // protects ctx and cancel
	ctx    context.Context
	cancel context.CancelFunc
	taskMu sync.RWMutex // keeps wg.Add from racing with Wait
	wg     sync.WaitGroup
	count  atomic.Int32
	logger logger.Logger
}

// NewManager creates a Manager whose task contexts derive from ctx.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	if l == nil {
		l = logger.GetLogger()
	}
	mgr := &Manager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context handed to the currently running tasks.
func (mgr *Manager) Context() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Start runs fn repeatedly in a new goroutine until it returns false, panics, or the manager
// is stopped. onExit may be nil.
func (mgr *Manager) Start(name string, fn Func, onExit ExitFunc) error {
	ctx := mgr.Context()
	if ctx.Err() != nil {
		return fmt.Errorf("%w: cannot start %s", ErrStopped, name)
	}

	mgr.taskMu.RLock()
	defer mgr.taskMu.RUnlock()

	mgr.wg.Add(1)
	mgr.count.Add(1)
	mgr.logger.Debug("start task", "name", name)

	go func() {
		defer mgr.wg.Done()
		defer func() {
			mgr.count.Add(-1)
			mgr.logger.Debug("task terminated", "name", name, "task_count", mgr.Count())
		}()
		if onExit != nil {
			defer mgr.callWithRecover(name, onExit)
		}

		for ctx.Err() == nil {
			if !mgr.iterate(ctx, name, fn) {
				return
			}
		}
	}()

	return nil
}

// Stop signals all running tasks by cancelling their context.
func (mgr *Manager) Stop() {
	mgr.mu.Lock()
	mgr.cancel()
	mgr.mu.Unlock()
}

// Wait waits for all tasks to terminate, then re-arms the manager with a fresh context so
// that Start can be used again.
func (mgr *Manager) Wait() {
	mgr.taskMu.Lock()
	defer mgr.taskMu.Unlock()

	mgr.wg.Wait()

	mgr.mu.Lock()
	if mgr.ctx.Err() != nil {
		mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	}
	mgr.mu.Unlock()
}

// Count returns the number of running tasks.
func (mgr *Manager) Count() int {
	return int(mgr.count.Load())
}

// iterate runs one iteration with panic protection; a panicking task is ended.
func (mgr *Manager) iterate(ctx context.Context, name string, fn Func) (next bool) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
			next = false
		}
	}()

	return fn(ctx)
}

func (mgr *Manager) callWithRecover(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task exit hook", "name", name, "panic", r)
		}
	}()

	fn()
}
