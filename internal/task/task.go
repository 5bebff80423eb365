// Package task runs named goroutines bound to a shared context.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-packedserial/logger"
)

// ErrStopped is returned when starting a task on a stopped Manager.
var ErrStopped = errors.New("task: manager stopped")

// Func is the body of a task. It should return when ctx is done.
type Func func(ctx context.Context)

// IntervalFunc is invoked on every tick. Returning false stops the interval task.
type IntervalFunc func(ctx context.Context) bool

// Manager manages the lifecycle of goroutines.
//
// Every task receives the manager's context. Stop cancels it and Wait blocks until every task
// returned, after which the manager can start tasks again. A panicking task is recovered and
// logged; it never takes the process down.
//
// Example Usage:
//
//	mgr := task.NewManager(ctx, logger)
//	_ = mgr.Start("reader", func(ctx context.Context) {
//	    // ... read until ctx is done ...
//	})
//	mgr.Stop()
//	mgr.Wait()
type Manager struct {
	pctx   context.Context
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
	count  atomic.Int32
	mu     sync.RWMutex // protect ctx and cancel
}

// NewManager creates a Manager using ctx as the parent context.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	mgr := &Manager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context passed to tasks.
func (mgr *Manager) Context() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Start runs fn in a new goroutine.
func (mgr *Manager) Start(name string, fn Func) error {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	ctx := mgr.ctx
	if ctx.Err() != nil {
		return fmt.Errorf("%w: cannot start %s", ErrStopped, name)
	}

	mgr.wg.Add(1)
	mgr.count.Add(1)

	go func() {
		defer func() {
			mgr.count.Add(-1)
			mgr.wg.Done()
			mgr.logger.Debug(fmt.Sprintf("%s task terminated", name), "task_count", mgr.Count())
		}()

		mgr.callWithRecover(name, func() { fn(ctx) })
	}()

	return nil
}

// StartInterval runs fn every interval until it returns false or the manager stops.
// If runNow is true, fn also runs once immediately inside the new goroutine.
func (mgr *Manager) StartInterval(name string, interval time.Duration, runNow bool, fn IntervalFunc) error {
	if interval <= 0 {
		return fmt.Errorf("task: invalid interval %v for %s", interval, name)
	}

	return mgr.Start(name, func(ctx context.Context) {
		if runNow && !fn(ctx) {
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !fn(ctx) {
					return
				}
			}
		}
	})
}

// Stop signals all running tasks.
func (mgr *Manager) Stop() {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	mgr.cancel()
}

// Wait blocks until every task has returned, then re-arms the manager.
func (mgr *Manager) Wait() {
	mgr.wg.Wait()

	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if mgr.ctx.Err() != nil && mgr.pctx.Err() == nil {
		mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	}
}

// Count returns the number of running tasks.
func (mgr *Manager) Count() int {
	return int(mgr.count.Load())
}

func (mgr *Manager) callWithRecover(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
		}
	}()

	fn()
}
