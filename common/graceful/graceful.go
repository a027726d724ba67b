// Package graceful coordinates shutdown: background workers register here,
// cleanup hooks run in reverse registration order after the HTTP listener
// stops accepting and in-flight streams drain.
package graceful

import (
	"context"
	"sync"

	"github.com/Laisky/zap"

	"github.com/shinmentakezo07/shinway-sub001/common/logger"
)

var (
	mu      sync.Mutex
	hooks   []hook
	workers sync.WaitGroup
)

type hook struct {
	name string
	fn   func(context.Context)
}

// OnShutdown registers a cleanup hook.
func OnShutdown(name string, fn func(context.Context)) {
	mu.Lock()
	defer mu.Unlock()
	hooks = append(hooks, hook{name: name, fn: fn})
}

// Go runs a tracked background worker; Shutdown waits for these to return.
func Go(name string, fn func()) {
	workers.Add(1)
	go func() {
		defer workers.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Logger.Error("background worker panicked",
					zap.String("worker", name), zap.Any("panic", r))
			}
		}()
		fn()
	}()
}

// Shutdown waits for workers, then runs hooks newest-first. The context
// bounds the whole sequence.
func Shutdown(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Logger.Warn("shutdown grace period expired with workers still running")
	}

	mu.Lock()
	pending := make([]hook, len(hooks))
	copy(pending, hooks)
	mu.Unlock()

	for i := len(pending) - 1; i >= 0; i-- {
		logger.Logger.Info("running shutdown hook", zap.String("hook", pending[i].name))
		pending[i].fn(ctx)
	}
}
