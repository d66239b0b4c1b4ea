// Package queue provides the background task dispatcher used for document
// processing. Work is keyed by document identifier and at most one task per
// key is in flight at a time, so a new-document trigger and a retry-sweep
// trigger can never race on the same document.
package queue

import (
	"context"
	"log/slog"
	"sync"
)

// Dispatcher runs tasks on their own goroutines, serialized per key.
type Dispatcher struct {
	log *slog.Logger

	mu       sync.Mutex
	inflight map[string]bool
	wg       sync.WaitGroup
	closed   bool
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		log:      log,
		inflight: make(map[string]bool),
	}
}

// Enqueue starts task on its own goroutine unless a task for the same key is
// already running or the dispatcher is shut down. Reports whether the task
// was started. ctx should be the application context, not a request context:
// the task outlives the request that triggered it.
func (d *Dispatcher) Enqueue(ctx context.Context, key string, task func(context.Context)) bool {
	d.mu.Lock()
	if d.closed || d.inflight[key] {
		d.mu.Unlock()
		d.log.Debug("task not enqueued", "key", key, "closed", d.closed)
		return false
	}
	d.inflight[key] = true
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer func() {
			d.mu.Lock()
			delete(d.inflight, key)
			d.mu.Unlock()
			d.wg.Done()
		}()
		task(ctx)
	}()
	return true
}

// Shutdown stops accepting new tasks and waits for in-flight tasks to finish
// or ctx to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
