package queue

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnqueueRunsTask(t *testing.T) {
	d := NewDispatcher(testLogger())
	done := make(chan string, 1)

	ok := d.Enqueue(context.Background(), "doc-1", func(context.Context) {
		done <- "ran"
	})

	assert.True(t, ok)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
}

func TestEnqueueSerializesPerKey(t *testing.T) {
	d := NewDispatcher(testLogger())
	release := make(chan struct{})
	var runs atomic.Int32

	ok := d.Enqueue(context.Background(), "doc-1", func(context.Context) {
		runs.Add(1)
		<-release
	})
	assert.True(t, ok)

	// Same key while the first task is in flight: rejected.
	assert.False(t, d.Enqueue(context.Background(), "doc-1", func(context.Context) {
		runs.Add(1)
	}))

	// A different key is independent.
	other := make(chan struct{})
	assert.True(t, d.Enqueue(context.Background(), "doc-2", func(context.Context) {
		close(other)
	}))
	<-other

	close(release)
	assert.NoError(t, d.Shutdown(context.Background()))
	assert.Equal(t, int32(1), runs.Load())

	// After the first task finished the key can run again, but the
	// dispatcher is already shut down.
	assert.False(t, d.Enqueue(context.Background(), "doc-1", func(context.Context) {}))
}

func TestShutdownWaitsForTasks(t *testing.T) {
	d := NewDispatcher(testLogger())
	var finished atomic.Bool

	d.Enqueue(context.Background(), "doc-1", func(context.Context) {
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	})

	assert.NoError(t, d.Shutdown(context.Background()))
	assert.True(t, finished.Load())
}

func TestShutdownHonorsContext(t *testing.T) {
	d := NewDispatcher(testLogger())
	release := make(chan struct{})
	defer close(release)

	d.Enqueue(context.Background(), "doc-1", func(context.Context) {
		<-release
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Shutdown(ctx), context.DeadlineExceeded)
}
