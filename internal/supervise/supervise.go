// Package supervise runs long-lived workers with cancel-then-join stop
// semantics. A worker that does not return within the stop timeout is a
// reported shutdown failure, never silently abandoned.
package supervise

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrJoinTimeout is returned by [Task.Stop] when the worker did not return
// in time after being cancelled.
var ErrJoinTimeout = errors.New("supervise: join timed out")

// Task is a handle on one worker goroutine.
type Task struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Go starts fn in a new goroutine with a child of ctx. The child is cancelled
// by [Task.Stop] or when ctx is done.
func Go(ctx context.Context, name string, fn func(context.Context) error) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		defer cancel()
		t.err = fn(ctx)
		if t.err != nil && !errors.Is(t.err, context.Canceled) {
			slog.Warn("supervised task failed", "task", name, "err", t.err)
		} else {
			slog.Debug("supervised task stopped", "task", name)
		}
	}()
	return t
}

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Done is closed when the worker has returned.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the worker's result. It is nil until Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Stop cancels the worker and waits up to timeout for it to return. It
// returns the worker's error, or an error wrapping [ErrJoinTimeout] naming
// the task. A non-positive timeout waits indefinitely.
func (t *Task) Stop(timeout time.Duration) error {
	t.cancel()
	if timeout <= 0 {
		<-t.done
		return t.err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.done:
		return t.err
	case <-timer.C:
		return fmt.Errorf("%w: task %q did not stop within %s", ErrJoinTimeout, t.name, timeout)
	}
}
