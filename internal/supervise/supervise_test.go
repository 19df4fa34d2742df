package supervise_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/vocalis/internal/supervise"
)

func TestTask_StopCancelsAndJoins(t *testing.T) {
	t.Parallel()

	task := supervise.Go(context.Background(), "worker", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})

	if err := task.Stop(time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-task.Done():
	default:
		t.Fatal("Done not closed after Stop returned")
	}
}

func TestTask_StopReturnsWorkerError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	task := supervise.Go(context.Background(), "worker", func(ctx context.Context) error {
		<-ctx.Done()
		return boom
	})
	if err := task.Stop(time.Second); !errors.Is(err, boom) {
		t.Fatalf("Stop = %v, want %v", err, boom)
	}
	if err := task.Err(); !errors.Is(err, boom) {
		t.Errorf("Err = %v, want %v", err, boom)
	}
}

func TestTask_StopJoinTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	task := supervise.Go(context.Background(), "stuck", func(ctx context.Context) error {
		<-release
		return nil
	})
	defer close(release)

	err := task.Stop(20 * time.Millisecond)
	if !errors.Is(err, supervise.ErrJoinTimeout) {
		t.Fatalf("Stop = %v, want ErrJoinTimeout", err)
	}
	if task.Err() != nil {
		t.Errorf("Err = %v before the worker returned, want nil", task.Err())
	}
}

func TestTask_ParentCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	task := supervise.Go(ctx, "worker", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	cancel()

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not stop after parent cancellation")
	}
	if !errors.Is(task.Err(), context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", task.Err())
	}
	if task.Name() != "worker" {
		t.Errorf("Name = %q", task.Name())
	}
}
