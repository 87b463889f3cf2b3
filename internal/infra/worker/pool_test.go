package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_RunsTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewPool(3, nil)
	p.Start(ctx)
	defer p.Stop()

	var (
		wg   sync.WaitGroup
		done int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		if err := p.Submit(ctx, func(ctx context.Context) error {
			defer wg.Done()
			atomic.AddInt32(&done, 1)
			return nil
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	wg.Wait()
	if got := atomic.LoadInt32(&done); got != 20 {
		t.Fatalf("expected 20 tasks, got %d", got)
	}
}

func TestPool_SurvivesPanicsAndErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewPool(1, nil)
	p.Start(ctx)
	defer p.Stop()

	_ = p.Submit(ctx, func(ctx context.Context) error { panic("boom") })
	_ = p.Submit(ctx, func(ctx context.Context) error { return errors.New("bad") })

	ran := make(chan struct{})
	if err := p.Submit(ctx, func(ctx context.Context) error { close(ran); return nil }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not recover from panic")
	}
}

func TestPool_TrySubmitQueueFull(t *testing.T) {
	p := NewPool(1, nil) // not started: nothing drains the queue
	for i := 0; i < 4; i++ {
		if err := p.TrySubmit(func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("TrySubmit %d: %v", i, err)
		}
	}
	if err := p.TrySubmit(func(ctx context.Context) error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if err := p.TrySubmit(nil); !errors.Is(err, ErrNilTask) {
		t.Fatalf("expected ErrNilTask, got %v", err)
	}
}

func TestPool_SubmitAfterStop(t *testing.T) {
	p := NewPool(1, nil)
	p.Start(context.Background())
	p.Stop()
	p.Stop()

	if err := p.Submit(context.Background(), func(ctx context.Context) error { return nil }); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestPool_SubmitHonorsContext(t *testing.T) {
	p := NewPool(1, nil)
	for i := 0; i < 4; i++ {
		_ = p.TrySubmit(func(ctx context.Context) error { return nil })
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Submit(ctx, func(ctx context.Context) error { return nil }); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
