package heartbeat

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeToucher struct {
	touched atomic.Int64
	result  bool
	err     error
}

func (f *fakeToucher) Touch(ctx context.Context) (bool, error) {
	f.touched.Add(1)
	return f.result, f.err
}

func TestRunOnce(t *testing.T) {
	f := &fakeToucher{result: true}
	w := NewWorker(f, time.Second)

	touched, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !touched {
		t.Error("touched = false, want true")
	}
	if f.touched.Load() != 1 {
		t.Errorf("Touch called %d times, want 1", f.touched.Load())
	}
}

func TestRunOnceError(t *testing.T) {
	wantErr := errors.New("storage down")
	f := &fakeToucher{err: wantErr}
	w := NewWorker(f, time.Second)

	_, err := w.RunOnce(context.Background())
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want %v", err, wantErr)
	}
}

func TestDefaultInterval(t *testing.T) {
	w := NewWorker(&fakeToucher{}, 0)
	if w.interval != 30*time.Second {
		t.Errorf("interval = %v, want 30s", w.interval)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := &fakeToucher{result: true}
	w := NewWorker(f, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	// Let a few ticks fire, then cancel.
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	if f.touched.Load() == 0 {
		t.Error("Touch never called while running")
	}
}
