package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestIntervalSchedulerRunsImmediatelyAndRepeats(t *testing.T) {
	s := NewIntervalScheduler(10 * time.Millisecond)

	var runs atomic.Int32
	if err := s.Start(context.Background(), func(time.Time) { runs.Add(1) }); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if runs.Load() < 3 {
		t.Fatalf("expected at least 3 runs, got %d", runs.Load())
	}

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	if runs.Load() != after {
		t.Fatalf("job ran after stop")
	}
}

func TestIntervalSchedulerStopsOnContext(t *testing.T) {
	s := NewIntervalScheduler(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{}, 1)
	if err := s.Start(ctx, func(time.Time) { started <- struct{}{} }); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-started
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("stop after cancel: %v", err)
	}
}

func TestIntervalSchedulerStopWithoutStart(t *testing.T) {
	if err := NewIntervalScheduler(0).Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
