package timerdrv

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingSched struct {
	n atomic.Int32
}

func (s *countingSched) Preempt() { s.n.Add(1) }

func TestRunPreemptsUntilCanceled(t *testing.T) {
	sched := &countingSched{}
	d := New(sched, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for sched.n.Load() < 3 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for preemptions")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()
	<-done
}

func TestRunStopsImmediatelyOnCanceledContext(t *testing.T) {
	sched := &countingSched{}
	d := New(sched, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return promptly after context cancellation")
	}
}
