// Package timerdrv stands in for the hardware timer interrupt (spec
// §4.3/§5): a periodic tick that lets the single-CPU scheduler
// preempt whatever process currently holds the CPU token. Real
// hardware programs the PIT/APIC to fire IRQ0 at a fixed frequency,
// original_source/timer.h's territory; hosted Go instead runs a
// time.Ticker goroutine calling the scheduler's Preempt at the same
// granularity signal delivery already uses (spec
// §4.4: "delivery happens at scheduler entry and syscall return").
package timerdrv

import (
	"context"
	"time"
)

// Scheduler_i is the subset of proc.Table_t the timer driver needs:
// just enough to ask "who currently holds the CPU" and bump them back
// to the ready queue's tail.
type Scheduler_i interface {
	Preempt()
}

// Driver_t periodically calls Preempt on an interval, simulating a
// fixed-frequency timer interrupt.
type Driver_t struct {
	interval time.Duration
	sched    Scheduler_i
}

// New constructs a timer driver that preempts the running process
// every interval.
func New(sched Scheduler_i, interval time.Duration) *Driver_t {
	return &Driver_t{interval: interval, sched: sched}
}

// Run blocks, firing Preempt every interval, until ctx is canceled.
// Callers start it as its own goroutine at boot.
func (d *Driver_t) Run(ctx context.Context) {
	t := time.NewTicker(d.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			d.sched.Preempt()
		}
	}
}
