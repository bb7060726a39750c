// Package tinfo tracks per-thread scheduling state: the block/wake
// channel a blocked syscall (wait, sleep, sigsuspend) parks on (blocked
// pipe reads and writes use the pipe's own channels instead), and the
// kill flag the scheduler uses to unwind a
// doomed thread out of that block. The teacher's Tnote_t played the same
// role on top of a forked Go runtime that exposed a raw goroutine-local
// slot (runtime.Gptr/Setgptr); this kernel runs on stock Go, which has no
// such hook, so the current thread note travels explicitly through a
// context.Context value instead of a hidden goroutine-local global.
package tinfo

import (
	"context"
	"sync"
	"time"

	"defs"
)

// Tnote_t is the per-thread note the scheduler and syscall dispatcher
// share for one kernel thread of execution (one goroutine standing in
// for one hardware thread, per spec §0's simulation model).
type Tnote_t struct {
	Tid      defs.Tid_t
	Alive    bool
	Killed   bool
	Isdoomed bool
	// protects Killed, Killnaps.Cond and Kerr; a leaf lock
	sync.Mutex
	Killnaps struct {
		Killch chan bool
		Cond   *sync.Cond
		Kerr   defs.Err_t
	}
	// Wake is closed by whoever unblocks this thread (a signal delivery,
	// or a child's exit waking a parent blocked in wait()). A blocked
	// operation selects on this channel.
	Wake chan struct{}
}

// Doomed reports whether the thread is marked to be torn down.
func (t *Tnote_t) Doomed() bool {
	t.Lock()
	defer t.Unlock()
	return t.Isdoomed
}

// Doom marks the thread doomed and wakes it if it is parked on Wake.
func (t *Tnote_t) Doom() {
	t.Lock()
	t.Isdoomed = true
	t.Unlock()
	t.WakeUp()
}

// WakeUp unblocks a thread parked in Block, idempotently.
func (t *Tnote_t) WakeUp() {
	t.Lock()
	defer t.Unlock()
	select {
	case <-t.Wake:
		// already closed; nothing to do
	default:
		close(t.Wake)
	}
}

// Block waits until WakeUp or Doom fires, or ctx is canceled, and resets
// the wake channel so the next Block call parks again.
func (t *Tnote_t) Block(ctx context.Context) {
	select {
	case <-t.Wake:
	case <-ctx.Done():
	}
	t.Lock()
	t.Wake = make(chan struct{})
	t.Unlock()
}

// BlockTimeout waits for WakeUp, ctx cancellation, or d to elapse,
// whichever comes first, then resets the wake channel.
func (t *Tnote_t) BlockTimeout(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-t.Wake:
	case <-timer.C:
	case <-ctx.Done():
	}
	t.Lock()
	t.Wake = make(chan struct{})
	t.Unlock()
}

// MkTnote constructs a fresh, live thread note for tid.
func MkTnote(tid defs.Tid_t) *Tnote_t {
	return &Tnote_t{Tid: tid, Alive: true, Wake: make(chan struct{})}
}

// Threadinfo_t tracks every live thread note, keyed by thread id, so the
// scheduler can enumerate or doom threads it does not currently hold a
// direct reference to (e.g. delivering SIGKILL to a whole process group).
type Threadinfo_t struct {
	sync.Mutex
	Notes map[defs.Tid_t]*Tnote_t
}

// Init prepares an empty thread table.
func (t *Threadinfo_t) Init() {
	t.Notes = make(map[defs.Tid_t]*Tnote_t)
}

// Put records note under its own Tid.
func (t *Threadinfo_t) Put(note *Tnote_t) {
	t.Lock()
	defer t.Unlock()
	t.Notes[note.Tid] = note
}

// Del removes the note for tid.
func (t *Threadinfo_t) Del(tid defs.Tid_t) {
	t.Lock()
	defer t.Unlock()
	delete(t.Notes, tid)
}

// Get returns the note for tid, if any.
func (t *Threadinfo_t) Get(tid defs.Tid_t) (*Tnote_t, bool) {
	t.Lock()
	defer t.Unlock()
	n, ok := t.Notes[tid]
	return n, ok
}

type contextKey int

const noteKey contextKey = 0

// WithNote returns a context carrying note as the current thread's note.
func WithNote(ctx context.Context, note *Tnote_t) context.Context {
	return context.WithValue(ctx, noteKey, note)
}

// Current returns the thread note carried by ctx, panicking if ctx was
// never decorated with WithNote: a missing note is treated as a
// programming error, not a runtime condition to recover from.
func Current(ctx context.Context) *Tnote_t {
	n, ok := ctx.Value(noteKey).(*Tnote_t)
	if !ok {
		panic("tinfo: no thread note in context")
	}
	return n
}
