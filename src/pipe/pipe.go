// Package pipe implements anonymous pipes (spec §4.5): a fixed pool of
// 64 pipes, each backed by an independent 4096-byte circbuf.Circbuf_t
// ring, with blocking read/write and FIFO byte ordering. There is no
// non-blocking mode. Buffer sizing, the read/write-open flags and the blocked-
// read-returns-EOF-once-the-writer-closes behavior all follow the
// original kernel's pipe.h.
package pipe

import (
	"context"
	"sync"

	"circbuf"
	"defs"
	"fdops"
)

// BufSize is the fixed per-pipe ring buffer capacity.
const BufSize = 4096

// PoolSize is the maximum number of simultaneously open pipes.
const PoolSize = 64

// Pipe_t is one anonymous pipe's shared state between its read and
// write ends.
type Pipe_t struct {
	mu        sync.Mutex
	cb        *circbuf.Circbuf_t
	readOpen  bool
	writeOpen bool
	readers   int
	writers   int
	readWake  chan struct{}
	writeWake chan struct{}
	onDead    func() // called once, when both ends have fully closed
}

func mkPipe(onDead func()) *Pipe_t {
	return &Pipe_t{
		cb:        circbuf.MkCircbuf(BufSize),
		readOpen:  true,
		writeOpen: true,
		readers:   1,
		writers:   1,
		readWake:  make(chan struct{}),
		writeWake: make(chan struct{}),
		onDead:    onDead,
	}
}

// maybeDeadLocked calls onDead once both ends have closed. Caller must
// hold p.mu.
func (p *Pipe_t) maybeDeadLocked() {
	if p.onDead != nil && !p.readOpen && !p.writeOpen {
		f := p.onDead
		p.onDead = nil
		f()
	}
}

// bumpLocked wakes everyone parked on *ch; caller must hold p.mu.
func bumpLocked(ch *chan struct{}) {
	old := *ch
	*ch = make(chan struct{})
	close(old)
}

// Read copies from the pipe into dst, blocking while the buffer is
// empty and the write end is still open. It returns (0, 0) at EOF: the
// buffer is empty and every writer has closed.
func (p *Pipe_t) Read(ctx context.Context, dst fdops.Userio_i) (int, defs.Err_t) {
	for {
		p.mu.Lock()
		if !p.cb.Empty() {
			n, err := p.cb.Copyout(dst)
			bumpLocked(&p.writeWake)
			p.mu.Unlock()
			return n, err
		}
		if !p.writeOpen {
			p.mu.Unlock()
			return 0, 0
		}
		ch := p.readWake
		p.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return 0, defs.EINTR
		}
	}
}

// Write copies from src into the pipe, blocking while the buffer is
// full and the read end is still open. It fails with EPIPE once every
// reader has closed.
func (p *Pipe_t) Write(ctx context.Context, src fdops.Userio_i) (int, defs.Err_t) {
	for {
		p.mu.Lock()
		if !p.readOpen {
			p.mu.Unlock()
			return 0, defs.EPIPE
		}
		if !p.cb.Full() {
			n, err := p.cb.Copyin(src)
			bumpLocked(&p.readWake)
			p.mu.Unlock()
			return n, err
		}
		ch := p.writeWake
		p.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return 0, defs.EINTR
		}
	}
}

func (p *Pipe_t) closeRead() {
	p.mu.Lock()
	p.readers--
	if p.readers <= 0 {
		p.readOpen = false
		bumpLocked(&p.writeWake)
	}
	p.maybeDeadLocked()
	p.mu.Unlock()
}

func (p *Pipe_t) closeWrite() {
	p.mu.Lock()
	p.writers--
	if p.writers <= 0 {
		p.writeOpen = false
		bumpLocked(&p.readWake)
	}
	p.maybeDeadLocked()
	p.mu.Unlock()
}

func (p *Pipe_t) reopenRead()  { p.mu.Lock(); p.readers++; p.mu.Unlock() }
func (p *Pipe_t) reopenWrite() { p.mu.Lock(); p.writers++; p.mu.Unlock() }

// ReadEnd_t is the fdops.Fdops_i a pipe's read descriptor uses.
type ReadEnd_t struct{ P *Pipe_t }

// WriteEnd_t is the fdops.Fdops_i a pipe's write descriptor uses.
type WriteEnd_t struct{ P *Pipe_t }

var _ fdops.Fdops_i = (*ReadEnd_t)(nil)
var _ fdops.Fdops_i = (*WriteEnd_t)(nil)

// Read end's Fdops_i methods. Blocked pipe reads are not interruptible
// by a delivered signal through this interface — Fdops_i carries no
// context, so there is nowhere to plumb cancellation from the syscall
// dispatcher down to here without widening that shared contract. A
// doomed thread still unblocks: Close on the write end (or process exit
// tearing down the write end) wakes any blocked reader with EOF.
func (r *ReadEnd_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	return r.P.Read(context.Background(), dst)
}
func (r *ReadEnd_t) Write(fdops.Userio_i) (int, defs.Err_t) { return 0, defs.EINVAL }
func (r *ReadEnd_t) Close() defs.Err_t                      { r.P.closeRead(); return 0 }
func (r *ReadEnd_t) Reopen() defs.Err_t                     { r.P.reopenRead(); return 0 }

func (w *WriteEnd_t) Read(fdops.Userio_i) (int, defs.Err_t) { return 0, defs.EINVAL }
func (w *WriteEnd_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	return w.P.Write(context.Background(), src)
}
func (w *WriteEnd_t) Close() defs.Err_t  { w.P.closeWrite(); return 0 }
func (w *WriteEnd_t) Reopen() defs.Err_t { w.P.reopenWrite(); return 0 }

// Budget is the subset of limits.Sysatomic_t's contract Pool_t needs;
// kept as a narrow interface so pipe doesn't have to import limits just
// to admission-control pipe creation.
type Budget interface {
	Take() bool
	Give()
}

// Pool_t is the system-wide bounded set of live pipes (spec §4.5's pool
// of 64), admission-controlled through a Budget (limits.Syslimit_t.Pipes
// in production).
type Pool_t struct {
	limit Budget
}

// MkPool constructs a pool admission-controlled by limit.
func MkPool(limit Budget) *Pool_t {
	return &Pool_t{limit: limit}
}

// New creates a fresh pipe's two ends, failing with ENOMEM if the pool
// is already at capacity. The pool's budget is given back automatically
// once both ends have closed.
func (pl *Pool_t) New() (*ReadEnd_t, *WriteEnd_t, defs.Err_t) {
	if !pl.limit.Take() {
		return nil, nil, defs.ENOMEM
	}
	p := mkPipe(pl.limit.Give)
	return &ReadEnd_t{P: p}, &WriteEnd_t{P: p}, 0
}
