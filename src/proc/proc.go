// Package proc implements the process control block table and the
// single-CPU cooperative-preemptive round-robin scheduler (spec §4.3,
// §5). Hosted Go has no hardware timer interrupt to reach into arbitrary
// user code and preempt it, so "one CPU" is modeled as a single token:
// exactly one process goroutine may be RUNNING — i.e. executing its own
// logic rather than parked — at a time, and every blocking operation
// (Block/Sleep/Wait) explicitly hands the token back to the scheduler
// before the calling goroutine parks itself. Preemption happens at the
// granularity the teacher's dispatcher already uses for signal delivery:
// syscall return and scheduler re-entry (spec §4.4), via kern's periodic
// timer tick calling Table_t.Preempt, which Releases whichever process
// holds the token.
package proc

import (
	"context"
	"sync"
	"time"

	"accnt"
	"defs"
	"fd"
	"limits"
	"regs"
	"signal"
	"tinfo"
	"vm"
)

// Pstate_t is a process's scheduling state.
type Pstate_t int

const (
	READY Pstate_t = iota
	RUNNING
	BLOCKED
	SLEEPING
	ZOMBIE
	STOPPED
)

func (s Pstate_t) String() string {
	switch s {
	case READY:
		return "READY"
	case RUNNING:
		return "RUNNING"
	case BLOCKED:
		return "BLOCKED"
	case SLEEPING:
		return "SLEEPING"
	case ZOMBIE:
		return "ZOMBIE"
	case STOPPED:
		return "STOPPED"
	}
	return "???"
}

// Proc_t is one process control block.
type Proc_t struct {
	mu sync.Mutex

	Pid   defs.Pid_t
	Ppid  defs.Pid_t
	Name  string
	State Pstate_t

	Regs regs.Registers_t
	As   *vm.Vm_t

	Sig   *signal.Set_t
	Tnote *tinfo.Tnote_t
	Accnt accnt.Accnt_t

	Fds [16]*fd.Fd_t
	Cwd *fd.Cwd_t

	Pgid defs.Pid_t
	Sid  defs.Pid_t

	StartTime time.Time
	SleepFor  time.Duration

	ExitStatus int
	Reaped     bool
	Children   map[defs.Pid_t]bool
}

// Lock/Unlock let callers (syscall handlers) hold a process's own lock
// across a multi-field read-modify-write without reaching into the
// unexported mutex directly.
func (p *Proc_t) Lock()   { p.mu.Lock() }
func (p *Proc_t) Unlock() { p.mu.Unlock() }

// GetState returns the process's scheduling state under lock.
func (p *Proc_t) GetState() Pstate_t {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.State
}

// Table_t is the fixed-size process table (spec §4.3: "a fixed table of
// 64") together with the single-CPU scheduler state.
type Table_t struct {
	mu      sync.Mutex
	procs   map[defs.Pid_t]*Proc_t
	nextPid defs.Pid_t
	limit   *limits.Syslimit_t
	vmm     *vm.Vmm_t

	ready   []defs.Pid_t
	wake    map[defs.Pid_t]chan struct{}
	running defs.Pid_t // 0 means no process currently holds the CPU
}

// MkTable constructs an empty process table bounded by limit.Sysprocs.
func MkTable(vmm *vm.Vmm_t, limit *limits.Syslimit_t) *Table_t {
	return &Table_t{
		procs: make(map[defs.Pid_t]*Proc_t),
		wake:  make(map[defs.Pid_t]chan struct{}),
		nextPid: 1,
		limit:   limit,
		vmm:     vmm,
	}
}

// Create allocates a new PCB as a child of ppid (0 for the first
// process), in its own address space as, and leaves it READY in the
// scheduler's ready queue. A new process starts as the leader of its
// own process group and session unless its parent exists, in which case
// it inherits the parent's group and session (spec §4.3's process-group/
// session model, and the fork() semantics original_source/process.h
// implies by storing process_group/session_id per PCB).
func (t *Table_t) Create(ppid defs.Pid_t, name string, as *vm.Vm_t) (*Proc_t, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.procs) >= t.limit.Sysprocs {
		return nil, defs.ENOMEM
	}
	pid := t.nextPid
	t.nextPid++
	p := &Proc_t{
		Pid:       pid,
		Ppid:      ppid,
		Name:      name,
		State:     READY,
		As:        as,
		Sig:       signal.MkSet(),
		Tnote:     tinfo.MkTnote(defs.Tid_t(pid)),
		Cwd:       fd.MkRootCwd(nil),
		Pgid:      pid,
		Sid:       pid,
		StartTime: time.Now(),
		Children:  make(map[defs.Pid_t]bool),
	}
	if parent, ok := t.procs[ppid]; ok {
		parent.mu.Lock()
		parent.Children[pid] = true
		p.Pgid = parent.Pgid
		p.Sid = parent.Sid
		parent.mu.Unlock()
	}
	t.procs[pid] = p
	t.wake[pid] = make(chan struct{}, 1)
	t.enqueueLocked(pid)
	return p, 0
}

// Fork creates a READY clone of parentPid's process: an independently
// copied address space (vm.Vmm_t.ForkUserSpace), duplicated file
// descriptors, and a copy of the parent's current registers, signal
// dispositions and blocked mask (spec §4.7 code 2: "child = READY
// clone; ... signal dispositions and blocked mask are copied"). The
// caller (trap's sysFork) is responsible for setting the child's return
// value to 0 and the parent's to the child's pid in their respective
// saved registers; Fork itself only builds the PCB.
func (t *Table_t) Fork(vmm *vm.Vmm_t, parentPid defs.Pid_t) (*Proc_t, defs.Err_t) {
	t.mu.Lock()
	parent, ok := t.procs[parentPid]
	if !ok {
		t.mu.Unlock()
		return nil, defs.ESRCH
	}
	if len(t.procs) >= t.limit.Sysprocs {
		t.mu.Unlock()
		return nil, defs.ENOMEM
	}
	t.mu.Unlock()

	parent.mu.Lock()
	childAs, err := vmm.ForkUserSpace(parent.As)
	if err != 0 {
		parent.mu.Unlock()
		return nil, err
	}
	childSig := signal.MkSet()
	childSig.Actions = parent.Sig.Actions
	childSig.Blocked = parent.Sig.Blocked
	var childFds [16]*fd.Fd_t
	for i, pf := range parent.Fds {
		if pf == nil {
			continue
		}
		nf, ferr := fd.Copyfd(pf)
		if ferr != 0 {
			continue
		}
		childFds[i] = nf
	}
	childRegs := parent.Regs
	pgid := parent.Pgid
	sid := parent.Sid
	cwd := &fd.Cwd_t{Fd: parent.Cwd.Fd, Path: parent.Cwd.Path}
	name := parent.Name
	parent.mu.Unlock()

	t.mu.Lock()
	if len(t.procs) >= t.limit.Sysprocs {
		t.mu.Unlock()
		return nil, defs.ENOMEM
	}
	pid := t.nextPid
	t.nextPid++
	child := &Proc_t{
		Pid:       pid,
		Ppid:      parentPid,
		Name:      name,
		State:     READY,
		As:        childAs,
		Regs:      childRegs,
		Sig:       childSig,
		Tnote:     tinfo.MkTnote(defs.Tid_t(pid)),
		Fds:       childFds,
		Cwd:       cwd,
		Pgid:      pgid,
		Sid:       sid,
		StartTime: time.Now(),
		Children:  make(map[defs.Pid_t]bool),
	}
	parent.mu.Lock()
	parent.Children[pid] = true
	parent.mu.Unlock()
	t.procs[pid] = child
	t.wake[pid] = make(chan struct{}, 1)
	t.enqueueLocked(pid)
	t.mu.Unlock()
	return child, 0
}

// Get looks up a live PCB by pid.
func (t *Table_t) Get(pid defs.Pid_t) (*Proc_t, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.procs[pid]
	return p, ok
}

func (t *Table_t) enqueueLocked(pid defs.Pid_t) {
	t.ready = append(t.ready, pid)
}

// scheduleLocked hands the CPU token to the next ready process, if the
// CPU is currently idle and the ready queue is non-empty. Must be called
// with t.mu held.
func (t *Table_t) scheduleLocked() {
	if t.running != 0 || len(t.ready) == 0 {
		return
	}
	next := t.ready[0]
	t.ready = t.ready[1:]
	t.running = next
	select {
	case t.wake[next] <- struct{}{}:
	default:
	}
}

// Boot hands the CPU to whichever process was enqueued first (normally
// the kernel's init process), starting the scheduler.
func (t *Table_t) Boot() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scheduleLocked()
}

// Acquire blocks until pid holds the CPU token, then marks it RUNNING.
// Every process goroutine calls this before executing a burst of its
// own logic.
func (t *Table_t) Acquire(ctx context.Context, pid defs.Pid_t) {
	t.mu.Lock()
	ch := t.wake[pid]
	t.mu.Unlock()
	select {
	case <-ch:
	case <-ctx.Done():
		return
	}
	t.mu.Lock()
	if p, ok := t.procs[pid]; ok {
		p.mu.Lock()
		p.State = RUNNING
		p.mu.Unlock()
	}
	t.mu.Unlock()
}

// Release voluntarily gives up the CPU: pid returns to READY at the back
// of the queue, and the next ready process (if any) is scheduled.
func (t *Table_t) Release(pid defs.Pid_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running != pid {
		return
	}
	t.running = 0
	if p, ok := t.procs[pid]; ok {
		p.mu.Lock()
		p.State = READY
		p.mu.Unlock()
		t.enqueueLocked(pid)
	}
	t.scheduleLocked()
}

// Block transitions pid from RUNNING to state (BLOCKED, SLEEPING or
// STOPPED) without requeuing it, and schedules the next ready process.
// The caller is responsible for actually parking its own goroutine
// afterward (typically via p.Tnote.Block or BlockTimeout) and for
// calling Acquire again once it is ready to resume.
func (t *Table_t) Block(pid defs.Pid_t, state Pstate_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running == pid {
		t.running = 0
	}
	if p, ok := t.procs[pid]; ok {
		p.mu.Lock()
		p.State = state
		p.mu.Unlock()
	}
	t.scheduleLocked()
}

// Unblock moves pid from BLOCKED/SLEEPING/STOPPED back to READY and
// wakes its goroutine. If the CPU is currently idle, Unblock also hands
// it the token immediately.
func (t *Table_t) Unblock(pid defs.Pid_t) {
	t.mu.Lock()
	p, ok := t.procs[pid]
	if !ok {
		t.mu.Unlock()
		return
	}
	p.mu.Lock()
	already := p.State == READY || p.State == RUNNING
	p.State = READY
	p.mu.Unlock()
	t.mu.Unlock()
	if !already {
		p.Tnote.WakeUp()
		t.mu.Lock()
		t.enqueueLocked(pid)
		t.scheduleLocked()
		t.mu.Unlock()
	}
}

// Sleep blocks pid for d, or until woken early (e.g. by a delivered
// signal) or ctx is canceled.
func (t *Table_t) Sleep(ctx context.Context, pid defs.Pid_t, d time.Duration) defs.Err_t {
	p, ok := t.Get(pid)
	if !ok {
		return defs.ESRCH
	}
	t.Block(pid, SLEEPING)
	p.Tnote.BlockTimeout(ctx, d)
	t.Acquire(ctx, pid)
	if ctx.Err() != nil {
		return defs.EINTR
	}
	return 0
}

// Exit marks pid a zombie, records its exit status, relinquishes the
// CPU if pid held it, and wakes the parent's wait().
func (t *Table_t) Exit(pid defs.Pid_t, status int) {
	t.mu.Lock()
	p, ok := t.procs[pid]
	if !ok {
		t.mu.Unlock()
		return
	}
	if t.running == pid {
		t.running = 0
	}
	p.mu.Lock()
	p.State = ZOMBIE
	p.ExitStatus = status
	p.mu.Unlock()
	parent, pok := t.procs[p.Ppid]
	t.scheduleLocked()
	t.mu.Unlock()
	if pok {
		parent.Tnote.WakeUp()
	}
}

// Wait blocks pid until one of its children becomes a reapable zombie,
// reaps it, and returns its pid and exit status. It fails with ECHILD
// immediately if pid has no children at all.
func (t *Table_t) Wait(ctx context.Context, pid defs.Pid_t) (defs.Pid_t, int, defs.Err_t) {
	for {
		t.mu.Lock()
		parent, ok := t.procs[pid]
		if !ok {
			t.mu.Unlock()
			return 0, 0, defs.ESRCH
		}
		parent.mu.Lock()
		if len(parent.Children) == 0 {
			parent.mu.Unlock()
			t.mu.Unlock()
			return 0, 0, defs.ECHILD
		}
		for cpid := range parent.Children {
			child, cok := t.procs[cpid]
			if !cok {
				continue
			}
			child.mu.Lock()
			zombie := child.State == ZOMBIE && !child.Reaped
			if zombie {
				child.Reaped = true
			}
			status := child.ExitStatus
			child.mu.Unlock()
			if zombie {
				delete(parent.Children, cpid)
				delete(t.procs, cpid)
				delete(t.wake, cpid)
				parent.mu.Unlock()
				t.mu.Unlock()
				return cpid, status, 0
			}
		}
		parent.mu.Unlock()
		t.mu.Unlock()

		t.Block(pid, BLOCKED)
		parent.Tnote.Block(ctx)
		t.Acquire(ctx, pid)
		if ctx.Err() != nil {
			return 0, 0, defs.EINTR
		}
	}
}

// Stop transitions pid to STOPPED (SIGSTOP/SIGTSTP default action).
func (t *Table_t) Stop(pid defs.Pid_t) {
	t.Block(pid, STOPPED)
}

// Continue moves a STOPPED process back to READY (SIGCONT's default
// action).
func (t *Table_t) Continue(pid defs.Pid_t) {
	t.Unblock(pid)
}

// Preempt simulates a timer interrupt: it forces whichever process
// currently holds the CPU token back to READY at the tail of the ready
// queue and schedules the next one, the same bookkeeping Release does
// voluntarily. Hosted Go cannot actually suspend an arbitrary running
// goroutine mid-instruction the way a real timer interrupt suspends
// arbitrary user code, so this only rotates the token: a process that
// never calls Block/Release/Acquire on its own keeps running past its
// slice until it does. Cooperative code (every syscall boundary) still
// observes fair rotation, which is what timerdrv's periodic call to
// this method is for.
func (t *Table_t) Preempt() {
	t.mu.Lock()
	pid := t.running
	t.mu.Unlock()
	if pid != 0 {
		t.Release(pid)
	}
}

// Procs returns a snapshot slice of every live PCB, for process-group
// broadcast (kill(-pgid, sig)) and session/job-control queries.
func (t *Table_t) Procs() []*Proc_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Proc_t, 0, len(t.procs))
	for _, p := range t.procs {
		out = append(out, p)
	}
	return out
}
