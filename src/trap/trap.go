// Package trap implements the syscall dispatcher: the simulated int
// 0x80 entry point (spec §4.7). A real CPU pushes a trap frame and
// jumps to a fixed handler on the `int` instruction; Dispatch stands in
// for that jump, taking the trapping process's saved registers
// directly since there is no hardware vector table to install. The 26
// syscall numbers and argument conventions are pinned to
// original_source/syscall.h (SYS_EXIT=1 .. SYS_GETSID=26); nothing here
// is invented numbering.
package trap

import (
	"context"
	"time"

	"defs"
	"fdops"
	"fs"
	"pipe"
	"proc"
	"regs"
	"vm"
)

// Syscall numbers, original_source/syscall.h.
const (
	SYS_EXIT        = 1
	SYS_FORK        = 2
	SYS_READ        = 3
	SYS_WRITE       = 4
	SYS_OPEN        = 5
	SYS_CLOSE       = 6
	SYS_SLEEP       = 7
	SYS_GETPID      = 8
	SYS_EXEC        = 9
	SYS_GETPPID     = 10
	SYS_PIPE        = 11
	SYS_DUP         = 12
	SYS_DUP2        = 13
	SYS_MKDIR       = 14
	SYS_RMDIR       = 15
	SYS_WAIT        = 16
	SYS_KILL        = 17
	SYS_SIGNAL      = 18
	SYS_SIGACTION   = 19
	SYS_SIGPROCMASK = 20
	SYS_SIGPENDING  = 21
	SYS_SIGSUSPEND  = 22
	SYS_SETPGID     = 23
	SYS_GETPGID     = 24
	SYS_SETSID      = 25
	SYS_GETSID      = 26
)

// sigprocmask "how" values.
const (
	SIG_BLOCK   = 0
	SIG_UNBLOCK = 1
	SIG_SETMASK = 2
)

// Kernel_i is the subset of kern.Kernel_t Dispatch needs: the process
// table, VMM and mounted filesystem. Declared here (rather than
// importing kern) to keep trap's dependency direction leaf-ward; kern
// wires the concrete *kern.Kernel_t into it.
type Kernel_i interface {
	Procs() *proc.Table_t
	VMM() *vm.Vmm_t
	FS() *fs.Fs_t
	Pipes() *pipe.Pool_t
	// OpenDev resolves a /dev path to a device backend outside the
	// mounted filesystem (the profiling device; D_CONSOLE/D_DEVNULL
	// etc. stay wired the way kern.Spawn preopens them on fds 0-2).
	OpenDev(name string) (fdops.Fdops_i, bool)
}

// Dispatch handles one syscall trap on behalf of pid, whose registers
// carry the syscall number (Syscallno) and up to six arguments (Arg).
// Dispatch itself delivers no signals: its caller (kern.Kernel_t.Syscall)
// runs DeliverSignals immediately before it, so a signal raised while
// this process was last descheduled is observed promptly, and again
// right after it returns, at the syscall-return boundary (spec §4.4).
func Dispatch(ctx context.Context, k Kernel_i, pid defs.Pid_t, r *regs.Registers_t) {
	p, ok := k.Procs().Get(pid)
	if !ok {
		r.SetRet(uint64(defs.ESRCH))
		return
	}
	ret, err := dispatchOne(ctx, k, p, r)
	if err != 0 {
		r.SetRet(uint64(err))
		return
	}
	r.SetRet(ret)
}

func dispatchOne(ctx context.Context, k Kernel_i, p *proc.Proc_t, r *regs.Registers_t) (uint64, defs.Err_t) {
	switch r.Syscallno() {
	case SYS_EXIT:
		k.Procs().Exit(p.Pid, int(r.Arg(0)))
		return 0, 0
	case SYS_GETPID:
		return uint64(p.Pid), 0
	case SYS_GETPPID:
		return uint64(p.Ppid), 0
	case SYS_SLEEP:
		ms := r.Arg(0)
		err := k.Procs().Sleep(ctx, p.Pid, time.Duration(ms)*time.Millisecond)
		return 0, err
	case SYS_WAIT:
		cpid, status, err := k.Procs().Wait(ctx, p.Pid)
		if err != 0 {
			return 0, err
		}
		if err := copyOutUint64(k, p, uintptr(r.Arg(0)), uint64(status)); err != 0 {
			return 0, err
		}
		return uint64(cpid), 0
	case SYS_KILL:
		return 0, sysKill(k, p, defs.Pid_t(r.Arg(0)), int(r.Arg(1)))
	case SYS_SIGNAL:
		return sysSignal(p, int(r.Arg(0)), uintptr(r.Arg(1)))
	case SYS_SIGACTION:
		return 0, sysSigaction(p, int(r.Arg(0)), uintptr(r.Arg(1)), uintptr(r.Arg(2)))
	case SYS_SIGPROCMASK:
		return 0, sysSigprocmask(p, int(r.Arg(0)), uint32(r.Arg(1)), uintptr(r.Arg(2)))
	case SYS_SIGPENDING:
		p.Lock()
		pending := p.Sig.Pending
		p.Unlock()
		return 0, copyOutUint64(k, p, uintptr(r.Arg(0)), uint64(pending))
	case SYS_SETPGID:
		return 0, sysSetpgid(k, p, defs.Pid_t(r.Arg(0)), defs.Pid_t(r.Arg(1)))
	case SYS_GETPGID:
		target := p
		if pid := defs.Pid_t(r.Arg(0)); pid != 0 {
			tp, ok := k.Procs().Get(pid)
			if !ok {
				return 0, defs.ESRCH
			}
			target = tp
		}
		target.Lock()
		pg := target.Pgid
		target.Unlock()
		return uint64(pg), 0
	case SYS_SETSID:
		p.Lock()
		p.Sid = p.Pid
		p.Pgid = p.Pid
		sid := p.Sid
		p.Unlock()
		return uint64(sid), 0
	case SYS_GETSID:
		target := p
		if pid := defs.Pid_t(r.Arg(0)); pid != 0 {
			tp, ok := k.Procs().Get(pid)
			if !ok {
				return 0, defs.ESRCH
			}
			target = tp
		}
		target.Lock()
		sid := target.Sid
		target.Unlock()
		return uint64(sid), 0
	case SYS_PIPE:
		return 0, sysPipe(k, p, uintptr(r.Arg(0)))
	case SYS_CLOSE:
		return 0, sysClose(p, int(r.Arg(0)))
	case SYS_DUP:
		return sysDup(p, int(r.Arg(0)))
	case SYS_DUP2:
		return sysDup2(p, int(r.Arg(0)), int(r.Arg(1)))
	case SYS_READ, SYS_WRITE:
		return sysReadWrite(k, p, r)
	case SYS_OPEN:
		return sysOpen(k, p, r)
	case SYS_MKDIR:
		name, err := copyInCstr(k, p, uintptr(r.Arg(0)))
		if err != 0 {
			return 0, err
		}
		return 0, k.FS().Mkdir(name)
	case SYS_RMDIR:
		name, err := copyInCstr(k, p, uintptr(r.Arg(0)))
		if err != 0 {
			return 0, err
		}
		return 0, k.FS().Rmdir(name)
	case SYS_FORK:
		return sysFork(k, p)
	case SYS_EXEC:
		return sysExec(k, p, r)
	case SYS_SIGSUSPEND:
		return 0, sysSigsuspend(ctx, k, p, uint32(r.Arg(0)))
	}
	return 0, defs.ENOSYS
}

// copyOutUint64/copyInCstr live in copy.go; fd resolution helpers and
// sysReadWrite/sysOpen live in fdtable.go; signal-related syscalls live
// in signals.go.
