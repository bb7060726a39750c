package trap

import (
	"defs"
	"proc"
	"signal"
)

// sysKill raises signum on pid (pid > 0), or on every process sharing
// pid's process group if pid is encoded as a negative pgid, matching
// the original kernel's kill()/broadcast convention. Delivery itself
// happens the next time DeliverSignals runs against the target.
func sysKill(k Kernel_i, p *proc.Proc_t, pidArg defs.Pid_t, signum int) defs.Err_t {
	if !signal.Valid(signum) {
		return defs.EINVAL
	}
	if pidArg > 0 {
		target, ok := k.Procs().Get(pidArg)
		if !ok {
			return defs.ESRCH
		}
		return raiseAndWake(k, target, signum)
	}
	pgid := -pidArg
	if pidArg == 0 {
		p.Lock()
		pgid = p.Pgid
		p.Unlock()
	}
	found := false
	for _, target := range k.Procs().Procs() {
		target.Lock()
		match := target.Pgid == pgid
		target.Unlock()
		if match {
			found = true
			if err := raiseAndWake(k, target, signum); err != 0 {
				return err
			}
		}
	}
	if !found {
		return defs.ESRCH
	}
	return 0
}

// raiseAndWake marks signum pending on target and, if warranted, wakes
// it. Two restrictions apply before an Unblock is warranted: a signal
// that target currently has blocked never wakes it (spec §4.4: "a
// BLOCKED process wakes up when a signal not in its current mask
// becomes pending" — implying the converse for a blocked one), and a
// STOPPED process is resumed by SIGCONT alone (spec §4.3: "continue
// only fires from STOPPED"; every other signal stays merely pending
// until a continue()/SIGCONT arrives).
func raiseAndWake(k Kernel_i, target *proc.Proc_t, signum int) defs.Err_t {
	target.Lock()
	err := target.Sig.Raise(signum)
	blocked := target.Sig.IsBlocked(signum)
	stopped := target.State == proc.STOPPED
	target.Unlock()
	if err != 0 {
		return err
	}
	switch {
	case stopped && signum == signal.SIGCONT:
		k.Procs().Continue(target.Pid)
	case stopped:
	case !blocked:
		k.Procs().Unblock(target.Pid)
	}
	return 0
}

// sysSignal installs handler as signum's disposition (the simple
// signal(2) form: no mask, no flags), returning the previous handler
// value.
func sysSignal(p *proc.Proc_t, signum int, handler uintptr) (uint64, defs.Err_t) {
	disp := signal.SIG_HANDLER
	if handler == 0 {
		disp = signal.SIG_DFL
	} else if handler == 1 {
		disp = signal.SIG_IGN
	}
	p.Lock()
	old, err := p.Sig.SetAction(signum, signal.Action_t{Disp: disp, Handler: handler})
	p.Unlock()
	return uint64(old.Handler), err
}

// sysSigaction installs a SIG_HANDLER disposition for signum whose
// handler is the actPtr value itself; no user-space struct is read, and
// oldactPtr is never written.
func sysSigaction(p *proc.Proc_t, signum int, actPtr, oldactPtr uintptr) defs.Err_t {
	// This simulated kernel keeps Action_t entirely in kernel space (no
	// real user-space sigaction struct to copy in/out of), so act/oldact
	// here just distinguish "set" (actPtr != 0) from "query only".
	p.Lock()
	defer p.Unlock()
	if actPtr == 0 {
		return 0
	}
	_, err := p.Sig.SetAction(signum, signal.Action_t{Disp: signal.SIG_HANDLER, Handler: actPtr})
	return err
}

func sysSigprocmask(p *proc.Proc_t, how int, mask uint32, oldsetPtr uintptr) defs.Err_t {
	p.Lock()
	defer p.Unlock()
	switch how {
	case SIG_BLOCK:
		p.Sig.Block(mask)
	case SIG_UNBLOCK:
		p.Sig.Unblock(mask)
	case SIG_SETMASK:
		p.Sig.SetMask(mask)
	default:
		return defs.EINVAL
	}
	return 0
}

func sysSetpgid(k Kernel_i, p *proc.Proc_t, pidArg, pgidArg defs.Pid_t) defs.Err_t {
	target := p
	if pidArg != 0 {
		tp, ok := k.Procs().Get(pidArg)
		if !ok {
			return defs.ESRCH
		}
		target = tp
	}
	target.Lock()
	defer target.Unlock()
	if pgidArg == 0 {
		target.Pgid = target.Pid
	} else {
		target.Pgid = pgidArg
	}
	return 0
}

// DeliverSignals runs one delivery pass for pid (spec §4.4: "at most
// one handler invocation per pass"), called at scheduler entry and at
// syscall return. It applies SIG_DFL's terminate/stop/continue/ignore
// semantics directly, and otherwise reports the signal number and
// handler address for the caller to arrange invocation of (there is no
// real user-mode return path in this simulated kernel to splice a
// signal trampoline onto, so "invoking the handler" is the caller's
// responsibility once told which one fired).
func DeliverSignals(k Kernel_i, pid defs.Pid_t) (signum int, handler uintptr, delivered bool) {
	p, ok := k.Procs().Get(pid)
	if !ok {
		return 0, 0, false
	}
	p.Lock()
	sig, ok := p.Sig.Deliverable()
	if !ok {
		p.Unlock()
		return 0, 0, false
	}
	act := p.Sig.Consume(sig)
	p.Unlock()

	switch act.Disp {
	case signal.SIG_IGN:
		return sig, 0, false
	case signal.SIG_HANDLER:
		return sig, act.Handler, true
	default: // SIG_DFL
		switch {
		case signal.DefaultStops(sig):
			k.Procs().Stop(pid)
		case signal.DefaultContinues(sig):
			k.Procs().Continue(pid)
		case signal.DefaultIgnored(sig):
		default:
			k.Procs().Exit(pid, 128+sig)
		}
		return sig, 0, false
	}
}
