// Package kern wires every subsystem together into one bootable
// kernel instance (spec §3's top-level picture) and owns every piece
// of state the anti-global-state requirement (spec §9) forbids from
// living in a package-level variable: the OOM channel, the resource
// limits, the VMM, the process table, the mounted filesystem and the
// pipe pool. Nothing outside this package ever constructs more than
// one of these for a given boot.
package kern

import (
	"context"
	"strconv"
	"time"

	"blockdev"
	"defs"
	"fd"
	"fs"
	"keyboard"
	"limits"
	"loader"
	"mem"
	"oommsg"
	"pipe"
	"proc"
	"regs"
	"terminal"
	"timerdrv"
	"trap"
	"vm"
)

// Config_t holds boot-time tunables a real kernel would take from a
// command line or a config block (spec §9's ambient configuration
// surface).
type Config_t struct {
	PhysmemBytes int
	TimerPeriod  time.Duration
}

// DefaultConfig mirrors the sizing original_source/kernel.h assumes:
// enough simulated RAM for the page tables and a handful of user
// processes, and a 10ms scheduling quantum.
func DefaultConfig() Config_t {
	return Config_t{PhysmemBytes: 64 * 1024 * 1024, TimerPeriod: 10 * time.Millisecond}
}

// Kernel_t is one fully wired kernel instance.
type Kernel_t struct {
	cfg   Config_t
	phys  *mem.Physmem_t
	vmm   *vm.Vmm_t
	procs *proc.Table_t
	fsys  *fs.Fs_t
	pipes *pipe.Pool_t
	oom   chan oommsg.Oommsg_t
	lim   *limits.Syslimit_t
	term  *terminal.Device_t
	kbd   *keyboard.Device_t
	timer *timerdrv.Driver_t
}

var _ trap.Kernel_i = (*Kernel_t)(nil)

func (k *Kernel_t) Procs() *proc.Table_t { return k.procs }
func (k *Kernel_t) VMM() *vm.Vmm_t       { return k.vmm }
func (k *Kernel_t) FS() *fs.Fs_t         { return k.fsys }
func (k *Kernel_t) Pipes() *pipe.Pool_t  { return k.pipes }

// Boot mounts disk as the FAT32 root volume and constructs a fresh
// kernel instance, ready to Spawn an init process. term/kbd back
// /dev/console and the keyboard device respectively (os.Stdout/Stdin
// in production, buffers in tests).
func Boot(cfg Config_t, disk *blockdev.Disk_t, term *terminal.Device_t, kbd *keyboard.Device_t) (*Kernel_t, defs.Err_t) {
	phys := mem.NewPhysmem(cfg.PhysmemBytes)
	vmm := vm.NewVmm(phys)
	lim := limits.MkSysLimit()
	procs := proc.MkTable(vmm, lim)
	fsys, err := fs.Mount(disk)
	if err != 0 {
		return nil, err
	}
	k := &Kernel_t{
		cfg:   cfg,
		phys:  phys,
		vmm:   vmm,
		procs: procs,
		fsys:  fsys,
		pipes: pipe.MkPool(&lim.Pipes),
		oom:   oommsg.NewChan(),
		lim:   lim,
		term:  term,
		kbd:   kbd,
	}
	k.timer = timerdrv.New(procs, cfg.TimerPeriod)
	return k, 0
}

// RunTimer starts the timer driver's preemption ticks; callers run it
// in its own goroutine and cancel ctx at shutdown.
func (k *Kernel_t) RunTimer(ctx context.Context) { k.timer.Run(ctx) }

// Spawn loads an ELF image into a fresh address space and creates a
// new process as ppid's child (ppid == 0 for the first process), with
// descriptor 0 reading the keyboard device and descriptors 1/2 writing
// the console, mirroring a freshly exec'd program's standard streams.
func (k *Kernel_t) Spawn(ppid defs.Pid_t, name string, elf []byte) (*proc.Proc_t, defs.Err_t) {
	as, err := k.vmm.CreateUserSpace()
	if err != 0 {
		return nil, err
	}
	img, lerr := loader.Load(k.vmm, as, elf)
	if lerr != 0 {
		return nil, lerr
	}
	p, cerr := k.procs.Create(ppid, name, as)
	if cerr != 0 {
		return nil, cerr
	}
	p.Lock()
	p.Regs.Rip = uint64(img.Entry)
	p.Regs.Rsp = uint64(img.Stack)
	p.Fds[0] = &fd.Fd_t{Fops: k.kbd, Perms: fd.FD_READ}
	p.Fds[1] = &fd.Fd_t{Fops: k.term, Perms: fd.FD_WRITE}
	p.Fds[2] = &fd.Fd_t{Fops: k.term, Perms: fd.FD_WRITE}
	p.Unlock()
	// Hand the CPU token to the first ready process if the CPU is idle,
	// so the new process's first Syscall can Acquire it.
	k.procs.Boot()
	return p, 0
}

// Syscall runs one simulated int 0x80 trap on pid's behalf: it
// acquires the CPU token, runs a scheduler-entry signal-delivery pass
// (a signal raised while pid was last descheduled is observed before
// pid's own logic runs at all), dispatches r's syscall, runs a second
// delivery pass on the way back out, and releases the token. This is
// the full round trip a real trap handler performs; the caller (a
// process's simulated run loop) invokes it once per syscall the "user
// program" wants to make.
func (k *Kernel_t) Syscall(ctx context.Context, pid defs.Pid_t, r *regs.Registers_t) (signum int, handler uintptr, delivered bool) {
	k.procs.Acquire(ctx, pid)

	signum, handler, delivered = trap.DeliverSignals(k, pid)
	if !delivered && faultSignals[signum] {
		if p, ok := k.procs.Get(pid); ok {
			k.dumpFault(p, "unhandled signal "+strconv.Itoa(signum))
		}
	}
	p, ok := k.procs.Get(pid)
	if !ok || p.GetState() != proc.RUNNING {
		// the scheduler-entry pass terminated or stopped pid outright
		// (SIG_DFL's terminate/stop action); there is nothing left of
		// this burst to dispatch.
		return
	}

	trap.Dispatch(ctx, k, pid, r)
	if int64(r.Rax) == int64(defs.EFAULT) {
		if p, ok := k.procs.Get(pid); ok {
			k.dumpFault(p, "validate_user rejected pointer range")
		}
	}
	if sig, h, del := trap.DeliverSignals(k, pid); del {
		signum, handler, delivered = sig, h, del
	} else if faultSignals[sig] {
		if p, ok := k.procs.Get(pid); ok {
			k.dumpFault(p, "unhandled signal "+strconv.Itoa(sig))
		}
	}
	k.procs.Release(pid)
	return
}
