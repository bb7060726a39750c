package trap

import (
	"bytes"
	"context"

	"defs"
	"fdops"
	"fs"
	"loader"
	"proc"
	"regs"
)

// sysFork clones p into a new READY process (spec §4.7 code 2):
// proc.Table_t.Fork copies the address space, descriptor table and
// signal state; the only thing left for the syscall layer to arrange
// is which process sees which return value — the child wakes up seeing
// 0, the parent sees the child's pid.
func sysFork(k Kernel_i, p *proc.Proc_t) (uint64, defs.Err_t) {
	child, err := k.Procs().Fork(k.VMM(), p.Pid)
	if err != 0 {
		return 0, err
	}
	child.Lock()
	child.Regs.SetRet(0)
	child.Unlock()
	return uint64(child.Pid), 0
}

// sysExec replaces p's image with the ELF64 executable named by the
// path at r.Arg(0) (spec §4.7 code 9 / §"Program loader"): the file is
// read in full from the mounted filesystem, loaded into a freshly
// created address space via loader.Load, and p's saved registers are
// pointed at the new entry/stack. Open descriptors and signal
// dispositions survive exec unchanged, matching the original kernel's
// exec (it never touches either). argv is not marshaled onto the new
// stack: there is no instruction-level execution of user code in this
// hosted kernel to ever read it back off the stack, so r.Arg(1) is
// accepted but ignored.
func sysExec(k Kernel_i, p *proc.Proc_t, r *regs.Registers_t) (uint64, defs.Err_t) {
	name, err := copyInCstr(k, p, uintptr(r.Arg(0)))
	if err != 0 {
		return 0, err
	}
	fl, err := k.FS().Open(name, fs.O_RDONLY)
	if err != 0 {
		return 0, err
	}
	var image bytes.Buffer
	buf := make([]byte, 512)
	for {
		n, rerr := fl.Read(fdops.MkIovec(buf))
		if rerr != 0 {
			return 0, rerr
		}
		if n == 0 {
			break
		}
		image.Write(buf[:n])
	}
	as, aerr := k.VMM().CreateUserSpace()
	if aerr != 0 {
		return 0, aerr
	}
	img, lerr := loader.Load(k.VMM(), as, image.Bytes())
	if lerr != 0 {
		return 0, lerr
	}
	p.Lock()
	p.As = as
	p.Regs.Rip = uint64(img.Entry)
	p.Regs.Rsp = uint64(img.Stack)
	p.Unlock()
	return 0, 0
}

// sysSigsuspend atomically installs mask as the blocked set, parks p
// until any signal arrives, restores the prior mask, and always reports
// EINTR (spec §4.4: "atomically install a mask, block, yield, restore
// prior mask on resume, always report interrupted"). It reuses the same
// Block/Tnote.Block/Acquire sequence proc.Table_t.Wait and Sleep use to
// park a process and let a later raiseAndWake resume it.
func sysSigsuspend(ctx context.Context, k Kernel_i, p *proc.Proc_t, mask uint32) defs.Err_t {
	p.Lock()
	old := p.Sig.SetMask(mask)
	tnote := p.Tnote
	p.Unlock()

	k.Procs().Block(p.Pid, proc.BLOCKED)
	tnote.Block(ctx)
	k.Procs().Acquire(ctx, p.Pid)

	p.Lock()
	p.Sig.SetMask(old)
	p.Unlock()
	return defs.EINTR
}
