package trap

import (
	"context"
	"testing"
	"time"

	"blockdev"
	"defs"
	"fd"
	"fdops"
	"fs"
	"limits"
	"mem"
	"pipe"
	"proc"
	"regs"
	"vm"
)

type testKernel struct {
	procs *proc.Table_t
	vmm   *vm.Vmm_t
	fsys  *fs.Fs_t
	pipes *pipe.Pool_t
}

func (k *testKernel) Procs() *proc.Table_t { return k.procs }
func (k *testKernel) VMM() *vm.Vmm_t       { return k.vmm }
func (k *testKernel) FS() *fs.Fs_t         { return k.fsys }
func (k *testKernel) Pipes() *pipe.Pool_t  { return k.pipes }

// OpenDev has no device backends in tests; every name falls through to
// the mounted test filesystem.
func (k *testKernel) OpenDev(name string) (fdops.Fdops_i, bool) { return nil, false }

func mkTestKernel(t *testing.T) (*testKernel, *proc.Proc_t) {
	t.Helper()
	phys := mem.NewPhysmem(4 * 1024 * 1024)
	vmm := vm.NewVmm(phys)
	lim := limits.MkSysLimit()
	procs := proc.MkTable(vmm, lim)
	as, err := vmm.CreateUserSpace()
	if err != 0 {
		t.Fatalf("CreateUserSpace: %v", err)
	}
	p, err := procs.Create(0, "init", as)
	if err != 0 {
		t.Fatalf("Create: %v", err)
	}
	disk := blockdev.New(256)
	boot := make([]byte, blockdev.SectorSize)
	boot[13] = 1
	boot[16] = 1
	boot[510], boot[511] = 0x55, 0xAA
	boot[66] = 0x28
	putBpbForTest(boot)
	disk.WriteSectors(0, 1, boot)
	fatBuf := make([]byte, blockdev.SectorSize)
	putle32fortest(fatBuf, 2*4, 0x0FFFFFF8)
	disk.WriteSectors(2, 1, fatBuf)
	zero := make([]byte, blockdev.SectorSize)
	disk.WriteSectors(10, 1, zero)
	fsys, ferr := fs.Mount(disk)
	if ferr != 0 {
		t.Fatalf("Mount: %v", ferr)
	}
	return &testKernel{procs: procs, vmm: vmm, fsys: fsys, pipes: pipe.MkPool(&lim.Pipes)}, p
}

func putBpbForTest(boot []byte) {
	putle16fortest(boot, 11, uint16(blockdev.SectorSize))
	putle16fortest(boot, 14, 2)
	putle32fortest(boot, 32, 256)
	putle32fortest(boot, 36, 8)
	putle32fortest(boot, 44, 2)
}

func putle16fortest(b []byte, off int, v uint16) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
}
func putle32fortest(b []byte, off int, v uint32) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
}

func TestDispatchGetpidGetppid(t *testing.T) {
	k, p := mkTestKernel(t)
	var r regs.Registers_t
	r.Rax = SYS_GETPID
	Dispatch(context.Background(), k, p.Pid, &r)
	if defs.Pid_t(r.Rax) != p.Pid {
		t.Errorf("getpid = %d, want %d", r.Rax, p.Pid)
	}
}

func TestDispatchUnknownSyscallIsEnosys(t *testing.T) {
	k, p := mkTestKernel(t)
	var r regs.Registers_t
	r.Rax = 9999
	Dispatch(context.Background(), k, p.Pid, &r)
	if defs.Err_t(r.Rax) != defs.ENOSYS {
		t.Errorf("unknown syscall ret = %v, want ENOSYS", defs.Err_t(r.Rax))
	}
}

func TestDispatchExitMarksZombie(t *testing.T) {
	k, p := mkTestKernel(t)
	var r regs.Registers_t
	r.Rax = SYS_EXIT
	r.Rdi = 7
	Dispatch(context.Background(), k, p.Pid, &r)
	if got := p.GetState(); got != proc.ZOMBIE {
		t.Errorf("state after exit = %v, want ZOMBIE", got)
	}
}

func TestDispatchForkGivesChildZeroAndParentChildPid(t *testing.T) {
	k, p := mkTestKernel(t)
	var r regs.Registers_t
	r.Rax = SYS_FORK
	Dispatch(context.Background(), k, p.Pid, &r)
	if defs.Err_t(r.Rax) < 0 {
		t.Fatalf("fork: %v", defs.Err_t(r.Rax))
	}
	childPid := defs.Pid_t(r.Rax)
	if childPid == p.Pid {
		t.Fatalf("fork returned the parent's own pid")
	}
	child, ok := k.procs.Get(childPid)
	if !ok {
		t.Fatalf("forked child pid %d not present in table", childPid)
	}
	if child.GetState() != proc.READY {
		t.Errorf("child state = %v, want READY", child.GetState())
	}
	if child.Regs.Rax != 0 {
		t.Errorf("child's saved return value = %d, want 0", child.Regs.Rax)
	}
}

func buildMinimalELFForTest(entry uint64) []byte {
	const ehdrSize, phdrSize = 64, 56
	code := []byte{0x90, 0xc3}
	phoff := uint64(ehdrSize)
	dataOff := phoff + phdrSize
	buf := make([]byte, int(dataOff)+len(code))
	le := func(b []byte, v uint64, n int) {
		for i := 0; i < n; i++ {
			b[i] = byte(v >> (8 * i))
		}
	}
	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4], buf[5], buf[6] = 2, 1, 1
	le(buf[16:], 2, 2)
	le(buf[18:], 0x3e, 2)
	le(buf[20:], 1, 4)
	le(buf[24:], entry, 8)
	le(buf[32:], phoff, 8)
	le(buf[52:], ehdrSize, 2)
	le(buf[54:], phdrSize, 2)
	le(buf[56:], 1, 2)
	ph := buf[phoff:]
	le(ph[0:], 1, 4)
	le(ph[4:], 5, 4)
	le(ph[8:], dataOff, 8)
	le(ph[16:], entry, 8)
	le(ph[24:], entry, 8)
	le(ph[32:], uint64(len(code)), 8)
	le(ph[40:], uint64(len(code)), 8)
	le(ph[48:], 0x1000, 8)
	copy(buf[dataOff:], code)
	return buf
}

func TestDispatchExecReplacesImageAndLeavesFdsAlone(t *testing.T) {
	k, p := mkTestKernel(t)
	elf := buildMinimalELFForTest(0x500000)
	fl, ferr := k.fsys.Open("prog", fs.O_CREAT|fs.O_WRONLY)
	if ferr != 0 {
		t.Fatalf("create prog: %v", ferr)
	}
	if _, werr := fl.Write(fdops.MkIovec(elf)); werr != 0 {
		t.Fatalf("write prog: %v", werr)
	}

	if err := k.vmm.AllocUserPage(p.As, 0x401000, vm.PTE_P|vm.PTE_W|vm.PTE_U); err != 0 {
		t.Fatalf("AllocUserPage: %v", err)
	}
	name := []byte("prog\x00")
	k.vmm.NewUio(p.As, 0x401000, len(name), true).Uiowrite(name)
	p.Lock()
	p.Fds[0] = &fd.Fd_t{Perms: fd.FD_READ}
	p.Unlock()

	var r regs.Registers_t
	r.Rax = SYS_EXEC
	r.Rdi = 0x401000
	Dispatch(context.Background(), k, p.Pid, &r)
	if defs.Err_t(r.Rax) < 0 {
		t.Fatalf("exec: %v", defs.Err_t(r.Rax))
	}
	if p.Regs.Rip != 0x500000 {
		t.Errorf("Rip after exec = %#x, want 0x500000", p.Regs.Rip)
	}
	if p.Fds[0] == nil {
		t.Errorf("exec closed a descriptor it should have left untouched")
	}
}

func TestDispatchSigsuspendAlwaysReturnsEintrAndRestoresMask(t *testing.T) {
	k, p := mkTestKernel(t)
	p.Lock()
	p.Sig.Block(1 << 4) // signum 5 already blocked before suspending
	before := p.Sig.Blocked
	p.Unlock()
	k.procs.Boot()
	k.procs.Acquire(context.Background(), p.Pid)

	done := make(chan defs.Err_t, 1)
	go func() {
		var r regs.Registers_t
		r.Rax = SYS_SIGSUSPEND
		r.Rdi = 1 << 7 // block signum 8 only while suspended
		Dispatch(context.Background(), k, p.Pid, &r)
		done <- defs.Err_t(r.Rax)
	}()

	// Poll until sigsuspend has parked the process, then raise an
	// unmasked signal (5, not in the sigsuspend-installed mask) to
	// wake it.
	for i := 0; i < 1000 && p.GetState() != proc.BLOCKED; i++ {
		time.Sleep(time.Millisecond)
	}
	sysKill(k, p, p.Pid, 5)

	select {
	case ret := <-done:
		if ret != defs.EINTR {
			t.Errorf("sigsuspend return = %v, want EINTR", ret)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sigsuspend never returned")
	}

	p.Lock()
	after := p.Sig.Blocked
	p.Unlock()
	if after != before {
		t.Errorf("blocked mask after sigsuspend = %#x, want restored %#x", after, before)
	}
}

func TestDispatchPipeThenWriteThenRead(t *testing.T) {
	k, p := mkTestKernel(t)
	// Map a page of user memory to receive the fd pair.
	if err := k.vmm.AllocUserPage(p.As, 0x401000, vm.PTE_P|vm.PTE_W|vm.PTE_U); err != 0 {
		t.Fatalf("AllocUserPage: %v", err)
	}

	var r regs.Registers_t
	r.Rax = SYS_PIPE
	r.Rdi = 0x401000
	Dispatch(context.Background(), k, p.Pid, &r)
	if defs.Err_t(r.Rax) < 0 {
		t.Fatalf("pipe: %v", defs.Err_t(r.Rax))
	}

	out := make([]byte, 16)
	readUio := k.vmm.NewUio(p.As, 0x401000, 16, false)
	if _, err := readUio.Uioread(out); err != 0 {
		t.Fatalf("read back fds: %v", err)
	}
	var rfd, wfd uint64
	for i := 0; i < 8; i++ {
		rfd |= uint64(out[i]) << (8 * i)
		wfd |= uint64(out[8+i]) << (8 * i)
	}
	if rfd == wfd {
		t.Fatalf("read and write fd must differ, got %d == %d", rfd, wfd)
	}
}
