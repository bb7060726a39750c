package proc

import (
	"context"
	"io"
	"testing"
	"time"

	"defs"
	"fd"
	"limits"
	"mem"
	"terminal"
	"vm"
)

func mkTable(t *testing.T) (*Table_t, *vm.Vmm_t) {
	t.Helper()
	phys := mem.NewPhysmem(4 * 1024 * 1024)
	vmm := vm.NewVmm(phys)
	lim := limits.MkSysLimit()
	return MkTable(vmm, lim), vmm
}

func mkProc(t *testing.T, tb *Table_t, vmm *vm.Vmm_t, ppid defs.Pid_t, name string) *Proc_t {
	t.Helper()
	as, err := vmm.CreateUserSpace()
	if err != 0 {
		t.Fatalf("CreateUserSpace: %v", err)
	}
	p, err := tb.Create(ppid, name, as)
	if err != 0 {
		t.Fatalf("Create: %v", err)
	}
	return p
}

func TestCreateAssignsDistinctPidsAndReadyState(t *testing.T) {
	tb, vmm := mkTable(t)
	p1 := mkProc(t, tb, vmm, 0, "init")
	p2 := mkProc(t, tb, vmm, 0, "second")
	if p1.Pid == p2.Pid {
		t.Fatalf("two Creates returned the same pid %d", p1.Pid)
	}
	if p1.GetState() != READY {
		t.Errorf("fresh process state = %v, want READY", p1.GetState())
	}
}

func TestCreateInheritsParentGroupAndSession(t *testing.T) {
	tb, vmm := mkTable(t)
	parent := mkProc(t, tb, vmm, 0, "parent")
	child := mkProc(t, tb, vmm, parent.Pid, "child")
	if child.Pgid != parent.Pgid || child.Sid != parent.Sid {
		t.Errorf("child pgid/sid = %d/%d, want parent's %d/%d", child.Pgid, child.Sid, parent.Pgid, parent.Sid)
	}
}

func TestAcquireBlocksUntilScheduled(t *testing.T) {
	tb, vmm := mkTable(t)
	p := mkProc(t, tb, vmm, 0, "init")
	tb.Boot()
	tb.Acquire(context.Background(), p.Pid)
	if p.GetState() != RUNNING {
		t.Errorf("state after Acquire = %v, want RUNNING", p.GetState())
	}
}

func TestReleaseReturnsToReadyAndSchedulesNext(t *testing.T) {
	tb, vmm := mkTable(t)
	p1 := mkProc(t, tb, vmm, 0, "one")
	p2 := mkProc(t, tb, vmm, 0, "two")
	tb.Boot()
	tb.Acquire(context.Background(), p1.Pid)
	tb.Release(p1.Pid)
	if p1.GetState() != READY {
		t.Errorf("p1 state after Release = %v, want READY", p1.GetState())
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	tb.Acquire(ctx, p2.Pid)
	if p2.GetState() != RUNNING {
		t.Errorf("p2 state after Acquire = %v, want RUNNING", p2.GetState())
	}
}

func TestExitMarksZombieAndWaitReaps(t *testing.T) {
	tb, vmm := mkTable(t)
	parent := mkProc(t, tb, vmm, 0, "parent")
	child := mkProc(t, tb, vmm, parent.Pid, "child")
	tb.Exit(child.Pid, 42)
	if child.GetState() != ZOMBIE {
		t.Fatalf("child state after Exit = %v, want ZOMBIE", child.GetState())
	}
	pid, status, err := tb.Wait(context.Background(), parent.Pid)
	if err != 0 || pid != child.Pid || status != 42 {
		t.Fatalf("Wait = (%d, %d, %v), want (%d, 42, 0)", pid, status, err, child.Pid)
	}
	if _, ok := tb.Get(child.Pid); ok {
		t.Errorf("child pid %d still present in table after reap", child.Pid)
	}
}

func TestWaitWithNoChildrenIsEchild(t *testing.T) {
	tb, vmm := mkTable(t)
	p := mkProc(t, tb, vmm, 0, "lonely")
	if _, _, err := tb.Wait(context.Background(), p.Pid); err != defs.ECHILD {
		t.Errorf("Wait with no children = %v, want ECHILD", err)
	}
}

func TestStopAndContinue(t *testing.T) {
	tb, vmm := mkTable(t)
	p := mkProc(t, tb, vmm, 0, "init")
	tb.Stop(p.Pid)
	if p.GetState() != STOPPED {
		t.Fatalf("state after Stop = %v, want STOPPED", p.GetState())
	}
	tb.Continue(p.Pid)
	if p.GetState() != READY {
		t.Errorf("state after Continue = %v, want READY", p.GetState())
	}
}

func TestPreemptRotatesRunningProcessBackToReady(t *testing.T) {
	tb, vmm := mkTable(t)
	p := mkProc(t, tb, vmm, 0, "init")
	tb.Boot()
	tb.Acquire(context.Background(), p.Pid)
	tb.Preempt()
	if p.GetState() != READY {
		t.Errorf("state after Preempt = %v, want READY", p.GetState())
	}
}

func TestForkClonesSignalStateFdsAndGroupButNotPid(t *testing.T) {
	tb, vmm := mkTable(t)
	parent := mkProc(t, tb, vmm, 0, "parent")
	parent.Lock()
	parent.Sig.Block(uint32(1) << 3)
	parent.Fds[0] = &fd.Fd_t{Fops: terminal.New(io.Discard), Perms: fd.FD_READ}
	parent.Pgid = 99
	parent.Sid = 42
	parent.Unlock()

	child, err := tb.Fork(vmm, parent.Pid)
	if err != 0 {
		t.Fatalf("Fork: %v", err)
	}
	if child.Pid == parent.Pid {
		t.Fatalf("child pid == parent pid %d", parent.Pid)
	}
	if child.GetState() != READY {
		t.Errorf("child state = %v, want READY", child.GetState())
	}
	if child.Pgid != 99 || child.Sid != 42 {
		t.Errorf("child pgid/sid = %d/%d, want 99/42", child.Pgid, child.Sid)
	}
	if !child.Sig.IsBlocked(4) {
		t.Errorf("child did not inherit parent's blocked mask")
	}
	if child.Fds[0] == nil || child.Fds[0] == parent.Fds[0] {
		t.Errorf("child.Fds[0] = %v, want a distinct duplicate of parent's", child.Fds[0])
	}
	if child.As == parent.As {
		t.Errorf("child shares the parent's *Vm_t pointer instead of a forked copy")
	}
}

func TestForkFailsAtEnomemWhenTableIsFull(t *testing.T) {
	phys := mem.NewPhysmem(4 * 1024 * 1024)
	vmm := vm.NewVmm(phys)
	lim := limits.MkSysLimit()
	lim.Sysprocs = 1
	tb := MkTable(vmm, lim)
	parent := mkProc(t, tb, vmm, 0, "parent")
	if _, err := tb.Fork(vmm, parent.Pid); err != defs.ENOMEM {
		t.Errorf("Fork past Sysprocs cap = %v, want ENOMEM", err)
	}
}

func TestForkUnknownParentIsEsrch(t *testing.T) {
	tb, vmm := mkTable(t)
	if _, err := tb.Fork(vmm, 999); err != defs.ESRCH {
		t.Errorf("Fork on unknown pid = %v, want ESRCH", err)
	}
}

func TestProcsReturnsEverySnapshottedPid(t *testing.T) {
	tb, vmm := mkTable(t)
	p1 := mkProc(t, tb, vmm, 0, "one")
	p2 := mkProc(t, tb, vmm, 0, "two")
	all := tb.Procs()
	if len(all) != 2 {
		t.Fatalf("Procs() returned %d entries, want 2", len(all))
	}
	seen := map[defs.Pid_t]bool{}
	for _, p := range all {
		seen[p.Pid] = true
	}
	if !seen[p1.Pid] || !seen[p2.Pid] {
		t.Errorf("Procs() = %+v, missing one of %d/%d", all, p1.Pid, p2.Pid)
	}
}
