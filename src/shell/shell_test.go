package shell

import (
	"testing"

	"blockdev"
	"fs"
	"limits"
	"mem"
	"proc"
	"vm"
)

type testEnv struct {
	fsys  *fs.Fs_t
	procs *proc.Table_t
	cwd   string
	lines []string
}

func (e *testEnv) FS() *fs.Fs_t         { return e.fsys }
func (e *testEnv) Procs() *proc.Table_t { return e.procs }
func (e *testEnv) Println(s string)     { e.lines = append(e.lines, s) }
func (e *testEnv) Cwd() string          { return e.cwd }
func (e *testEnv) SetCwd(s string)      { e.cwd = s }

func mkTestEnv(t *testing.T) *testEnv {
	t.Helper()
	disk := blockdev.New(256)
	boot := make([]byte, blockdev.SectorSize)
	putle16(boot, 11, uint16(blockdev.SectorSize))
	boot[13] = 1
	putle16(boot, 14, 2)
	boot[16] = 1
	putle32(boot, 32, 256)
	putle32(boot, 36, 8)
	putle32(boot, 44, 2)
	boot[66] = 0x28
	boot[510], boot[511] = 0x55, 0xAA
	if err := disk.WriteSectors(0, 1, boot); err != 0 {
		t.Fatalf("write boot: %v", err)
	}
	fatBuf := make([]byte, blockdev.SectorSize)
	putle32(fatBuf, 2*4, 0x0FFFFFF8)
	disk.WriteSectors(2, 1, fatBuf)
	disk.WriteSectors(10, 1, make([]byte, blockdev.SectorSize))
	fsys, err := fs.Mount(disk)
	if err != 0 {
		t.Fatalf("Mount: %v", err)
	}
	phys := mem.NewPhysmem(4 * 1024 * 1024)
	vmm := vm.NewVmm(phys)
	lim := limits.MkSysLimit()
	procs := proc.MkTable(vmm, lim)
	return &testEnv{fsys: fsys, procs: procs, cwd: "/"}
}

func putle16(b []byte, off int, v uint16) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
}
func putle32(b []byte, off int, v uint32) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
}

func typeLine(sh *Shell_t, line string) (string, bool) {
	var last string
	var done bool
	for _, r := range line {
		last, done = sh.HandleKey(r)
	}
	l, d := sh.HandleKey('\n')
	if d {
		return l, true
	}
	return last, done
}

func TestHandleKeyBuildsLineUntilEnter(t *testing.T) {
	sh := New(mkTestEnv(t))
	for _, r := range "echo hi" {
		if _, done := sh.HandleKey(r); done {
			t.Fatalf("HandleKey(%q) reported done early", r)
		}
	}
	line, done := sh.HandleKey('\n')
	if !done || line != "echo hi" {
		t.Fatalf("HandleKey('\\n') = (%q, %v), want (\"echo hi\", true)", line, done)
	}
}

func TestBackspaceRemovesLastRune(t *testing.T) {
	sh := New(mkTestEnv(t))
	for _, r := range "echooo" {
		sh.HandleKey(r)
	}
	sh.HandleKey(0x7f)
	sh.HandleKey(0x7f)
	line, _ := sh.HandleKey('\n')
	if line != "echo" {
		t.Errorf("line after two backspaces = %q, want \"echo\"", line)
	}
}

func TestHistoryUpRecallsPreviousLine(t *testing.T) {
	sh := New(mkTestEnv(t))
	typeLine(sh, "ls")
	typeLine(sh, "pwd")
	recalled := sh.HistoryUp()
	if recalled != "pwd" {
		t.Fatalf("first HistoryUp = %q, want \"pwd\"", recalled)
	}
	recalled = sh.HistoryUp()
	if recalled != "ls" {
		t.Fatalf("second HistoryUp = %q, want \"ls\"", recalled)
	}
}

func TestHistoryDownPastNewestClearsLine(t *testing.T) {
	sh := New(mkTestEnv(t))
	typeLine(sh, "ls")
	sh.HistoryUp()
	if got := sh.HistoryDown(); got != "" {
		t.Errorf("HistoryDown past newest = %q, want \"\"", got)
	}
}

func TestExecuteUnknownCommandReportsNotFound(t *testing.T) {
	env := mkTestEnv(t)
	sh := New(env)
	rc, err := sh.Execute("frobnicate")
	if rc != 127 || err != 0 {
		t.Fatalf("Execute unknown = rc=%d err=%v, want rc=127 err=0", rc, err)
	}
	if len(env.lines) != 1 {
		t.Fatalf("expected one output line, got %v", env.lines)
	}
}

func TestExecuteExitSetsDoneAndCode(t *testing.T) {
	sh := New(mkTestEnv(t))
	sh.Execute("exit 3")
	if !sh.Done() {
		t.Fatal("Done() = false after exit")
	}
	if sh.ExitCode() != 3 {
		t.Errorf("ExitCode() = %d, want 3", sh.ExitCode())
	}
}

func TestRunStopsAtExit(t *testing.T) {
	sh := New(mkTestEnv(t))
	lines := []string{"echo one", "exit 0", "echo two"}
	i := 0
	sh.Run(func() (string, bool) {
		if i >= len(lines) {
			return "", false
		}
		l := lines[i]
		i++
		return l, true
	})
	if i != 2 {
		t.Errorf("Run consumed %d lines, want 2 (stop at exit)", i)
	}
}
