// Command biscuit boots the kernel against a FAT32 disk image and
// drops into the shell, reading command lines from stdin and writing
// output to stdout the way a real boot would hand control to /bin/sh
// on a freshly mounted root filesystem.
package main

import (
	"bufio"
	"fmt"
	"os"

	"blockdev"
	"fs"
	"kern"
	"keyboard"
	"proc"
	"shell"
	"terminal"
)

// kernEnv adapts a booted kernel to coreutils.Env_i (via shell.New):
// the shell and its builtins run as direct calls against the kernel's
// own state rather than through a forked child process, so this
// adapter is the entire "process" a real exec'd /bin/sh would
// otherwise be.
type kernEnv struct {
	k   *kern.Kernel_t
	out *bufio.Writer
	cwd string
}

func (e *kernEnv) FS() *fs.Fs_t         { return e.k.FS() }
func (e *kernEnv) Procs() *proc.Table_t { return e.k.Procs() }
func (e *kernEnv) Cwd() string          { return e.cwd }
func (e *kernEnv) SetCwd(s string)      { e.cwd = s }
func (e *kernEnv) Println(s string) {
	fmt.Fprintln(e.out, s)
	e.out.Flush()
}

func main() {
	if len(os.Args) != 2 {
		fmt.Printf("%s <disk image>\n", os.Args[0])
		os.Exit(1)
	}

	disk, err := blockdev.Load(os.Args[1])
	if err != nil {
		fmt.Printf("failed to load disk image: %v\n", err)
		os.Exit(1)
	}

	out := bufio.NewWriter(os.Stdout)
	term := terminal.New(out)
	kbd := keyboard.New(os.Stdin)

	cfg := kern.DefaultConfig()
	k, kerr := kern.Boot(cfg, disk, term, kbd)
	if kerr != 0 {
		fmt.Printf("boot failed: %v\n", kerr)
		os.Exit(1)
	}

	env := &kernEnv{k: k, out: out, cwd: "/"}
	sh := shell.New(env)

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprint(out, sh.Prompt())
	out.Flush()
	code := sh.Run(func() (string, bool) {
		if !scanner.Scan() {
			return "", false
		}
		line := scanner.Text()
		fmt.Fprint(out, sh.Prompt())
		out.Flush()
		return line, true
	})
	if err := disk.Save(os.Args[1]); err != nil {
		fmt.Printf("failed to save disk image: %v\n", err)
	}
	os.Exit(code)
}
