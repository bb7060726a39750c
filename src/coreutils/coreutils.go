// Package coreutils implements the shell's builtin commands (spec
// §7's supplemented feature set): ls, cd, pwd, mkdir, rmdir, rm, cat,
// echo, touch, ps, kill, clear, help ("exit" is handled by the shell
// itself, not by this table). original_source/
// coreutils.h's command table (name, function, description, usage)
// and original_source/shell.h's pwd/mkdir/rmdir/clear/history
// supplements are what this package adds beyond the distilled spec's
// core process/vm/signal/pipe/fs surface.
package coreutils

import (
	"fmt"
	"strconv"
	"strings"

	"defs"
	"fdops"
	"fs"
	"proc"
	"signal"
)

// Env_i is what a builtin needs from its environment: the mounted
// filesystem, the process table (for ps/kill) and somewhere to write
// output. The shell runs builtins directly against the kernel rather
// than through a forked child process — there is exactly one shell
// process in this kernel's scope, so "running a builtin" is a plain
// function call against the same environment the shell itself holds,
// the way a statically linked busybox applet shares its parent's
// address space instead of exec'ing a child.
type Env_i interface {
	FS() *fs.Fs_t
	Procs() *proc.Table_t
	Println(string)
	Cwd() string
	SetCwd(string)
}

// Command_t names one builtin, grounded on original_source/
// coreutils.h's command_t{name, func, description, usage}.
type Command_t struct {
	Name        string
	Usage       string
	Description string
	Run         func(env Env_i, args []string) (int, defs.Err_t)
}

// Commands is the builtin command table, execute_command's Go
// equivalent dispatches against.
var Commands = []Command_t{
	{"ls", "ls", "list the root directory", cmdLs},
	{"pwd", "pwd", "print working directory", cmdPwd},
	{"cd", "cd DIR", "change working directory", cmdCd},
	{"mkdir", "mkdir NAME", "create a directory", cmdMkdir},
	{"rmdir", "rmdir NAME", "remove an empty directory", cmdRmdir},
	{"rm", "rm NAME", "remove a file", cmdRm},
	{"touch", "touch NAME", "create an empty file", cmdTouch},
	{"cat", "cat NAME", "print a file's contents", cmdCat},
	{"echo", "echo [ARGS...]", "print arguments", cmdEcho},
	{"ps", "ps", "list processes", cmdPs},
	{"kill", "kill PID [SIG]", "send a signal to a process", cmdKill},
	{"clear", "clear", "clear the terminal (no-op without a real tty)", cmdClear},
	{"help", "help", "list builtin commands", cmdHelp},
}

// Lookup finds a builtin by name.
func Lookup(name string) (Command_t, bool) {
	for _, c := range Commands {
		if c.Name == name {
			return c, true
		}
	}
	return Command_t{}, false
}

func cmdLs(env Env_i, args []string) (int, defs.Err_t) {
	ents, err := env.FS().Readdir()
	if err != 0 {
		return 1, err
	}
	for _, e := range ents {
		if e.IsDir {
			env.Println(e.Name + "/")
		} else {
			env.Println(fmt.Sprintf("%s\t%d", e.Name, e.Size))
		}
	}
	return 0, 0
}

func cmdPwd(env Env_i, args []string) (int, defs.Err_t) {
	env.Println(env.Cwd())
	return 0, 0
}

func cmdCd(env Env_i, args []string) (int, defs.Err_t) {
	if len(args) < 1 {
		env.SetCwd("/")
		return 0, 0
	}
	env.SetCwd("/" + strings.TrimPrefix(args[0], "/"))
	return 0, 0
}

func cmdMkdir(env Env_i, args []string) (int, defs.Err_t) {
	if len(args) < 1 {
		return 1, defs.EINVAL
	}
	if err := env.FS().Mkdir(args[0]); err != 0 {
		return 1, err
	}
	return 0, 0
}

func cmdRmdir(env Env_i, args []string) (int, defs.Err_t) {
	if len(args) < 1 {
		return 1, defs.EINVAL
	}
	if err := env.FS().Rmdir(args[0]); err != 0 {
		return 1, err
	}
	return 0, 0
}

func cmdRm(env Env_i, args []string) (int, defs.Err_t) {
	if len(args) < 1 {
		return 1, defs.EINVAL
	}
	if err := env.FS().Unlink(args[0]); err != 0 {
		return 1, err
	}
	return 0, 0
}

func cmdTouch(env Env_i, args []string) (int, defs.Err_t) {
	if len(args) < 1 {
		return 1, defs.EINVAL
	}
	if _, err := env.FS().Open(args[0], fs.O_CREAT); err != 0 {
		return 1, err
	}
	return 0, 0
}

func cmdCat(env Env_i, args []string) (int, defs.Err_t) {
	if len(args) < 1 {
		return 1, defs.EINVAL
	}
	fl, err := env.FS().Open(args[0], fs.O_RDONLY)
	if err != 0 {
		return 1, err
	}
	buf := make([]byte, 512)
	var sb strings.Builder
	for {
		n, err := fl.Read(fdops.MkIovec(buf))
		if err != 0 {
			return 1, err
		}
		if n == 0 {
			break
		}
		sb.Write(buf[:n])
	}
	env.Println(sb.String())
	return 0, 0
}

func cmdEcho(env Env_i, args []string) (int, defs.Err_t) {
	env.Println(strings.Join(args, " "))
	return 0, 0
}

func cmdPs(env Env_i, args []string) (int, defs.Err_t) {
	env.Println("PID\tPPID\tSTATE\tNAME")
	for _, p := range env.Procs().Procs() {
		env.Println(fmt.Sprintf("%d\t%d\t%s\t%s", p.Pid, p.Ppid, p.GetState(), p.Name))
	}
	return 0, 0
}

func cmdKill(env Env_i, args []string) (int, defs.Err_t) {
	if len(args) < 1 {
		return 1, defs.EINVAL
	}
	pid, perr := strconv.Atoi(args[0])
	if perr != nil {
		return 1, defs.EINVAL
	}
	signum := signal.SIGTERM
	if len(args) > 1 {
		s, serr := strconv.Atoi(args[1])
		if serr != nil || !signal.Valid(s) {
			return 1, defs.EINVAL
		}
		signum = s
	}
	target, ok := env.Procs().Get(defs.Pid_t(pid))
	if !ok {
		return 1, defs.ESRCH
	}
	target.Lock()
	err := target.Sig.Raise(signum)
	target.Unlock()
	if err != 0 {
		return 1, err
	}
	env.Procs().Unblock(target.Pid)
	return 0, 0
}

func cmdClear(env Env_i, args []string) (int, defs.Err_t) {
	env.Println("\x1b[2J\x1b[H")
	return 0, 0
}

func cmdHelp(env Env_i, args []string) (int, defs.Err_t) {
	for _, c := range Commands {
		env.Println(fmt.Sprintf("%-10s %-20s %s", c.Name, c.Usage, c.Description))
	}
	return 0, 0
}
