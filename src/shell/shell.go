// Package shell implements the line-editing command shell that runs
// as the kernel's first user process (spec §7's supplemented shell
// feature, grounded on original_source/shell.h's shell_t state
// machine: a 256-byte input buffer, a 10-entry command history, and
// READY/RUNNING/EXIT states).
package shell

import (
	"errors"
	"strings"

	"coreutils"
	"defs"
)

const (
	bufferSize  = 256
	historySize = 10
)

// State_t mirrors original_source/shell.h's shell_state_t.
type State_t int

const (
	Ready State_t = iota
	Running
	Exit
)

// Shell_t is one running shell instance: its input line, cursor
// position, command history and exit status. It holds no reference to
// a terminal or filesystem directly — Run takes an Env_i and a
// line-at-a-time input source, keeping this package ignorant of how
// keystrokes actually arrive.
type Shell_t struct {
	env coreutils.Env_i

	buffer    []rune
	pos       int
	history   []string
	histIndex int

	state    State_t
	exitCode int
}

// New creates a shell bound to env, ready to Run.
func New(env coreutils.Env_i) *Shell_t {
	return &Shell_t{
		env:     env,
		buffer:  make([]rune, 0, bufferSize),
		history: make([]string, 0, historySize),
		state:   Ready,
	}
}

// ExitCode reports the code the most recent "exit" builtin requested.
func (sh *Shell_t) ExitCode() int { return sh.exitCode }

// Prompt formats the shell's prompt line, grounded on
// original_source/shell.h's shell_print_prompt.
func (sh *Shell_t) Prompt() string {
	return sh.env.Cwd() + "$ "
}

// HandleKey feeds one decoded input key into the shell's line editor.
// It handles enter, backspace/DEL and printable insertion at the
// cursor; there are no left/right arrow keys, so the cursor stays at the
// end of the line, and history recall is HistoryUp/HistoryDown. It returns a completed line (with the trailing newline stripped) and
// true once the user presses enter; otherwise ("", false).
func (sh *Shell_t) HandleKey(r rune) (string, bool) {
	switch r {
	case '\n', '\r':
		line := string(sh.buffer)
		sh.addHistory(line)
		sh.clearBuffer()
		return line, true
	case 0x08, 0x7f: // backspace / DEL
		sh.backspace()
	default:
		if len(sh.buffer) < bufferSize-1 {
			sh.buffer = append(sh.buffer[:sh.pos], append([]rune{r}, sh.buffer[sh.pos:]...)...)
			sh.pos++
		}
	}
	return "", false
}

func (sh *Shell_t) backspace() {
	if sh.pos == 0 {
		return
	}
	sh.buffer = append(sh.buffer[:sh.pos-1], sh.buffer[sh.pos:]...)
	sh.pos--
}

func (sh *Shell_t) clearBuffer() {
	sh.buffer = sh.buffer[:0]
	sh.pos = 0
	sh.histIndex = len(sh.history)
}

func (sh *Shell_t) addHistory(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	if len(sh.history) == historySize {
		sh.history = sh.history[1:]
	}
	sh.history = append(sh.history, line)
	sh.histIndex = len(sh.history)
}

// HistoryUp recalls the previous history entry, mirroring
// shell_handle_up_arrow; it clamps at the oldest entry.
func (sh *Shell_t) HistoryUp() string {
	if len(sh.history) == 0 {
		return string(sh.buffer)
	}
	if sh.histIndex > 0 {
		sh.histIndex--
	}
	line := sh.history[sh.histIndex]
	sh.setLine(line)
	return line
}

// HistoryDown recalls the next history entry, mirroring
// shell_handle_down_arrow; moving past the newest entry clears the
// line, matching a blank prompt after scrolling off the end.
func (sh *Shell_t) HistoryDown() string {
	if sh.histIndex < len(sh.history)-1 {
		sh.histIndex++
		line := sh.history[sh.histIndex]
		sh.setLine(line)
		return line
	}
	sh.histIndex = len(sh.history)
	sh.setLine("")
	return ""
}

func (sh *Shell_t) setLine(line string) {
	sh.buffer = []rune(line)
	sh.pos = len(sh.buffer)
}

// parseCommandLine splits line into whitespace-separated words,
// mirroring original_source/coreutils.h's parse_command_line. It does
// not support quoting; the original shell doesn't either.
func parseCommandLine(line string) []string {
	return strings.Fields(line)
}

// Execute runs one command line against env, dispatching to a builtin
// via coreutils.Lookup. An empty line is a no-op. An unknown command
// name reports an error line and a nonzero status, the way a real
// shell reports "command not found" rather than aborting.
func (sh *Shell_t) Execute(line string) (int, defs.Err_t) {
	words := parseCommandLine(line)
	if len(words) == 0 {
		return 0, 0
	}
	name, args := words[0], words[1:]
	if name == "exit" {
		sh.state = Exit
		sh.exitCode = 0
		if len(args) > 0 {
			if n, err := parseExitCode(args[0]); err == nil {
				sh.exitCode = n
			}
		}
		return sh.exitCode, 0
	}
	cmd, ok := coreutils.Lookup(name)
	if !ok {
		sh.env.Println(name + ": command not found")
		return 127, 0
	}
	return cmd.Run(sh.env, args)
}

var errNotNumeric = errors.New("not numeric")

func parseExitCode(s string) (int, error) {
	if s == "" {
		return 0, errNotNumeric
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, errNotNumeric
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// Done reports whether the shell has processed an "exit" command.
func (sh *Shell_t) Done() bool { return sh.state == Exit }

// Run drives the shell's read-eval loop against lines produced by
// next, the way original_source/shell.h's shell_run drives its
// buffer/state machine against raw keyboard input. next returns
// io.EOF's ok=false once input is exhausted.
func (sh *Shell_t) Run(next func() (string, bool)) int {
	sh.state = Running
	for !sh.Done() {
		line, ok := next()
		if !ok {
			break
		}
		sh.Execute(line)
	}
	return sh.exitCode
}
