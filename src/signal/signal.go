// Package signal implements the POSIX-like signal subsystem (spec
// §4.4): a 32-bit pending set and a 32-bit blocked set per process, a
// disposition table (default/ignore/handler) indexed by signal number,
// and the delivery algorithm the scheduler and syscall-return path both
// call into. Signal numbering, the unmaskable pair (SIGKILL, SIGSTOP)
// and the default-disposition table all follow the original kernel's
// signals.h; nothing here is invented.
package signal

import "defs"

// Signal numbers, POSIX-compatible, 1..31 (0 is reserved and never
// raised).
const (
	SIGHUP    = 1
	SIGINT    = 2
	SIGQUIT   = 3
	SIGILL    = 4
	SIGTRAP   = 5
	SIGABRT   = 6
	SIGBUS    = 7
	SIGFPE    = 8
	SIGKILL   = 9
	SIGUSR1   = 10
	SIGSEGV   = 11
	SIGUSR2   = 12
	SIGPIPE   = 13
	SIGALRM   = 14
	SIGTERM   = 15
	SIGSTKFLT = 16
	SIGCHLD   = 17
	SIGCONT   = 18
	SIGSTOP   = 19
	SIGTSTP   = 20
	SIGTTIN   = 21
	SIGTTOU   = 22
	SIGURG    = 23
	SIGXCPU   = 24
	SIGXFSZ   = 25
	SIGVTALRM = 26
	SIGPROF   = 27
	SIGWINCH  = 28
	SIGIO     = 29
	SIGPWR    = 30
	SIGSYS    = 31

	MaxSignals = 32
)

// Disp_t names a signal's current disposition.
type Disp_t int

const (
	SIG_DFL Disp_t = iota /// the kernel's default action for the signal
	SIG_IGN                /// the signal is discarded on delivery
	SIG_HANDLER             /// Handler names the user function to invoke
)

// Action_t is one entry of a process's signal-disposition table.
type Action_t struct {
	Disp    Disp_t
	Handler uintptr /// user-space function pointer, valid iff Disp == SIG_HANDLER
	Mask    uint32  /// signals to additionally block while Handler runs
}

// ignoredByDefault, stopsByDefault and continuesByDefault record the
// SIG_DFL action of the signals whose default is not termination,
// mirroring the POSIX default-disposition table; every signal not named
// in them defaults to terminating the process, which is itself the
// commonest POSIX default.
var ignoredByDefault = map[int]bool{
	SIGCHLD: true,
	SIGURG:  true,
	SIGWINCH: true,
}

var stopsByDefault = map[int]bool{
	SIGSTOP: true,
	SIGTSTP: true,
	SIGTTIN: true,
	SIGTTOU: true,
}

var continuesByDefault = map[int]bool{
	SIGCONT: true,
}

// unmaskable holds the two signals a process may never block, ignore or
// catch: SIGKILL and SIGSTOP.
var unmaskable = map[int]bool{
	SIGKILL: true,
	SIGSTOP: true,
}

func bit(signum int) uint32 { return 1 << uint(signum-1) }

// Valid reports whether signum names a real signal.
func Valid(signum int) bool {
	return signum >= 1 && signum < MaxSignals
}

// Set_t is a process's signal state: which signals are pending, which
// are blocked, and the disposition table. It carries no lock of its own
// — callers (proc.Proc_t) hold whatever lock protects the owning
// process while touching a Set_t.
type Set_t struct {
	Pending  uint32
	Blocked  uint32
	Actions  [MaxSignals]Action_t
}

// MkSet returns a Set_t with every disposition at SIG_DFL.
func MkSet() *Set_t {
	return &Set_t{}
}

// Raise marks signum pending, failing with EINVAL only for an invalid
// signal number. Delivery happens at the next Deliverable/Consume pass.
func (s *Set_t) Raise(signum int) defs.Err_t {
	if !Valid(signum) {
		return defs.EINVAL
	}
	s.Pending |= bit(signum)
	return 0
}

// SetAction installs act as signum's disposition, returning the
// previous action. Attempting to set a disposition for SIGKILL or
// SIGSTOP fails with EINVAL, matching the original kernel's refusal to
// let either be caught, ignored or blocked.
func (s *Set_t) SetAction(signum int, act Action_t) (Action_t, defs.Err_t) {
	if !Valid(signum) {
		return Action_t{}, defs.EINVAL
	}
	if unmaskable[signum] {
		return Action_t{}, defs.EINVAL
	}
	old := s.Actions[signum]
	s.Actions[signum] = act
	return old, 0
}

// Block adds mask to the blocked set, silently dropping SIGKILL/SIGSTOP
// from it if present.
func (s *Set_t) Block(mask uint32) {
	s.Blocked |= mask &^ (bit(SIGKILL) | bit(SIGSTOP))
}

// Unblock removes mask from the blocked set.
func (s *Set_t) Unblock(mask uint32) {
	s.Blocked &^= mask
}

// SetMask replaces the blocked set wholesale, returning the previous
// value, again refusing to let SIGKILL/SIGSTOP be blocked.
func (s *Set_t) SetMask(mask uint32) uint32 {
	old := s.Blocked
	s.Blocked = mask &^ (bit(SIGKILL) | bit(SIGSTOP))
	return old
}

// IsBlocked reports whether signum is currently in the blocked set.
func (s *Set_t) IsBlocked(signum int) bool {
	return s.Blocked&bit(signum) != 0
}

// Deliverable reports the lowest-numbered pending, unblocked signal, if
// any. Spec §4.4: "at most one handler invocation happens per delivery
// pass", so callers that want to deliver everything currently pending
// call Deliverable/Consume in a loop rather than a single Deliver call
// handling the whole pending set at once.
func (s *Set_t) Deliverable() (int, bool) {
	ready := s.Pending &^ s.Blocked
	if ready == 0 {
		return 0, false
	}
	for i := 1; i < MaxSignals; i++ {
		if ready&bit(i) != 0 {
			return i, true
		}
	}
	panic("unreachable")
}

// Consume clears signum from the pending set and returns its current
// action, ready for the caller (trap.Dispatch or the scheduler) to act
// on: invoke the handler, or apply SIG_DFL's terminate/stop/ignore/
// continue semantics.
func (s *Set_t) Consume(signum int) Action_t {
	s.Pending &^= bit(signum)
	return s.Actions[signum]
}

// DefaultTerminates reports whether signum's SIG_DFL action is to
// terminate the process (the common case — every signal not otherwise
// named in the POSIX default-disposition table).
func DefaultTerminates(signum int) bool {
	return !ignoredByDefault[signum] && !stopsByDefault[signum] && !continuesByDefault[signum]
}

// DefaultStops reports whether signum's SIG_DFL action is to stop the
// process (SIGSTOP, SIGTSTP, SIGTTIN, SIGTTOU).
func DefaultStops(signum int) bool {
	return stopsByDefault[signum]
}

// DefaultContinues reports whether signum's SIG_DFL action is to resume
// a stopped process (SIGCONT).
func DefaultContinues(signum int) bool {
	return continuesByDefault[signum]
}

// DefaultIgnored reports whether signum's SIG_DFL action is to be
// discarded silently (SIGCHLD, SIGURG, SIGWINCH).
func DefaultIgnored(signum int) bool {
	return ignoredByDefault[signum]
}

// Unmaskable reports whether signum is SIGKILL or SIGSTOP.
func Unmaskable(signum int) bool {
	return unmaskable[signum]
}
