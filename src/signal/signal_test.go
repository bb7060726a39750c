package signal

import (
	"testing"

	"defs"
)

func TestRaiseThenDeliverable(t *testing.T) {
	s := MkSet()
	if err := s.Raise(SIGTERM); err != 0 {
		t.Fatalf("Raise: %v", err)
	}
	sig, ok := s.Deliverable()
	if !ok || sig != SIGTERM {
		t.Fatalf("Deliverable = (%d, %v), want (%d, true)", sig, ok, SIGTERM)
	}
}

func TestRaiseInvalidSignumIsEinval(t *testing.T) {
	s := MkSet()
	if err := s.Raise(0); err != defs.EINVAL {
		t.Errorf("Raise(0) = %v, want EINVAL", err)
	}
	if err := s.Raise(MaxSignals); err != defs.EINVAL {
		t.Errorf("Raise(MaxSignals) = %v, want EINVAL", err)
	}
}

func TestDeliverablePicksLowestNumberedUnblocked(t *testing.T) {
	s := MkSet()
	s.Raise(SIGTERM)
	s.Raise(SIGINT)
	s.Block(bit(SIGINT))
	sig, ok := s.Deliverable()
	if !ok || sig != SIGTERM {
		t.Fatalf("Deliverable with SIGINT blocked = (%d, %v), want (%d, true)", sig, ok, SIGTERM)
	}
}

func TestConsumeClearsPendingBit(t *testing.T) {
	s := MkSet()
	s.Raise(SIGHUP)
	s.Consume(SIGHUP)
	if _, ok := s.Deliverable(); ok {
		t.Errorf("signal still deliverable after Consume")
	}
}

func TestBlockSilentlyDropsUnmaskableSignals(t *testing.T) {
	s := MkSet()
	s.Block(bit(SIGKILL) | bit(SIGSTOP) | bit(SIGTERM))
	if s.Blocked&bit(SIGKILL) != 0 || s.Blocked&bit(SIGSTOP) != 0 {
		t.Errorf("Block let SIGKILL/SIGSTOP into the blocked set: %#x", s.Blocked)
	}
	if s.Blocked&bit(SIGTERM) == 0 {
		t.Errorf("Block failed to block SIGTERM")
	}
}

func TestSetActionRefusesUnmaskableSignals(t *testing.T) {
	s := MkSet()
	if _, err := s.SetAction(SIGKILL, Action_t{Disp: SIG_IGN}); err != defs.EINVAL {
		t.Errorf("SetAction(SIGKILL) = %v, want EINVAL", err)
	}
	if _, err := s.SetAction(SIGSTOP, Action_t{Disp: SIG_IGN}); err != defs.EINVAL {
		t.Errorf("SetAction(SIGSTOP) = %v, want EINVAL", err)
	}
}

func TestSetActionReturnsPreviousAction(t *testing.T) {
	s := MkSet()
	s.SetAction(SIGTERM, Action_t{Disp: SIG_IGN})
	old, err := s.SetAction(SIGTERM, Action_t{Disp: SIG_HANDLER, Handler: 0x1000})
	if err != 0 {
		t.Fatalf("SetAction: %v", err)
	}
	if old.Disp != SIG_IGN {
		t.Errorf("previous action = %+v, want Disp=SIG_IGN", old)
	}
}

func TestSetMaskReplacesBlockedSet(t *testing.T) {
	s := MkSet()
	s.Block(bit(SIGHUP))
	old := s.SetMask(bit(SIGTERM))
	if old != bit(SIGHUP) {
		t.Errorf("SetMask returned %#x, want previous mask %#x", old, bit(SIGHUP))
	}
	if s.Blocked != bit(SIGTERM) {
		t.Errorf("Blocked = %#x, want %#x", s.Blocked, bit(SIGTERM))
	}
}

func TestDefaultDispositionClassification(t *testing.T) {
	cases := []struct {
		sig                             int
		terminate, stop, cont, ignored bool
	}{
		{SIGKILL, true, false, false, false},
		{SIGSTOP, false, true, false, false},
		{SIGCONT, false, false, true, false},
		{SIGCHLD, false, false, false, true},
	}
	for _, c := range cases {
		if got := DefaultTerminates(c.sig); got != c.terminate {
			t.Errorf("DefaultTerminates(%d) = %v, want %v", c.sig, got, c.terminate)
		}
		if got := DefaultStops(c.sig); got != c.stop {
			t.Errorf("DefaultStops(%d) = %v, want %v", c.sig, got, c.stop)
		}
		if got := DefaultContinues(c.sig); got != c.cont {
			t.Errorf("DefaultContinues(%d) = %v, want %v", c.sig, got, c.cont)
		}
		if got := DefaultIgnored(c.sig); got != c.ignored {
			t.Errorf("DefaultIgnored(%d) = %v, want %v", c.sig, got, c.ignored)
		}
	}
}

func TestValid(t *testing.T) {
	if !Valid(SIGTERM) {
		t.Errorf("Valid(SIGTERM) = false")
	}
	if Valid(0) || Valid(MaxSignals) {
		t.Errorf("Valid accepted an out-of-range signal number")
	}
}
