// Package regs defines the register file a process carries across the
// simulated int 0x80 software trap (spec §4.7). Real hardware pushes
// this state onto the kernel stack when the trap fires; since there is
// no real CPU here, trap.Dispatch receives it as an ordinary function
// argument instead, and this struct is laid out the same way the
// original kernel's registers_t is.
package regs

// Registers_t is one process's saved general-purpose and segment
// register state.
type Registers_t struct {
	Rax, Rbx, Rcx, Rdx                    uint64
	Rsi, Rdi, Rbp, Rsp                    uint64
	R8, R9, R10, R11, R12, R13, R14, R15  uint64
	Rip, Rflags                           uint64
	Cs, Ss, Ds, Es, Fs, Gs                uint64
	Cr3                                   uint64
}

// Syscallno returns the syscall number the ABI places in Rax.
func (r *Registers_t) Syscallno() uint64 { return r.Rax }

// SetRet stores the syscall's return value in Rax.
func (r *Registers_t) SetRet(v uint64) { r.Rax = v }

// Arg returns the n'th syscall argument (0-indexed), following the
// System V AMD64 ABI's register order for the first six arguments:
// rdi, rsi, rdx, r10, r8, r9. (r10 stands in for rcx, which the SYSCALL
// instruction itself clobbers; int 0x80 doesn't strictly need this, but
// the original kernel's calling convention follows it anyway.)
func (r *Registers_t) Arg(n int) uint64 {
	switch n {
	case 0:
		return r.Rdi
	case 1:
		return r.Rsi
	case 2:
		return r.Rdx
	case 3:
		return r.R10
	case 4:
		return r.R8
	case 5:
		return r.R9
	}
	panic("regs: bad argument index")
}
