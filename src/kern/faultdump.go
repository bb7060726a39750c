package kern

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"proc"
	"signal"
)

// faultSignals names the SIGSEGV-class signals whose unhandled default
// action (terminate) is worth disassembling the faulting instruction
// for; SIGTERM and friends terminate too, but carry no faulting
// instruction of interest.
var faultSignals = map[int]bool{
	signal.SIGSEGV: true,
	signal.SIGBUS:  true,
	signal.SIGILL:  true,
	signal.SIGFPE:  true,
}

// dumpFault prints a diagnostic line naming the instruction at p's
// saved RIP, read back out of p's own loaded text segment and
// disassembled with x86asm — the "faulting instruction" detail
// original_source's panic/fault path prints, reconstructed here since
// this simulated kernel has no hardware trap frame to read it from
// directly.
func (k *Kernel_t) dumpFault(p *proc.Proc_t, reason string) {
	p.Lock()
	rip := p.Regs.Rip
	as := p.As
	p.Unlock()

	buf := make([]byte, 16)
	uio := k.vmm.NewUio(as, uintptr(rip), len(buf), false)
	n, err := uio.Uioread(buf)
	if err != 0 || n == 0 {
		fmt.Printf("fault: pid %d: %s at rip=%#x: <unreadable>\n", p.Pid, reason, rip)
		return
	}
	inst, derr := x86asm.Decode(buf[:n], 64)
	if derr != nil {
		fmt.Printf("fault: pid %d: %s at rip=%#x: <undecodable: %v>\n", p.Pid, reason, rip, derr)
		return
	}
	fmt.Printf("fault: pid %d: %s at rip=%#x: %s\n", p.Pid, reason, rip, x86asm.GoSyntax(inst, rip, nil))
}
