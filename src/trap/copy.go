package trap

import (
	"defs"
	"fdops"
	"proc"
)

// copyOutUint64 validates dst against p's address space and writes v
// to it as 8 little-endian bytes, the shape every out-param syscall
// argument (wait()'s status, sigpending()'s set) uses.
func copyOutUint64(k Kernel_i, p *proc.Proc_t, dst uintptr, v uint64) defs.Err_t {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	uio := k.VMM().NewUio(p.As, dst, 8, true)
	n, err := uio.Uiowrite(buf)
	if err != 0 {
		return err
	}
	if n != 8 {
		return defs.EFAULT
	}
	return 0
}

// copyInCstr reads a NUL-terminated string from p's address space at
// src, up to a generous bound, used for pathname arguments.
func copyInCstr(k Kernel_i, p *proc.Proc_t, src uintptr) (string, defs.Err_t) {
	const maxPath = 256
	uio := k.VMM().NewUio(p.As, src, maxPath, false)
	buf := make([]byte, maxPath)
	n, err := uio.Uioread(buf)
	if err != 0 && n == 0 {
		return "", err
	}
	for i := 0; i < n; i++ {
		if buf[i] == 0 {
			return string(buf[:i]), 0
		}
	}
	return string(buf[:n]), 0
}

// userIovec returns a fdops.Userio_i over count bytes of p's address
// space starting at ptr, validated for the requested direction.
func userIovec(k Kernel_i, p *proc.Proc_t, ptr uintptr, count int, forWrite bool) fdops.Userio_i {
	return k.VMM().NewUio(p.As, ptr, count, forWrite)
}
