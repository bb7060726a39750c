package vm

import (
	"defs"
	"fdops"
	"mem"
	"util"
)

// Uio_t is the Userio_i that sits on the user-memory side of a copy: a
// validated range of one process's address space. It implements the
// byte-wise, page-at-a-time copy loop spec §4.7 describes — copying
// stops at the first page that fails validate_user, and a copy that got
// partway through is reported as a failure rather than rolled back.
type Uio_t struct {
	vmm   *Vmm_t
	as    *Vm_t
	ptr   uintptr
	size  int
	write bool // true: this Uio_t is the destination of a copy (needs PTE_W); false: it is the source (read-only)
	pos   int
}

var _ fdops.Userio_i = (*Uio_t)(nil)

// NewUio wraps the size bytes of as's address space starting at ptr. Set
// forWrite when the kernel intends to write into this range (e.g. a
// read() syscall delivering data to a user buffer); leave it false when
// the kernel only reads from it (e.g. write()'s source buffer).
func (v *Vmm_t) NewUio(as *Vm_t, ptr uintptr, size int, forWrite bool) *Uio_t {
	return &Uio_t{vmm: v, as: as, ptr: ptr, size: size, write: forWrite}
}

func (u *Uio_t) Remain() int { return u.size - u.pos }

// Uioread copies from the user range into dst: the user range is read,
// so only present|user is required of each page touched.
func (u *Uio_t) Uioread(dst []uint8) (int, defs.Err_t) {
	return u.copy(dst, false)
}

// Uiowrite copies from src into the user range: the user range is
// written, so present|user|writable is required of each page touched.
func (u *Uio_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	return u.copy(src, true)
}

// copy moves min(len(buf), Remain()) bytes between buf and the user
// range, in the direction toWrite indicates, validating one page at a
// time and stopping (reporting a partial copy as EFAULT) the first time
// validate_user rejects a page.
func (u *Uio_t) copy(buf []uint8, toWrite bool) (int, defs.Err_t) {
	n := util.Min(len(buf), u.Remain())
	copied := 0
	for copied < n {
		va := u.ptr + uintptr(u.pos+copied)
		pagestart := va &^ uintptr(mem.PGSIZE-1)
		if !u.vmm.ValidateUser(u.as, pagestart, mem.PGSIZE, toWrite) {
			if copied == 0 {
				return 0, defs.EFAULT
			}
			return copied, defs.EFAULT
		}
		frame, ok := u.vmm.Translate(u.as, va)
		if !ok {
			if copied == 0 {
				return 0, defs.EFAULT
			}
			return copied, defs.EFAULT
		}
		pageoff := int(va & uintptr(mem.PGSIZE-1))
		avail := mem.PGSIZE - pageoff
		chunk := util.Min(n-copied, avail)
		phys := u.vmm.Phys.Bytes(frame, chunk)
		if toWrite {
			copy(phys, buf[copied:copied+chunk])
		} else {
			copy(buf[copied:copied+chunk], phys)
		}
		copied += chunk
	}
	u.pos += copied
	return copied, 0
}
