// Package fdops declares the interfaces that let the syscall dispatcher,
// the per-process descriptor table (fd.Fd_t) and every backing resource
// (pipe, FAT32 file, terminal, keyboard) talk to each other without fd
// importing pipe, fs, terminal and keyboard directly. This is the same
// role the teacher's fdops package plays for fd.Fd_t and circbuf.Circbuf_t
// — its source wasn't part of the retrieved pack, but its contract is
// fully pinned down by how those two call it, so it is reconstructed here
// from that contract rather than invented from scratch.
package fdops

import "defs"

// Userio_i abstracts a buffer on one side of a copy. The *caller* of
// Uioread/Uiowrite supplies a plain kernel-side []uint8; the Userio_i
// implementation supplies the other side, which may be a validated user
// address range (vm.Uio_t) or a second plain kernel buffer (Iovec_t),
// and is responsible for enforcing its own bounds.
type Userio_i interface {
	// Uioread copies from the receiver into dst, returning the number of
	// bytes copied. It copies min(len(dst), remaining) bytes.
	Uioread(dst []uint8) (int, defs.Err_t)
	// Uiowrite copies from src into the receiver, returning the number of
	// bytes copied.
	Uiowrite(src []uint8) (int, defs.Err_t)
	// Remain reports how many bytes are still available to read or write.
	Remain() int
}

// Fdops_i is implemented by every kind of thing a descriptor can name:
// a pipe end, an open FAT32 file, the terminal, the keyboard.
type Fdops_i interface {
	// Read copies up to len(dst)'s remaining capacity from the resource.
	Read(dst Userio_i) (int, defs.Err_t)
	// Write copies src's remaining bytes into the resource.
	Write(src Userio_i) (int, defs.Err_t)
	// Close releases the resource. Calling Close more than once is safe.
	Close() defs.Err_t
	// Reopen increments whatever reference count backs the resource, for
	// fork()'s descriptor-table duplication.
	Reopen() defs.Err_t
}

// Iovec_t is the simplest Userio_i: a plain kernel-side byte slice with a
// read cursor. It is what in-kernel tests and the pipe-to-pipe/self-host
// copy paths use when there is no user address space to validate against.
type Iovec_t struct {
	Buf []uint8
	pos int
}

// MkIovec wraps buf for use as a Userio_i.
func MkIovec(buf []uint8) *Iovec_t {
	return &Iovec_t{Buf: buf}
}

func (io *Iovec_t) Uioread(dst []uint8) (int, defs.Err_t) {
	n := copy(dst, io.Buf[io.pos:])
	io.pos += n
	return n, 0
}

func (io *Iovec_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	n := copy(io.Buf[io.pos:], src)
	io.pos += n
	return n, 0
}

func (io *Iovec_t) Remain() int {
	return len(io.Buf) - io.pos
}
