// Package circbuf implements the fixed-size ring buffer backing each
// pipe (spec §4.5: "a pool of 64 pipes, each with an independent
// 4096-byte ring buffer"). The teacher's Circbuf_t lazily allocates its
// backing page through a refcounted mem.Page_i so the same buffer type
// can serve TCP sockets too; this kernel has no networking and no
// page-level refcounting (mem.Physmem_t's frames are owned by exactly
// one mapping), so the backing buffer is just a plain []byte sized once
// at pipe creation and the head/tail wraparound arithmetic is kept
// unchanged from the teacher's version.
package circbuf

import "defs"
import "fdops"

/// Circbuf_t is a single-reader, single-writer ring buffer. It is not
/// safe for concurrent use without external locking; the pipe package
/// supplies that.
type Circbuf_t struct {
	buf   []uint8
	bufsz int
	head  int
	tail  int
}

/// MkCircbuf constructs a ring buffer of exactly sz bytes.
func MkCircbuf(sz int) *Circbuf_t {
	if sz <= 0 {
		panic("bad circbuf size")
	}
	return &Circbuf_t{buf: make([]uint8, sz), bufsz: sz}
}

/// Bufsz returns the configured buffer size.
func (cb *Circbuf_t) Bufsz() int {
	return cb.bufsz
}

/// Full returns true when the buffer cannot accept more data.
func (cb *Circbuf_t) Full() bool {
	return cb.head-cb.tail == cb.bufsz
}

/// Empty reports whether the buffer contains any data.
func (cb *Circbuf_t) Empty() bool {
	return cb.head == cb.tail
}

/// Left returns the remaining capacity in bytes.
func (cb *Circbuf_t) Left() int {
	return cb.bufsz - (cb.head - cb.tail)
}

/// Used returns the current number of bytes in the buffer.
func (cb *Circbuf_t) Used() int {
	return cb.head - cb.tail
}

/// Copyin reads from src into the circular buffer, returning 0 bytes
/// without error if the buffer is already full (the caller decides
/// whether to block or report EAGAIN).
func (cb *Circbuf_t) Copyin(src fdops.Userio_i) (int, defs.Err_t) {
	if cb.Full() {
		return 0, 0
	}
	hi := cb.head % cb.bufsz
	ti := cb.tail % cb.bufsz
	c := 0
	if ti <= hi {
		dst := cb.buf[hi:]
		wrote, err := src.Uioread(dst)
		if err != 0 {
			return 0, err
		}
		if wrote != len(dst) {
			cb.head += wrote
			return wrote, 0
		}
		c += wrote
		hi = (cb.head + wrote) % cb.bufsz
	}
	if hi > ti {
		panic("circbuf: corrupt indices")
	}
	dst := cb.buf[hi:ti]
	wrote, err := src.Uioread(dst)
	c += wrote
	if err != 0 {
		return c, err
	}
	cb.head += c
	return c, 0
}

/// Copyout writes as much of the buffered data as dst accepts to dst.
func (cb *Circbuf_t) Copyout(dst fdops.Userio_i) (int, defs.Err_t) {
	return cb.Copyout_n(dst, 0)
}

/// Copyout_n writes up to max bytes of the buffer to dst (max == 0 means
/// "no limit").
func (cb *Circbuf_t) Copyout_n(dst fdops.Userio_i, max int) (int, defs.Err_t) {
	if cb.Empty() {
		return 0, 0
	}
	hi := cb.head % cb.bufsz
	ti := cb.tail % cb.bufsz
	c := 0
	if hi <= ti {
		src := cb.buf[ti:]
		if max != 0 && max < len(src) {
			src = src[:max]
		}
		wrote, err := dst.Uiowrite(src)
		if err != 0 {
			return 0, err
		}
		if wrote != len(src) || wrote == max {
			cb.tail += wrote
			return wrote, 0
		}
		c += wrote
		if max != 0 {
			max -= c
		}
		ti = (cb.tail + wrote) % cb.bufsz
	}
	if ti > hi {
		panic("circbuf: corrupt indices")
	}
	src := cb.buf[ti:hi]
	if max != 0 && max < len(src) {
		src = src[:max]
	}
	wrote, err := dst.Uiowrite(src)
	if err != 0 {
		return 0, err
	}
	c += wrote
	cb.tail += c
	return c, 0
}
