// Package mem implements the physical frame allocator (§4.1): a bitmap,
// one bit per 4 KiB frame, scanned byte-at-a-time for the first free
// frame. Real hardware backs this with actual DRAM reachable through a
// direct map; this kernel runs hosted, so Physmem_t owns a plain []byte
// arena standing in for that RAM and Dmap is just a bounds-checked
// reslice of it rather than a hardware direct-map window. Every other
// subsystem obtains frames exclusively through this allocator, exactly as
// spec §4.1 requires.
package mem

import (
	"fmt"
	"sync"

	"caller"
	"defs"
)

/// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

/// PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

/// PGOFFSET masks offsets within a page.
const PGOFFSET Pa_t = 0xfff

/// PGMASK masks the page number of an address.
const PGMASK Pa_t = ^(PGOFFSET)

/// Pa_t represents a physical address: an offset into the simulated RAM
/// arena, not a real bus address.
type Pa_t uintptr

// Physmem_t is the kernel-wide physical frame allocator. The invariant
// from spec §3 — free+used+reserved == total+reserved, i.e. free+used ==
// total once reserved frames are excluded from "total" — is maintained by
// every mutating method.
type Physmem_t struct {
	sync.Mutex
	arena    []byte
	bitmap   []byte
	nframes  int
	total    int
	free     int
	used     int
	reserved int
	// diag, when non-nil, is invoked for invariant violations (double
	// free, misaligned free) that spec §7 says must be logged but must
	// not panic the kernel.
	diag func(string)
}

// NewPhysmem allocates a simulated RAM arena of totalBytes, rounded down
// to a whole number of frames, with every frame initially free.
func NewPhysmem(totalBytes int) *Physmem_t {
	nframes := totalBytes / PGSIZE
	p := &Physmem_t{
		arena:   make([]byte, nframes*PGSIZE),
		bitmap:  make([]byte, (nframes+7)/8),
		nframes: nframes,
		total:   nframes * PGSIZE,
	}
	p.free = p.total
	p.diag = func(msg string) {
		fmt.Printf("mem: %s\n", msg)
		caller.Callerdump(2)
	}
	return p
}

// Reserve marks the nframes frames starting at frame index startFrame as
// permanently allocated and accounted as reserved rather than used.
// kern.Boot reserves no frames: neither the kernel image nor the bitmap
// lives inside the simulated arena.
func (p *Physmem_t) Reserve(startFrame, nframes int) {
	p.Lock()
	defer p.Unlock()
	for i := startFrame; i < startFrame+nframes; i++ {
		if i < 0 || i >= p.nframes {
			continue
		}
		if !p.testbit(i) {
			p.setbit(i)
			p.free -= PGSIZE
			p.reserved += PGSIZE
		}
	}
}

func (p *Physmem_t) testbit(i int) bool {
	return p.bitmap[i/8]&(1<<uint(i%8)) != 0
}

func (p *Physmem_t) setbit(i int) {
	p.bitmap[i/8] |= 1 << uint(i%8)
}

func (p *Physmem_t) clearbit(i int) {
	p.bitmap[i/8] &^= 1 << uint(i%8)
}

// AllocPage scans the bitmap for the first clear bit, starting from index
// 0 on every call per spec §4.1 ("scans the bitmap byte-at-a-time for the
// first clear bit of index >= 0"), marks it allocated, zeroes the frame
// and returns its physical address. It returns ENOMEM when every bit is
// set.
func (p *Physmem_t) AllocPage() (Pa_t, defs.Err_t) {
	p.Lock()
	defer p.Unlock()
	for bi := 0; bi < len(p.bitmap); bi++ {
		if p.bitmap[bi] == 0xff {
			continue
		}
		for b := 0; b < 8; b++ {
			idx := bi*8 + b
			if idx >= p.nframes {
				break
			}
			if p.bitmap[bi]&(1<<uint(b)) == 0 {
				p.setbit(idx)
				p.used += PGSIZE
				p.free -= PGSIZE
				pa := Pa_t(idx * PGSIZE)
				frame := p.arena[pa : int(pa)+PGSIZE]
				for i := range frame {
					frame[i] = 0
				}
				return pa, 0
			}
		}
	}
	return 0, defs.ENOMEM
}

// FreePage clears the bit for the frame at pa. It fails with EINVAL,
// logging the violation rather than panicking (spec §7), if pa is not
// frame-aligned or the frame is already free.
func (p *Physmem_t) FreePage(pa Pa_t) defs.Err_t {
	p.Lock()
	defer p.Unlock()
	if pa&PGOFFSET != 0 {
		p.diag(fmt.Sprintf("free_page: misaligned address %#x", pa))
		return defs.EINVAL
	}
	idx := int(pa) / PGSIZE
	if idx < 0 || idx >= p.nframes {
		p.diag(fmt.Sprintf("free_page: out of range %#x", pa))
		return defs.EINVAL
	}
	if !p.testbit(idx) {
		p.diag(fmt.Sprintf("free_page: double free of %#x", pa))
		return defs.EINVAL
	}
	p.clearbit(idx)
	p.used -= PGSIZE
	p.free += PGSIZE
	return 0
}

// Dmap returns the byte slice backing the single frame at pa. It panics
// if pa is not frame-aligned or is out of range: callers are expected to
// have obtained pa from AllocPage or a page-table walk, never from
// unchecked user input.
func (p *Physmem_t) Dmap(pa Pa_t) []byte {
	if pa&PGOFFSET != 0 {
		panic("dmap: misaligned")
	}
	idx := int(pa) / PGSIZE
	if idx < 0 || idx >= p.nframes {
		panic("dmap: out of range")
	}
	return p.arena[pa : int(pa)+PGSIZE]
}

// Bytes returns n bytes of the arena starting at the (not necessarily
// page-aligned) physical address pa, for reading or writing sub-page
// fields such as a single page-table entry.
func (p *Physmem_t) Bytes(pa Pa_t, n int) []byte {
	return p.arena[pa : int(pa)+n]
}

// Stats reports the PMM's counters in bytes: total, free, used, reserved.
func (p *Physmem_t) Stats() (int, int, int, int) {
	p.Lock()
	defer p.Unlock()
	return p.total, p.free, p.used, p.reserved
}

// NFrames returns the number of 4 KiB frames the arena holds.
func (p *Physmem_t) NFrames() int {
	return p.nframes
}
