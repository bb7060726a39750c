// Package keyboard implements the keyboard device (spec §6): scancode
// translation into ASCII and a readable byte stream for whatever
// process has it open. Real hardware delivers scancodes through an
// IRQ1 handler reading port 0x60; hosted Go has no I/O ports, so
// Device_t instead reads scancodes off of any io.Reader — in
// production that's a goroutine fed by the host terminal, in tests a
// bytes.Reader standing in for a captured keystroke sequence. The
// scancode set and status-register bit layout follow
// original_source/keyboard.h (KEYBOARD_DATA_PORT's scancode table and
// KEYBOARD_STATUS_OUTPUT_FULL, even though there is no port to poll
// here).
package keyboard

import (
	"io"
	"sync"

	"defs"
	"fdops"
)

// scancodeToAscii is the unshifted US-QWERTY scancode table,
// original_source/keyboard.h's KEY_* set 0x02..0x39.
var scancodeToAscii = map[byte]byte{
	0x02: '1', 0x03: '2', 0x04: '3', 0x05: '4', 0x06: '5',
	0x07: '6', 0x08: '7', 0x09: '8', 0x0A: '9', 0x0B: '0',
	0x0C: '-', 0x0D: '=', 0x0F: '\t',
	0x10: 'q', 0x11: 'w', 0x12: 'e', 0x13: 'r', 0x14: 't',
	0x15: 'y', 0x16: 'u', 0x17: 'i', 0x18: 'o', 0x19: 'p',
	0x1C: '\n',
	0x1E: 'a', 0x1F: 's', 0x20: 'd', 0x21: 'f', 0x22: 'g',
	0x23: 'h', 0x24: 'j', 0x25: 'k', 0x26: 'l',
	0x2C: 'z', 0x2D: 'x', 0x2E: 'c', 0x2F: 'v', 0x30: 'b',
	0x31: 'n', 0x32: 'm',
	0x39: ' ',
}

const releasedBit = 0x80 // a key-release scancode has the top bit set

// Device_t is the keyboard's character stream: scancodes read from src
// are translated to ASCII and buffered for Read.
type Device_t struct {
	mu     sync.Mutex
	src    io.Reader
	pending []byte
}

// New constructs a keyboard device reading raw scancodes from src.
func New(src io.Reader) *Device_t {
	return &Device_t{src: src}
}

var _ fdops.Fdops_i = (*Device_t)(nil)

// Read translates and copies available keystrokes into dst, reading
// more scancodes from the underlying source as needed. It blocks (in
// the sense that it may call src.Read, which can itself block) only
// until at least one translatable keypress is available or the source
// is exhausted.
func (d *Device_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.pending) == 0 {
		var code [1]byte
		n, err := d.src.Read(code[:])
		if n == 0 {
			if err != nil {
				return 0, 0 // EOF: no more input
			}
			continue
		}
		sc := code[0]
		if sc&releasedBit != 0 {
			continue // key-release scancodes produce no character
		}
		if ch, ok := scancodeToAscii[sc]; ok {
			d.pending = append(d.pending, ch)
		}
	}
	total := 0
	for dst.Remain() > 0 && len(d.pending) > 0 {
		n, err := dst.Uiowrite(d.pending[:1])
		if err != 0 {
			return total, err
		}
		if n == 0 {
			break
		}
		d.pending = d.pending[1:]
		total += n
	}
	return total, 0
}

func (d *Device_t) Write(fdops.Userio_i) (int, defs.Err_t) { return 0, defs.EINVAL }
func (d *Device_t) Close() defs.Err_t                      { return 0 }
func (d *Device_t) Reopen() defs.Err_t                     { return 0 }
