// Package terminal implements the console device (spec §6): a simple
// write-through text sink backing /dev/console (defs.D_CONSOLE). It
// keeps no line-editing state. Real hardware would write through to VGA text-mode memory or
// a serial UART; hosted Go has neither, so Device_t writes through to
// any io.Writer, in production the host process's stdout.
package terminal

import (
	"bufio"
	"io"
	"sync"

	"defs"
	"fdops"
)

// Device_t is the console's output stream.
type Device_t struct {
	mu  sync.Mutex
	out *bufio.Writer
}

// New constructs a console device writing through to dst.
func New(dst io.Writer) *Device_t {
	return &Device_t{out: bufio.NewWriter(dst)}
}

var _ fdops.Fdops_i = (*Device_t)(nil)

func (d *Device_t) Read(fdops.Userio_i) (int, defs.Err_t) { return 0, defs.EINVAL }

// Write copies src's remaining bytes straight through to the
// underlying writer, flushing immediately — the console has no
// buffering contract a reader could observe, so every Write is visible
// before it returns.
func (d *Device_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := 0
	buf := make([]byte, 512)
	for src.Remain() > 0 {
		n, err := src.Uioread(buf)
		if err != 0 {
			return total, err
		}
		if n == 0 {
			break
		}
		if _, werr := d.out.Write(buf[:n]); werr != nil {
			return total, defs.EFAULT
		}
		total += n
	}
	if err := d.out.Flush(); err != nil {
		return total, defs.EFAULT
	}
	return total, 0
}

func (d *Device_t) Close() defs.Err_t  { return 0 }
func (d *Device_t) Reopen() defs.Err_t { return 0 }
