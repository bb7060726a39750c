package trap

import (
	"defs"
	"fd"
	"fdops"
	"fs"
	"proc"
	"regs"
)

// allocFdLocked finds the lowest-numbered free slot in p.Fds, caller
// must hold p's lock.
func allocFdLocked(p *proc.Proc_t) (int, defs.Err_t) {
	for i := range p.Fds {
		if p.Fds[i] == nil {
			return i, 0
		}
	}
	return 0, defs.ENOMEM
}

func getFd(p *proc.Proc_t, n int) (*fd.Fd_t, defs.Err_t) {
	if n < 0 || n >= len(p.Fds) {
		return nil, defs.EINVAL
	}
	p.Lock()
	f := p.Fds[n]
	p.Unlock()
	if f == nil {
		return nil, defs.EINVAL
	}
	return f, 0
}

func sysClose(p *proc.Proc_t, n int) defs.Err_t {
	p.Lock()
	if n < 0 || n >= len(p.Fds) || p.Fds[n] == nil {
		p.Unlock()
		return defs.EINVAL
	}
	f := p.Fds[n]
	p.Fds[n] = nil
	p.Unlock()
	return f.Fops.Close()
}

func sysDup(p *proc.Proc_t, oldfd int) (uint64, defs.Err_t) {
	of, err := getFd(p, oldfd)
	if err != 0 {
		return 0, err
	}
	nf, err := fd.Copyfd(of)
	if err != 0 {
		return 0, err
	}
	p.Lock()
	n, err := allocFdLocked(p)
	if err == 0 {
		p.Fds[n] = nf
	}
	p.Unlock()
	if err != 0 {
		nf.Fops.Close()
		return 0, err
	}
	return uint64(n), 0
}

func sysDup2(p *proc.Proc_t, oldfd, newfd int) (uint64, defs.Err_t) {
	of, err := getFd(p, oldfd)
	if err != 0 {
		return 0, err
	}
	if newfd < 0 || newfd >= len(p.Fds) {
		return 0, defs.EINVAL
	}
	nf, err := fd.Copyfd(of)
	if err != 0 {
		return 0, err
	}
	p.Lock()
	old := p.Fds[newfd]
	p.Fds[newfd] = nf
	p.Unlock()
	if old != nil {
		old.Fops.Close()
	}
	return uint64(newfd), 0
}

func sysPipe(k Kernel_i, p *proc.Proc_t, fdsOut uintptr) defs.Err_t {
	r, w, err := k.Pipes().New()
	if err != 0 {
		return err
	}
	p.Lock()
	ri, rerr := allocFdLocked(p)
	if rerr == 0 {
		p.Fds[ri] = &fd.Fd_t{Fops: r, Perms: fd.FD_READ}
	}
	var wi int
	var werr defs.Err_t
	if rerr == 0 {
		wi, werr = allocFdLocked(p)
		if werr == 0 {
			p.Fds[wi] = &fd.Fd_t{Fops: w, Perms: fd.FD_WRITE}
		}
	}
	p.Unlock()
	if rerr != 0 || werr != 0 {
		r.Close()
		w.Close()
		return defs.ENOMEM
	}
	buf := make([]byte, 16)
	for i := 0; i < 8; i++ {
		buf[i] = byte(uint64(ri) >> (8 * i))
		buf[8+i] = byte(uint64(wi) >> (8 * i))
	}
	uio := k.VMM().NewUio(p.As, fdsOut, 16, true)
	if n, err := uio.Uiowrite(buf); err != 0 || n != 16 {
		return defs.EFAULT
	}
	return 0
}

func sysOpen(k Kernel_i, p *proc.Proc_t, r *regs.Registers_t) (uint64, defs.Err_t) {
	name, err := copyInCstr(k, p, uintptr(r.Arg(0)))
	if err != 0 {
		return 0, err
	}
	flags := int(r.Arg(1))
	perms := fd.FD_READ
	if flags&(fs.O_WRONLY|fs.O_RDWR) != 0 {
		perms |= fd.FD_WRITE
	}

	var fops fdops.Fdops_i
	if dev, ok := k.OpenDev(name); ok {
		fops = dev
	} else {
		fl, ferr := k.FS().Open(name, flags)
		if ferr != 0 {
			return 0, ferr
		}
		fops = fl.Fdops()
	}

	p.Lock()
	n, aerr := allocFdLocked(p)
	if aerr == 0 {
		p.Fds[n] = &fd.Fd_t{Fops: fops, Perms: perms}
	}
	p.Unlock()
	if aerr != 0 {
		return 0, aerr
	}
	return uint64(n), 0
}

func sysReadWrite(k Kernel_i, p *proc.Proc_t, r *regs.Registers_t) (uint64, defs.Err_t) {
	n := int(r.Arg(0))
	ptr := uintptr(r.Arg(1))
	count := int(r.Arg(2))
	f, err := getFd(p, n)
	if err != 0 {
		return 0, err
	}
	if r.Syscallno() == SYS_READ {
		uio := userIovec(k, p, ptr, count, true)
		c, err := f.Fops.Read(uio)
		return uint64(c), err
	}
	uio := userIovec(k, p, ptr, count, false)
	c, err := f.Fops.Write(uio)
	return uint64(c), err
}
