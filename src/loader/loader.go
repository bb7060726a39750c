// Package loader implements exec(): parsing an ELF64 executable and
// mapping its loadable segments into a fresh address space (spec
// §4.7's exec path). It uses the standard library's debug/elf rather
// than a hand-rolled parser, the same library cmd/elfentry (adapted
// from the teacher's chentry build tool) already uses to validate and
// rewrite ELF headers — chkELF's EI_DATA/ET_EXEC/EM_X86_64 checks are
// repeated here as the same gate on what this kernel will attempt to
// load.
package loader

import (
	"bytes"
	"debug/elf"
	"io"

	"bounds"
	"defs"
	"vm"
)

// Image describes a loaded executable: the entry point and the
// initial stack pointer a freshly created process's registers should
// start at.
type Image struct {
	Entry uintptr
	Stack uintptr
}

func validate(f *elf.File) defs.Err_t {
	if f.Class != elf.ELFCLASS64 || f.Data != elf.ELFDATA2LSB {
		return defs.EINVAL
	}
	if f.Type != elf.ET_EXEC {
		return defs.EINVAL
	}
	if f.Machine != elf.EM_X86_64 {
		return defs.EINVAL
	}
	return 0
}

// Load parses the ELF image in data, maps every PT_LOAD segment into
// as via vmm, allocates and maps a user stack, and returns the
// entry/stack addresses a new process's Registers_t should be seeded
// with.
func Load(vmm *vm.Vmm_t, as *vm.Vm_t, data []byte) (Image, defs.Err_t) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return Image{}, defs.EINVAL
	}
	defer f.Close()
	if verr := validate(f); verr != 0 {
		return Image{}, verr
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if err := loadSegment(vmm, as, prog); err != 0 {
			return Image{}, err
		}
	}

	stackTop := uintptr(bounds.USER_STACK_TOP) &^ uintptr(0xfff)
	if err := mapStack(vmm, as, stackTop); err != 0 {
		return Image{}, err
	}

	return Image{Entry: uintptr(f.Entry), Stack: stackTop}, 0
}

// loadSegment maps and populates every page prog.Memsz spans, zero-
// filling the portion beyond Filesz (.bss) per the ELF spec.
func loadSegment(vmm *vm.Vmm_t, as *vm.Vm_t, prog *elf.Prog) defs.Err_t {
	flags := vm.PTE_U
	if prog.Flags&elf.PF_W != 0 {
		flags |= vm.PTE_W
	}
	vaddr := prog.Vaddr
	pageStart := vaddr &^ 0xfff
	pageEnd := (vaddr + prog.Memsz + 0xfff) &^ 0xfff
	fileEnd := vaddr + prog.Filesz

	for pg := pageStart; pg < pageEnd; pg += 0x1000 {
		if err := vmm.AllocUserPage(as, uintptr(pg), flags); err != 0 {
			return err
		}
		pageData := make([]byte, 0x1000)
		segStart := pg
		if segStart < vaddr {
			segStart = vaddr
		}
		segEndInPage := pg + 0x1000
		if segEndInPage > fileEnd {
			segEndInPage = fileEnd
		}
		if segEndInPage > segStart {
			n := segEndInPage - segStart
			buf := make([]byte, n)
			if _, err := prog.ReadAt(buf, int64(segStart-vaddr)); err != nil && err != io.EOF {
				return defs.EFAULT
			}
			copy(pageData[segStart-pg:], buf)
		}
		// Fill the frame directly: a read-only segment's page has no
		// PTE_W, so a user-side write copy would be refused.
		frame, ok := vmm.Translate(as, uintptr(pg))
		if !ok {
			return defs.EFAULT
		}
		copy(vmm.Phys.Dmap(frame), pageData)
	}
	return 0
}

// mapStack allocates the default-sized user stack immediately below
// top; top itself is the exclusive end and is left unmapped.
func mapStack(vmm *vm.Vmm_t, as *vm.Vm_t, top uintptr) defs.Err_t {
	bottom := top - bounds.DefaultUserStackSize
	for pg := bottom &^ 0xfff; pg < top; pg += 0x1000 {
		if err := vmm.AllocUserPage(as, pg, vm.PTE_U|vm.PTE_W); err != 0 {
			return err
		}
	}
	return 0
}
