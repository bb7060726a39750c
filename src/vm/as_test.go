package vm

import (
	"testing"

	"bounds"
	"defs"
	"mem"
)

func freshVmm(t *testing.T) (*Vmm_t, *Vm_t) {
	t.Helper()
	phys := mem.NewPhysmem(4 * 1024 * 1024)
	vmm := NewVmm(phys)
	as, err := vmm.CreateUserSpace()
	if err != 0 {
		t.Fatalf("CreateUserSpace: %v", err)
	}
	return vmm, as
}

func TestMapTranslateRoundTrip(t *testing.T) {
	vmm, as := freshVmm(t)
	frame, err := vmm.Phys.AllocPage()
	if err != 0 {
		t.Fatalf("AllocPage: %v", err)
	}
	va := uintptr(bounds.USER_BASE)
	if err := vmm.Map(as, frame, va, PTE_W|PTE_U); err != 0 {
		t.Fatalf("Map: %v", err)
	}
	got, ok := vmm.Translate(as, va+0x123)
	if !ok {
		t.Fatalf("Translate: not mapped")
	}
	if want := frame + 0x123; got != want {
		t.Errorf("Translate = %#x, want %#x", got, want)
	}
}

func TestMapAlreadyMapped(t *testing.T) {
	vmm, as := freshVmm(t)
	frame, _ := vmm.Phys.AllocPage()
	va := uintptr(bounds.USER_BASE)
	if err := vmm.Map(as, frame, va, PTE_W|PTE_U); err != 0 {
		t.Fatalf("first Map: %v", err)
	}
	if err := vmm.Map(as, frame, va, PTE_W|PTE_U); err != defs.EEXIST {
		t.Errorf("second Map = %v, want EEXIST", err)
	}
}

func TestUnmapThenTranslateFails(t *testing.T) {
	vmm, as := freshVmm(t)
	frame, _ := vmm.Phys.AllocPage()
	va := uintptr(bounds.USER_BASE)
	vmm.Map(as, frame, va, PTE_W|PTE_U)
	if err := vmm.Unmap(as, va); err != 0 {
		t.Fatalf("Unmap: %v", err)
	}
	if _, ok := vmm.Translate(as, va); ok {
		t.Errorf("Translate succeeded after Unmap")
	}
	if err := vmm.Unmap(as, va); err != defs.ENOENT {
		t.Errorf("second Unmap = %v, want ENOENT", err)
	}
}

func TestKernelHalfSharedAcrossAddressSpaces(t *testing.T) {
	vmm, as1 := freshVmm(t)
	as2, err := vmm.CreateUserSpace()
	if err != 0 {
		t.Fatalf("CreateUserSpace: %v", err)
	}
	kva, err := vmm.KmallocPage()
	if err != 0 {
		t.Fatalf("KmallocPage: %v", err)
	}
	pa1, ok1 := vmm.Translate(as1, kva)
	pa2, ok2 := vmm.Translate(as2, kva)
	if !ok1 || !ok2 {
		t.Fatalf("kernel mapping not visible from every address space: ok1=%v ok2=%v", ok1, ok2)
	}
	if pa1 != pa2 {
		t.Errorf("kernel mapping diverged across address spaces: %#x vs %#x", pa1, pa2)
	}
}

func TestValidateUserRejectsKernelWrite(t *testing.T) {
	vmm, as := freshVmm(t)
	frame, _ := vmm.Phys.AllocPage()
	va := uintptr(bounds.USER_BASE)
	vmm.Map(as, frame, va, PTE_U) // read-only
	if vmm.ValidateUser(as, va, 8, true) {
		t.Errorf("ValidateUser allowed write to a read-only page")
	}
	if !vmm.ValidateUser(as, va, 8, false) {
		t.Errorf("ValidateUser rejected a read of a present, user page")
	}
}

func TestValidateUserRejectsUnmapped(t *testing.T) {
	vmm, as := freshVmm(t)
	if vmm.ValidateUser(as, uintptr(bounds.USER_BASE), 8, false) {
		t.Errorf("ValidateUser allowed access to an unmapped page")
	}
}

func TestUioReadWriteRoundTrip(t *testing.T) {
	vmm, as := freshVmm(t)
	frame, _ := vmm.Phys.AllocPage()
	va := uintptr(bounds.USER_BASE)
	if err := vmm.Map(as, frame, va, PTE_W|PTE_U); err != 0 {
		t.Fatalf("Map: %v", err)
	}

	payload := []byte("hello kernel")
	dst := vmm.NewUio(as, va, len(payload), true)
	n, err := dst.Uiowrite(payload)
	if err != 0 || n != len(payload) {
		t.Fatalf("Uiowrite: n=%d err=%v", n, err)
	}

	src := vmm.NewUio(as, va, len(payload), false)
	buf := make([]byte, len(payload))
	n, err = src.Uioread(buf)
	if err != 0 || n != len(payload) {
		t.Fatalf("Uioread: n=%d err=%v", n, err)
	}
	if string(buf) != string(payload) {
		t.Errorf("round trip = %q, want %q", buf, payload)
	}
}

func TestUioreadFaultsOnUnmappedRange(t *testing.T) {
	vmm, as := freshVmm(t)
	bad := vmm.NewUio(as, uintptr(bounds.USER_BASE), 8, false)
	buf := make([]byte, 8)
	if _, err := bad.Uioread(buf); err != defs.EFAULT {
		t.Errorf("Uioread over unmapped range = %v, want EFAULT", err)
	}
}

func TestKmallocFreeRoundTrip(t *testing.T) {
	vmm, _ := freshVmm(t)
	va, err := vmm.KmallocPage()
	if err != 0 {
		t.Fatalf("KmallocPage: %v", err)
	}
	if _, ok := vmm.Translate(vmm.Kernel, va); !ok {
		t.Fatalf("kmalloc'd page is not mapped")
	}
	if err := vmm.KfreePage(va); err != 0 {
		t.Fatalf("KfreePage: %v", err)
	}
	if _, ok := vmm.Translate(vmm.Kernel, va); ok {
		t.Errorf("page still mapped after KfreePage")
	}
}

func TestForkUserSpaceCopiesContentIndependently(t *testing.T) {
	vmm, as := freshVmm(t)
	va := uintptr(bounds.USER_BASE)
	if err := vmm.AllocUserPage(as, va, PTE_W|PTE_U); err != 0 {
		t.Fatalf("AllocUserPage: %v", err)
	}
	payload := []byte("parent data")
	vmm.NewUio(as, va, len(payload), true).Uiowrite(payload)

	child, err := vmm.ForkUserSpace(as)
	if err != 0 {
		t.Fatalf("ForkUserSpace: %v", err)
	}

	got := make([]byte, len(payload))
	vmm.NewUio(child, va, len(payload), false).Uioread(got)
	if string(got) != string(payload) {
		t.Fatalf("child page content = %q, want %q", got, payload)
	}

	overwrite := []byte("child write!")
	vmm.NewUio(child, va, len(overwrite), true).Uiowrite(overwrite)

	parentAfter := make([]byte, len(payload))
	vmm.NewUio(as, va, len(payload), false).Uioread(parentAfter)
	if string(parentAfter) != string(payload) {
		t.Errorf("parent page mutated by a write through the forked child: %q", parentAfter)
	}

	parentPa, _ := vmm.Translate(as, va)
	childPa, _ := vmm.Translate(child, va)
	if parentPa == childPa {
		t.Errorf("parent and child map the same physical frame at %#x", va)
	}
}

func TestForkUserSpaceOfEmptyAddressSpaceSucceeds(t *testing.T) {
	vmm, as := freshVmm(t)
	child, err := vmm.ForkUserSpace(as)
	if err != 0 {
		t.Fatalf("ForkUserSpace of empty space: %v", err)
	}
	if vmm.ValidateUser(child, uintptr(bounds.USER_BASE), 1, false) {
		t.Errorf("forked empty space has a mapping neither parent had")
	}
}

func TestAllocUserPage(t *testing.T) {
	vmm, as := freshVmm(t)
	va := uintptr(bounds.USER_BASE)
	if err := vmm.AllocUserPage(as, va, PTE_W); err != 0 {
		t.Fatalf("AllocUserPage: %v", err)
	}
	if !vmm.ValidateUser(as, va, 1, true) {
		t.Errorf("freshly allocated user page failed validate_user")
	}
}
