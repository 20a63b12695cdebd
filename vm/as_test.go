package vm

import (
	"testing"

	"archbits"
	"defs"
	"mem"
	"pmm"
	"region"
	"tempmap"
	"tlb"
)

func newTestVm(t *testing.T) (*Vm_t, *pmm.Allocator) {
	t.Helper()
	alloc := pmm.NewAllocator(0, 64)
	v := NewVm(archbits.X86_64, archbits.Options{NXSupported: true}, alloc, tempmap.NewMapper(4), 0)
	return v, alloc
}

func TestMapUnmapRoundTrip(t *testing.T) {
	v, alloc := newTestVm(t)
	phys, _ := alloc.Alloc(1, pmm.AnyPages, mem.FrameUserAnonymous)
	v.Lock_pmap()
	defer v.Unlock_pmap()
	if err := v.Map(0x400000, phys, mem.MapArgs_t{R: true, W: true, U: true}); err != 0 {
		t.Fatalf("map failed: %v", err)
	}
	if !v.IsMapped(0x400000) {
		t.Fatal("expected va to be mapped")
	}
	got, ok := v.ResolvePhys(0x400000)
	if !ok || got != phys {
		t.Fatal("resolved phys mismatch")
	}
	sc := &tlb.ShootdownCtx_t{}
	out, _, ok := v.Unmap(0x400000, sc)
	if !ok || out != phys {
		t.Fatal("unmap should report the frame that was mapped")
	}
	if v.IsMapped(0x400000) {
		t.Fatal("expected va to be unmapped")
	}
}

func TestMapAlreadyMappedFails(t *testing.T) {
	v, alloc := newTestVm(t)
	phys, _ := alloc.Alloc(1, pmm.AnyPages, mem.FrameUserAnonymous)
	v.Lock_pmap()
	defer v.Unlock_pmap()
	v.Map(0x400000, phys, mem.MapArgs_t{R: true, U: true})
	if err := v.Map(0x400000, phys, mem.MapArgs_t{R: true, U: true}); err != defs.EALREADYMAPPED {
		t.Fatalf("expected AlreadyMapped, got %v", err)
	}
}

func TestPageFaultAnonymousLazyAllocates(t *testing.T) {
	v, alloc := newTestVm(t)
	v.Regions.Insert(&region.Region_t{
		Start: 0x400000, End: 0x401000,
		Kind: region.AnonymousLazy, Access: region.AccessRead | region.AccessWrite | region.AccessUser,
		Alloc: alloc,
	})
	v.Lock_pmap()
	defer v.Unlock_pmap()
	if err := v.PageFault(0x400000, region.AccessRead|region.AccessUser); err != 0 {
		t.Fatalf("page fault failed: %v", err)
	}
	if !v.IsMapped(0x400000) {
		t.Fatal("expected the fault to install a mapping")
	}
}

func TestPageFaultOutsideAnyRegionFails(t *testing.T) {
	v, _ := newTestVm(t)
	v.Lock_pmap()
	defer v.Unlock_pmap()
	if err := v.PageFault(0x700000, region.AccessRead|region.AccessUser); err != defs.EPAGENOTALLOC {
		t.Fatalf("expected PageNotAllocated, got %v", err)
	}
}

func TestAtomicCopyToUserFaultsAndWrites(t *testing.T) {
	v, alloc := newTestVm(t)
	v.Regions.Insert(&region.Region_t{
		Start: 0x400000, End: 0x402000,
		Kind: region.AnonymousLazy, Access: region.AccessRead | region.AccessWrite | region.AccessUser,
		Alloc: alloc,
	})
	src := []byte("hello, port")
	ok, err := v.AtomicCopyToUser(0x400010, src)
	if !ok || err != 0 {
		t.Fatalf("copy failed: %v", err)
	}
	v.Lock_pmap()
	phys, _ := v.ResolvePhys(0x400000)
	got := alloc.Bytes(phys)[0x10 : 0x10+len(src)]
	v.Unlock_pmap()
	if string(got) != "hello, port" {
		t.Fatalf("unexpected bytes: %q", got)
	}
}

func TestCloneSharesFrameReadOnly(t *testing.T) {
	v, alloc := newTestVm(t)
	phys, _ := alloc.Alloc(1, pmm.AnyPages, mem.FrameUserAnonymous)
	v.Lock_pmap()
	v.Map(0x400000, phys, mem.MapArgs_t{R: true, W: true, U: true})
	sc := &tlb.ShootdownCtx_t{}
	child := v.Clone(sc)
	v.Unlock_pmap()

	if alloc.Refcnt(phys) != 2 {
		t.Fatalf("expected shared refcount of 2, got %d", alloc.Refcnt(phys))
	}
	child.Lock_pmap()
	info, ok := child.GetPageInfo(0x400000)
	child.Unlock_pmap()
	if !ok {
		t.Fatal("expected child to inherit the mapping")
	}

	v.Lock_pmap()
	parentInfo, _ := v.GetPageInfo(0x400000)
	v.Unlock_pmap()
	if parentInfo.PageAddr != info.PageAddr {
		t.Fatal("expected parent and child to reference the same frame")
	}
}
