package region

import (
	"testing"

	"defs"
	"mem"
)

type fakeAlloc struct{ next mem.Pa_t }

func (f *fakeAlloc) AllocZeroed(mem.FrameKind_t) (mem.Pa_t, bool) {
	f.next += mem.Pa_t(mem.PGSIZE)
	return f.next, true
}
func (f *fakeAlloc) AllocRaw(mem.FrameKind_t) (mem.Pa_t, bool) { return f.AllocZeroed(0) }
func (f *fakeAlloc) Refcnt(mem.Pa_t) int                       { return 1 }
func (f *fakeAlloc) Refup(mem.Pa_t)                            {}
func (f *fakeAlloc) Refdown(mem.Pa_t) bool                     { return false }
func (f *fakeAlloc) Bytes(mem.Pa_t) []byte                     { return make([]byte, mem.PGSIZE) }
func (f *fakeAlloc) Free(mem.Pa_t, int)                        {}

type fakeObj struct {
	phys  mem.Pa_t
	ready bool
	err   defs.Err_t
}

func (o *fakeObj) DescriptorAt(uintptr) (mem.Pa_t, bool, defs.Err_t) {
	return o.phys, o.ready, o.err
}

func TestAnonymousLazyAllocatesOnFault(t *testing.T) {
	a := &fakeAlloc{}
	r := &Region_t{Start: 0x1000, End: 0x2000, Kind: AnonymousLazy, Access: AccessRead | AccessWrite | AccessUser, Alloc: a}
	out := r.OnFault(AccessRead|AccessUser, 0x1000)
	if out.Result != Resolved || out.Phys == 0 {
		t.Fatal("expected a resolved fault with an allocated frame")
	}
}

func TestAnonymousLazyWriteToReadOnlyFails(t *testing.T) {
	a := &fakeAlloc{}
	r := &Region_t{Start: 0x1000, End: 0x2000, Kind: AnonymousLazy, Access: AccessRead | AccessUser, Alloc: a}
	out := r.OnFault(AccessWrite|AccessUser, 0x1000)
	if out.Result != Failed || out.Err != defs.EACCESS {
		t.Fatal("expected access-denied on a write fault to a read-only region")
	}
}

func TestPhysMappedIsVerbatimAndNoFree(t *testing.T) {
	r := &Region_t{Start: 0x1000, End: 0x3000, Kind: PhysMapped, Access: AccessRead | AccessWrite | AccessUser, Phys: 0x80000}
	out := r.OnFault(AccessRead|AccessUser, 0x2000)
	if out.Result != Resolved || !out.NoFree || out.Phys != 0x80000+mem.Pa_t(mem.PGSIZE) {
		t.Fatalf("unexpected phys-mapped outcome: %+v", out)
	}
}

func TestMemoryObjectMustBlockWhenNotReady(t *testing.T) {
	obj := &fakeObj{ready: false}
	r := &Region_t{Start: 0x1000, End: 0x2000, Kind: MemoryObject, Access: AccessRead | AccessUser, Obj: obj}
	out := r.OnFault(AccessRead|AccessUser, 0x1000)
	if out.Result != MustBlock {
		t.Fatal("expected MustBlock when the object is not ready")
	}
}

func TestCopyOnWriteReadMapsSharedReadOnly(t *testing.T) {
	obj := &fakeObj{phys: 0x9000, ready: true}
	r := &Region_t{Start: 0x1000, End: 0x2000, Kind: CopyOnWrite, Access: AccessRead | AccessWrite | AccessUser, Obj: obj}
	out := r.OnFault(AccessRead|AccessUser, 0x1000)
	if out.Result != Resolved || out.Phys != 0x9000 || out.Args.W {
		t.Fatal("expected a read-only mapping of the shared frame")
	}
}

func TestCopyOnWriteWriteAllocatesPrivateFrame(t *testing.T) {
	obj := &fakeObj{phys: 0x9000, ready: true}
	a := &fakeAlloc{}
	r := &Region_t{Start: 0x1000, End: 0x2000, Kind: CopyOnWrite, Access: AccessRead | AccessWrite | AccessUser, Obj: obj, Alloc: a}
	out := r.OnFault(AccessWrite|AccessUser, 0x1000)
	if out.Result != Resolved || out.CopySrc != 0x9000 || out.Phys == out.CopySrc {
		t.Fatal("expected a private frame distinct from the shared source")
	}
}

func TestLookupAndOverlapPanics(t *testing.T) {
	s := &Set_t{}
	s.Insert(&Region_t{Start: 0x1000, End: 0x2000, Kind: PhysMapped})
	s.Insert(&Region_t{Start: 0x3000, End: 0x4000, Kind: PhysMapped})
	if _, ok := s.Lookup(0x2500); ok {
		t.Fatal("expected no region in the gap")
	}
	if r, ok := s.Lookup(0x3500); !ok || r.Start != 0x3000 {
		t.Fatal("expected to find the second region")
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on overlapping insert")
		}
	}()
	s.Insert(&Region_t{Start: 0x1800, End: 0x2800, Kind: PhysMapped})
}
