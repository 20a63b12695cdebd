// Package pmm implements the physical frame allocator of spec §4.1 and §2.1:
// it owns the set of 4 KiB physical frames and hands them out classified by
// provenance. The refcount/free-list shape is grounded on biscuit's
// mem.Physmem_t (Refup/Refdown/_phys_new/_phys_put), simplified to a single
// lock and a flat bitmap instead of biscuit's per-CPU sharded free lists —
// sharding is a throughput optimization orthogonal to every testable
// property spec §8 names (a StructPage frame only needs a descriptor with
// refcount >= 1), so it is dropped rather than carried un-exercised.
// Region-constrained allocation (Below4GiB, ISA) is grounded
// on gopher-os's allocator.bootMemAllocator, which also walks a region list
// handed in from bootstrap rather than assuming a single contiguous range.
package pmm

import (
	"sync"

	"defs"
	"mem"
)

/// Policy_t constrains where an allocation may land, mirroring the
/// {AnyPages, Below4GiB, ISA} set spec §4.1 requires for device-memory and
/// SMP-trampoline callers.
type Policy_t int

const (
	AnyPages Policy_t = iota
	Below4GiB
	ISA // below 1 MiB
)

const (
	below4GiBLimit = mem.Pa_t(4) << 30
	isaLimit       = mem.Pa_t(1) << 20
)

func (p Policy_t) limit() mem.Pa_t {
	switch p {
	case Below4GiB:
		return below4GiBLimit
	case ISA:
		return isaLimit
	default:
		return 0
	}
}

type frame_t struct {
	kind   mem.FrameKind_t
	refcnt int32
	free   bool
	taken  bool // true while a descriptor's sole reference is "taken out" into a PTE
}

/// PageDescriptor is the reference-counted metadata for a frame that may be
/// shared across address spaces (spec §3, "Page descriptor").
type PageDescriptor struct {
	Phys mem.Pa_t
	a    *Allocator
}

/// Allocator owns a contiguous run of physical frames starting at Base. It
/// is the concrete implementation of mem.FrameAllocator_i.
type Allocator struct {
	mu     sync.Mutex
	Base   mem.Pa_t
	frames []frame_t
	nfree  int
	arena  []byte

	descs map[mem.Pa_t]*PageDescriptor
}

/// NewAllocator creates an allocator over npages frames of physical memory
/// starting at base, all initially free. base and npages come from the
/// memory map handed to the core by arch bootstrap (out of scope per §1).
// The allocator also owns a byte arena covering every frame it manages —
// the Go-native stand-in for biscuit's mem/dmap.go permanent full-physical
// direct map, giving Bytes(phys) an addressable view of a frame regardless
// of build tag.
func NewAllocator(base mem.Pa_t, npages int) *Allocator {
	a := &Allocator{
		Base:   base,
		frames: make([]frame_t, npages),
		descs:  make(map[mem.Pa_t]*PageDescriptor),
		arena:  newArena(npages),
	}
	for i := range a.frames {
		a.frames[i].free = true
	}
	a.nfree = npages
	return a
}

/// Bytes returns the byte-addressable view of the frame at phys, the
/// direct-map analogue callers use to read or write frame contents (IPC
/// payload copies, COW duplication) without any arch-specific mapping.
func (a *Allocator) Bytes(phys mem.Pa_t) []byte {
	off := int(phys - a.Base)
	return a.arena[off : off+mem.PGSIZE]
}

func (a *Allocator) idx(phys mem.Pa_t) int {
	return int((phys - a.Base) >> mem.PGSHIFT)
}

func (a *Allocator) phys(idx int) mem.Pa_t {
	return a.Base + mem.Pa_t(idx)<<mem.PGSHIFT
}

/// Alloc hands out count contiguous frames satisfying policy, tagging them
/// kind with an initial refcount of 1 when kind is a tracked/anonymous
/// kind. It fails with OutOfMemory when no run of that length and range
/// exists, exactly as spec §4.1 requires.
func (a *Allocator) Alloc(count int, policy Policy_t, kind mem.FrameKind_t) (mem.Pa_t, defs.Err_t) {
	if count <= 0 {
		return 0, defs.EINVAL
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	limit := policy.limit()
	run := 0
	for i := 0; i < len(a.frames); i++ {
		p := a.phys(i)
		inRange := limit == 0 || p+mem.Pa_t(count)<<mem.PGSHIFT <= limit
		if a.frames[i].free && inRange {
			run++
			if run == count {
				start := i - count + 1
				for j := start; j <= i; j++ {
					a.frames[j].free = false
					a.frames[j].kind = kind
					if kind != mem.FrameKernelRaw {
						a.frames[j].refcnt = 1
					}
				}
				a.nfree -= count
				return a.phys(start), 0
			}
		} else {
			run = 0
		}
	}
	return 0, defs.EOUTOFMEM
}

/// Free returns count frames starting at phys to the free list. It panics
/// if any covered frame still carries references — callers must Refdown to
/// zero first.
func (a *Allocator) Free(phys mem.Pa_t, count int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	start := a.idx(phys)
	for i := start; i < start+count; i++ {
		f := &a.frames[i]
		if f.free {
			panic("double free")
		}
		if f.refcnt > 0 {
			panic("freeing a referenced frame")
		}
		f.free = true
		f.kind = mem.FrameFree
		delete(a.descs, a.phys(i))
	}
	a.nfree += count
}

/// AllocTracked allocates one frame classified PageDescriptorTracked and
/// returns its descriptor with refcount 1 (spec §4.1).
func (a *Allocator) AllocTracked() (*PageDescriptor, defs.Err_t) {
	phys, err := a.Alloc(1, AnyPages, mem.FramePageDescriptorTracked)
	if err != 0 {
		return nil, err
	}
	a.mu.Lock()
	d := &PageDescriptor{Phys: phys, a: a}
	a.descs[phys] = d
	a.mu.Unlock()
	return d, 0
}

/// FindPageStruct returns the descriptor of a tracked frame; ok is false
/// for a frame that is not StructPage-tracked (spec §4.1).
func (a *Allocator) FindPageStruct(phys mem.Pa_t) (*PageDescriptor, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, ok := a.descs[phys]
	return d, ok
}

/// TakeOutPage yields the raw phys address of d and marks its single
/// reference as transferred into a PTE's StructPage slot. It panics if
/// called twice without an intervening ReleaseTakenOutPage, which would
/// indicate a double-install bug in the page-table engine.
func (d *PageDescriptor) TakeOutPage() mem.Pa_t {
	d.a.mu.Lock()
	defer d.a.mu.Unlock()
	i := d.a.idx(d.Phys)
	if d.a.frames[i].taken {
		panic("page already taken out")
	}
	d.a.frames[i].taken = true
	return d.Phys
}

/// ReleaseTakenOutPage is the inverse of TakeOutPage: it clears the taken
/// flag so a future unmap may legitimately Refdown the frame.
func (a *Allocator) ReleaseTakenOutPage(phys mem.Pa_t) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frames[a.idx(phys)].taken = false
}

// --- mem.FrameAllocator_i ---

/// AllocZeroed allocates one frame of kind and zero-fills it via the
/// backing arena (arena_*.go).
func (a *Allocator) AllocZeroed(kind mem.FrameKind_t) (mem.Pa_t, bool) {
	phys, err := a.Alloc(1, AnyPages, kind)
	if err != 0 {
		return 0, false
	}
	b := a.Bytes(phys)
	for i := range b {
		b[i] = 0
	}
	return phys, true
}

/// AllocRaw allocates one frame of kind without zeroing it.
func (a *Allocator) AllocRaw(kind mem.FrameKind_t) (mem.Pa_t, bool) {
	phys, err := a.Alloc(1, AnyPages, kind)
	return phys, err == 0
}

/// Refcnt returns the current reference count of phys.
func (a *Allocator) Refcnt(phys mem.Pa_t) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int(a.frames[a.idx(phys)].refcnt)
}

/// Refup increments the reference count of phys.
func (a *Allocator) Refup(phys mem.Pa_t) {
	a.mu.Lock()
	defer a.mu.Unlock()
	f := &a.frames[a.idx(phys)]
	f.refcnt++
	if f.refcnt <= 0 {
		panic("refup overflow")
	}
}

/// Refdown decrements the reference count of phys and returns true when it
/// reaches zero (the caller is then expected to Free it, unless NoFree is
/// set on every PTE still referencing it — spec §3 PTE invariant).
func (a *Allocator) Refdown(phys mem.Pa_t) bool {
	a.mu.Lock()
	f := &a.frames[a.idx(phys)]
	f.refcnt--
	if f.refcnt < 0 {
		a.mu.Unlock()
		panic("refdown underflow")
	}
	zero := f.refcnt == 0
	a.mu.Unlock()
	return zero
}

/// Free_pages reports the number of frames still unallocated.
func (a *Allocator) Free_pages() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nfree
}
