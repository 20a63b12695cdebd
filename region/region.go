// Package region implements the memory-region policies of spec §4.4: each
// region of an address space answers on_page_fault with a decision, while
// the mechanics of installing a PTE stay with the vm package. The split
// mirrors how biscuit's vm.Vminfo_t kept a region's Mtype policy
// (VANON/VFILE/VSANON) separate from the PTE-installation helpers in
// vm/as.go (Page_insert, Sys_pgfault) — region is the Go-native analogue of
// Vminfo_t/Vmregion_t, generalized to spec's four named policies and
// decoupled from the page-table package so neither imports the other.
package region

import (
	"sort"
	"sync"

	"defs"
	"mem"
)

/// Access_t is the set of accesses a fault or a region may carry.
type Access_t uint8

const (
	AccessRead Access_t = 1 << iota
	AccessWrite
	AccessExec
	AccessUser
)

/// Kind_t enumerates the region policies named in spec §4.4. Adding a
/// policy means adding a Kind_t constant and a case in onFault, a typed
/// extension rather than a dynamic registry, per spec.
type Kind_t int

const (
	AnonymousLazy Kind_t = iota
	PhysMapped
	MemoryObject
	CopyOnWrite
)

/// Object_i is implemented by whatever backs a Memory-object or
/// Copy-on-write region: a file cache, a shared anonymous segment, a
/// device framebuffer. DescriptorAt returns ready=false when the object
/// must fetch the page itself, matching spec's MustBlock contract.
type Object_i interface {
	DescriptorAt(offset uintptr) (phys mem.Pa_t, ready bool, err defs.Err_t)
}

/// Result_t classifies the outcome of resolving a fault.
type Result_t int

const (
	Resolved Result_t = iota
	MustBlock
	Failed
)

/// Outcome_t is what onFault returns: either a phys frame and the map args
/// to install it with, a MustBlock (the caller parks on the object's page
/// list), or a Failed with the error to surface to the task.
type Outcome_t struct {
	Result Result_t
	Phys   mem.Pa_t
	Args   mem.MapArgs_t
	NoFree bool

	// CopySrc is set only for a CopyOnWrite write fault that requires a
	// private copy: Phys is the freshly allocated destination frame and
	// CopySrc is the frame to copy from. vm performs the copy (it alone
	// holds a tempmap window) before installing the PTE.
	CopySrc mem.Pa_t

	Err defs.Err_t
}

/// Region_t is one mapped range of an address space.
type Region_t struct {
	Start, End uintptr // page-aligned, End exclusive
	Kind       Kind_t
	Access     Access_t // the maximum access this region permits
	Alloc      mem.FrameAllocator_i
	Phys       mem.Pa_t // PhysMapped base
	Obj        Object_i // MemoryObject / CopyOnWrite backing
}

func (r *Region_t) contains(va uintptr) bool {
	return va >= r.Start && va < r.End
}

func argsFor(access Access_t) mem.MapArgs_t {
	return mem.MapArgs_t{
		R: access&AccessRead != 0,
		W: access&AccessWrite != 0,
		X: access&AccessExec != 0,
		U: access&AccessUser != 0,
	}
}

/// OnFault resolves a fault at va with the given access mask, per spec
/// §4.4's four policies.
func (r *Region_t) OnFault(access Access_t, va uintptr) Outcome_t {
	if access&^r.Access != 0 && r.Kind != CopyOnWrite {
		return Outcome_t{Result: Failed, Err: defs.EACCESS}
	}
	off := va - r.Start

	switch r.Kind {
	case AnonymousLazy:
		if access&AccessWrite != 0 && r.Access&AccessWrite == 0 {
			return Outcome_t{Result: Failed, Err: defs.EACCESS}
		}
		phys, ok := r.Alloc.AllocZeroed(mem.FrameUserAnonymous)
		if !ok {
			return Outcome_t{Result: Failed, Err: defs.EOUTOFMEM}
		}
		return Outcome_t{Result: Resolved, Phys: phys, Args: argsFor(r.Access)}

	case PhysMapped:
		return Outcome_t{
			Result: Resolved,
			Phys:   r.Phys + mem.Pa_t(off),
			Args:   argsFor(r.Access),
			NoFree: true,
		}

	case MemoryObject:
		phys, ready, err := r.Obj.DescriptorAt(off)
		if err != 0 {
			return Outcome_t{Result: Failed, Err: err}
		}
		if !ready {
			return Outcome_t{Result: MustBlock}
		}
		return Outcome_t{Result: Resolved, Phys: phys, Args: argsFor(r.Access)}

	case CopyOnWrite:
		phys, ready, err := r.Obj.DescriptorAt(off)
		if err != 0 {
			return Outcome_t{Result: Failed, Err: err}
		}
		if !ready {
			return Outcome_t{Result: MustBlock}
		}
		if access&AccessWrite == 0 {
			roArgs := argsFor(r.Access)
			roArgs.W = false
			return Outcome_t{Result: Resolved, Phys: phys, Args: roArgs}
		}
		if r.Access&AccessWrite == 0 {
			return Outcome_t{Result: Failed, Err: defs.EACCESS}
		}
		priv, ok := r.Alloc.AllocRaw(mem.FrameUserAnonymous)
		if !ok {
			return Outcome_t{Result: Failed, Err: defs.EOUTOFMEM}
		}
		return Outcome_t{Result: Resolved, Phys: priv, Args: argsFor(r.Access), CopySrc: phys}

	default:
		return Outcome_t{Result: Failed, Err: defs.EINVAL}
	}
}

/// Set_t is the ordered collection of regions belonging to one address
/// space — the generalization of biscuit's Vmregion_t, sorted by start
/// address for Lookup's binary search.
type Set_t struct {
	mu      sync.Mutex
	regions []*Region_t
}

/// Insert adds r to the set, keeping it sorted by Start. It panics on an
/// overlapping range, which indicates a caller bug — address space layout
/// is established before any task runs in it.
func (s *Set_t) Insert(r *Region_t) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := sort.Search(len(s.regions), func(i int) bool { return s.regions[i].Start >= r.Start })
	if i > 0 && s.regions[i-1].End > r.Start {
		panic("region: overlapping insert")
	}
	if i < len(s.regions) && r.End > s.regions[i].Start {
		panic("region: overlapping insert")
	}
	s.regions = append(s.regions, nil)
	copy(s.regions[i+1:], s.regions[i:])
	s.regions[i] = r
}

/// Remove deletes the region starting at start, if any.
func (s *Set_t) Remove(start uintptr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.regions {
		if r.Start == start {
			s.regions = append(s.regions[:i], s.regions[i+1:]...)
			return true
		}
	}
	return false
}

/// Lookup returns the region covering va, if any.
func (s *Set_t) Lookup(va uintptr) (*Region_t, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := sort.Search(len(s.regions), func(i int) bool { return s.regions[i].End > va })
	if i < len(s.regions) && s.regions[i].contains(va) {
		return s.regions[i], true
	}
	return nil, false
}

/// Clone returns a deep copy of the set's region list. Backing frames are
/// not duplicated here: Copy-on-write semantics mean a cloned
/// CopyOnWrite/MemoryObject region still references the same Obj, and a
/// clone of an AnonymousLazy region stays AnonymousLazy (vm.Clone inserts
/// the copies unchanged).
func (s *Set_t) Clone() []*Region_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Region_t, len(s.regions))
	for i, r := range s.regions {
		cp := *r
		out[i] = &cp
	}
	return out
}

/// All returns the region list in address order, for callers (vm.Uvmfree)
/// that need to walk every region without mutating the set.
func (s *Set_t) All() []*Region_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Region_t, len(s.regions))
	copy(out, s.regions)
	return out
}
