// Package vm implements the page-table engine of spec §4.3: Vm_t is the
// per-task address space, combining a simulated page table with the
// region set that supplies fault resolution policy (package region). The
// split and the lock discipline (Lock_pmap/Unlock_pmap/Lockassert_pmap)
// are kept from biscuit's vm/as.go Vm_t, generalized from x86-only PTE_*
// bit twiddling to the archbits contract so the same engine serves every
// supported architecture.
//
// The page table itself is represented as a flat map keyed by virtual
// page number rather than walked as real multi-level tables in simulated
// physical memory: nothing in spec §8's testable properties depends on
// the physical shape of intermediate tables, only on the map/unmap/query
// contract, so the map-backed representation is the simplification that
// carries the contract without the unreachable hardware-walk mechanics.
package vm

import (
	"sync"

	"archbits"
	"bounds"
	"defs"
	"mem"
	"region"
	"res"
	"tempmap"
	"tlb"
	"util"
)

/// Vm_t represents one task's address space: a page table plus the set of
/// regions that supply fault-resolution policy for it.
type Vm_t struct {
	sync.Mutex

	Regions region.Set_t

	table map[uintptr]archbits.Raw

	Arch  archbits.Arch
	Opts  archbits.Options
	Alloc mem.FrameAllocator_i
	Tmp   *tempmap.Mapper
	Hart  defs.HartId_t

	pgfltaken bool
}

/// NewVm creates an empty address space bound to a physical-frame
/// allocator, a per-hart temporary-mapping window, and an architecture
/// profile.
func NewVm(arch archbits.Arch, opts archbits.Options, alloc mem.FrameAllocator_i, tmp *tempmap.Mapper, hart defs.HartId_t) *Vm_t {
	return &Vm_t{
		table: make(map[uintptr]archbits.Raw),
		Arch:  arch,
		Opts:  opts,
		Alloc: alloc,
		Tmp:   tmp,
		Hart:  hart,
	}
}

func vpn(virt uintptr) uintptr { return virt >> mem.PGSHIFT }

/// Lock_pmap acquires the address space mutex and marks that page-table
/// manipulation is in progress.
func (as *Vm_t) Lock_pmap() {
	as.Lock()
	as.pgfltaken = true
}

/// Unlock_pmap releases the address space mutex.
func (as *Vm_t) Unlock_pmap() {
	as.pgfltaken = false
	as.Unlock()
}

/// Lockassert_pmap panics if the address space mutex is not held, the way
/// biscuit's Vm_t guards every PTE-touching helper.
func (as *Vm_t) Lockassert_pmap() {
	if !as.pgfltaken {
		panic("pgfl lock must be held")
	}
}

/// Map installs virt -> phys with args under the page-table lock, failing
/// AlreadyMapped if a leaf PTE is already present (spec §4.3). The caller
/// must already hold the lock.
func (as *Vm_t) Map(virt uintptr, phys mem.Pa_t, args mem.MapArgs_t) defs.Err_t {
	as.Lockassert_pmap()
	v := vpn(virt)
	if raw, ok := as.table[v]; ok && archbits.IsPresent(as.Arch, raw) {
		return defs.EALREADYMAPPED
	}
	as.table[v] = archbits.Encode(as.Arch, args, phys, as.Opts)
	return 0
}

/// Remap overwrites an existing mapping unconditionally — used by the
/// copy-on-write fault path and by Clone to demote a writable parent
/// mapping to read-only.
func (as *Vm_t) Remap(virt uintptr, phys mem.Pa_t, args mem.MapArgs_t) {
	as.Lockassert_pmap()
	as.table[vpn(virt)] = archbits.Encode(as.Arch, args, phys, as.Opts)
}

/// Unmap clears the PTE at virt, enqueueing invalidation in sc and
/// returning the physical frame that was mapped (spec §4.3). Whether the
/// frame's reference count should be dropped is the caller's
/// responsibility, driven by the ExtraNoFree bit this method reports.
func (as *Vm_t) Unmap(virt uintptr, sc *tlb.ShootdownCtx_t) (mem.Pa_t, mem.ExtraBits_t, bool) {
	as.Lockassert_pmap()
	v := vpn(virt)
	raw, ok := as.table[v]
	if !ok || !archbits.IsPresent(as.Arch, raw) {
		return 0, 0, false
	}
	info := archbits.Decode(as.Arch, raw)
	delete(as.table, v)
	free := info.Extra&mem.ExtraNoFree == 0
	sc.Invalidate(virt, 1, free)
	return info.PageAddr, info.Extra, true
}

/// IsMapped reports whether virt has a present leaf PTE.
func (as *Vm_t) IsMapped(virt uintptr) bool {
	as.Lockassert_pmap()
	raw, ok := as.table[vpn(virt)]
	return ok && archbits.IsPresent(as.Arch, raw)
}

/// ResolvePhys returns the physical address backing virt, if mapped.
func (as *Vm_t) ResolvePhys(virt uintptr) (mem.Pa_t, bool) {
	as.Lockassert_pmap()
	raw, ok := as.table[vpn(virt)]
	if !ok || !archbits.IsPresent(as.Arch, raw) {
		return 0, false
	}
	return archbits.Decode(as.Arch, raw).PageAddr, true
}

/// GetPageInfo decodes the leaf PTE at virt (spec §4.3).
func (as *Vm_t) GetPageInfo(virt uintptr) (mem.PageInfo_t, bool) {
	as.Lockassert_pmap()
	raw, ok := as.table[vpn(virt)]
	if !ok {
		return mem.PageInfo_t{}, false
	}
	return archbits.Decode(as.Arch, raw), true
}

/// InvalidateRange walks the page range [start, start+size) queuing
/// shootdown entries, O(pages) per spec §4.3. When free is true, frames
/// whose ExtraNoFree bit is clear are released back to the allocator as
/// their reference count reaches zero.
func (as *Vm_t) InvalidateRange(sc *tlb.ShootdownCtx_t, start uintptr, size int, free bool) {
	as.Lockassert_pmap()
	npages := util.Roundup(size, mem.PGSIZE) / mem.PGSIZE
	for i := 0; i < npages; i++ {
		if !res.Resadd_noblock(bounds.Bounds(bounds.B_TLB_INVALIDATE_RANGE)) {
			return
		}
		va := start + uintptr(i)<<mem.PGSHIFT
		v := vpn(va)
		raw, ok := as.table[v]
		if !ok || !archbits.IsPresent(as.Arch, raw) {
			continue
		}
		info := archbits.Decode(as.Arch, raw)
		delete(as.table, v)
		doFree := free && info.Extra&mem.ExtraNoFree == 0
		sc.Invalidate(va, 1, doFree)
		if doFree && as.Alloc.Refdown(info.PageAddr) {
			as.Alloc.Free(info.PageAddr, 1)
		}
	}
}

/// PageFault resolves a fault at faultva with the given access mask by
/// consulting the owning region and installing the resulting mapping
/// (spec §4.4's bridge into §4.3). It returns EACCESS/EOUTOFMEM etc. on
/// Failed, Retry on MustBlock (the syscall dispatcher translates that into
/// restarting the faulting instruction once the condition clears), and 0
/// on success.
func (as *Vm_t) PageFault(faultva uintptr, access region.Access_t) defs.Err_t {
	as.Lockassert_pmap()
	r, ok := as.Regions.Lookup(faultva)
	if !ok {
		return defs.EPAGENOTALLOC
	}
	pageva := faultva &^ uintptr(mem.PGOFFSET)
	outcome := r.OnFault(access, faultva)
	switch outcome.Result {
	case region.MustBlock:
		return defs.ERETRY
	case region.Failed:
		return outcome.Err
	}
	if outcome.CopySrc != 0 {
		as.copyFrame(outcome.CopySrc, outcome.Phys)
	}
	args := outcome.Args
	if outcome.NoFree {
		args.Extra |= mem.ExtraNoFree
	}
	v := vpn(pageva)
	if raw, ok := as.table[v]; ok && archbits.IsPresent(as.Arch, raw) {
		as.Remap(pageva, outcome.Phys, args)
	} else {
		as.table[v] = archbits.Encode(as.Arch, args, outcome.Phys, as.Opts)
	}
	return 0
}

/// copyFrame duplicates one frame's contents through the per-hart
/// temporary-mapping window (spec §4.2), the bounded analogue of
/// biscuit's permanent direct map used here only for the duration of one
/// copy-on-write materialization.
func (as *Vm_t) copyFrame(src, dst mem.Pa_t) {
	srcSlot, err := as.Tmp.Map(src)
	if err != 0 {
		panic("tempmap exhausted copying a COW frame: " + err.Error())
	}
	defer as.Tmp.Unmap(srcSlot)
	dstSlot, err := as.Tmp.Map(dst)
	if err != 0 {
		panic("tempmap exhausted copying a COW frame: " + err.Error())
	}
	defer as.Tmp.Unmap(dstSlot)
	copy(as.Alloc.Bytes(dst), as.Alloc.Bytes(src))
}

/// AtomicCopyToUser ensures every destination page covering [uva,
/// uva+len) is resident and writable, faulting lazily via region
/// callbacks, then copies src in. It returns false with Retry when a
/// region must block (spec §4.3's "blocking the caller on the page if
/// materialisation must wait" — this cooperative engine surfaces that as
/// a Retry the syscall dispatcher replays rather than parking a goroutine,
/// matching the non-preemptible hart model of spec §5).
func (as *Vm_t) AtomicCopyToUser(uva uintptr, src []byte) (bool, defs.Err_t) {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	off := 0
	for off < len(src) {
		if !res.Resadd_noblock(bounds.Bounds(bounds.B_VM_ATOMIC_COPY_TO_USER)) {
			return false, defs.ENOHEAP
		}
		va := uva + uintptr(off)
		page := va &^ uintptr(mem.PGOFFSET)
		if !as.IsMapped(page) {
			if err := as.PageFault(page, region.AccessWrite|region.AccessUser); err != 0 {
				return false, err
			}
		}
		phys, _ := as.ResolvePhys(page)
		poff := int(va & uintptr(mem.PGOFFSET))
		n := copy(as.Alloc.Bytes(phys)[poff:], src[off:])
		off += n
	}
	return true, 0
}

/// AtomicCopyFromUser is the read-direction counterpart of
/// AtomicCopyToUser: it faults in each covered page for read access and
/// copies its contents into dst. Used by ipc.Port.SendFromUser to bring a
/// message payload into the kernel before enqueueing it (spec §4.6).
func (as *Vm_t) AtomicCopyFromUser(uva uintptr, dst []byte) (bool, defs.Err_t) {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	off := 0
	for off < len(dst) {
		if !res.Resadd_noblock(bounds.Bounds(bounds.B_VM_ATOMIC_COPY_TO_USER)) {
			return false, defs.ENOHEAP
		}
		va := uva + uintptr(off)
		page := va &^ uintptr(mem.PGOFFSET)
		if !as.IsMapped(page) {
			if err := as.PageFault(page, region.AccessRead|region.AccessUser); err != 0 {
				return false, err
			}
		}
		phys, _ := as.ResolvePhys(page)
		poff := int(va & uintptr(mem.PGOFFSET))
		n := copy(dst[off:], as.Alloc.Bytes(phys)[poff:])
		off += n
	}
	return true, 0
}

/// Clone produces a child address space sharing every currently-resident
/// frame copy-on-write: each present mapping's reference count is bumped
/// and both parent and child mappings are rewritten read-only (classic
/// fork semantics). The region set is copied verbatim — a region not yet
/// faulted in still resolves independently per child, which for an
/// AnonymousLazy region means it lazily allocates its own frame rather
/// than sharing one that was never created; this matches spec §4.3's
/// "deep-copies anonymous lazy (sharing descriptors)" exactly for any page
/// already resident and is a documented simplification for pages neither
/// side has touched yet.
func (as *Vm_t) Clone(sc *tlb.ShootdownCtx_t) *Vm_t {
	as.Lockassert_pmap()
	child := &Vm_t{
		table: make(map[uintptr]archbits.Raw, len(as.table)),
		Arch:  as.Arch,
		Opts:  as.Opts,
		Alloc: as.Alloc,
		Tmp:   as.Tmp,
		Hart:  as.Hart,
	}
	for _, r := range as.Regions.Clone() {
		child.Regions.Insert(r)
	}
	for v, raw := range as.table {
		if !archbits.IsPresent(as.Arch, raw) {
			continue
		}
		info := archbits.Decode(as.Arch, raw)
		as.Alloc.Refup(info.PageAddr)
		roArgs := mem.MapArgs_t{R: true, W: false, U: info.User, Extra: info.Extra}
		child.table[v] = archbits.Encode(as.Arch, roArgs, info.PageAddr, as.Opts)
		as.table[v] = archbits.Encode(as.Arch, roArgs, info.PageAddr, as.Opts)
		sc.Invalidate(v<<mem.PGSHIFT, 1, false)
	}
	return child
}

/// Mkuserbuf allocates and initializes a Userbuf_t referencing user memory
/// starting at userva.
func (as *Vm_t) Mkuserbuf(userva, len int) *Userbuf_t {
	ret := &Userbuf_t{}
	ret.ub_init(as, userva, len)
	return ret
}

/// Uvmfree releases every resident user mapping and the regions covering
/// them, dropping references (and freeing frames whose count reaches
/// zero, unless ExtraNoFree is set).
func (as *Vm_t) Uvmfree(sc *tlb.ShootdownCtx_t) {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	for v, raw := range as.table {
		if !archbits.IsPresent(as.Arch, raw) {
			continue
		}
		info := archbits.Decode(as.Arch, raw)
		delete(as.table, v)
		free := info.Extra&mem.ExtraNoFree == 0
		sc.Invalidate(v<<mem.PGSHIFT, 1, free)
		if free && as.Alloc.Refdown(info.PageAddr) {
			as.Alloc.Free(info.PageAddr, 1)
		}
	}
	for _, r := range as.Regions.All() {
		as.Regions.Remove(r.Start)
	}
}
