// Package mem holds the physical-address and page-table-entry data types
// shared by every VM subsystem (pmm, tempmap, vm, region). It carries no
// architecture-specific bit layout — that lives in archbits — and no
// allocation policy — that lives in pmm. This split mirrors biscuit's own
// mem package, which mixed PTE bit constants with the physical-frame
// allocator; spec §4.3 asks for an architecture-neutral contract, so the
// bit layout is factored out here.
package mem

import "unsafe"

/// PGSHIFT is the base-2 exponent for the page size on every supported
/// architecture (x86-64 and RISC-V Sv39/48/57 all use 4 KiB leaf pages).
const PGSHIFT uint = 12

/// PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

/// PGOFFSET masks offsets within a page.
const PGOFFSET Pa_t = Pa_t(PGSIZE - 1)

/// PGMASK masks the page number of an address.
const PGMASK Pa_t = ^PGOFFSET

/// Pa_t represents a physical address.
type Pa_t uintptr

/// Bytepg_t is a byte-addressed page.
type Bytepg_t [PGSIZE]uint8

/// Pg_t is a generic page of machine words.
type Pg_t [PGSIZE / 8]uint64

/// Pg2bytes reinterprets a page of words as a page of bytes.
func Pg2bytes(pg *Pg_t) *Bytepg_t {
	return (*Bytepg_t)(unsafe.Pointer(pg))
}

/// Bytepg2pg reinterprets a page of bytes as a page of words.
func Bytepg2pg(pg *Bytepg_t) *Pg_t {
	return (*Pg_t)(unsafe.Pointer(pg))
}

/// FrameKind_t tags the provenance of a physical frame (spec §3, "Physical
/// frame"). A tracked frame is refcounted; a KernelRaw frame is not and is
/// freed directly by its sole caller.
type FrameKind_t int

const (
	FrameFree FrameKind_t = iota
	FrameKernelRaw
	FrameUserAnonymous
	FramePageDescriptorTracked
)

/// CachePolicy_t is the architecture-neutral cache-policy request for a
/// mapping (spec §4.3). x86 maps anything but Normal to the "cache
/// disabled" bit; RISC-V maps it through Svpbmt when available, degrading
/// every request to PMA when the extension is absent.
type CachePolicy_t int

const (
	CacheNormal CachePolicy_t = iota
	CacheMemoryNoCache
	CacheIoNoCache
)

/// ExtraBits_t packs the 2-3 "available to software" bits spec §3 assigns
/// per architecture: NoFree (invalidation must not return the frame to the
/// PMM) and StructPage (the PMM has a descriptor for the frame).
type ExtraBits_t uint8

const (
	ExtraNoFree ExtraBits_t = 1 << iota
	ExtraStructPage
)

/// MapArgs_t is the architecture-neutral argument bundle to vm.Vm_t.Map
/// (spec §4.3): access_mask bits plus cache policy and software bits.
type MapArgs_t struct {
	R, W, X, U, Global bool
	Cache              CachePolicy_t
	Extra              ExtraBits_t
}

/// PageInfo_t is the decoded view of a leaf PTE returned by
/// vm.Vm_t.GetPageInfo (spec §4.3).
type PageInfo_t struct {
	IsAllocated bool
	Dirty       bool
	User        bool
	NoFree      bool
	PageAddr    Pa_t
	Extra       ExtraBits_t
}

/// FrameAllocator_i is the interface the VM subsystems (tempmap, vm, region)
/// use to obtain, release, and address physical frames; pmm.Allocator is
/// the concrete implementation. Bytes is the Go-native stand-in for
/// biscuit's mem/dmap.go permanent full-physical direct map: unlike
/// tempmap's bounded, per-hart, token-scoped window (spec §4.2), this is an
/// always-available view used for bulk content moves (IPC payload copies,
/// COW duplication) that need no address-space-local virtual mapping at
/// all, only a byte slice to memcpy against.
type FrameAllocator_i interface {
	AllocZeroed(kind FrameKind_t) (Pa_t, bool)
	AllocRaw(kind FrameKind_t) (Pa_t, bool)
	Refcnt(Pa_t) int
	Refup(Pa_t)
	Refdown(Pa_t) bool
	Bytes(Pa_t) []byte
	Free(phys Pa_t, count int)
}
