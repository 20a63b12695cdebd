// Package archbits packs and unpacks the architecture-specific page-table
// entry bit layouts behind the architecture-neutral mem.MapArgs_t /
// mem.PageInfo_t contract (spec §4.3). It is grounded on the PTE bit
// constants biscuit's mem.go hard-codes for x86-64 (PTE_P/PTE_W/PTE_U/...)
// generalized into a per-architecture table, and on the field layouts in
// original_source's kernel/arch/x86_64/paging/x86_paging.hh (x86_PAE_Entry)
// and kernel/arch/riscv64/paging/riscv64_paging.hh (Sv39/48/57 PTE).
package archbits

import "mem"

/// Arch identifies one of the two supported paging architectures.
type Arch int

const (
	X86_64 Arch = iota
	Riscv64
)

/// Raw is a packed page-table entry, 64 bits on both supported
/// architectures (x86-64 PAE and every RISC-V Sv mode this core targets).
type Raw uint64

// x86-64 PAE bit positions (original_source x86_PAE_Entry).
const (
	x86Present  Raw = 1 << 0
	x86Write    Raw = 1 << 1
	x86User     Raw = 1 << 2
	x86CacheDis Raw = 1 << 4
	x86Accessed Raw = 1 << 5
	x86Dirty    Raw = 1 << 6
	x86Global   Raw = 1 << 8
	// avl: bits 9-11 carry the software-defined NoFree/StructPage bits.
	x86AvlShift = 9
	x86PPNShift = 12
	x86PPNMask  Raw = (1<<40 - 1) << x86PPNShift
	x86NX       Raw = 1 << 63
)

// RISC-V Sv39/48/57 bit positions (original_source riscv64_paging.hh).
const (
	rvValid  Raw = 1 << 0
	rvRead   Raw = 1 << 1
	rvWrite  Raw = 1 << 2
	rvExec   Raw = 1 << 3
	rvUser   Raw = 1 << 4
	rvGlobal Raw = 1 << 5
	rvAccess Raw = 1 << 6
	rvDirty  Raw = 1 << 7
	// rsw: bits 8-9 carry the software-defined NoFree/StructPage bits.
	rvRSWShift = 8
	rvPPNShift = 10
	rvPPNMask  Raw = (1<<44 - 1) << rvPPNShift
	// Svpbmt PBMT field, bits 61-62: 0=PMA, 1=NC, 2=IO.
	rvPBMTShift = 61
	rvPBMTMask  Raw = 0x3 << rvPBMTShift
)

/// Options carries the per-boot CPU feature flags the encoder/decoder must
/// respect (spec §4.3 "Numeric semantics").
type Options struct {
	// NXSupported is x86's "CPU advertises XD" gate.
	NXSupported bool
	// SvpbmtEnabled is RISC-V's "Svpbmt" gate; when false every cache
	// policy request degrades to PMA (CacheNormal).
	SvpbmtEnabled bool
}

/// Encode packs args and the frame's page-aligned physical address (the
/// ppn argument) into a raw PTE for arch; Decode returns that same address
/// as PageAddr.
func Encode(arch Arch, args mem.MapArgs_t, ppn mem.Pa_t, opt Options) Raw {
	switch arch {
	case X86_64:
		return encodeX86(args, ppn, opt)
	case Riscv64:
		return encodeRiscv(args, ppn, opt)
	default:
		panic("unknown arch")
	}
}

func encodeX86(args mem.MapArgs_t, ppn mem.Pa_t, opt Options) Raw {
	var r Raw = x86Present
	if args.W {
		r |= x86Write
	}
	if args.U {
		r |= x86User
	}
	if args.Global {
		r |= x86Global
	}
	if args.Cache != mem.CacheNormal {
		// x86 has a single "cache disabled" bit; MemoryNoCache and
		// IoNoCache both set it, exactly as spec §4.3 describes.
		r |= x86CacheDis
	}
	if !args.X && opt.NXSupported {
		r |= x86NX
	}
	r |= Raw(args.Extra) << x86AvlShift
	r |= Raw(ppn) & x86PPNMask
	return r
}

func decodeX86(raw Raw) mem.PageInfo_t {
	cache := mem.CacheNormal
	if raw&x86CacheDis != 0 {
		cache = mem.CacheMemoryNoCache
	}
	_ = cache // cache policy is not distinguishable once collapsed to one bit on x86; callers that need it must track it out of band.
	return mem.PageInfo_t{
		IsAllocated: raw&x86Present != 0,
		Dirty:       raw&x86Dirty != 0,
		User:        raw&x86User != 0,
		NoFree:      (ExtraBits(raw, x86AvlShift) & mem.ExtraNoFree) != 0,
		PageAddr:    mem.Pa_t(raw & x86PPNMask),
		Extra:       ExtraBits(raw, x86AvlShift),
	}
}

func encodeRiscv(args mem.MapArgs_t, ppn mem.Pa_t, opt Options) Raw {
	var r Raw = rvValid
	if args.R {
		r |= rvRead
	}
	if args.W {
		r |= rvWrite
	}
	if args.X {
		r |= rvExec
	}
	if args.U {
		r |= rvUser
	}
	if args.Global {
		r |= rvGlobal
	}
	cache := args.Cache
	if !opt.SvpbmtEnabled {
		cache = mem.CacheNormal
	}
	r |= Raw(cache) << rvPBMTShift
	r |= Raw(args.Extra) << rvRSWShift
	r |= Raw(ppn) & rvPPNMask
	return r
}

func decodeRiscv(raw Raw) mem.PageInfo_t {
	return mem.PageInfo_t{
		IsAllocated: raw&rvValid != 0,
		Dirty:       raw&rvDirty != 0,
		User:        raw&rvUser != 0,
		NoFree:      (ExtraBits(raw, rvRSWShift) & mem.ExtraNoFree) != 0,
		PageAddr:    mem.Pa_t(raw & rvPPNMask),
		Extra:       ExtraBits(raw, rvRSWShift),
	}
}

/// Decode unpacks a raw PTE into the architecture-neutral PageInfo_t.
func Decode(arch Arch, raw Raw) mem.PageInfo_t {
	switch arch {
	case X86_64:
		return decodeX86(raw)
	case Riscv64:
		return decodeRiscv(raw)
	default:
		panic("unknown arch")
	}
}

/// ExtraBits extracts the 2-3 software-available bits starting at shift.
func ExtraBits(raw Raw, shift int) mem.ExtraBits_t {
	return mem.ExtraBits_t((raw >> shift) & 0x7)
}

/// IsPresent reports whether the leaf entry is valid/present on arch.
func IsPresent(arch Arch, raw Raw) bool {
	switch arch {
	case X86_64:
		return raw&x86Present != 0
	case Riscv64:
		return raw&rvValid != 0
	default:
		panic("unknown arch")
	}
}

/// Clear returns the zero (not-present/invalid) PTE value for arch. Freeing
/// policy (NoFree/StructPage) is decided by the caller before clearing, per
/// spec §4.3 unmap semantics.
func Clear(arch Arch) Raw {
	return 0
}
