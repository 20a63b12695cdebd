// Package tempmap implements the bounded, transient, per-hart temporary
// mapper of spec §4.2: a small fixed window of kernel virtual slots used to
// touch an arbitrary physical frame briefly (installing a child page table,
// copying a frame during region fork) without establishing a durable
// mapping. This is deliberately NOT biscuit's mem/dmap.go, which is a
// permanent full-physical-memory direct map — a different mechanism with
// different failure modes (it cannot run out). The bounded-slot shape here
// is grounded on original_source's x86_temp_mapper.cc and
// riscv64_temp_mapper.cc, which both size their arena at 16 slots; Mapper
// takes the slot count as a constructor argument so tests can drive
// exhaustion with a window far smaller than 16.
package tempmap

import (
	"sync"

	"defs"
	"limits"
	"mem"
)

/// SlotId_t identifies one entry of the temporary-mapping window.
type SlotId_t int

type slot_t struct {
	inUse bool
	phys  mem.Pa_t
}

/// Mapper is a per-hart temporary mapping window. It is not safe for
/// concurrent use across harts — spec §4.2 scopes it per-hart precisely so
/// callers never need cross-hart coordination for it.
type Mapper struct {
	mu    sync.Mutex
	slots []slot_t
}

/// NewMapper creates a window of nslots temporary-mapping entries, all free.
func NewMapper(nslots int) *Mapper {
	return &Mapper{slots: make([]slot_t, nslots)}
}

/// NewDefaultMapper creates a window sized to limits.Syslimit.Tempslots,
/// the size a hart's real per-hart mapper is configured with outside of
/// tests.
func NewDefaultMapper() *Mapper {
	return NewMapper(limits.Syslimit.Tempslots)
}

/// Map reserves a slot and binds it to phys, returning the slot id the
/// caller must later pass to Unmap. It returns ERETRY when the window
/// is exhausted rather than blocking a non-preemptible hart.
func (m *Mapper) Map(phys mem.Pa_t) (SlotId_t, defs.Err_t) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.slots {
		if !m.slots[i].inUse {
			m.slots[i].inUse = true
			m.slots[i].phys = phys
			return SlotId_t(i), 0
		}
	}
	return -1, defs.ERETRY
}

/// Unmap releases id back to the window. It panics on a slot that is not
/// currently mapped, which indicates a double-unmap bug in the caller.
func (m *Mapper) Unmap(id SlotId_t) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &m.slots[id]
	if !s.inUse {
		panic("tempmap: unmap of a free slot")
	}
	s.inUse = false
	s.phys = 0
}

/// PhysOf returns the physical frame currently bound to id, for tests and
/// for callers that need to confirm what they mapped.
func (m *Mapper) PhysOf(id SlotId_t) mem.Pa_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[id].phys
}

/// Free reports how many slots are currently unused.
func (m *Mapper) Free() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.slots {
		if !s.inUse {
			n++
		}
	}
	return n
}
