// Package tlb implements the shootdown batching of spec §4.5. A
// ShootdownCtx_t accumulates pending invalidations while the caller holds
// the page-table lock (vm.Vm_t.Unmap/InvalidateRange/Clone append to
// one), then Commit replays biscuit's Tlbshoot fast/slow-path split
// (vm/as.go Tlbshoot: local invalidate when the pmap is only active here,
// IPI otherwise) generalized to an arbitrary hart set instead of a single
// x86 APIC broadcast.
package tlb

import "defs"

/// Entry_t names one pending invalidation: pages contiguous 4 KiB pages
/// starting at VA. Free indicates the underlying frames should return to
/// the PMM once every hart has dropped the mapping.
type Entry_t struct {
	VA    uintptr
	Pages int
	Free  bool
}

/// Broadcaster_i is implemented by the scheduler/IPI layer so tlb stays
/// free of any particular interrupt-controller wiring.
type Broadcaster_i interface {
	// LocalInvalidate executes entries against the current hart's TLB.
	LocalInvalidate(entries []Entry_t)
	// SendIPI asks hart to invalidate entries and signal ack on done once
	// complete.
	SendIPI(hart defs.HartId_t, entries []Entry_t, done chan<- defs.HartId_t)
	// ServicePendingIPIs drains and handles any synchronous IPI directed
	// at the local hart while it waits for remote acks, so two harts
	// shooting each other down cannot deadlock.
	ServicePendingIPIs()
}

/// ShootdownCtx_t batches invalidations for one page-table mutation
/// sequence performed under a single lock acquisition.
type ShootdownCtx_t struct {
	entries []Entry_t
}

/// Invalidate records that the range [va, va+pages*4096) must be
/// invalidated on commit.
func (c *ShootdownCtx_t) Invalidate(va uintptr, pages int, free bool) {
	c.entries = append(c.entries, Entry_t{VA: va, Pages: pages, Free: free})
}

/// Pending reports the queued entries, for callers that need to act on
/// Free before the frames are released.
func (c *ShootdownCtx_t) Pending() []Entry_t {
	return c.entries
}

/// Commit issues the batched invalidations: always locally, and via IPI to
/// every hart in active other than local, per spec §4.5's ordering — every PTE mutation
/// this ctx covers happened before Commit is called, so a remote hart
/// observes the new value no later than its ack.
func (c *ShootdownCtx_t) Commit(local defs.HartId_t, active []defs.HartId_t, b Broadcaster_i) {
	if len(c.entries) == 0 {
		return
	}
	b.LocalInvalidate(c.entries)
	if len(active) == 0 {
		return
	}
	acked := make(chan defs.HartId_t, len(active))
	for _, h := range active {
		if h == local {
			continue
		}
		b.SendIPI(h, c.entries, acked)
	}
	remaining := make(map[defs.HartId_t]bool, len(active))
	for _, h := range active {
		if h != local {
			remaining[h] = true
		}
	}
	for len(remaining) > 0 {
		select {
		case h := <-acked:
			delete(remaining, h)
		default:
			b.ServicePendingIPIs()
		}
	}
	c.entries = nil
}
