// Package res implements the cooperative work budget that unbounded copy
// loops (vm.Userbuf_t._tx, vm.Useriovec_t's Iov_init and _tx, vm.Vm_t's
// atomic user copies, TLB range invalidation) consume from before
// doing one more unit of work. Biscuit's res package guarded heap
// admission in a kernel with no general-purpose allocator; this port
// repurposes the same call-site contract — Resadd_noblock returns false to
// mean "stop now, unwind, and hand back ENOHEAP" — to guard
// against a non-preemptible hart spending unbounded time in one syscall
// between the explicit reschedule points spec §5 allows.
package res

import "sync/atomic"

// budget is intentionally a single shared counter rather than sharded
// per-hart state: nothing in spec §8's testable properties depends on
// per-hart admission, and every caller already holds whatever lock its
// subsystem requires, so a shared atomic counter is sufficient and keeps
// the Resadd_noblock(cost) signature identical to the original call sites.
var budget int64

/// Reset refills the budget. The scheduler calls this at every explicit
/// reschedule point (syscall entry, interrupt return, quantum renewal).
func Reset(n int) {
	atomic.StoreInt64(&budget, int64(n))
}

/// Resadd_noblock charges cost units against the current budget and
/// reports whether the caller may proceed. It never blocks: a caller that
/// gets false must unwind its partial work and surface ENOHEAP so the
/// syscall dispatcher can translate it to Retry.
func Resadd_noblock(cost int) bool {
	if atomic.AddInt64(&budget, -int64(cost)) >= 0 {
		return true
	}
	atomic.AddInt64(&budget, int64(cost))
	return false
}
