// Package bounds names the call sites that must check a cooperative
// resource budget before doing another unit of work in a loop that could
// otherwise run unbounded (spec §5: the kernel is non-preemptible and
// yields only at explicit points). It mirrors biscuit's bounds package,
// whose only surviving trace in the retrieval pack is its call sites in
// vm/userbuf.go (bounds.B_USERBUF_T__TX, bounds.B_USERIOVEC_T_IOV_INIT) —
// the budget identifiers below are named the same way for the call sites
// this port of the idiom keeps, plus the new ones the VM/IPC rewrite adds.
package bounds

/// Budget_t names one bounded loop site.
type Budget_t int

const (
	B_USERBUF_T__TX Budget_t = iota
	B_USERIOVEC_T_IOV_INIT
	B_USERIOVEC_T__TX
	B_VM_ATOMIC_COPY_TO_USER
	B_REGION_ON_PAGE_FAULT
	B_PORT_ENQUEUE
	B_RIGHTS_SEND_MESSAGE
	B_TLB_INVALIDATE_RANGE
)

// cost is the number of budget units each site consumes per iteration. A
// single unit for most sites; atomic_copy_to_user and shootdown ranges walk
// page-sized steps and are charged the same unit per page.
var cost = [...]int{
	B_USERBUF_T__TX:          1,
	B_USERIOVEC_T_IOV_INIT:   1,
	B_USERIOVEC_T__TX:        1,
	B_VM_ATOMIC_COPY_TO_USER: 1,
	B_REGION_ON_PAGE_FAULT:   1,
	B_PORT_ENQUEUE:           1,
	B_RIGHTS_SEND_MESSAGE:    1,
	B_TLB_INVALIDATE_RANGE:   1,
}

/// Bounds returns the heap/iteration cost of one step at the named call
/// site, the value res.Resadd_noblock charges against the current budget.
func Bounds(b Budget_t) int {
	return cost[b]
}
