// Package defs holds the identifier types, error taxonomy, and wire message
// constants shared across every kernel subsystem. It has no dependencies of
// its own so any package may import it without creating cycles.
package defs

import "fmt"

/// Err_t is the kernel-wide result code. Zero means success; negative values
/// name a failure from the taxonomy below, mirroring a small fixed errno-like
/// enumeration the way biscuit's Err_t does.
type Err_t int

// Resource exhaustion.
const (
	EOUTOFMEM    Err_t = -1 /// OutOfMemory: the PMM free list under the requested policy is empty
	EOUTOFPORTS  Err_t = -2 /// OutOfPorts (task.CreatePort reports an exhausted Syslimit.Maxports as EOUTOFMEM)
	EOUTOFVECS   Err_t = -3 /// OutOfInterruptVectors: no free GSI/vector slot on the hart
	ENOHEAP      Err_t = -4 /// a cooperative budget check failed mid-copy; caller must unwind
)

// Invalid request.
const (
	EBADADDR  Err_t = -10 /// BadAddress: user pointer outside user-addressable space
	EINVAL    Err_t = -11 /// InvalidArgument
	EEXIST    Err_t = -12 /// AlreadyExists
	ENOTFOUND Err_t = -13 /// NotFound
	EWRONGOWN Err_t = -14 /// WrongOwner: right/port does not belong to the calling group
	EPORTDEAD Err_t = -15 /// PortDead
	ERIGHTDEAD Err_t = -16 /// RightDead
	EALREADYMAPPED Err_t = -17 /// AlreadyMapped: leaf PTE already present
	EHUGEPAGE      Err_t = -18 /// HugePageEncountered: unsupported large-page intermediate
	EACCESS        Err_t = -19 /// AccessDenied: fault access exceeds the region's permitted mask
)

// Transient — the caller has been blocked and will be resumed, or should retry.
const (
	ERETRY       Err_t = -30 /// Retry: caller is blocked and will be resumed at the syscall boundary
	EINTERRUPTED Err_t = -31 /// Interrupted: an IPI preempted a wait; retry
)

// Fatal to the faulting task — translated to atomic_kill(current) with a log line.
const (
	EPAGENOTALLOC Err_t = -40 /// PageNotAllocated: fault address outside any region
	EBADINSTR     Err_t = -41 /// BadInstruction
	ENOINSTR      Err_t = -42 /// InstructionUnavailable
)

var names = map[Err_t]string{
	EOUTOFMEM:      "OutOfMemory",
	EOUTOFPORTS:    "OutOfPorts",
	EOUTOFVECS:     "OutOfInterruptVectors",
	ENOHEAP:        "NoHeap",
	EBADADDR:       "BadAddress",
	EINVAL:         "InvalidArgument",
	EEXIST:         "AlreadyExists",
	ENOTFOUND:      "NotFound",
	EWRONGOWN:      "WrongOwner",
	EPORTDEAD:      "PortDead",
	ERIGHTDEAD:     "RightDead",
	EALREADYMAPPED: "AlreadyMapped",
	EHUGEPAGE:      "HugePageEncountered",
	EACCESS:        "AccessDenied",
	ERETRY:         "Retry",
	EINTERRUPTED:   "Interrupted",
	EPAGENOTALLOC:  "PageNotAllocated",
	EBADINSTR:      "BadInstruction",
	ENOINSTR:       "InstructionUnavailable",
}

/// Error implements the error interface so an Err_t can be returned or
/// wrapped wherever idiomatic Go code expects one, without losing the
/// numeric code callers in the kernel switch on.
func (e Err_t) Error() string {
	if e == 0 {
		return "success"
	}
	if n, ok := names[e]; ok {
		return n
	}
	return fmt.Sprintf("Err_t(%d)", int(e))
}

/// IsBlocking reports whether the error means the caller was parked and
/// will be resumed rather than that the request failed outright.
func (e Err_t) IsBlocking() bool {
	return e == ERETRY || e == EINTERRUPTED
}

/// IsFatalToTask reports whether the error must translate to killing the
/// current task (spec §7, "Fatal to task").
func (e Err_t) IsFatalToTask() bool {
	switch e {
	case EPAGENOTALLOC, EBADINSTR, ENOINSTR:
		return true
	}
	return false
}
