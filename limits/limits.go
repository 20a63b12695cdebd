// Package limits tracks the kernel's system-wide resource ceilings (spec
// §4.8/§4.9/§4.10, SPEC_FULL.md §10.3): how many ports, rights, tasks,
// interrupt vectors, and temp-mapper slots may be simultaneously live, plus
// the per-priority ready-queue quantum table. Generalized from biscuit's
// filesystem/network Syslimit_t (Vnodes/Futexes/Arpents/Routes/Tcpsegs/
// Socks/Pipes/Mfspgs/Blocks), which counted resources this kernel has no
// filesystem or network stack to need; the Sysatomic_t take/give counter
// idiom itself is kept unchanged, just retargeted at the IPC/VM/scheduler
// resources spec §4 actually names.
package limits

import "unsafe"
import "sync/atomic"

/// Lhits is a limit-hit counter. Nothing in this tree increments it: a
/// failed Sysatomic_t.Taken call leaves it unchanged.
var Lhits int

/// Sysatomic_t is a numeric limit that can be atomically updated.
type Sysatomic_t int64

/// Syslimit_t tracks system wide resource limits.
type Syslimit_t struct {
	// live ports across every task in the kernel (spec §4.6)
	Maxports Sysatomic_t
	// live rights across every task group (spec §4.7)
	Maxrights Sysatomic_t
	// live tasks across every group (spec §4.8)
	Maxtasks Sysatomic_t
	// interrupt vectors a single hart's irq.Table_t may route (spec §4.10)
	Maxvecs int
	// slots in a tempmap.Mapper's fixed window (spec §4.2)
	Tempslots int
	// ready-queue quantum in milliseconds, indexed by task.Priority_t
	// (spec §4.9); the fourth, PrioBackground, level never preempts.
	Quanta [4]int
}

/// Syslimit describes the configured system wide limits.
var Syslimit *Syslimit_t = MkSysLimit()

/// MkSysLimit returns a pointer to the default set of limits.
func MkSysLimit() *Syslimit_t {
	return &Syslimit_t{
		Maxports:  1e5,
		Maxrights: 1e5,
		Maxtasks:  1e4,
		Maxvecs:   256,
		Tempslots: 16,
		Quanta:    [4]int{20, 40, 80, 0},
	}
}

func (s *Sysatomic_t) _aptr() *int64 {
	return (*int64)(unsafe.Pointer(s))
}

/// Given increases the limit by the provided amount.
func (s *Sysatomic_t) Given(_n uint) {
	n := int64(_n)
	if n < 0 {
		panic("too mighty")
	}
	atomic.AddInt64(s._aptr(), n)
}

/// Taken tries to decrement the limit by the provided amount.
/// It returns true on success.
func (s *Sysatomic_t) Taken(_n uint) bool {
	n := int64(_n)
	if n < 0 {
		panic("too mighty")
	}
	g := atomic.AddInt64(s._aptr(), -n)
	if g >= 0 {
		return true
	}
	atomic.AddInt64(s._aptr(), n)
	return false
}

/// Take decrements the limit and reports whether it succeeded.
func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

/// Give increments the limit by one.
func (s *Sysatomic_t) Give() {
	s.Given(1)
}
