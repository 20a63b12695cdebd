// Package tinfo holds the per-task kill-cooperation state shared between
// task, sched, and syscall: the "can I be killed right now" handshake
// spec §4.8's atomic_kill and §5's cooperative suspension model both
// need. biscuit reaches this state through a goroutine-local pointer
// installed in a patched runtime (runtime.Gptr/Setgptr); this module
// targets stock Go, so task.Task_t instead carries its *Tnote_t directly
// and callers pass it explicitly, which is the idiomatic Go substitute
// for a thread-local.
package tinfo

import (
	"sync"

	"defs"
)

/// Tnote_t is the state a task's own final context consults to decide
/// whether a blocking wait must bail out early for a kill in progress
/// (spec §4.8, "atomic_kill ... hands cleanup to the task's own final
/// context").
type Tnote_t struct {
	Alive    bool
	Killed   bool
	Isdoomed bool

	// Protects Killed, Isdoomed, and Killnaps; a leaf lock, never held
	// across a call into another subsystem.
	sync.Mutex
	Killnaps struct {
		Killch chan bool
		Cond   *sync.Cond
		Kerr   defs.Err_t
	}
}

/// NewTnote creates a live, non-doomed note with its kill-notification
/// channel ready to receive.
func NewTnote() *Tnote_t {
	n := &Tnote_t{Alive: true}
	n.Killnaps.Killch = make(chan bool, 1)
	n.Killnaps.Cond = sync.NewCond(&n.Mutex)
	return n
}

/// Doomed reports whether the task is marked to die at its next
/// preemption point.
func (t *Tnote_t) Doomed() bool {
	t.Lock()
	defer t.Unlock()
	return t.Isdoomed
}

/// Doom marks the task doomed and wakes anything parked on Killnaps.Cond
/// so a blocked wait can re-check Doomed and unwind (spec §4.8,
/// atomic_kill).
func (t *Tnote_t) Doom() {
	t.Lock()
	t.Isdoomed = true
	t.Unlock()
	select {
	case t.Killnaps.Killch <- true:
	default:
	}
	t.Killnaps.Cond.Broadcast()
}

/// Threadinfo_t tracks every live task's note, keyed by task id.
type Threadinfo_t struct {
	sync.Mutex
	Notes map[defs.Tid_t]*Tnote_t
}

/// NewThreadinfo creates an empty registry.
func NewThreadinfo() *Threadinfo_t {
	return &Threadinfo_t{Notes: make(map[defs.Tid_t]*Tnote_t)}
}

/// Register installs a fresh note for tid and returns it.
func (ti *Threadinfo_t) Register(tid defs.Tid_t) *Tnote_t {
	n := NewTnote()
	ti.Lock()
	ti.Notes[tid] = n
	ti.Unlock()
	return n
}

/// Find looks up tid's note.
func (ti *Threadinfo_t) Find(tid defs.Tid_t) (*Tnote_t, bool) {
	ti.Lock()
	defer ti.Unlock()
	n, ok := ti.Notes[tid]
	return n, ok
}

/// Remove drops tid's note once the task has fully exited.
func (ti *Threadinfo_t) Remove(tid defs.Tid_t) {
	ti.Lock()
	delete(ti.Notes, tid)
	ti.Unlock()
}
