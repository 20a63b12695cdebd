// Package irq implements the per-hart interrupt router (spec §4.10): a
// vector-sorted handler table with binary-search lookup, grounded on
// msi.Msivecs_t's "small fixed pool of vector ids, taken and given back
// under one lock" shape, generalized from MSI-specific vectors to any
// GSI/vector a platform's interrupt controller exposes.
package irq

import (
	"sort"
	"sync"

	"defs"
	"ipc"
	"klog"
	"limits"
	"util"
)

/// Controller_i abstracts the platform interrupt controller (IOAPIC+APIC
/// on x86-64, PLIC on RISC-V): Enable unmasks a source, Disable masks it,
/// Ack is the per-architecture completion signal (PLIC complete / APIC
/// EOI / TPR restore) spec §4.10 calls out by name.
type Controller_i interface {
	Enable(vec defs.VecId_t)
	Disable(vec defs.VecId_t)
	Ack(vec defs.VecId_t)
}

/// handler_t is one installed interrupt route.
type handler_t struct {
	vec    defs.VecId_t
	port   *ipc.Port_t
	active bool
}

/// Table_t is one hart's interrupt table (spec §4.10: "A per-hart
/// interrupt table, sorted by GSI/vector, with binary-search lookup").
type Table_t struct {
	mu       sync.Mutex
	Hart     defs.HartId_t
	handlers []*handler_t
	ctrl     Controller_i
}

/// NewTable creates an empty table for hart, driving ctrl for
/// enable/disable/ack.
func NewTable(hart defs.HartId_t, ctrl Controller_i) *Table_t {
	return &Table_t{Hart: hart, ctrl: ctrl}
}

func (t *Table_t) find(vec defs.VecId_t) (int, bool) {
	i := sort.Search(len(t.handlers), func(i int) bool { return t.handlers[i].vec >= vec })
	if i < len(t.handlers) && t.handlers[i].vec == vec {
		return i, true
	}
	return i, false
}

/// AddHandler installs port as vec's handler, requiring the caller's task
/// be pinned to this hart (taskPinned), the vector free (spec §4.10), and
/// the vector id within the platform's routable range
/// (limits.Syslimit.Maxvecs). On success the vector is unmasked at the
/// controller.
func (t *Table_t) AddHandler(vec defs.VecId_t, port *ipc.Port_t, taskPinned bool) defs.Err_t {
	if !taskPinned {
		return defs.EINVAL
	}
	if int(vec) >= limits.Syslimit.Maxvecs {
		return defs.EINVAL
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	i, exists := t.find(vec)
	if exists {
		return defs.EEXIST
	}
	h := &handler_t{vec: vec, port: port}
	t.handlers = append(t.handlers, nil)
	copy(t.handlers[i+1:], t.handlers[i:])
	t.handlers[i] = h
	t.ctrl.Enable(vec)
	return 0
}

/// RemoveHandler tears down vec's route and masks it at the controller.
func (t *Table_t) RemoveHandler(vec defs.VecId_t) defs.Err_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, exists := t.find(vec)
	if !exists {
		return defs.ENOTFOUND
	}
	t.handlers = append(t.handlers[:i], t.handlers[i+1:]...)
	t.ctrl.Disable(vec)
	return 0
}

/// Dispatch delivers an interrupt on vec from system context: it looks up
/// the handler, enqueues a well-formed KernelInterruptMessage (copy-free,
/// built straight from the vector and hart), and marks the handler active
/// so no further delivery happens until user-space acknowledges (spec
/// §4.10). If the handler is missing or its port is dead, the source is
/// masked and any installed handler removed.
func (t *Table_t) Dispatch(vec defs.VecId_t) {
	t.mu.Lock()
	i, exists := t.find(vec)
	if !exists {
		t.mu.Unlock()
		t.ctrl.Disable(vec)
		return
	}
	h := t.handlers[i]
	if h.active {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	payload := make([]byte, 8)
	util.Writen(payload, 4, 0, int(vec))
	util.Writen(payload, 4, 4, int(t.Hart))

	if err := h.port.SendFromSystem(defs.MsgKernelInterrupt, payload); err != 0 {
		klog.PrintfOnce(klog.Warn, "irq: hart %d vector %d handler port died, masking", t.Hart, vec)
		t.RemoveHandler(vec)
		return
	}

	t.mu.Lock()
	h.active = true
	t.mu.Unlock()
}

/// Acknowledge clears vec's active flag and re-enables delivery at the
/// controller (spec §4.10, "Acknowledgement from user-space clears active
/// and re-enables the interrupt at the controller level").
func (t *Table_t) Acknowledge(vec defs.VecId_t) defs.Err_t {
	t.mu.Lock()
	i, exists := t.find(vec)
	if !exists {
		t.mu.Unlock()
		return defs.ENOTFOUND
	}
	t.handlers[i].active = false
	t.mu.Unlock()
	t.ctrl.Ack(vec)
	return 0
}

/// IsActive reports whether vec's handler is currently withholding
/// further deliveries pending acknowledgement.
func (t *Table_t) IsActive(vec defs.VecId_t) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i, exists := t.find(vec); exists {
		return t.handlers[i].active
	}
	return false
}
