// Package sched implements the per-hart scheduler (spec §4.9): a 4-level
// ready queue, idle-task fallback, and cross-hart wake via reschedule
// IPIs. Its shape mirrors tlb.Broadcaster_i's local/IPI split — here a
// RescheduleSender_i stands in for the interrupt the real kernel would
// send, kept as a seam so the irq package can wire the actual IPI vector
// once written.
package sched

import (
	"sync"

	"defs"
	"limits"
	"task"
)

/// RescheduleSender_i lets Scheduler_t.WakeTask ask another hart to reschedule
/// without sched importing irq (spec §4.9, "send a reschedule IPI").
type RescheduleSender_i interface {
	SendRescheduleIPI(hart defs.HartId_t)
}

/// PerHart_t is one hart's scheduling state (spec §4.9): a 4-level ready
/// queue, the idle task, the currently running task, a pending-reschedule
/// flag, and page-table-generation accounting.
type PerHart_t struct {
	mu sync.Mutex

	Hart    defs.HartId_t
	queues  [4][]*task.Task_t
	idle    *task.Task_t
	current *task.Task_t

	rescheduleNeeded bool

	kgen    defs.PTGenId_t
	genRefs map[defs.PTGenId_t]int

	switchedAt int
}

/// NewPerHart creates a hart's scheduler with idle as its fallback task
/// (run when every ready queue is empty).
func NewPerHart(hart defs.HartId_t, idle *task.Task_t) *PerHart_t {
	return &PerHart_t{
		Hart:       hart,
		idle:       idle,
		current:    idle,
		genRefs:    make(map[defs.PTGenId_t]int),
		switchedAt: idle.Accnt.Now(),
	}
}

/// Current reports the task presently assigned this hart.
func (p *PerHart_t) Current() *task.Task_t {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

/// PushReady enqueues t at the tail of its priority's queue, unless it is
/// Dying or the idle task — both are never placed on a ready queue (spec
/// §4.9: "push the current task to the tail of its priority queue (unless
/// Dying/Idle)").
func (p *PerHart_t) PushReady(t *task.Task_t) {
	if t == p.idle || t.Status == task.Dying {
		return
	}
	p.mu.Lock()
	t.Status = task.Ready
	p.queues[t.Priority] = append(p.queues[t.Priority], t)
	p.mu.Unlock()
}

/// popReadyLocked pops the highest-priority non-empty queue's head, or
/// nil if every queue is empty. Caller holds p.mu.
func (p *PerHart_t) popReadyLocked() *task.Task_t {
	for prio := task.PrioHigh; prio <= task.PrioBackground; prio++ {
		q := p.queues[prio]
		if len(q) == 0 {
			continue
		}
		next := q[0]
		p.queues[prio] = q[1:]
		return next
	}
	return nil
}

/// Switch implements quantum expiry / explicit yield (spec §4.9): the
/// caller has already saved cur's registers; Switch charges cur's Accnt
/// for the time it just spent running, requeues cur (unless it has
/// already left Ready — e.g. it just blocked or was killed), pops the
/// next task (falling back to idle), and marks it Running.
func (p *PerHart_t) Switch(cur *task.Task_t) *task.Task_t {
	p.mu.Lock()
	now := p.idle.Accnt.Now()
	if cur != nil {
		cur.Accnt.Systadd(now - p.switchedAt)
	}
	if cur != nil && cur != p.idle && cur.Status == task.Running {
		cur.Status = task.Ready
		p.queues[cur.Priority] = append(p.queues[cur.Priority], cur)
	}
	next := p.popReadyLocked()
	if next == nil {
		next = p.idle
	}
	next.Status = task.Running
	p.current = next
	p.rescheduleNeeded = false
	p.switchedAt = now
	p.mu.Unlock()
	return next
}

/// QuantumMsFor reports the time-slice budget for t's current priority
/// from the system-wide quantum table (spec §4.9, "Time-slice
/// reassignment on priority changes"), re-read on every dispatch so a
/// priority change takes effect on the task's next run.
func QuantumMsFor(t *task.Task_t) int {
	return limits.Syslimit.Quanta[t.Priority]
}

/// RescheduleNeeded reports this hart's pending-reschedule flag; Switch
/// clears it.
func (p *PerHart_t) RescheduleNeeded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rescheduleNeeded
}

/// EnterGeneration records that a task is about to run under page-table
/// generation gen, bumping its active-user count (spec §4.9).
func (p *PerHart_t) EnterGeneration(gen defs.PTGenId_t) {
	p.mu.Lock()
	p.genRefs[gen]++
	p.kgen = gen
	p.mu.Unlock()
}

/// LeaveGeneration drops gen's active-user count, reporting whether it
/// reached zero (the caller may then reclaim the generation's kernel
/// mappings).
func (p *PerHart_t) LeaveGeneration(gen defs.PTGenId_t) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.genRefs[gen]--
	z := p.genRefs[gen] <= 0
	if z {
		delete(p.genRefs, gen)
	}
	return z
}

/// Scheduler_t tracks every hart's PerHart_t and dispatches cross-hart
/// wakes (spec §4.9, "Cross-hart wakes").
type Scheduler_t struct {
	mu    sync.Mutex
	harts map[defs.HartId_t]*PerHart_t
	ipi   RescheduleSender_i
}

/// NewScheduler creates an empty multi-hart scheduler. ipi may be nil in
/// single-hart tests, in which case cross-hart wakes degrade to a local
/// queue push with no IPI sent.
func NewScheduler(ipi RescheduleSender_i) *Scheduler_t {
	return &Scheduler_t{harts: make(map[defs.HartId_t]*PerHart_t), ipi: ipi}
}

/// AddHart registers a hart's scheduler with the multi-hart dispatcher.
func (s *Scheduler_t) AddHart(p *PerHart_t) {
	s.mu.Lock()
	s.harts[p.Hart] = p
	s.mu.Unlock()
}

/// WakeTask unblocks t, which is pinned to t.Hart: it is pushed onto that
/// hart's ready queue, and if that hart is currently running a
/// lower-priority task, a reschedule IPI is sent (spec §4.9: "when
/// unblocking a task bound to another hart, set that hart's reschedule
/// flag and, if it is running a lower-priority task, send a reschedule
/// IPI").
func (s *Scheduler_t) WakeTask(t *task.Task_t) {
	s.mu.Lock()
	hart, ok := s.harts[t.Hart]
	s.mu.Unlock()
	if !ok {
		return
	}
	hart.PushReady(t)

	hart.mu.Lock()
	lowerPriority := hart.current != nil && hart.current != hart.idle && hart.current.Priority > t.Priority
	hart.rescheduleNeeded = true
	hart.mu.Unlock()

	if lowerPriority && s.ipi != nil {
		s.ipi.SendRescheduleIPI(t.Hart)
	}
}
