// Package task implements tasks and task groups (spec §4.8). A Task_t
// bundles the state the scheduler, ipc, and vm packages all need a
// handle to — its address space, its owned ports, its kill-cooperation
// note — the way biscuit's (never-retrieved) proc.Proc_t bundles a
// process's threads, address space, and fd table. Lacking that file in
// the retrieval pack, the struct shape here is grounded directly on
// spec §3's "Task" and "Task group" data-model entries and on
// tinfo.Tnote_t / accnt.Accnt_t, which were retrieved.
package task

import (
	"sync"

	"accnt"
	"defs"
	"ipc"
	"limits"
	"tinfo"
	"util"
	"vm"
)

/// Status_t is a task's scheduling state (spec §4.8: "Ready -> Running ->
/// {BlockedOn..., Ready, Dying}").
type Status_t int

const (
	Ready Status_t = iota
	Running
	BlockedOnPort
	BlockedOnPage
	Dying
)

func (s Status_t) String() string {
	switch s {
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case BlockedOnPort:
		return "BlockedOnPort"
	case BlockedOnPage:
		return "BlockedOnPage"
	case Dying:
		return "Dying"
	default:
		return "Unknown"
	}
}

/// Priority_t indexes the 4-level ready queue (spec §4.9).
type Priority_t int

const (
	PrioHigh Priority_t = iota
	PrioNormal
	PrioLow
	PrioBackground
)

/// Task_t is one schedulable unit of execution (spec §3, "Task").
type Task_t struct {
	mu sync.Mutex

	Tid      defs.Tid_t
	Status   Status_t
	NextStat Status_t
	Priority Priority_t
	Pinned   bool
	Hart     defs.HartId_t

	Group *Group_t
	Vm    *vm.Vm_t
	Note  *tinfo.Tnote_t
	Accnt *accnt.Accnt_t

	ports   map[defs.PortId_t]*ipc.Port_t
	nextPid defs.PortId_t
}

/// NewTask creates a Ready task bound to vmem, with port zero (its
/// default inbox) already created (spec §6: "Id 0 is reserved for a
/// task's default inbox"). Fails with OutOfMemory if the system-wide task
/// ceiling (limits.Syslimit.Maxtasks) is already exhausted.
func NewTask(tid defs.Tid_t, vmem *vm.Vm_t) (*Task_t, defs.Err_t) {
	if !limits.Syslimit.Maxtasks.Taken(1) {
		return nil, defs.EOUTOFMEM
	}
	t := &Task_t{
		Tid:      tid,
		Status:   Ready,
		Priority: PrioNormal,
		Vm:       vmem,
		Note:     tinfo.NewTnote(),
		Accnt:    &accnt.Accnt_t{},
		ports:    make(map[defs.PortId_t]*ipc.Port_t),
		nextPid:  defs.PortZero + 1,
	}
	if !limits.Syslimit.Maxports.Taken(1) {
		limits.Syslimit.Maxtasks.Give()
		return nil, defs.EOUTOFMEM
	}
	t.ports[defs.PortZero] = ipc.NewPort(defs.PortZero)
	return t, 0
}

/// PortZero returns the task's default inbox.
func (t *Task_t) PortZero() *ipc.Port_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ports[defs.PortZero]
}

/// CreatePort allocates and registers a new owned port, failing with
/// OutOfMemory if the system-wide port ceiling (limits.Syslimit.Maxports)
/// is already exhausted.
func (t *Task_t) CreatePort() (*ipc.Port_t, defs.Err_t) {
	if !limits.Syslimit.Maxports.Taken(1) {
		return nil, defs.EOUTOFMEM
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextPid
	t.nextPid++
	p := ipc.NewPort(id)
	t.ports[id] = p
	return p, 0
}

/// Port looks up one of the task's owned ports by id.
func (t *Task_t) Port(id defs.PortId_t) (*ipc.Port_t, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.ports[id]
	return p, ok
}

/// AtomicKill marks the task Dying and detaches it from its group; the
/// scheduler is responsible for pulling it off any ready queue, and the
/// task's own exit path (Cleanup) runs the rest of spec §4.8's
/// atomic_kill: freeing owned ports and releasing the address-space
/// reference.
func (t *Task_t) AtomicKill() {
	t.mu.Lock()
	t.Status = Dying
	t.mu.Unlock()
	t.Note.Doom()
	if t.Group != nil {
		t.Group.Remove(t)
	}
}

/// Cleanup runs on the task's own final context once it reaches Dying at
/// a preemption point: it kills every port the task owned (waking any
/// blocked peers with PortDead), returns the owned ports and the task
/// itself to their system-wide ceilings, and marks the note no longer
/// alive.
func (t *Task_t) Cleanup() {
	t.mu.Lock()
	ports := make([]*ipc.Port_t, 0, len(t.ports))
	for _, p := range t.ports {
		ports = append(ports, p)
	}
	t.ports = nil
	t.mu.Unlock()

	for _, p := range ports {
		p.Kill()
		limits.Syslimit.Maxports.Give()
	}
	limits.Syslimit.Maxtasks.Give()
	t.Note.Lock()
	t.Note.Alive = false
	t.Note.Unlock()
}

/// GroupEventMask_t selects which task-group lifecycle events a
/// subscriber port wants delivered (spec §4.8).
type GroupEventMask_t uint32

const (
	EventAdded GroupEventMask_t = 1 << iota
	EventRemoved
	EventDestroyed
)

type subscriber_t struct {
	port           *ipc.Port_t
	mask           GroupEventMask_t
	notifyExisting bool
}

/// Group_t is a task group: a set of tasks whose membership changes are
/// observable by any port subscribed with a matching event mask (spec
/// §4.8).
type Group_t struct {
	mu          sync.Mutex
	Id          defs.GroupId_t
	tasks       map[defs.Tid_t]*Task_t
	subscribers []subscriber_t
}

/// NewGroup creates an empty task group.
func NewGroup(id defs.GroupId_t) *Group_t {
	return &Group_t{Id: id, tasks: make(map[defs.Tid_t]*Task_t)}
}

/// Subscribe registers port to receive group lifecycle events matching
/// mask. If notifyExisting is set, an Added event fires immediately for
/// every task already in the group (spec §4.8,
/// "NotifyForExistingTasks").
func (g *Group_t) Subscribe(port *ipc.Port_t, mask GroupEventMask_t, notifyExisting bool) {
	g.mu.Lock()
	g.subscribers = append(g.subscribers, subscriber_t{port, mask, notifyExisting})
	existing := make([]defs.Tid_t, 0, len(g.tasks))
	if notifyExisting && mask&EventAdded != 0 {
		for tid := range g.tasks {
			existing = append(existing, tid)
		}
	}
	g.mu.Unlock()

	for _, tid := range existing {
		port.SendFromSystem(defs.MsgGroupTaskChanged, encodeTaskChanged(g.Id, tid, defs.GroupTaskAdded))
	}
}

/// Add inserts t into the group and notifies subscribers of Added.
func (g *Group_t) Add(t *Task_t) {
	g.mu.Lock()
	g.tasks[t.Tid] = t
	t.Group = g
	subs := g.matching(EventAdded)
	g.mu.Unlock()
	g.notify(subs, t.Tid, defs.GroupTaskAdded)
}

/// Remove drops t from the group and notifies subscribers of Removed.
func (g *Group_t) Remove(t *Task_t) {
	g.mu.Lock()
	if _, ok := g.tasks[t.Tid]; !ok {
		g.mu.Unlock()
		return
	}
	delete(g.tasks, t.Tid)
	subs := g.matching(EventRemoved)
	g.mu.Unlock()
	g.notify(subs, t.Tid, defs.GroupTaskRemoved)
}

/// Destroy tears the group down, firing MsgGroupDestroyed to every
/// subscriber regardless of mask (spec §4.8: "Destroyed is reported as
/// MsgGroupDestroyed instead, with no task id").
func (g *Group_t) Destroy() {
	g.mu.Lock()
	subs := g.subscribers
	g.subscribers = nil
	g.tasks = nil
	g.mu.Unlock()

	for _, s := range subs {
		s.port.SendFromSystem(defs.MsgGroupDestroyed, encodeGroupId(g.Id))
	}
}

func (g *Group_t) matching(evt GroupEventMask_t) []subscriber_t {
	out := make([]subscriber_t, 0, len(g.subscribers))
	for _, s := range g.subscribers {
		if s.mask&evt != 0 {
			out = append(out, s)
		}
	}
	return out
}

func (g *Group_t) notify(subs []subscriber_t, tid defs.Tid_t, evt defs.GroupEvent_t) {
	for _, s := range subs {
		s.port.SendFromSystem(defs.MsgGroupTaskChanged, encodeTaskChanged(g.Id, tid, evt))
	}
}

func encodeTaskChanged(group defs.GroupId_t, tid defs.Tid_t, evt defs.GroupEvent_t) []byte {
	b := make([]byte, 20)
	util.Writen(b, 8, 0, int(group))
	util.Writen(b, 8, 8, int(tid))
	util.Writen(b, 4, 16, int(evt))
	return b
}

func encodeGroupId(group defs.GroupId_t) []byte {
	b := make([]byte, 8)
	util.Writen(b, 8, 0, int(group))
	return b
}
