// Package rights implements capabilities to send on a port (spec §4.7,
// §3 "Right"). It imports ipc one-directionally — ipc only sees rights
// through the RightRef_t interface it declares — matching biscuit's own
// fd/fd.go pattern of a capability table layered over a lower-level
// object (there, an open file; here, a port).
package rights

import (
	"sort"
	"sync"
	"unsafe"

	"defs"
	"ipc"
	"limits"
)

/// Type_t distinguishes a right usable exactly once from one usable
/// repeatedly (spec §3).
type Type_t int

const (
	SendOnce Type_t = iota
	SendMany
)

/// Right_t is a capability to send on a specific port, visible to exactly
/// one task group. parentId names the right that spawned this one (0 for
/// a root right created directly on a port, nonzero for a reply right
/// minted during send_message_right step 4).
type Right_t struct {
	mu sync.Mutex

	parentPort *ipc.Port_t
	group      defs.GroupId_t
	kind       Type_t
	alive      bool
	ofMessage  bool
	parentId   defs.RightSenderId_t
	senderId   defs.RightSenderId_t
}

/// Port reports the port this right ultimately sends to.
func (r *Right_t) Port() *ipc.Port_t { return r.parentPort }

/// SenderId reports the per-group monotonic id a receiver uses to
/// distinguish senders (spec §3).
func (r *Right_t) SenderId() defs.RightSenderId_t { return r.senderId }

/// Alive reports whether the right can still be used to send.
func (r *Right_t) Alive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alive
}

/// Detach satisfies ipc.RightRef_t: invoked when the message carrying
/// this right (as an of_message right) is destroyed without ever being
/// received and re-sent onward. It is a no-op for a right that is not
/// (or no longer) of_message, since a table-owned right is retired
/// through Table_t.Destroy instead.
func (r *Right_t) Detach() {
	r.mu.Lock()
	retired := r.ofMessage && r.alive
	if r.ofMessage {
		r.alive = false
	}
	r.mu.Unlock()
	if retired {
		limits.Syslimit.Maxrights.Give()
	}
}

/// addr gives a stable sort key for canonical lock ordering (spec §4.7
/// step 2: "acquire locks ... in a canonical (address-sorted) order to
/// avoid deadlock").
func (r *Right_t) addr() uintptr { return uintptr(unsafe.Pointer(r)) }

/// groupIndex is the per-group sender-id indexed set of rights visible to
/// that group (spec §3: "two indexes of owned Rights", mirrored here
/// per-group rather than per-port since ipc.Port_t must stay
/// rights-agnostic).
type groupIndex struct {
	nextSender defs.RightSenderId_t
	bySender   map[defs.RightSenderId_t]*Right_t
}

/// Table_t is the rights registry: group- and port-indexed, guarded by a
/// single lock. One Table_t exists per kernel instance, shared by every
/// task group (spec §4.7).
type Table_t struct {
	mu      sync.Mutex
	byGroup map[defs.GroupId_t]*groupIndex
	byPort  map[*ipc.Port_t]map[*Right_t]struct{}
}

/// NewTable creates an empty rights registry.
func NewTable() *Table_t {
	return &Table_t{
		byGroup: make(map[defs.GroupId_t]*groupIndex),
		byPort:  make(map[*ipc.Port_t]map[*Right_t]struct{}),
	}
}

/// CreateForGroup creates a new right to send on port, visible to group,
/// of the given kind, recording parentId for provenance (spec §4.7,
/// "Right::create_for_group"). Fails with PortDead if port is already
/// dead, since a right to a dead port could never be used, and with
/// OutOfMemory if the system-wide right ceiling
/// (limits.Syslimit.Maxrights) is exhausted.
func (t *Table_t) CreateForGroup(port *ipc.Port_t, group defs.GroupId_t, kind Type_t, parentId defs.RightSenderId_t) (*Right_t, defs.Err_t) {
	if port.IsDead() {
		return nil, defs.EPORTDEAD
	}
	if !limits.Syslimit.Maxrights.Taken(1) {
		return nil, defs.EOUTOFMEM
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	gi, ok := t.byGroup[group]
	if !ok {
		gi = &groupIndex{bySender: make(map[defs.RightSenderId_t]*Right_t)}
		t.byGroup[group] = gi
	}
	gi.nextSender++
	r := &Right_t{
		parentPort: port,
		group:      group,
		kind:       kind,
		alive:      true,
		parentId:   parentId,
		senderId:   gi.nextSender,
	}
	gi.bySender[r.senderId] = r
	if t.byPort[port] == nil {
		t.byPort[port] = make(map[*Right_t]struct{})
	}
	t.byPort[port][r] = struct{}{}
	return r, 0
}

/// unindexLocked removes r from both indices. Caller holds t.mu.
func (t *Table_t) unindexLocked(r *Right_t) {
	if gi, ok := t.byGroup[r.group]; ok {
		delete(gi.bySender, r.senderId)
	}
	if set, ok := t.byPort[r.parentPort]; ok {
		delete(set, r)
	}
}

/// Destroy retires r. If checkGroup is non-nil, the right must belong to
/// that group or the call fails with WrongOwner (spec §4.7,
/// "destroy(group?) with an optional group check"). Destroying a right
/// that is already dead returns 0 and changes nothing.
func (t *Table_t) Destroy(r *Right_t, checkGroup *defs.GroupId_t) defs.Err_t {
	r.mu.Lock()
	if checkGroup != nil && r.group != *checkGroup {
		r.mu.Unlock()
		return defs.EWRONGOWN
	}
	if !r.alive {
		r.mu.Unlock()
		return 0
	}
	r.alive = false
	r.mu.Unlock()

	t.mu.Lock()
	t.unindexLocked(r)
	t.mu.Unlock()
	limits.Syslimit.Maxrights.Give()
	return 0
}

/// lockSorted sorts rs in place into canonical address order and locks
/// each entry in that order, guaranteeing no two callers can deadlock
/// against each other over overlapping sets (spec §4.7 step 2). It does
/// not check liveness; callers do that once the locks are held.
func lockSorted(rs []*Right_t) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].addr() < rs[j].addr() })
	for _, r := range rs {
		r.mu.Lock()
	}
}

func unlockAll(rs []*Right_t) {
	for _, r := range rs {
		r.mu.Unlock()
	}
}

/// SendMessageRight implements spec §4.7's send_message_right: assembles
/// a message carrying payload and rightsArray (detaching each array entry
/// from group and marking it of_message), optionally mints a reply right
/// under replyPort, destroys right itself if it is SendOnce, and enqueues
/// the assembled message on right's port.
//
// Failures: PortDead, RightDead, WrongOwner, OutOfMemory. On any failure
// after the validation step no state has been mutated, satisfying "a
// partial failure after step 2 must restore state."
func (t *Table_t) SendMessageRight(
	msgType defs.MsgType_t,
	right *Right_t,
	group defs.GroupId_t,
	replyPort *ipc.Port_t,
	rightsArray []*Right_t,
	payload []byte,
) defs.Err_t {
	if right.parentPort.IsDead() {
		return defs.EPORTDEAD
	}
	if len(rightsArray) > ipc.MaxMessageRights {
		return defs.EINVAL
	}

	all := append([]*Right_t{right}, rightsArray...)
	lockSorted(all)
	defer unlockAll(all)

	if !right.alive {
		return defs.ERIGHTDEAD
	}
	if right.group != group {
		return defs.EWRONGOWN
	}
	for _, ar := range rightsArray {
		if !ar.alive {
			return defs.ERIGHTDEAD
		}
		if ar.group != group {
			return defs.EWRONGOWN
		}
	}

	refs := make([]ipc.RightRef_t, 0, len(rightsArray)+1)

	var reply *Right_t
	if replyPort != nil {
		var err defs.Err_t
		reply, err = t.CreateForGroup(replyPort, group, SendOnce, right.senderId)
		if err != 0 {
			return err
		}
		refs = append(refs, reply)
	}

	t.mu.Lock()
	for _, ar := range rightsArray {
		ar.ofMessage = true
		t.unindexLocked(ar)
	}
	t.mu.Unlock()
	for _, ar := range rightsArray {
		refs = append(refs, ar)
	}

	destroyRight := right.kind == SendOnce
	if destroyRight {
		right.alive = false
	}

	target := right.parentPort
	if destroyRight {
		t.mu.Lock()
		t.unindexLocked(right)
		t.mu.Unlock()
		limits.Syslimit.Maxrights.Give()
	}

	return target.SendFromSystemWithRights(msgType, payload, refs)
}
