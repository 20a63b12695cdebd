package ipc

import (
	"sync"

	"bpath"
	"defs"
	"hashtable"
	"ustr"
	"util"
)

// canon normalizes a dotted service name (spec §6, e.g. "svc.time") the
// same way bpath.Canonicalize normalizes a file path, so "svc..time" and
// "svc.time" bind to the same registry entry.
func canon(name string) string {
	return bpath.Canonicalize(ustr.Ustr(name)).String()
}

/// PendingAction_t is one action queued against a not-yet-bound name:
/// either deliver a notification to a reply port once bound
/// (Send_Message), or notify a waiting task of the unbind/failure
/// (Notify_Task) (spec §4.6, named-port registry).
type PendingAction_t struct {
	ReplyPort *Port_t
	NotifyTid defs.Tid_t
	Notify    func(defs.Err_t)
}

/// namedPortDesc is the registry's per-name entry.
type namedPortDesc struct {
	port    *Port_t
	pending []PendingAction_t
}

/// registryBuckets sizes the name table. Named-port bindings are a
/// process-wide service-discovery table, not a hot path, so a small
/// fixed bucket count is generous headroom rather than a tuned capacity.
const registryBuckets = 64

/// NamedPortRegistry_t is the process-wide name -> port binding table
/// (spec §4.6), backed by hashtable.Hashtable_t (whose Get is lock-free)
/// rather than a bare Go map.
/// reg.mu still serializes Bind/RequestNamedPort's lookup-or-insert
/// sequences; the hashtable's own per-bucket locking is what lets a bare
/// Lookup avoid reg.mu entirely if it's ever pulled out of that path.
type NamedPortRegistry_t struct {
	mu      sync.Mutex
	entries *hashtable.Hashtable_t
}

/// NewNamedPortRegistry creates an empty registry.
func NewNamedPortRegistry() *NamedPortRegistry_t {
	return &NamedPortRegistry_t{entries: hashtable.MkHash(registryBuckets)}
}

func (reg *NamedPortRegistry_t) get(name string) (*namedPortDesc, bool) {
	v, ok := reg.entries.Get(name)
	if !ok {
		return nil, false
	}
	return v.(*namedPortDesc), true
}

/// Bind associates name with port, synchronously firing every pending
/// Send_Message action queued against it (spec §4.6). Fails with
/// AlreadyExists if the name is already bound.
func (reg *NamedPortRegistry_t) Bind(name string, port *Port_t) defs.Err_t {
	name = canon(name)
	reg.mu.Lock()
	d, ok := reg.get(name)
	if ok && d.port != nil {
		reg.mu.Unlock()
		return defs.EEXIST
	}
	if !ok {
		d = &namedPortDesc{}
		reg.entries.Set(name, d)
	}
	d.port = port
	pending := d.pending
	d.pending = nil
	reg.mu.Unlock()

	for _, act := range pending {
		reg.deliver(name, port, act)
	}
	return 0
}

/// Unbind tears down name's binding, firing every still-pending action
/// with the given failure code (spec §4.6, "An unbind fires Notify_Task
/// actions with a failure code").
func (reg *NamedPortRegistry_t) Unbind(name string, failure defs.Err_t) defs.Err_t {
	name = canon(name)
	reg.mu.Lock()
	d, ok := reg.get(name)
	if !ok {
		reg.mu.Unlock()
		return defs.ENOTFOUND
	}
	pending := d.pending
	reg.entries.Del(name)
	reg.mu.Unlock()

	for _, act := range pending {
		if act.Notify != nil {
			act.Notify(failure)
		}
	}
	return 0
}

func (reg *NamedPortRegistry_t) deliver(name string, port *Port_t, act PendingAction_t) {
	if act.ReplyPort != nil {
		payload := make([]byte, 8+len(name))
		util.Writen(payload, 8, 0, int(port.Id))
		copy(payload[8:], name)
		act.ReplyPort.SendFromSystem(defs.MsgNamedPortNotification, payload)
		return
	}
	if act.Notify != nil {
		act.Notify(0)
	}
}

/// RequestNamedPort implements request_named_port(name, reply_port): if
/// name is already bound, delivers the notification synchronously;
/// otherwise queues a Send_Message action that fires on Bind (spec
/// §4.6).
func (reg *NamedPortRegistry_t) RequestNamedPort(name string, replyPort *Port_t) {
	name = canon(name)
	reg.mu.Lock()
	d, ok := reg.get(name)
	if ok && d.port != nil {
		port := d.port
		reg.mu.Unlock()
		reg.deliver(name, port, PendingAction_t{ReplyPort: replyPort})
		return
	}
	if !ok {
		d = &namedPortDesc{}
		reg.entries.Set(name, d)
	}
	d.pending = append(d.pending, PendingAction_t{ReplyPort: replyPort})
	reg.mu.Unlock()
}

/// Lookup returns the port currently bound to name, if any.
func (reg *NamedPortRegistry_t) Lookup(name string) (*Port_t, bool) {
	name = canon(name)
	reg.mu.Lock()
	defer reg.mu.Unlock()
	d, ok := reg.get(name)
	if !ok || d.port == nil {
		return nil, false
	}
	return d.port, true
}
