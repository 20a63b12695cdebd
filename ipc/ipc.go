// Package ipc implements ports and messages (spec §4.6): the kernel's sole
// communication primitive. Its shape follows the same send/enqueue/wake
// idiom biscuit uses for pipes and sockets (circbuf.Circbuf_t's
// Uiowrite-then-wake pattern), generalized from a byte ring to a FIFO of
// discrete Message_t values, and from file-descriptor waiters to a
// Waiter_t callback so ipc never needs to import task or sched.
package ipc

import (
	"sync"

	"defs"
	"vm"
)

// MaxMessageRights bounds the rights array carried by one message,
// grounded on original_source's ipc/message.cc, which fixes the carried
// rights array at 4 entries rather than leaving it unbounded.
const MaxMessageRights = 4

/// RightRef_t is the minimal view ipc needs of a right being attached to a
/// message: rights.Right_t implements this without ipc importing rights,
/// which instead imports ipc (Right.parent.port).
type RightRef_t interface {
	// Detach marks the right as carried "of_message": it is no longer
	// independently alive in any group, and is destroyed when the
	// message carrying it is destroyed.
	Detach()
}

/// Message_t is one enqueued message: a header, an opaque payload, and
/// zero or more rights transferred with it.
type Message_t struct {
	Header  defs.Header
	Payload []byte
	Rights  []RightRef_t
}

/// Destroy releases every right the message still carries. Called when a
/// message is dequeued-and-discarded (e.g. the owning port dies before the
/// message is ever received).
func (m *Message_t) Destroy() {
	for _, r := range m.Rights {
		r.Detach()
	}
	m.Rights = nil
}

/// Waiter_t is a parked receiver: Wake is invoked with the message that
/// just became available to it, or nil if the port died while it waited.
type Waiter_t struct {
	Tid  defs.Tid_t
	Wake func(*Message_t)
}

/// Port_t is a single message queue with liveness and one waiter FIFO
/// (spec §4.6). It records no owner; rights.Right_t checks the `group`
/// recorded on the right itself on send.
type Port_t struct {
	mu      sync.Mutex
	Id      defs.PortId_t
	dead    bool
	queue   []*Message_t
	waiters []Waiter_t
}

/// NewPort creates a live port with the given id.
func NewPort(id defs.PortId_t) *Port_t {
	return &Port_t{Id: id}
}

/// IsDead reports whether the port has been torn down.
func (p *Port_t) IsDead() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dead
}

/// Kill marks the port dead, draining its queue (releasing any rights
/// still attached to undelivered messages) and waking every waiter with a
/// nil message so callers can surface PortDead.
func (p *Port_t) Kill() {
	p.mu.Lock()
	q := p.queue
	w := p.waiters
	p.queue = nil
	p.waiters = nil
	p.dead = true
	p.mu.Unlock()

	for _, m := range q {
		m.Destroy()
	}
	for _, waiter := range w {
		waiter.Wake(nil)
	}
}

/// enqueue appends m to the queue and wakes the oldest waiter if any,
/// handing the message directly to it rather than leaving it queued —
/// this matches spec §4.6's "enqueue; wake the owner if it is blocked".
func (p *Port_t) enqueue(m *Message_t) defs.Err_t {
	p.mu.Lock()
	if p.dead {
		p.mu.Unlock()
		m.Destroy()
		return defs.EPORTDEAD
	}
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.mu.Unlock()
		w.Wake(m)
		return 0
	}
	p.queue = append(p.queue, m)
	p.mu.Unlock()
	return 0
}

/// SendFromSystem enqueues a system-originated message (interrupts, group
/// notifications) with no payload copy from user memory required.
func (p *Port_t) SendFromSystem(msgType defs.MsgType_t, payload []byte) defs.Err_t {
	return p.SendFromSystemWithRights(msgType, payload, nil)
}

/// SendFromSystemWithRights is SendFromSystem plus a set of rights
/// transferred with the message (rights.Table_t.SendMessageRight's
/// enqueue step, spec §4.7 step 5).
func (p *Port_t) SendFromSystemWithRights(msgType defs.MsgType_t, payload []byte, rightsArr []RightRef_t) defs.Err_t {
	if p.IsDead() {
		return defs.EPORTDEAD
	}
	return p.enqueue(&Message_t{Header: defs.Header{Type: msgType}, Payload: payload, Rights: rightsArr})
}

/// SendFromUser validates liveness, copies length bytes from the sender's
/// address space at userBuf (faulting lazily, per
/// vm.Vm_t.AtomicCopyFromUser), attaches rightsArr (capped at
/// MaxMessageRights, per original_source), and enqueues the result (spec
/// §4.6).
func (p *Port_t) SendFromUser(msgType defs.MsgType_t, sender *vm.Vm_t, userBuf uintptr, length int, rightsArr []RightRef_t) defs.Err_t {
	if p.IsDead() {
		return defs.EPORTDEAD
	}
	if len(rightsArr) > MaxMessageRights {
		return defs.EINVAL
	}
	payload := make([]byte, length)
	if ok, err := sender.AtomicCopyFromUser(userBuf, payload); !ok {
		return err
	}
	return p.enqueue(&Message_t{Header: defs.Header{Type: msgType}, Payload: payload, Rights: rightsArr})
}

/// Receive dequeues the head message. If the queue is empty: a
/// non-blocking caller gets ERETRY; a blocking caller is linked onto the
/// waiter list via wake and also gets ERETRY, with wake invoked later when
/// a message arrives or the port dies (spec §4.6, "BlockedOnPort").
func (p *Port_t) Receive(tid defs.Tid_t, block bool, wake func(*Message_t)) (*Message_t, defs.Err_t) {
	p.mu.Lock()
	if p.dead {
		p.mu.Unlock()
		return nil, defs.EPORTDEAD
	}
	if len(p.queue) > 0 {
		m := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()
		return m, 0
	}
	if !block {
		p.mu.Unlock()
		return nil, defs.ERETRY
	}
	p.waiters = append(p.waiters, Waiter_t{Tid: tid, Wake: wake})
	p.mu.Unlock()
	return nil, defs.ERETRY
}

/// QueueLen reports the number of messages currently queued, for tests
/// and for introspection.
func (p *Port_t) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}
