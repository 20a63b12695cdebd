// Package syscall implements the narrow, hand-audited copy-in/out layer
// and the dispatcher that sits between a trap frame and the kernel's
// ports/rights/vm subsystems (spec §4.11). It is grounded on
// vm.Userbuf_t's fault-then-copy loop (vm/userbuf.go, adapted from
// biscuit) generalized into the two entry points spec §4.11 names
// explicitly: prepare_user_buff_rd and prepare_user_buff_wr.
package syscall

import (
	"defs"
	"ipc"
	"irq"
	"rights"
	"vm"
)

/// Num_t enumerates the syscalls this dispatcher recognizes. The set is
/// deliberately small: every argument is hand-validated rather than
/// generically marshaled (spec §4.11, "narrow, hand-audited").
type Num_t uint32

const (
	SysPortReceive Num_t = iota
	SysPortSendFromUser
	SysRightCreate
	SysRightDestroy
	SysRightSendMessage
	SysIrqAcknowledge
)

/// Args_t is the decoded argument bundle for one syscall; which fields
/// matter depends on Num.
type Args_t struct {
	Num       Num_t
	Port      *ipc.Port_t
	Buf       uintptr
	Len       int
	Block     bool
	Right     *rights.Right_t
	Group     defs.GroupId_t
	ReplyPort *ipc.Port_t
	RightsIn  []*rights.Right_t
	RightKind rights.Type_t
	MsgType   defs.MsgType_t
	Vec       defs.VecId_t
	Irqs      *irq.Table_t
}

/// Result_t is a syscall's (result_code, optional_value) pair (spec §6).
type Result_t struct {
	Err   defs.Err_t
	Value uint64
}

/// PrepareUserBuffRd checks [uva, uva+length) with addressable, lazily
/// faults in every covered page for read
/// access (blocking the caller if necessary), and copies the range into
/// a freshly allocated buffer (spec §4.11, prepare_user_buff_rd). A
/// Retry return means the caller was blocked; the syscall dispatcher
/// must restart the whole syscall once the thread resumes.
func PrepareUserBuffRd(as *vm.Vm_t, uva uintptr, length int) ([]byte, defs.Err_t) {
	if !addressable(as, uva, length) {
		return nil, defs.EBADADDR
	}
	buf := make([]byte, length)
	ok, err := as.AtomicCopyFromUser(uva, buf)
	if !ok {
		return nil, err
	}
	return buf, 0
}

/// PrepareUserBuffWr validates the destination range and copies src into
/// user memory, lazily faulting in each covered page for write access
/// (spec §4.11, prepare_user_buff_wr).
func PrepareUserBuffWr(as *vm.Vm_t, uva uintptr, src []byte) defs.Err_t {
	if !addressable(as, uva, len(src)) {
		return defs.EBADADDR
	}
	ok, err := as.AtomicCopyToUser(uva, src)
	if !ok {
		return err
	}
	return 0
}

/// addressable is the dispatcher's minimal range check before it touches
/// the page-table engine: the length must be non-negative and the range
/// must not wrap. It does not check the range against the kernel/user
/// split or any per-architecture canonical-address rule.
func addressable(as *vm.Vm_t, uva uintptr, length int) bool {
	if length < 0 {
		return false
	}
	end := uva + uintptr(length)
	if end < uva {
		return false
	}
	return true
}

/// Dispatch executes one syscall against the given address space and
/// rights table, translating every subsystem error into the syscall's
/// user-visible (result_code, value) pair (spec §4.11 and §7,
/// "Propagation policy ... the syscall dispatcher ... translates them to
/// user-visible negative codes").
func Dispatch(as *vm.Vm_t, table *rights.Table_t, tid defs.Tid_t, wake func(*ipc.Message_t), a Args_t) Result_t {
	switch a.Num {
	case SysPortReceive:
		m, err := a.Port.Receive(tid, a.Block, wake)
		if err != 0 {
			return Result_t{Err: err}
		}
		if e := PrepareUserBuffWr(as, a.Buf, m.Payload); e != 0 {
			return Result_t{Err: e}
		}
		return Result_t{Value: uint64(len(m.Payload))}

	case SysPortSendFromUser:
		payload, err := PrepareUserBuffRd(as, a.Buf, a.Len)
		if err != 0 {
			return Result_t{Err: err}
		}
		if err := a.Port.SendFromSystem(a.MsgType, payload); err != 0 {
			return Result_t{Err: err}
		}
		return Result_t{}

	case SysRightCreate:
		r, err := table.CreateForGroup(a.Port, a.Group, a.RightKind, 0)
		if err != 0 {
			return Result_t{Err: err}
		}
		return Result_t{Value: uint64(r.SenderId())}

	case SysRightDestroy:
		if err := table.Destroy(a.Right, &a.Group); err != 0 {
			return Result_t{Err: err}
		}
		return Result_t{}

	case SysRightSendMessage:
		payload, err := PrepareUserBuffRd(as, a.Buf, a.Len)
		if err != 0 {
			return Result_t{Err: err}
		}
		if err := table.SendMessageRight(a.MsgType, a.Right, a.Group, a.ReplyPort, a.RightsIn, payload); err != 0 {
			return Result_t{Err: err}
		}
		return Result_t{}

	case SysIrqAcknowledge:
		if err := a.Irqs.Acknowledge(a.Vec); err != 0 {
			return Result_t{Err: err}
		}
		return Result_t{}

	default:
		return Result_t{Err: defs.EINVAL}
	}
}
