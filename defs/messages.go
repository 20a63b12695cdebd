package defs

/// MsgType_t is the wire type tag in a port message header (spec §6):
/// {u32 type, u32 flags, payload...}.
type MsgType_t uint32

const (
	/// MsgKernelInterrupt carries {vector, hart_id}; user must ack by
	/// re-enabling the handler.
	MsgKernelInterrupt MsgType_t = 1
	/// MsgNamedPortNotification carries {port_id, name_bytes[]} on bind.
	MsgNamedPortNotification MsgType_t = 2
	/// MsgGroupTaskChanged carries {group_id, task_id, event}.
	MsgGroupTaskChanged MsgType_t = 3
	/// MsgGroupDestroyed carries {group_id}; sender is always 0.
	MsgGroupDestroyed MsgType_t = 4
	/// MsgTimerReply is delivered on deadline fire.
	MsgTimerReply MsgType_t = 5
)

/// MsgFlags_t are the header flag bits. None are defined by the core today;
/// the field exists so the wire format can grow without a layout break.
type MsgFlags_t uint32

/// Header is the fixed 8-byte prefix of every message on a port.
type Header struct {
	Type  MsgType_t
	Flags MsgFlags_t
}

/// GroupEvent_t distinguishes the two task-group lifecycle events that are
/// reported per task (Destroyed is reported as MsgGroupDestroyed instead,
/// with no task id, per spec §4.8).
type GroupEvent_t uint32

const (
	GroupTaskAdded GroupEvent_t = iota
	GroupTaskRemoved
)

/// KernelInterruptMessage is the decoded body of MsgKernelInterrupt.
type KernelInterruptMessage struct {
	Vector VecId_t
	Hart   HartId_t
}

/// NamedPortNotification is the decoded body of MsgNamedPortNotification.
type NamedPortNotification struct {
	PortId PortId_t
	Name   []byte
}

/// GroupTaskChanged is the decoded body of MsgGroupTaskChanged.
type GroupTaskChanged struct {
	Group GroupId_t
	Task  Tid_t
	Event GroupEvent_t
}

/// GroupDestroyed is the decoded body of MsgGroupDestroyed.
type GroupDestroyed struct {
	Group GroupId_t
}
